// Copyright 2026 The Procvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package procvisor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProcessState is the lifecycle state of a single launch.
type ProcessState int

const (
	ProcessStarting ProcessState = iota
	ProcessRunning
	ProcessStopping
	ProcessExited
)

func (s ProcessState) String() string {
	switch s {
	case ProcessStarting:
		return "starting"
	case ProcessRunning:
		return "running"
	case ProcessStopping:
		return "stopping"
	case ProcessExited:
		return "exited"
	}
	return "unknown"
}

// ExitCodeSpawnFailed is the synthetic exit code recorded when a process
// could not be launched at all.
const ExitCodeSpawnFailed = -1

// Once the process has exited, descendants still holding its output
// pipes get this long before the pipes are closed on them.
var drainDelay = 2 * time.Second

// Process represents one launch of a ProcessSpec as an operating system
// process.  A new Process is created for every (re)launch; Process
// objects are never restarted.
//
// The process runs in its own process group, so that signals reach any
// children it forks as well.
type Process struct {
	spec     *ProcessSpec
	id       string
	cmd      *exec.Cmd
	stdout   io.WriteCloser
	stderr   io.WriteCloser
	state    ProcessState
	pid      int
	exitCode int
	started  time.Time
	exited   time.Time
	err      error
	done     chan struct{}
	lock     sync.Mutex
}

func newProcess(spec *ProcessSpec) *Process {
	return &Process{
		spec:  spec,
		id:    uuid.New().String(),
		state: ProcessStarting,
		done:  make(chan struct{}),
	}
}

// StartProcess launches spec, wiring its output to the sink (which may
// be nil to discard output).  On success the returned Process is
// Running.  Failure to launch is reported as a *SpawnError.
func StartProcess(spec *ProcessSpec, sink *Sink) (*Process, error) {
	p := newProcess(spec)
	if sink != nil {
		sink.Attach(p)
	}
	if e := p.start(); e != nil {
		return nil, e
	}
	return p, nil
}

func (p *Process) start() error {
	argv := p.spec.Argv()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = p.spec.Dir()
	if env := p.spec.Env(); len(env) != 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	if p.stdout != nil {
		cmd.Stdout = p.stdout
	}
	if p.stderr != nil {
		cmd.Stderr = p.stderr
	}
	cmd.WaitDelay = drainDelay
	setProcessGroup(cmd)

	p.lock.Lock()
	defer p.lock.Unlock()

	p.cmd = cmd
	if e := cmd.Start(); e != nil {
		p.closeOutput()
		p.state = ProcessExited
		p.exitCode = ExitCodeSpawnFailed
		p.err = e
		p.exited = time.Now()
		close(p.done)
		return &SpawnError{Name: p.spec.Name(), Argv: argv, Err: e}
	}
	p.pid = cmd.Process.Pid
	p.started = time.Now()
	p.state = ProcessRunning

	go p.doWait()
	return nil
}

// doWait reaps the process.  exec.Cmd.Wait does not return until the
// output has been copied to our writers (or drainDelay has passed), so
// by the time done is closed no output is outstanding.
func (p *Process) doWait() {
	e := p.cmd.Wait()
	p.closeOutput()

	code := exitCode(p.cmd.ProcessState)
	if errors.Is(e, exec.ErrWaitDelay) {
		e = nil
	}

	p.lock.Lock()
	p.state = ProcessExited
	p.exitCode = code
	p.exited = time.Now()
	p.err = e
	p.lock.Unlock()

	close(p.done)
}

func (p *Process) closeOutput() {
	if p.stdout != nil {
		p.stdout.Close()
	}
	if p.stderr != nil {
		p.stderr.Close()
	}
}

// Spec returns the spec this process was launched from.
func (p *Process) Spec() *ProcessSpec {
	return p.spec
}

// Name is a shorthand for Spec().Name().
func (p *Process) Name() string {
	return p.spec.Name()
}

// ID uniquely identifies this launch.
func (p *Process) ID() string {
	return p.id
}

// Pid returns the operating system process id.  It is only valid while
// the process is running; zero is returned otherwise.
func (p *Process) Pid() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state == ProcessExited {
		return 0
	}
	return p.pid
}

func (p *Process) State() ProcessState {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state
}

// ExitCode returns the exit code, and whether the process has exited.
func (p *Process) ExitCode() (int, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.exitCode, p.state == ProcessExited
}

func (p *Process) StartTime() time.Time {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.started
}

// ExitTime is when the process was observed to exit.  It is the zero
// time while the process is still running.
func (p *Process) ExitTime() time.Time {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.exited
}

// Done is closed once the process has exited and its output drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits, and returns its exit code.  A
// process killed by a signal reports 128 plus the signal number.
func (p *Process) Wait() int {
	<-p.done
	code, _ := p.ExitCode()
	return code
}

// Signal delivers sig to the process group.  Signalling a process that
// has already exited is not an error.
func (p *Process) Signal(sig os.Signal) error {
	p.lock.Lock()
	if p.state == ProcessExited || p.cmd == nil {
		p.lock.Unlock()
		return nil
	}
	pid := p.pid
	proc := p.cmd.Process
	p.lock.Unlock()

	e := signalGroup(pid, proc, sig)
	if e == nil || errors.Is(e, os.ErrProcessDone) || isNoSuchProcess(e) {
		return nil
	}
	return &SignalError{Name: p.Name(), Pid: pid, Signal: sig, Err: e}
}

// Terminate asks the process to stop, moving it to Stopping.
func (p *Process) Terminate() error {
	p.lock.Lock()
	if p.state == ProcessRunning {
		p.state = ProcessStopping
	}
	p.lock.Unlock()
	return p.Signal(terminateSignal)
}

// Kill forcibly terminates the process group.
func (p *Process) Kill() error {
	return p.Signal(os.Kill)
}
