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
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// SpecState is the supervision state of one ProcessSpec.
type SpecState int

const (
	SpecStopped SpecState = iota
	SpecLaunching
	SpecRunning
	SpecExited
)

func (s SpecState) String() string {
	switch s {
	case SpecStopped:
		return "stopped"
	case SpecLaunching:
		return "launching"
	case SpecRunning:
		return "running"
	case SpecExited:
		return "exited"
	}
	return "unknown"
}

// EventKind identifies a supervision event.
type EventKind int

const (
	EventLaunching EventKind = iota
	EventLaunched
	EventSpawnFailed
	EventExited
	EventRelaunchScheduled
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventLaunching:
		return "launching"
	case EventLaunched:
		return "launched"
	case EventSpawnFailed:
		return "spawn-failed"
	case EventExited:
		return "exited"
	case EventRelaunchScheduled:
		return "relaunch-scheduled"
	case EventStopped:
		return "stopped"
	}
	return "unknown"
}

// Event reports a state change of a supervised process.  Events for one
// spec are delivered in the order they happen.
type Event struct {
	Kind     EventKind
	Name     string
	Time     time.Time
	LaunchID string
	Pid      int
	Code     int           // EventExited
	Delay    time.Duration // EventRelaunchScheduled
	Err      error         // EventSpawnFailed
}

// ProcessInfo is a snapshot of one supervised process.
type ProcessInfo struct {
	Name           string    `json:"name"`
	State          string    `json:"state"`
	Pid            int       `json:"pid,omitempty"`
	LaunchID       string    `json:"launch_id,omitempty"`
	Launches       int       `json:"launches"`
	ExitCode       *int      `json:"exit_code,omitempty"`
	StartTime      time.Time `json:"start_time"`
	ExitTime       time.Time `json:"exit_time"`
	NextLaunch     time.Time `json:"next_launch"`
	Reason         string    `json:"reason,omitempty"`
	Updated        time.Time `json:"updated"`
	Command        []string  `json:"command"`
	RestartDelayMs int64     `json:"restart_delay_ms"`
}

// entry is the supervisor's record of one spec.  Entries are only ever
// touched by the event loop.
type entry struct {
	spec       *ProcessSpec
	state      SpecState
	proc       *Process
	gen        int
	timer      *time.Timer
	killTimer  *time.Timer
	history    *launchHistory
	exitCode   *int
	startTime  time.Time
	exitTime   time.Time
	nextLaunch time.Time
	reason     string
	stamp      time.Time
	// spawnFailing is set while consecutive launches fail to spawn, so
	// that a failure is reported once rather than on every retry.
	spawnFailing bool
}

type launchResult struct {
	name string
	proc *Process
	err  error
	at   time.Time
}

type timerFire struct {
	name string
	gen  int
}

// Supervisor launches a fixed set of processes and keeps them running,
// relaunching each one after it exits, until it is shut down.
//
// All supervision state is owned by a single goroutine, the event loop,
// which serializes launches, exits, relaunch timers and shutdown.
type Supervisor struct {
	logger      *zap.SugaredLogger
	sink        *Sink
	metrics     *metrics
	observer    func(Event)
	killTimeout time.Duration

	entries  map[string]*entry
	order    []string
	stopping bool
	timeout  time.Duration
	// capped is true when the shutdown timeout came from the caller, and
	// so bounds the per-spec kill timeouts.
	capped bool

	// halted is set as soon as Shutdown is called, ahead of the event
	// loop seeing the request, so that no launch can begin in between.
	halted atomic.Bool

	launchc chan launchResult
	exitc   chan *Process
	timerc  chan timerFire
	reqc    chan func()
	shutc   chan time.Duration
	done    chan struct{}

	started bool
	startMx sync.Mutex

	serial int64
	mx     sync.Mutex
	cvs    map[*sync.Cond]bool
}

type Option func(*Supervisor)

// WithLogger sets the logger for supervision diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSink sets where process output goes.  Without a sink, output is
// kept in memory only.
func WithSink(sink *Sink) Option {
	return func(s *Supervisor) {
		s.sink = sink
	}
}

// WithRegisterer registers the supervisor's metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Supervisor) {
		s.metrics = newMetrics(reg)
	}
}

// WithObserver installs a function called for every Event.  It is
// called from the event loop, and so must not block or call back into
// the Supervisor.
func WithObserver(fn func(Event)) Option {
	return func(s *Supervisor) {
		s.observer = fn
	}
}

// WithKillTimeout sets the stop timeout used when Shutdown is given none
// and a spec sets none of its own.
func WithKillTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.killTimeout = d
	}
}

func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:      nopLogger,
		killTimeout: DefaultKillTimeout,
		entries:     make(map[string]*entry),
		launchc:     make(chan launchResult),
		exitc:       make(chan *Process),
		timerc:      make(chan timerFire),
		reqc:        make(chan func()),
		shutc:       make(chan time.Duration),
		done:        make(chan struct{}),
		cvs:         make(map[*sync.Cond]bool),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(nil)
	}
	if s.sink == nil {
		s.sink = NewSink(nil)
	}
	return s
}

// Start begins supervising specs, launching all of them at once.  It
// may only be called once.  Names must be unique.
func (s *Supervisor) Start(specs []*ProcessSpec) error {
	s.startMx.Lock()
	defer s.startMx.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	ce := &ConfigError{}
	seen := make(map[string]int)
	for i, spec := range specs {
		if spec == nil {
			ce.add(i, "", "spec", "must not be nil")
			continue
		}
		if j, dup := seen[spec.Name()]; dup {
			ce.add(i, spec.Name(), "name",
				"duplicate name %q, also used by apps[%d]",
				spec.Name(), j)
			continue
		}
		seen[spec.Name()] = i
	}
	if e := ce.errOrNil(); e != nil {
		return e
	}

	now := time.Now()
	for _, spec := range specs {
		s.entries[spec.Name()] = &entry{
			spec:    spec,
			state:   SpecLaunching,
			history: newLaunchHistory(spec),
			reason:  "Launching",
			stamp:   now,
		}
		s.order = append(s.order, spec.Name())
		s.sink.Register(spec)
	}
	s.started = true
	s.logger.Infow("starting supervisor", "processes", len(specs))
	go s.run()
	return nil
}

func (s *Supervisor) isStarted() bool {
	s.startMx.Lock()
	defer s.startMx.Unlock()
	return s.started
}

// Shutdown stops supervision.  No process is relaunched once Shutdown
// has been called.  Running processes are asked to terminate, and any
// still running after timeout are killed.  A spec's own kill timeout
// applies when it is shorter than timeout, or when timeout is zero; a
// zero timeout otherwise means the supervisor's default.  Shutdown returns when every process has exited, or with the
// context's error if ctx ends first; in the latter case the shutdown
// still proceeds.  Calling Shutdown again is harmless.
func (s *Supervisor) Shutdown(ctx context.Context, timeout time.Duration) error {
	if !s.isStarted() {
		return nil
	}
	s.halted.Store(true)
	// The event loop never blocks for long, so the request is always
	// delivered, even if ctx has already ended.
	select {
	case s.shutc <- timeout:
	case <-s.done:
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once a shutdown has completed.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Sink returns the sink receiving process output.
func (s *Supervisor) Sink() *Sink {
	return s.sink
}

// Processes returns a snapshot of every process, in configuration order.
func (s *Supervisor) Processes() []ProcessInfo {
	var rv []ProcessInfo
	s.call(func() {
		rv = make([]ProcessInfo, 0, len(s.order))
		for _, name := range s.order {
			rv = append(rv, s.entries[name].info())
		}
	})
	return rv
}

// Process returns a snapshot of the named process.
func (s *Supervisor) Process(name string) (ProcessInfo, error) {
	var rv ProcessInfo
	err := ErrUnknownProcess
	if !s.call(func() {
		if e, ok := s.entries[name]; ok {
			rv = e.info()
			err = nil
		}
	}) {
		return rv, ErrNotStarted
	}
	return rv, err
}

// Log returns the recent output of the named process.
func (s *Supervisor) Log(name string) (*Log, error) {
	if log := s.sink.Log(name); log != nil {
		return log, nil
	}
	return nil, ErrUnknownProcess
}

// call runs fn on the event loop.  Once the loop has finished, state no
// longer changes and fn runs directly.
func (s *Supervisor) call(fn func()) bool {
	if !s.isStarted() {
		return false
	}
	ch := make(chan struct{})
	select {
	case s.reqc <- func() { fn(); close(ch) }:
		<-ch
	case <-s.done:
		fn()
	}
	return true
}

// Serial returns a number that changes whenever any process changes
// state.
func (s *Supervisor) Serial() int64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.serial
}

// WatchSerial waits for the serial to differ from old, or for expire to
// pass, and returns the current serial.  A poll can be done by supplying
// 0 for the expiration.
func (s *Supervisor) WatchSerial(old int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&s.mx)
	var timer *time.Timer

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			s.mx.Lock()
			expired = true
			cv.Broadcast()
			s.mx.Unlock()
		})
	} else {
		expired = true
	}

	s.mx.Lock()
	s.cvs[cv] = true
	for s.serial == old && !expired {
		cv.Wait()
	}
	delete(s.cvs, cv)
	rv := s.serial
	s.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

func (s *Supervisor) bumpSerial() {
	s.mx.Lock()
	s.serial++
	for cv := range s.cvs {
		cv.Broadcast()
	}
	s.mx.Unlock()
}

func (s *Supervisor) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if s.observer != nil {
		s.observer(ev)
	}
}

func (s *Supervisor) run() {
	for _, name := range s.order {
		s.launch(s.entries[name])
	}
	s.bumpSerial()

	for !s.finished() {
		select {
		case r := <-s.launchc:
			s.launched(r)
		case p := <-s.exitc:
			s.reaped(p)
		case f := <-s.timerc:
			s.relaunch(f)
		case fn := <-s.reqc:
			fn()
			continue
		case t := <-s.shutc:
			s.beginShutdown(t)
		}
		s.bumpSerial()
	}
	s.logger.Infow("supervisor stopped")
	close(s.done)
}

// finished is true once shutdown has stopped every spec.
func (s *Supervisor) finished() bool {
	if !s.stopping {
		return false
	}
	for _, e := range s.entries {
		if e.state != SpecStopped {
			return false
		}
	}
	return true
}

func (s *Supervisor) setState(e *entry, state SpecState, reason string) {
	e.state = state
	e.reason = reason
	e.stamp = time.Now()
}

func (s *Supervisor) launch(e *entry) {
	name := e.spec.Name()
	e.gen++
	e.timer = nil
	e.nextLaunch = time.Time{}
	if s.halted.Load() {
		s.setState(e, SpecStopped, "Shutting down")
		s.emit(Event{Kind: EventStopped, Name: name})
		return
	}
	now := time.Now()
	e.history.record(now)
	s.setState(e, SpecLaunching, "Launching")
	s.metrics.launched(name)
	s.logger.Debugw("launching process", "name", name, "argv", e.spec.Argv())
	s.emit(Event{Kind: EventLaunching, Name: name, Time: now})

	go func(spec *ProcessSpec) {
		p, err := StartProcess(spec, s.sink)
		s.launchc <- launchResult{name: spec.Name(), proc: p, err: err, at: time.Now()}
	}(e.spec)
}

func (s *Supervisor) launched(r launchResult) {
	e := s.entries[r.name]
	if r.err != nil {
		if e.spawnFailing {
			s.logger.Debugw("failed to launch process", "name", r.name, "error", r.err)
		} else {
			s.logger.Errorw("failed to launch process", "name", r.name, "error", r.err)
			e.spawnFailing = true
		}
		s.metrics.spawnFailed(r.name)
		s.emit(Event{Kind: EventSpawnFailed, Name: r.name, Time: r.at, Err: r.err})
		s.exited(e, ExitCodeSpawnFailed, r.at, r.err.Error())
		return
	}

	if e.spawnFailing {
		s.logger.Infow("process launched after spawn failures", "name", r.name)
		e.spawnFailing = false
	}
	p := r.proc
	e.proc = p
	e.startTime = p.StartTime()
	s.setState(e, SpecRunning, "Running")
	s.metrics.started(r.name)
	s.logger.Infow("process started", "name", r.name, "pid", p.pid, "launch", p.ID())
	s.emit(Event{
		Kind:     EventLaunched,
		Name:     r.name,
		Time:     e.startTime,
		LaunchID: p.ID(),
		Pid:      p.pid,
	})

	go func() {
		<-p.Done()
		s.exitc <- p
	}()

	// A launch that completes after shutdown began is stopped at once.
	if s.stopping {
		s.terminate(e)
	}
}

func (s *Supervisor) reaped(p *Process) {
	e := s.entries[p.Name()]
	if e.proc != p {
		return
	}
	e.proc = nil
	if e.killTimer != nil {
		e.killTimer.Stop()
		e.killTimer = nil
	}
	code, _ := p.ExitCode()
	at := p.ExitTime()

	s.logger.Infow("process exited", "name", p.Name(), "pid", p.pid,
		"launch", p.ID(), "code", code, "uptime", at.Sub(p.StartTime()))
	s.metrics.exited(p.Name(), code)
	s.emit(Event{
		Kind:     EventExited,
		Name:     p.Name(),
		Time:     at,
		LaunchID: p.ID(),
		Pid:      p.pid,
		Code:     code,
	})
	s.exited(e, code, at, "Exited")
}

// exited consults the restart policy for a spec whose launch has ended.
func (s *Supervisor) exited(e *entry, code int, at time.Time, reason string) {
	name := e.spec.Name()
	c := code
	e.exitCode = &c
	e.exitTime = at
	s.setState(e, SpecExited, reason)

	ev := ExitEvent{Code: code, At: at}
	if w := e.spec.RestartWindow(); w > 0 {
		ev.Launches = e.history.since(at.Add(-w))
	}
	d := Decide(e.spec, ev, s.stopping || s.halted.Load())

	if d.Action == Stop {
		if !s.stopping && !s.halted.Load() {
			s.logger.Warnw("not relaunching process", "name", name,
				"reason", d.Reason, "launches", ev.Launches)
		}
		s.setState(e, SpecStopped, d.Reason)
		s.emit(Event{Kind: EventStopped, Name: name})
		return
	}

	s.emit(Event{Kind: EventRelaunchScheduled, Name: name, Delay: d.Delay})
	wait := time.Until(at.Add(d.Delay))
	if wait <= 0 {
		s.launch(e)
		return
	}
	s.logger.Infow("relaunch scheduled", "name", name, "delay", d.Delay)
	e.gen++
	gen := e.gen
	e.nextLaunch = at.Add(d.Delay)
	e.timer = time.AfterFunc(wait, func() {
		select {
		case s.timerc <- timerFire{name: name, gen: gen}:
		case <-s.done:
		}
	})
}

func (s *Supervisor) relaunch(f timerFire) {
	e := s.entries[f.name]
	// Stale timers, including any that fired while shutdown was
	// cancelling them, are ignored.
	if e.gen != f.gen || e.state != SpecExited || s.stopping {
		return
	}
	s.launch(e)
}

func (s *Supervisor) beginShutdown(timeout time.Duration) {
	if s.stopping {
		return
	}
	s.stopping = true
	s.capped = timeout > 0
	if timeout <= 0 {
		timeout = s.killTimeout
	}
	s.timeout = timeout
	s.logger.Infow("shutting down", "timeout", timeout)

	for _, name := range s.order {
		e := s.entries[name]
		e.gen++
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.nextLaunch = time.Time{}
		switch e.state {
		case SpecExited:
			s.setState(e, SpecStopped, "Shutting down")
			s.emit(Event{Kind: EventStopped, Name: name})
		case SpecRunning:
			s.terminate(e)
		}
	}
}

// terminate asks a running process to stop, and arranges for it to be
// killed if it does not do so in time.
func (s *Supervisor) terminate(e *entry) {
	p := e.proc
	timeout := s.timeout
	if k := e.spec.KillTimeout(); k > 0 && (!s.capped || k < timeout) {
		timeout = k
	}
	e.reason = "Stopping"
	e.stamp = time.Now()

	if err := p.Terminate(); err != nil {
		s.logger.Warnw("failed to stop process, killing it", "name", p.Name(), "error", err)
		if err := p.Kill(); err != nil {
			s.logger.Errorw("failed to kill process", "name", p.Name(), "error", err)
		}
		return
	}
	e.killTimer = time.AfterFunc(timeout, func() {
		select {
		case <-p.Done():
			return
		default:
		}
		s.logger.Warnw("process did not stop in time, killing it",
			"name", p.Name(), "pid", p.Pid(), "timeout", timeout)
		if err := p.Kill(); err != nil {
			s.logger.Errorw("failed to kill process", "name", p.Name(), "error", err)
		}
	})
}

func (e *entry) info() ProcessInfo {
	pi := ProcessInfo{
		Name:           e.spec.Name(),
		State:          e.state.String(),
		Launches:       e.history.total(),
		StartTime:      e.startTime,
		ExitTime:       e.exitTime,
		NextLaunch:     e.nextLaunch,
		Reason:         e.reason,
		Updated:        e.stamp,
		Command:        e.spec.Argv(),
		RestartDelayMs: e.spec.RestartDelay().Milliseconds(),
	}
	if e.exitCode != nil {
		c := *e.exitCode
		pi.ExitCode = &c
	}
	if p := e.proc; p != nil {
		pi.Pid = p.Pid()
		pi.LaunchID = p.ID()
		if p.State() == ProcessStopping {
			pi.State = ProcessStopping.String()
		}
	}
	return pi
}
