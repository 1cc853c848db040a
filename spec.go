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
	"time"
)

// LaunchKind distinguishes executables that are run directly from
// scripts that are handed to an interpreter.
type LaunchKind int

const (
	NativeExecutable LaunchKind = iota
	InterpretedScript
)

func (k LaunchKind) String() string {
	switch k {
	case NativeExecutable:
		return "native"
	case InterpretedScript:
		return "interpreted"
	}
	return "unknown"
}

// Launch is the resolved way to start a process.  It is computed once,
// when the configuration is validated, so that starting a process never
// has to decide how to interpret the declaration.
type Launch struct {
	Kind        LaunchKind
	Interpreter string // resolved interpreter path, InterpretedScript only
	Path        string // resolved executable, or the script path
}

// ProcessSpec is the validated, immutable declaration of one supervised
// process.  ProcessSpecs are produced by LoadConfig (or NewProcessSpec)
// and live for the entire run of the supervisor.
type ProcessSpec struct {
	name          string
	launch        Launch
	args          []string
	dir           string
	env           []string
	restartDelay  time.Duration
	timeFormat    TimeFormat
	rawOutput     bool
	killTimeout   time.Duration
	maxRestarts   int
	restartWindow time.Duration
	outFile       string
}

// Name is the unique name of the process within its configuration.
func (s *ProcessSpec) Name() string {
	return s.name
}

// Launch returns how the process is started.
func (s *ProcessSpec) Launch() Launch {
	return s.launch
}

// Args returns the declared arguments, excluding the command itself.
func (s *ProcessSpec) Args() []string {
	return copyArray(s.args)
}

// Argv returns the full argument vector used to start the process.
// For interpreted scripts, the interpreter is argv[0], followed by the
// script path.
func (s *ProcessSpec) Argv() []string {
	var argv []string
	if s.launch.Kind == InterpretedScript {
		argv = make([]string, 0, len(s.args)+2)
		argv = append(argv, s.launch.Interpreter, s.launch.Path)
	} else {
		argv = make([]string, 0, len(s.args)+1)
		argv = append(argv, s.launch.Path)
	}
	return append(argv, s.args...)
}

// Dir is the working directory, or empty to inherit ours.
func (s *ProcessSpec) Dir() string {
	return s.dir
}

// Env returns extra environment variables (KEY=value) that are appended
// to the supervisor's own environment.
func (s *ProcessSpec) Env() []string {
	return copyArray(s.env)
}

// RestartDelay is how long to wait after an exit before relaunching.
func (s *ProcessSpec) RestartDelay() time.Duration {
	return s.restartDelay
}

// TimeFormat is the timestamp format used to prefix output lines.
func (s *ProcessSpec) TimeFormat() TimeFormat {
	return s.timeFormat
}

// RawOutput is true when output lines are passed through without any
// prefix, preserving the program's own formatting.
func (s *ProcessSpec) RawOutput() bool {
	return s.rawOutput
}

// KillTimeout is how long a graceful stop may take before the process
// is killed.  Zero means the supervisor's default applies.  A shutdown
// given its own timeout never waits longer than that timeout.
func (s *ProcessSpec) KillTimeout() time.Duration {
	return s.killTimeout
}

// MaxRestarts and RestartWindow together rate limit restarts.  If more
// than MaxRestarts launches happen inside RestartWindow the process is
// given up on.  A MaxRestarts of zero means no limit.
func (s *ProcessSpec) MaxRestarts() int {
	return s.maxRestarts
}

func (s *ProcessSpec) RestartWindow() time.Duration {
	return s.restartWindow
}

// OutFile is an optional file receiving this process's output, in
// addition to the shared sink.
func (s *ProcessSpec) OutFile() string {
	return s.outFile
}

// SpecOption adjusts a ProcessSpec built by NewProcessSpec.
type SpecOption func(*ProcessSpec)

func WithArgs(args ...string) SpecOption {
	return func(s *ProcessSpec) {
		s.args = copyArray(args)
	}
}

func WithInterpreter(interpreter string) SpecOption {
	return func(s *ProcessSpec) {
		s.launch.Kind = InterpretedScript
		s.launch.Interpreter = interpreter
	}
}

func WithDir(dir string) SpecOption {
	return func(s *ProcessSpec) {
		s.dir = dir
	}
}

func WithEnv(env ...string) SpecOption {
	return func(s *ProcessSpec) {
		s.env = copyArray(env)
	}
}

func WithRestartDelay(d time.Duration) SpecOption {
	return func(s *ProcessSpec) {
		s.restartDelay = d
	}
}

func WithTimeFormat(tf TimeFormat) SpecOption {
	return func(s *ProcessSpec) {
		s.timeFormat = tf
	}
}

func WithRawOutput(raw bool) SpecOption {
	return func(s *ProcessSpec) {
		s.rawOutput = raw
	}
}

// WithStopTimeout sets how long a graceful stop of this process may take
// before it is killed.
func WithStopTimeout(d time.Duration) SpecOption {
	return func(s *ProcessSpec) {
		s.killTimeout = d
	}
}

func WithRateLimit(max int, window time.Duration) SpecOption {
	return func(s *ProcessSpec) {
		s.maxRestarts = max
		s.restartWindow = window
	}
}

func WithOutFile(path string) SpecOption {
	return func(s *ProcessSpec) {
		s.outFile = path
	}
}

// NewProcessSpec builds a spec programmatically, resolving and checking
// it the same way LoadConfig does.  Any problems are reported as a
// *ConfigError.
func NewProcessSpec(name, command string, opts ...SpecOption) (*ProcessSpec, error) {
	s := &ProcessSpec{name: name}
	s.launch.Path = command
	for _, o := range opts {
		o(s)
	}
	ce := &ConfigError{}
	s.validate(ce, -1)
	if e := ce.errOrNil(); e != nil {
		return nil, e
	}
	return s, nil
}

func copyArray(src []string) []string {
	if src == nil {
		return nil
	}
	rv := make([]string, 0, len(src))
	rv = append(rv, src...)
	return rv
}
