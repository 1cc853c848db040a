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
	"fmt"
	"os"
	"strings"
)

var (
	ErrAlreadyStarted = errors.New("Supervisor already started")
	ErrUnknownProcess = errors.New("No such process")
	ErrNotStarted     = errors.New("Supervisor not started")
)

// Violation is a single problem found in a configuration entry.  Entry
// is the zero based position of the entry in the configuration, or -1
// when the problem is not tied to an entry.
type Violation struct {
	Entry   int
	Name    string
	Field   string
	Message string
}

func (v Violation) String() string {
	var where string
	switch {
	case v.Entry < 0 && v.Name != "":
		where = fmt.Sprintf("%s.%s", v.Name, v.Field)
	case v.Entry < 0:
		where = v.Field
	case v.Name != "":
		where = fmt.Sprintf("apps[%d] (%s).%s", v.Entry, v.Name, v.Field)
	default:
		where = fmt.Sprintf("apps[%d].%s", v.Entry, v.Field)
	}
	return where + ": " + v.Message
}

// ConfigError reports every violation found while loading a
// configuration, so that an operator can fix them all in one pass.
type ConfigError struct {
	Source     string
	Violations []Violation
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid configuration")
	if e.Source != "" {
		b.WriteString(" ")
		b.WriteString(e.Source)
	}
	fmt.Fprintf(&b, ": %d problem(s)", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  ")
		b.WriteString(v.String())
	}
	return b.String()
}

func (e *ConfigError) add(entry int, name, field, format string, args ...interface{}) {
	e.Violations = append(e.Violations, Violation{
		Entry:   entry,
		Name:    name,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// errOrNil returns nil if there were no violations.  This avoids the
// typed-nil trap when returning a *ConfigError as an error.
func (e *ConfigError) errOrNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// SpawnError is returned when a process could not be launched.  It is
// not fatal to the supervisor; the spec is retried per its restart policy.
type SpawnError struct {
	Name string
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s (%s): %v", e.Name,
		strings.Join(e.Argv, " "), e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// SignalError is returned when a signal could not be delivered.
type SignalError struct {
	Name   string
	Pid    int
	Signal os.Signal
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("signal %v to %s (pid %d): %v", e.Signal, e.Name,
		e.Pid, e.Err)
}

func (e *SignalError) Unwrap() error {
	return e.Err
}
