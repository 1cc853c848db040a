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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/procvisor/procvisor"
	"github.com/procvisor/procvisor/rest"
)

// Status is the one word state shown for a process.  A process waiting
// out its restart delay is "waiting", and one that was given up on
// while still supervised is "failed".
func Status(s *rest.ProcessInfo) string {
	switch s.State {
	case procvisor.SpecExited.String():
		if !s.NextLaunch.IsZero() {
			return "waiting"
		}
	case procvisor.SpecStopped.String():
		if s.ExitCode != nil && s.Reason != "Shutting down" {
			return "failed"
		}
	}
	return s.State
}

// Failed is true for a process that is no longer being relaunched.
func Failed(s *rest.ProcessInfo) bool {
	return Status(s) == "failed"
}

// Running is true while the process has a live pid.
func Running(s *rest.ProcessInfo) bool {
	return s.Pid != 0
}

// Uptime is how long the current launch has been running, or zero.
func Uptime(s *rest.ProcessInfo, now time.Time) time.Duration {
	if !Running(s) || s.StartTime.IsZero() {
		return 0
	}
	return now.Sub(s.StartTime)
}

// ExitCode renders the last exit code, or "-" if there is none.
func ExitCode(s *rest.ProcessInfo) string {
	if s.ExitCode == nil {
		return "-"
	}
	if *s.ExitCode == procvisor.ExitCodeSpawnFailed {
		return "spawn"
	}
	return strconv.Itoa(*s.ExitCode)
}

func Pid(s *rest.ProcessInfo) string {
	if s.Pid == 0 {
		return "-"
	}
	return strconv.Itoa(s.Pid)
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

type sorted []rest.ProcessInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := &s[i]
	b := &s[j]

	if Failed(a) != Failed(b) {
		// put failed items at front
		return Failed(a)
	}
	if Running(a) != Running(b) {
		// running in front of those between launches
		return Running(a)
	}
	return a.Name < b.Name
}

func SortProcesses(items []rest.ProcessInfo) {
	sort.Sort(sorted(items))
}

// FormatRecord renders a log record the way the sink writes it.
func FormatRecord(r *rest.LogRecord, withName bool) string {
	ts := r.Time.Format("2006-01-02 15:04:05")
	if withName {
		return fmt.Sprintf("%s [%s] %s", ts, r.Name, r.Text)
	}
	return fmt.Sprintf("%s %s", ts, r.Text)
}
