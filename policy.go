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

// Action is what the supervisor does with a spec whose process exited.
type Action int

const (
	Relaunch Action = iota
	Stop
)

func (a Action) String() string {
	switch a {
	case Relaunch:
		return "relaunch"
	case Stop:
		return "stop"
	}
	return "unknown"
}

// ExitEvent describes one process exit.  A launch that failed to spawn
// is reported with Code ExitCodeSpawnFailed.
type ExitEvent struct {
	Code int
	At   time.Time

	// Launches is the number of launches of the spec that began within
	// the spec's RestartWindow before At, this one included.
	Launches int
}

// RestartDecision is the outcome of Decide.  Delay is measured from the
// exit time, not from when the decision was made.
type RestartDecision struct {
	Action Action
	Delay  time.Duration
	Reason string
}

// Decide applies the restart policy of spec to an exit.  Every exit is
// treated alike, whatever its code: the process is relaunched after the
// spec's restart delay.  Nothing is relaunched while shutting down, or
// once the spec has been restarted too quickly.
//
// Decide has no side effects.
func Decide(spec *ProcessSpec, ev ExitEvent, shuttingDown bool) RestartDecision {
	if shuttingDown {
		return RestartDecision{Action: Stop, Reason: "Shutting down"}
	}
	if n := spec.MaxRestarts(); n > 0 && ev.Launches > n {
		return RestartDecision{Action: Stop, Reason: "Restarting too quickly"}
	}
	return RestartDecision{
		Action: Relaunch,
		Delay:  spec.RestartDelay(),
		Reason: "Exited",
	}
}

// launchHistory remembers the most recent launch times of one spec, as a
// ring sized to its rate limit.
type launchHistory struct {
	times []time.Time
	n     int
}

func newLaunchHistory(spec *ProcessSpec) *launchHistory {
	size := spec.MaxRestarts() + 1
	return &launchHistory{times: make([]time.Time, size)}
}

func (h *launchHistory) record(t time.Time) {
	h.times[h.n%len(h.times)] = t
	h.n++
}

// since counts recorded launches at or after t.
func (h *launchHistory) since(t time.Time) int {
	count := 0
	for i := 0; i < len(h.times) && i < h.n; i++ {
		if !h.times[i].Before(t) {
			count++
		}
	}
	return count
}

// total is the number of launches ever recorded.
func (h *launchHistory) total() int {
	return h.n
}
