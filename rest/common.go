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

// Package rest exposes a running procvisor.Supervisor over HTTP, and
// provides the client used by the procvisor command.
//
// GET requests carry an Etag.  A client can long-poll for a change by
// sending the last Etag in PollEtagHeader, along with the number of
// seconds it is willing to wait in PollTimeHeader.
package rest

import (
	"github.com/procvisor/procvisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	PollEtagHeader = "X-Procvisor-Poll-Etag"
	PollTimeHeader = "X-Procvisor-Poll-Time"

	// MaxPollTime bounds how long (in seconds) a long poll may wait.
	MaxPollTime = 300
)

var ok struct{}

type (
	ProcessInfo = procvisor.ProcessInfo
	LogRecord   = procvisor.LogRecord
)

// ShutdownRequest is the optional body of POST /shutdown.
type ShutdownRequest struct {
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
