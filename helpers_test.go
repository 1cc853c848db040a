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
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for concurrent use, which also
// remembers each individual Write.
type syncBuffer struct {
	buf    bytes.Buffer
	writes []string
	mx     sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.writes = append(b.writes, string(p))
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Writes() []string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return append([]string(nil), b.writes...)
}

func (b *syncBuffer) Lines() []string {
	return strings.Split(strings.TrimSuffix(b.String(), "\n"), "\n")
}

// shSpec returns a spec that runs script with /bin/sh.
func shSpec(t *testing.T, name, script string, opts ...SpecOption) *ProcessSpec {
	t.Helper()
	opts = append([]SpecOption{WithArgs("-c", script)}, opts...)
	s, e := NewProcessSpec(name, "/bin/sh", opts...)
	if e != nil {
		t.Fatalf("bad spec: %v", e)
	}
	return s
}

// eventually polls cond until it is true, or fails after timeout.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
