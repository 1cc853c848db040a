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
	"io"
	"sync"
)

// MultiWriter fans each Write out to every registered writer.  Callers
// are expected to deliver whole lines; a single Write is passed through
// unchanged, so writers never see one line split in two.  Unlike
// io.MultiWriter, destinations may be added and removed while in use,
// and a failing destination does not stop delivery to the others.
type MultiWriter struct {
	writers []io.Writer
	lock    sync.Mutex
}

func (m *MultiWriter) Write(b []byte) (int, error) {
	var err error
	m.lock.Lock()
	for _, w := range m.writers {
		if _, e := w.Write(b); e != nil && err == nil {
			err = e
		}
	}
	m.lock.Unlock()
	return len(b), err
}

// AddWriter adds a destination.  A writer can only be added once.
func (m *MultiWriter) AddWriter(w io.Writer) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, x := range m.writers {
		if x == w {
			return
		}
	}
	m.writers = append(m.writers, w)
}

// DelWriter removes a destination.
func (m *MultiWriter) DelWriter(w io.Writer) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for i, x := range m.writers {
		if x == w {
			m.writers = append(m.writers[:i], m.writers[i+1:]...)
			break
		}
	}
}

// Len returns the number of destinations.
func (m *MultiWriter) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.writers)
}

func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	m := &MultiWriter{}
	for _, w := range writers {
		m.AddWriter(w)
	}
	return m
}
