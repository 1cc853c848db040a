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
	"io"
	"sync"
	"time"
)

// Lines longer than this are split, so that a process writing without
// newlines cannot grow our buffers without bound.
const maxLineLength = 64 * 1024

// Sink collects the output of every supervised process.  Each complete
// line is written to the destination with a single Write while holding
// the sink's lock, so lines from different processes never interleave
// mid-line.  Lines of one stream are written in the order produced.
//
// Lines are also kept in memory, per process and consolidated, so that
// recent output can be served to clients.
type Sink struct {
	out        io.Writer
	all        *Log
	logs       map[string]*Log
	files      map[string]io.WriteCloser
	rotation   LogConfig
	maxRecords int
	now        func() time.Time
	mx         sync.Mutex
}

type SinkOption func(*Sink)

// WithRecordLimit sets how many lines are remembered per process.
func WithRecordLimit(n int) SinkOption {
	return func(s *Sink) {
		s.maxRecords = n
	}
}

// WithRotation sets the rotation limits applied to per-process output
// files.
func WithRotation(lc LogConfig) SinkOption {
	return func(s *Sink) {
		s.rotation = lc
	}
}

// WithClock replaces the clock used to timestamp lines.
func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) {
		s.now = now
	}
}

// NewSink returns a Sink writing to w.  A nil w keeps output in memory
// only.
func NewSink(w io.Writer, opts ...SinkOption) *Sink {
	if w == nil {
		w = io.Discard
	}
	s := &Sink{
		out:   w,
		logs:  make(map[string]*Log),
		files: make(map[string]io.WriteCloser),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.all = NewLog(s.maxRecords)
	return s
}

// Register prepares the sink for a spec ahead of its first launch, so
// that its log exists even before it produces output.
func (s *Sink) Register(spec *ProcessSpec) *Log {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.register(spec)
}

func (s *Sink) register(spec *ProcessSpec) *Log {
	log, ok := s.logs[spec.Name()]
	if !ok {
		log = NewLog(s.maxRecords)
		s.logs[spec.Name()] = log
	}
	if path := spec.OutFile(); path != "" {
		if _, ok := s.files[path]; !ok {
			s.files[path] = NewRotatingWriter(path, s.rotation)
		}
	}
	return log
}

// Attach gives p line-buffered writers for its stdout and stderr.  It
// must be called before the process is started.
func (s *Sink) Attach(p *Process) {
	s.Register(p.spec)
	p.stdout = &lineWriter{sink: s, spec: p.spec, stream: Stdout}
	p.stderr = &lineWriter{sink: s, spec: p.spec, stream: Stderr}
}

// Log returns the recent output of the named process, or nil if it is
// not known to the sink.
func (s *Sink) Log(name string) *Log {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.logs[name]
}

// All returns the recent output of every process, interleaved in the
// order it was written.
func (s *Sink) All() *Log {
	return s.all
}

// Flush forgets the remembered output of the named process, or of every
// process (and the combined log) when name is empty.  Output already
// written to the destination or to output files is unaffected.
func (s *Sink) Flush(name string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if name == "" {
		for _, log := range s.logs {
			log.Clear()
		}
		s.all.Clear()
		return nil
	}
	log, ok := s.logs[name]
	if !ok {
		return ErrUnknownProcess
	}
	log.Clear()
	return nil
}

// Close closes per-process output files.  The main destination is owned
// by the caller and is not closed.
func (s *Sink) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	var err error
	for path, f := range s.files {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
		delete(s.files, path)
	}
	return err
}

func (s *Sink) emit(spec *ProcessSpec, stream Stream, line []byte) {
	s.mx.Lock()
	defer s.mx.Unlock()

	now := s.now()
	var b []byte
	if spec.RawOutput() {
		b = make([]byte, 0, len(line)+1)
	} else {
		b = make([]byte, 0, len(line)+len(spec.Name())+32)
		if tf := spec.TimeFormat(); !tf.IsZero() {
			b = tf.AppendFormat(b, now)
			b = append(b, ' ')
		}
		b = append(b, '[')
		b = append(b, spec.Name()...)
		b = append(b, "] "...)
	}
	b = append(b, line...)
	b = append(b, '\n')

	// Output errors are not reported back to the process; there is
	// nobody to report them to.
	s.out.Write(b)
	if path := spec.OutFile(); path != "" {
		if f, ok := s.files[path]; ok {
			f.Write(b)
		}
	}

	rec := LogRecord{
		Time:   now,
		Name:   spec.Name(),
		Stream: stream,
		Text:   string(line),
	}
	s.register(spec).Add(rec)
	s.all.Add(rec)
}

// lineWriter splits a process output stream into lines for the sink.
type lineWriter struct {
	sink   *Sink
	spec   *ProcessSpec
	stream Stream
	buf    []byte
	closed bool
	mx     sync.Mutex
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(w.buf[:i], []byte{'\r'})
		for len(line) > maxLineLength {
			w.sink.emit(w.spec, w.stream, line[:maxLineLength])
			line = line[maxLineLength:]
		}
		w.sink.emit(w.spec, w.stream, line)
		w.buf = w.buf[i+1:]
	}
	for len(w.buf) >= maxLineLength {
		w.sink.emit(w.spec, w.stream, w.buf[:maxLineLength])
		w.buf = w.buf[maxLineLength:]
	}
	// Compact so the backing array does not keep growing.
	if len(w.buf) == 0 {
		w.buf = w.buf[:0:0]
	} else if cap(w.buf) > 2*maxLineLength {
		w.buf = append([]byte(nil), w.buf...)
	}
	return len(b), nil
}

// Close flushes a trailing partial line.
func (w *lineWriter) Close() error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.buf) > 0 {
		w.sink.emit(w.spec, w.stream, w.buf)
		w.buf = nil
	}
	return nil
}
