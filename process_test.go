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

//go:build !windows

package procvisor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestProcessExitCode(t *testing.T) {
	Convey("Given a process that prints and exits", t, func() {
		out := &syncBuffer{}
		sink := NewSink(out, WithClock(func() time.Time {
			return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		}))
		spec := shSpec(t, "exiter", "echo hello; echo oops >&2; exit 3",
			WithTimeFormat(MustParseTimeFormat("HH:mm:ss")))

		p, e := StartProcess(spec, sink)
		So(e, ShouldBeNil)
		So(p, ShouldNotBeNil)
		So(p.ID(), ShouldNotBeEmpty)

		Convey("Wait returns its exit code", func() {
			So(p.Wait(), ShouldEqual, 3)
			So(p.State(), ShouldEqual, ProcessExited)
			So(p.Pid(), ShouldEqual, 0)
			code, exited := p.ExitCode()
			So(exited, ShouldBeTrue)
			So(code, ShouldEqual, 3)
			So(p.ExitTime().Before(p.StartTime()), ShouldBeFalse)
		})

		Convey("Its output is in the sink once Wait returns", func() {
			p.Wait()
			So(out.String(), ShouldContainSubstring, "03:04:05 [exiter] hello\n")
			So(out.String(), ShouldContainSubstring, "03:04:05 [exiter] oops\n")

			recs, _ := sink.Log("exiter").GetRecords(0)
			So(len(recs), ShouldEqual, 2)
		})

		Convey("Signalling it after exit is harmless", func() {
			p.Wait()
			So(p.Signal(syscall.SIGTERM), ShouldBeNil)
			So(p.Kill(), ShouldBeNil)
		})
	})
}

func TestProcessSignals(t *testing.T) {
	Convey("Given a long running process", t, func() {
		spec := shSpec(t, "sleeper", "sleep 30")
		p, e := StartProcess(spec, nil)
		So(e, ShouldBeNil)
		So(p.State(), ShouldEqual, ProcessRunning)
		So(p.Pid(), ShouldBeGreaterThan, 0)

		Convey("Terminate stops it with 128+SIGTERM", func() {
			So(p.Terminate(), ShouldBeNil)
			So(p.Wait(), ShouldEqual, 128+int(syscall.SIGTERM))
		})

		Convey("Kill stops it with 128+SIGKILL", func() {
			So(p.Kill(), ShouldBeNil)
			So(p.Wait(), ShouldEqual, 128+int(syscall.SIGKILL))
		})

		Reset(func() {
			p.Kill()
			p.Wait()
		})
	})

	Convey("Signals reach the whole process group", t, func() {
		// The backgrounded sleep holds the output pipe open; if it
		// survived, Wait would block until drainDelay.
		spec := shSpec(t, "family", "sleep 30 & wait")
		p, e := StartProcess(spec, NewSink(nil))
		So(e, ShouldBeNil)
		time.Sleep(50 * time.Millisecond)

		start := time.Now()
		So(p.Terminate(), ShouldBeNil)
		select {
		case <-p.Done():
		case <-time.After(5 * time.Second):
			p.Kill()
		}
		So(time.Since(start), ShouldBeLessThan, drainDelay)
	})
}

func TestProcessOutputDrained(t *testing.T) {
	Convey("All output is delivered before Wait returns", t, func() {
		sink := NewSink(nil)
		spec := shSpec(t, "chatty",
			`i=0; while [ $i -lt 500 ]; do echo line$i; i=$((i+1)); done; printf tail`)
		p, e := StartProcess(spec, sink)
		So(e, ShouldBeNil)
		So(p.Wait(), ShouldEqual, 0)

		recs, _ := sink.Log("chatty").GetRecords(0)
		So(len(recs), ShouldEqual, 501)
		So(recs[0].Text, ShouldEqual, "line0")
		So(recs[499].Text, ShouldEqual, "line499")
		So(recs[500].Text, ShouldEqual, "tail")
	})
}

func TestProcessInterpreted(t *testing.T) {
	Convey("Scripts run through their interpreter", t, func() {
		dir := t.TempDir()
		script := filepath.Join(dir, "greet.sh")
		So(os.WriteFile(script, []byte("echo \"hi $1\"\n"), 0o644), ShouldBeNil)

		spec, e := NewProcessSpec("greeter", script,
			WithInterpreter("sh"), WithArgs("there"), WithRawOutput(true))
		So(e, ShouldBeNil)
		So(spec.Launch().Kind, ShouldEqual, InterpretedScript)
		So(spec.Argv()[1], ShouldEqual, script)

		out := &syncBuffer{}
		p, e := StartProcess(spec, NewSink(out))
		So(e, ShouldBeNil)
		So(p.Wait(), ShouldEqual, 0)
		So(out.String(), ShouldEqual, "hi there\n")
	})

	Convey("The working directory and environment are applied", t, func() {
		dir := t.TempDir()
		spec := shSpec(t, "env", `echo "$PWD $PROCVISOR_TEST"`,
			WithDir(dir), WithEnv("PROCVISOR_TEST=yes"), WithRawOutput(true))
		out := &syncBuffer{}
		p, e := StartProcess(spec, NewSink(out))
		So(e, ShouldBeNil)
		So(p.Wait(), ShouldEqual, 0)
		resolved, _ := filepath.EvalSymlinks(dir)
		line := strings.TrimSpace(out.String())
		So(line == dir+" yes" || line == resolved+" yes", ShouldBeTrue)
	})
}

func TestProcessSpawnError(t *testing.T) {
	Convey("A missing executable is a SpawnError", t, func() {
		dir := t.TempDir()
		exe := filepath.Join(dir, "vanishing")
		So(os.WriteFile(exe, []byte("#!/bin/sh\nexit 0\n"), 0o755), ShouldBeNil)
		spec, e := NewProcessSpec("vanishing", exe)
		So(e, ShouldBeNil)
		So(os.Remove(exe), ShouldBeNil)

		p, e := StartProcess(spec, NewSink(nil))
		So(p, ShouldBeNil)
		var se *SpawnError
		So(errors.As(e, &se), ShouldBeTrue)
		So(se.Name, ShouldEqual, "vanishing")
		So(errors.Is(e, os.ErrNotExist), ShouldBeTrue)
	})
}
