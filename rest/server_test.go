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

package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/procvisor/procvisor"
)

func shSpec(t *testing.T, name, script string) *procvisor.ProcessSpec {
	t.Helper()
	s, e := procvisor.NewProcessSpec(name, "/bin/sh", procvisor.WithArgs("-c", script))
	if e != nil {
		t.Fatalf("bad spec: %v", e)
	}
	return s
}

func startSupervisor(t *testing.T, reg prometheus.Registerer) *procvisor.Supervisor {
	t.Helper()
	sup := procvisor.NewSupervisor(procvisor.WithRegisterer(reg))
	e := sup.Start([]*procvisor.ProcessSpec{
		shSpec(t, "echoer", "echo hello; sleep 30"),
		shSpec(t, "sleeper", "sleep 30"),
	})
	if e != nil {
		t.Fatalf("start: %v", e)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sup.Shutdown(ctx, 0)
	})
	return sup
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestServer(t *testing.T) {
	Convey("Given a served supervisor", t, func() {
		reg := prometheus.NewRegistry()
		sup := startSupervisor(t, reg)
		srv := httptest.NewServer(NewHandler(sup, WithMetrics(reg)))
		defer srv.Close()
		client := NewClient(nil, srv.URL+"/")
		ctx := context.Background()

		Convey("Processes are listed in order", func() {
			pl, e := client.Processes(ctx)
			So(e, ShouldBeNil)
			So(len(pl), ShouldEqual, 2)
			So(pl[0].Name, ShouldEqual, "echoer")
			So(pl[1].Name, ShouldEqual, "sleeper")
		})

		Convey("A single process can be fetched", func() {
			So(waitFor(5*time.Second, func() bool {
				pi, e := client.Process(ctx, "sleeper")
				return e == nil && pi.State == "running"
			}), ShouldBeTrue)
			pi, e := client.Process(ctx, "sleeper")
			So(e, ShouldBeNil)
			So(pi.Pid, ShouldBeGreaterThan, 0)
			So(pi.Launches, ShouldEqual, 1)
		})

		Convey("Unknown processes are not found", func() {
			_, e := client.Process(ctx, "nope")
			var re *Error
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)
			So(re.Message, ShouldEqual, procvisor.ErrUnknownProcess.Error())

			_, e = client.GetLog(ctx, "nope")
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Process output can be read", func() {
			var li *LogInfo
			So(waitFor(5*time.Second, func() bool {
				var e error
				li, e = client.GetLog(ctx, "echoer")
				return e == nil && len(li.Records) == 1
			}), ShouldBeTrue)
			So(li.Name(), ShouldEqual, "echoer")
			So(li.Records[0].Text, ShouldEqual, "hello")
			So(li.Records[0].Stream, ShouldEqual, procvisor.Stdout)

			all, e := client.GetLog(ctx, "")
			So(e, ShouldBeNil)
			So(len(all.Records), ShouldEqual, 1)
			So(all.Records[0].Name, ShouldEqual, "echoer")

			Convey("And flushed", func() {
				So(client.FlushLog(ctx, "echoer"), ShouldBeNil)
				li, e := client.GetLog(ctx, "echoer")
				So(e, ShouldBeNil)
				So(len(li.Records), ShouldEqual, 0)
				all, e := client.GetLog(ctx, "")
				So(e, ShouldBeNil)
				So(len(all.Records), ShouldEqual, 1)

				So(client.FlushLog(ctx, ""), ShouldBeNil)
				all, e = client.GetLog(ctx, "")
				So(e, ShouldBeNil)
				So(len(all.Records), ShouldEqual, 0)

				var re *Error
				So(errors.As(client.FlushLog(ctx, "nope"), &re), ShouldBeTrue)
				So(re.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("Watching an unchanged list returns the same list", func() {
			So(waitFor(5*time.Second, func() bool {
				pl, e := client.Processes(ctx)
				return e == nil && pl[0].State == "running" && pl[1].State == "running"
			}), ShouldBeTrue)
			pl, e := client.WatchProcesses(ctx, 0, nil)
			So(e, ShouldBeNil)
			again, e := client.WatchProcesses(ctx, 1, pl)
			So(e, ShouldBeNil)
			So(again, ShouldEqual, pl)
		})

		Convey("Metrics are served", func() {
			res, e := http.Get(srv.URL + "/metrics")
			So(e, ShouldBeNil)
			defer res.Body.Close()
			b, _ := io.ReadAll(res.Body)
			So(string(b), ShouldContainSubstring, "procvisor_launches_total")
		})

		Convey("Shutdown stops the supervisor", func() {
			So(client.Shutdown(ctx, time.Second), ShouldBeNil)
			select {
			case <-sup.Done():
			case <-time.After(10 * time.Second):
				So("shutdown did not complete", ShouldBeEmpty)
			}
			pl, e := client.Processes(ctx)
			So(e, ShouldBeNil)
			for _, pi := range pl {
				So(pi.State, ShouldEqual, "stopped")
			}
		})
	})
}

func TestServerAuth(t *testing.T) {
	Convey("Given a server requiring authentication", t, func() {
		hash, e := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
		So(e, ShouldBeNil)
		sup := startSupervisor(t, nil)
		srv := httptest.NewServer(NewHandler(sup, WithBasicAuth("admin", string(hash))))
		defer srv.Close()
		client := NewClient(nil, srv.URL)
		ctx := context.Background()

		Convey("Anonymous requests are refused", func() {
			_, e := client.Processes(ctx)
			var re *Error
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("A wrong password is refused", func() {
			client.SetAuth("admin", "guess")
			_, e := client.Processes(ctx)
			var re *Error
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("The right password is accepted", func() {
			client.SetAuth("admin", "secret")
			pl, e := client.Processes(ctx)
			So(e, ShouldBeNil)
			So(len(pl), ShouldEqual, 2)
		})
	})
}

func TestListen(t *testing.T) {
	Convey("Listen limits connections", t, func() {
		l, e := Listen("127.0.0.1:0", 4)
		So(e, ShouldBeNil)
		So(l.Addr().String(), ShouldStartWith, "127.0.0.1:")
		So(l.Close(), ShouldBeNil)
	})
}
