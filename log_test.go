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
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLog(t *testing.T) {
	Convey("Given a small log", t, func() {
		log := NewLog(3)

		Convey("It starts empty", func() {
			recs, id := log.GetRecords(0)
			So(len(recs), ShouldEqual, 0)
			So(id, ShouldNotEqual, 0)
		})

		Convey("It keeps only the newest records", func() {
			for i := 0; i < 5; i++ {
				log.Add(LogRecord{Text: fmt.Sprint(i)})
			}
			recs, id := log.GetRecords(0)
			So(len(recs), ShouldEqual, 3)
			So(recs[0].Text, ShouldEqual, "2")
			So(recs[2].Text, ShouldEqual, "4")
			So(recs[2].Id, ShouldEqual, id)
			So(recs[1].Id, ShouldEqual, id-1)

			Convey("And reports no change for the same id", func() {
				recs, same := log.GetRecords(id)
				So(recs, ShouldBeNil)
				So(same, ShouldEqual, id)
			})
		})

		Convey("Watch times out without changes", func() {
			_, id := log.GetRecords(0)
			start := time.Now()
			So(log.Watch(id, 50*time.Millisecond), ShouldEqual, id)
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 50*time.Millisecond)
		})

		Convey("Watch wakes up on a new record", func() {
			_, id := log.GetRecords(0)
			go func() {
				time.Sleep(20 * time.Millisecond)
				log.Add(LogRecord{Text: "wake"})
			}()
			start := time.Now()
			So(log.Watch(id, 10*time.Second), ShouldEqual, id+1)
			So(time.Since(start), ShouldBeLessThan, 5*time.Second)
		})

		Convey("Clear empties it", func() {
			log.Add(LogRecord{Text: "x"})
			log.Clear()
			recs, _ := log.GetRecords(0)
			So(len(recs), ShouldEqual, 0)
		})
	})
}
