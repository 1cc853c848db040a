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
	"strconv"
	"strings"
	"time"
)

// TimeFormat is a compiled log timestamp pattern.  Patterns use the
// token names common to process managers such as pm2 ("YYYY-MM-DD
// HH:mm:ss"), rather than Go reference layouts, since those are what
// operators put into configuration files.  Text inside square brackets
// is copied literally, as is any character that is not a token.
//
// The zero TimeFormat renders nothing.
type TimeFormat struct {
	pattern string
	parts   []timePart
}

type timePart struct {
	tok string // empty for literal text
	lit string
}

// Ordered longest first, so that "YYYY" wins over "YY", and so forth.
var timeTokens = []string{
	"YYYY", "MMMM", "dddd", "SSS",
	"MMM", "ddd", "YY", "MM", "DD", "HH", "hh", "mm", "ss", "SS", "ZZ",
	"M", "D", "H", "h", "m", "s", "S", "A", "a", "Z", "X", "x",
}

var ErrBadTimeFormat = errors.New("unterminated [ in time format")

// ParseTimeFormat compiles a timestamp pattern.
func ParseTimeFormat(pattern string) (TimeFormat, error) {
	tf := TimeFormat{pattern: pattern}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			tf.parts = append(tf.parts, timePart{lit: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(pattern); {
		if pattern[i] == '[' {
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				return TimeFormat{}, ErrBadTimeFormat
			}
			lit.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}
		matched := false
		for _, tok := range timeTokens {
			if strings.HasPrefix(pattern[i:], tok) {
				flush()
				tf.parts = append(tf.parts, timePart{tok: tok})
				i += len(tok)
				matched = true
				break
			}
		}
		if !matched {
			lit.WriteByte(pattern[i])
			i++
		}
	}
	flush()
	return tf, nil
}

// MustParseTimeFormat is like ParseTimeFormat, but panics on error.
// It is intended for constant patterns.
func MustParseTimeFormat(pattern string) TimeFormat {
	tf, e := ParseTimeFormat(pattern)
	if e != nil {
		panic(e)
	}
	return tf
}

// String returns the pattern the format was parsed from.
func (tf TimeFormat) String() string {
	return tf.pattern
}

// IsZero is true if the format renders nothing.
func (tf TimeFormat) IsZero() bool {
	return len(tf.parts) == 0
}

func pad(b []byte, v int, width int) []byte {
	s := strconv.Itoa(v)
	for i := len(s); i < width; i++ {
		b = append(b, '0')
	}
	return append(b, s...)
}

// AppendFormat appends the rendering of t to b.
func (tf TimeFormat) AppendFormat(b []byte, t time.Time) []byte {
	for _, p := range tf.parts {
		switch p.tok {
		case "":
			b = append(b, p.lit...)
		case "YYYY":
			b = pad(b, t.Year(), 4)
		case "YY":
			b = pad(b, t.Year()%100, 2)
		case "MMMM":
			b = append(b, t.Month().String()...)
		case "MMM":
			b = append(b, t.Month().String()[:3]...)
		case "MM":
			b = pad(b, int(t.Month()), 2)
		case "M":
			b = pad(b, int(t.Month()), 1)
		case "DD":
			b = pad(b, t.Day(), 2)
		case "D":
			b = pad(b, t.Day(), 1)
		case "dddd":
			b = append(b, t.Weekday().String()...)
		case "ddd":
			b = append(b, t.Weekday().String()[:3]...)
		case "HH":
			b = pad(b, t.Hour(), 2)
		case "H":
			b = pad(b, t.Hour(), 1)
		case "hh":
			b = pad(b, hour12(t), 2)
		case "h":
			b = pad(b, hour12(t), 1)
		case "mm":
			b = pad(b, t.Minute(), 2)
		case "m":
			b = pad(b, t.Minute(), 1)
		case "ss":
			b = pad(b, t.Second(), 2)
		case "s":
			b = pad(b, t.Second(), 1)
		case "SSS":
			b = pad(b, t.Nanosecond()/int(time.Millisecond), 3)
		case "SS":
			b = pad(b, t.Nanosecond()/(10*int(time.Millisecond)), 2)
		case "S":
			b = pad(b, t.Nanosecond()/(100*int(time.Millisecond)), 1)
		case "A":
			if t.Hour() < 12 {
				b = append(b, "AM"...)
			} else {
				b = append(b, "PM"...)
			}
		case "a":
			if t.Hour() < 12 {
				b = append(b, "am"...)
			} else {
				b = append(b, "pm"...)
			}
		case "Z":
			b = t.AppendFormat(b, "-07:00")
		case "ZZ":
			b = t.AppendFormat(b, "-0700")
		case "X":
			b = strconv.AppendInt(b, t.Unix(), 10)
		case "x":
			b = strconv.AppendInt(b, t.UnixMilli(), 10)
		}
	}
	return b
}

// Format renders t.
func (tf TimeFormat) Format(t time.Time) string {
	return string(tf.AppendFormat(nil, t))
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		h = 12
	}
	return h
}
