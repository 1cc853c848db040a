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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeFormat(t *testing.T) {
	ts := time.Date(2026, time.March, 7, 15, 4, 5, 123456789, time.FixedZone("X", 2*3600))

	tests := []struct {
		pattern string
		want    string
	}{
		{"YYYY-MM-DD HH:mm:ss", "2026-03-07 15:04:05"},
		{"HH:mm:ss", "15:04:05"},
		{"HH:mm:ss.SSS", "15:04:05.123"},
		{"YY/M/D h:m:s A", "26/3/7 3:4:5 PM"},
		{"ddd, MMM D", "Sat, Mar 7"},
		{"dddd MMMM", "Saturday March"},
		{"hh a", "03 pm"},
		{"Z ZZ", "+02:00 +0200"},
		{"[at] HH[h]", "at 15h"},
		{"X", "1772888645"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			tf, err := ParseTimeFormat(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tf.Format(ts))
			assert.Equal(t, tt.pattern, tf.String())
		})
	}
}

func TestTimeFormatErrors(t *testing.T) {
	_, err := ParseTimeFormat("HH [oops")
	assert.ErrorIs(t, err, ErrBadTimeFormat)

	assert.True(t, TimeFormat{}.IsZero())
	assert.True(t, MustParseTimeFormat("").IsZero())
	assert.False(t, MustParseTimeFormat("HH").IsZero())
	assert.Panics(t, func() { MustParseTimeFormat("[") })
}
