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
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shPath(t *testing.T) string {
	t.Helper()
	p, e := exec.LookPath("sh")
	require.NoError(t, e)
	p, e = filepath.Abs(p)
	require.NoError(t, e)
	return p
}

func configError(t *testing.T, e error) *ConfigError {
	t.Helper()
	var ce *ConfigError
	require.True(t, errors.As(e, &ce), "expected a ConfigError, got %v", e)
	return ce
}

func TestLoadConfigFormats(t *testing.T) {
	sources := map[Format]string{
		FormatJSON: `{
  "apps": [
    {"name": "qinglong", "script": "sh", "args": "-c 'exit 0'", "restart_delay": 5000},
    {"name": "backup-watchdog", "script": "sh", "args": ["-c", "sleep 1"], "env": {"A": "1"}}
  ],
  "kill_timeout": 3000
}`,
		FormatYAML: `
apps:
  - name: qinglong
    script: sh
    args: -c 'exit 0'
    restart_delay: 5000
  - name: backup-watchdog
    script: sh
    args: [-c, sleep 1]
    env:
      A: "1"
kill_timeout: 3000
`,
		FormatTOML: `
kill_timeout = 3000

[[apps]]
name = "qinglong"
script = "sh"
args = "-c 'exit 0'"
restart_delay = 5000

[[apps]]
name = "backup-watchdog"
script = "sh"
args = ["-c", "sleep 1"]
env = { A = "1" }
`,
	}
	sh := shPath(t)

	for f, src := range sources {
		t.Run(f.String(), func(t *testing.T) {
			c, e := LoadConfig(strings.NewReader(src), f)
			require.NoError(t, e)
			require.Len(t, c.Specs, 2)

			a, b := c.Specs[0], c.Specs[1]
			assert.Equal(t, "qinglong", a.Name())
			assert.Equal(t, "backup-watchdog", b.Name())

			assert.Equal(t, NativeExecutable, a.Launch().Kind)
			assert.Equal(t, sh, a.Launch().Path)
			// A string is split on whitespace, quotes are not special.
			assert.Equal(t, []string{"-c", "'exit", "0'"}, a.Args())
			assert.Equal(t, []string{"-c", "sleep 1"}, b.Args())
			assert.Equal(t, 5*time.Second, a.RestartDelay())
			assert.Equal(t, time.Duration(0), b.RestartDelay())
			assert.Equal(t, []string{"A=1"}, b.Env())
			assert.Equal(t, DefaultTimeFormat, a.TimeFormat().String())

			assert.Equal(t, 3*time.Second, c.KillTimeout)
			assert.Equal(t, DefaultControlListen, c.Control.Listen)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("ecosystem.json"))
	assert.Equal(t, FormatTOML, FormatFromPath("/etc/procvisor.TOML"))
	assert.Equal(t, FormatYAML, FormatFromPath("apps.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("apps"))
}

func TestLoadConfigOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("apps:\n")
	names := []string{"zeta", "alpha", "mid", "beta", "omega"}
	for _, n := range names {
		b.WriteString("  - name: " + n + "\n    script: sh\n")
	}
	c, e := LoadConfig(strings.NewReader(b.String()), FormatYAML)
	require.NoError(t, e)
	var got []string
	for _, s := range c.Specs {
		got = append(got, s.Name())
	}
	assert.Equal(t, names, got)
}

func TestLoadConfigDuplicate(t *testing.T) {
	src := `{"apps": [
		{"name": "x", "script": "sh"},
		{"name": "x", "script": "sh"}
	]}`
	_, e := LoadConfig(strings.NewReader(src), FormatJSON)
	ce := configError(t, e)
	require.Len(t, ce.Violations, 1)
	assert.Equal(t, 1, ce.Violations[0].Entry)
	assert.Equal(t,
		`apps[1] (x).name: duplicate name "x", also used by apps[0]`,
		ce.Violations[0].String())
}

func TestLoadConfigViolations(t *testing.T) {
	src := `{"apps": [
		{"name": "", "script": "sh"},
		{"name": "neg", "script": "sh", "restart_delay": -1},
		{"name": "missing", "script": "no-such-program-procvisor"},
		{"name": "fmt", "script": "sh", "log_date_format": "HH [oops"},
		{"name": "ok", "script": "sh"}
	],
	"control": {"user": "admin", "password_hash": "plain"}}`
	_, e := LoadConfig(strings.NewReader(src), FormatJSON)
	ce := configError(t, e)

	fields := map[string]bool{}
	for _, v := range ce.Violations {
		fields[v.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["restart_delay"])
	assert.True(t, fields["script"])
	assert.True(t, fields["log_date_format"])
	assert.True(t, fields["control.password_hash"])
	assert.Len(t, ce.Violations, 5)
	assert.Contains(t, ce.Error(), "5 problem(s)")
}

func TestLoadConfigSyntax(t *testing.T) {
	_, e := LoadConfig(strings.NewReader(`{"apps": [`), FormatJSON)
	ce := configError(t, e)
	require.Len(t, ce.Violations, 1)
	assert.Equal(t, "(syntax)", ce.Violations[0].Field)

	_, e = LoadConfig(strings.NewReader(`{"apps": []}`), FormatJSON)
	ce = configError(t, e)
	assert.Equal(t, "apps", ce.Violations[0].Field)
}

func TestLoadConfigInterpreter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"),
		[]byte("echo hi\n"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "tool"),
		[]byte("#!/bin/sh\necho tool\n"), 0755))

	path := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
apps:
  - name: script
    script: run.sh
    interpreter: sh
  - name: native
    script: ./bin/tool
    interpreter: none
  - name: plain
    script: sh
    log_date_format: ""
    out_file: logs/plain.log
`), 0644))

	c, e := LoadConfigFile(path)
	require.NoError(t, e)
	require.Len(t, c.Specs, 3)

	s := c.Specs[0]
	assert.Equal(t, InterpretedScript, s.Launch().Kind)
	assert.Equal(t, shPath(t), s.Launch().Interpreter)
	assert.Equal(t, filepath.Join(dir, "run.sh"), s.Launch().Path)
	assert.Equal(t, []string{shPath(t), filepath.Join(dir, "run.sh")}, s.Argv())

	n := c.Specs[1]
	assert.Equal(t, NativeExecutable, n.Launch().Kind)
	assert.Equal(t, filepath.Join(dir, "bin", "tool"), n.Launch().Path)

	p := c.Specs[2]
	assert.True(t, p.TimeFormat().IsZero())
	assert.Equal(t, filepath.Join(dir, "logs", "plain.log"), p.OutFile())
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, e := LoadConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, e, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("apps = [[["), 0644))
	_, e = LoadConfigFile(path)
	ce := configError(t, e)
	assert.Equal(t, path, ce.Source)
}

func TestNewProcessSpec(t *testing.T) {
	s, e := NewProcessSpec("p", "sh", WithRateLimit(3, 0))
	require.NoError(t, e)
	assert.Equal(t, time.Minute, s.RestartWindow())

	_, e = NewProcessSpec("", "", WithRestartDelay(-time.Second))
	ce := configError(t, e)
	assert.Len(t, ce.Violations, 3)
	assert.Equal(t, -1, ce.Violations[0].Entry)
}
