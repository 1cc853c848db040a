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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"
	"sigs.k8s.io/yaml"
)

const (
	DefaultKillTimeout   = 2 * time.Second
	DefaultControlListen = "127.0.0.1:8321"
	DefaultTimeFormat    = "YYYY-MM-DD HH:mm:ss"
)

// Format is the syntax of a configuration file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
	FormatTOML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	}
	return "unknown"
}

// FormatFromPath picks the format from the file extension.  Unknown
// extensions are treated as YAML, which is a superset of JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	}
	return FormatYAML
}

// Args accepts either a single string, which is split on whitespace the
// way process managers treat an "args" string, or a list of strings.
type Args []string

func (a *Args) UnmarshalJSON(b []byte) error {
	var s string
	if e := json.Unmarshal(b, &s); e == nil {
		*a = strings.Fields(s)
		return nil
	}
	var l []string
	if e := json.Unmarshal(b, &l); e != nil {
		return fmt.Errorf("args must be a string or a list of strings")
	}
	*a = l
	return nil
}

// AppManifest is one entry of the "apps" list, as written by an
// operator.  Durations are in milliseconds.
type AppManifest struct {
	Name          string            `json:"name"`
	Script        string            `json:"script"`
	Command       string            `json:"command,omitempty"`
	Args          Args              `json:"args,omitempty"`
	Interpreter   string            `json:"interpreter,omitempty"`
	Cwd           string            `json:"cwd,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	RestartDelay  int64             `json:"restart_delay,omitempty"`
	LogDateFormat *string           `json:"log_date_format,omitempty"`
	RawOutput     bool              `json:"raw_output,omitempty"`
	KillTimeout   int64             `json:"kill_timeout,omitempty"`
	MaxRestarts   int               `json:"max_restarts,omitempty"`
	RestartWindow int64             `json:"restart_window,omitempty"`
	OutFile       string            `json:"out_file,omitempty"`
}

// LogConfig describes the shared output sink.  An empty File means
// standard output.
type LogConfig struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
	Level      string `json:"level,omitempty"`
}

// ControlConfig describes the HTTP control surface used by the CLI.
// PasswordHash is a bcrypt hash; when User is empty no authentication
// is required.
type ControlConfig struct {
	Listen       string `json:"listen,omitempty"`
	User         string `json:"user,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// Manifest is the full configuration file.
type Manifest struct {
	Apps        []AppManifest `json:"apps"`
	Logs        LogConfig     `json:"logs,omitempty"`
	Control     ControlConfig `json:"control,omitempty"`
	KillTimeout int64         `json:"kill_timeout,omitempty"`
	StateDir    string        `json:"state_dir,omitempty"`
}

// Config is a loaded and validated configuration.
type Config struct {
	Specs       []*ProcessSpec
	Logs        LogConfig
	Control     ControlConfig
	KillTimeout time.Duration
	StateDir    string
}

// LoadConfigFile loads the configuration at path.  Relative script and
// working directory paths are resolved against the directory holding
// the file.
func LoadConfigFile(path string) (*Config, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	m, e := decodeManifest(f, FormatFromPath(path))
	if e != nil {
		return nil, &ConfigError{
			Source: path,
			Violations: []Violation{{
				Entry: -1, Field: "(syntax)", Message: e.Error(),
			}},
		}
	}
	abs, e := filepath.Abs(filepath.Dir(path))
	if e != nil {
		return nil, e
	}
	c, e := m.Compile(abs)
	if ce, ok := e.(*ConfigError); ok {
		ce.Source = path
	}
	return c, e
}

// LoadConfig reads a configuration in the given format.  Relative paths
// are resolved against the current directory.
func LoadConfig(r io.Reader, f Format) (*Config, error) {
	m, e := decodeManifest(r, f)
	if e != nil {
		return nil, &ConfigError{
			Violations: []Violation{{
				Entry: -1, Field: "(syntax)", Message: e.Error(),
			}},
		}
	}
	wd, e := os.Getwd()
	if e != nil {
		return nil, e
	}
	return m.Compile(wd)
}

func decodeManifest(r io.Reader, f Format) (*Manifest, error) {
	b, e := io.ReadAll(r)
	if e != nil {
		return nil, e
	}
	switch f {
	case FormatYAML:
		if b, e = yaml.YAMLToJSON(b); e != nil {
			return nil, e
		}
	case FormatTOML:
		// Decode generically and feed the result through the JSON
		// path, so that one set of tags and unmarshalers serves all
		// three syntaxes.
		var v map[string]interface{}
		if _, e = toml.Decode(string(b), &v); e != nil {
			return nil, e
		}
		if b, e = json.Marshal(v); e != nil {
			return nil, e
		}
	}
	m := &Manifest{}
	dec := json.NewDecoder(bytes.NewReader(b))
	if e := dec.Decode(m); e != nil {
		return nil, e
	}
	return m, nil
}

// Compile validates the manifest and produces the runtime configuration.
// Every problem is collected into a single *ConfigError.
func (m *Manifest) Compile(baseDir string) (*Config, error) {
	ce := &ConfigError{}
	c := &Config{
		Logs:        m.Logs,
		Control:     m.Control,
		KillTimeout: DefaultKillTimeout,
		StateDir:    m.StateDir,
	}
	if c.Control.Listen == "" {
		c.Control.Listen = DefaultControlListen
	}
	if m.KillTimeout < 0 {
		ce.add(-1, "", "kill_timeout", "must not be negative (got %d)",
			m.KillTimeout)
	} else if m.KillTimeout > 0 {
		c.KillTimeout = time.Duration(m.KillTimeout) * time.Millisecond
	}
	if m.Logs.Level != "" {
		if _, e := zapcore.ParseLevel(m.Logs.Level); e != nil {
			ce.add(-1, "", "logs.level", "%v", e)
		}
	}
	if m.Logs.MaxSizeMB < 0 || m.Logs.MaxBackups < 0 || m.Logs.MaxAgeDays < 0 {
		ce.add(-1, "", "logs", "rotation limits must not be negative")
	}
	if m.Control.User != "" {
		if _, e := bcrypt.Cost([]byte(m.Control.PasswordHash)); e != nil {
			ce.add(-1, "", "control.password_hash",
				"not a bcrypt hash: %v", e)
		}
	}
	if c.StateDir != "" && !filepath.IsAbs(c.StateDir) {
		c.StateDir = filepath.Join(baseDir, c.StateDir)
	}
	if len(m.Apps) == 0 {
		ce.add(-1, "", "apps", "no processes declared")
	}

	seen := make(map[string]int)
	for i := range m.Apps {
		a := &m.Apps[i]
		if a.Name != "" {
			if j, dup := seen[a.Name]; dup {
				ce.add(i, a.Name, "name",
					"duplicate name %q, also used by apps[%d]",
					a.Name, j)
			} else {
				seen[a.Name] = i
			}
		}
		if s := a.compile(ce, i, baseDir); s != nil {
			c.Specs = append(c.Specs, s)
		}
	}
	if e := ce.errOrNil(); e != nil {
		return nil, e
	}
	return c, nil
}

func (a *AppManifest) compile(ce *ConfigError, idx int, baseDir string) *ProcessSpec {
	s := &ProcessSpec{name: a.Name}

	script := a.Script
	if script == "" {
		script = a.Command
	} else if a.Command != "" && a.Command != a.Script {
		ce.add(idx, a.Name, "command",
			"conflicts with script %q", a.Script)
	}

	s.dir = a.Cwd
	if s.dir != "" && !filepath.IsAbs(s.dir) {
		s.dir = filepath.Join(baseDir, s.dir)
	}
	// Scripts are relative to the working directory of the process.
	if s.dir != "" {
		baseDir = s.dir
	}
	switch a.Interpreter {
	case "", "none":
		s.launch.Kind = NativeExecutable
	default:
		s.launch.Kind = InterpretedScript
		s.launch.Interpreter = a.Interpreter
	}
	// Bare executable names are looked up in PATH; scripts handed to an
	// interpreter are always files.
	relative := script != "" && !filepath.IsAbs(script)
	if relative && (s.launch.Kind == InterpretedScript ||
		strings.ContainsRune(script, filepath.Separator)) {
		script = filepath.Join(baseDir, script)
	}
	s.launch.Path = script

	s.args = copyArray(a.Args)
	for k, v := range a.Env {
		s.env = append(s.env, k+"="+v)
	}
	s.restartDelay = time.Duration(a.RestartDelay) * time.Millisecond
	s.killTimeout = time.Duration(a.KillTimeout) * time.Millisecond
	s.maxRestarts = a.MaxRestarts
	s.restartWindow = time.Duration(a.RestartWindow) * time.Millisecond
	s.rawOutput = a.RawOutput
	s.outFile = a.OutFile
	if s.outFile != "" && !filepath.IsAbs(s.outFile) {
		s.outFile = filepath.Join(baseDir, s.outFile)
	}

	pattern := DefaultTimeFormat
	if a.LogDateFormat != nil {
		pattern = *a.LogDateFormat
	}
	if tf, e := ParseTimeFormat(pattern); e != nil {
		ce.add(idx, a.Name, "log_date_format", "%q: %v", pattern, e)
	} else {
		s.timeFormat = tf
	}
	s.validate(ce, idx)
	return s
}

// validate checks the spec and resolves its launch paths in place.
func (s *ProcessSpec) validate(ce *ConfigError, idx int) {
	if s.name == "" {
		ce.add(idx, "", "name", "must not be empty")
	}
	if s.restartDelay < 0 {
		ce.add(idx, s.name, "restart_delay", "must not be negative")
	}
	if s.killTimeout < 0 {
		ce.add(idx, s.name, "kill_timeout", "must not be negative")
	}
	if s.maxRestarts < 0 {
		ce.add(idx, s.name, "max_restarts", "must not be negative")
	}
	if s.restartWindow < 0 {
		ce.add(idx, s.name, "restart_window", "must not be negative")
	}
	if s.maxRestarts > 0 && s.restartWindow == 0 {
		s.restartWindow = time.Minute
	}
	if s.dir != "" {
		if fi, e := os.Stat(s.dir); e != nil || !fi.IsDir() {
			ce.add(idx, s.name, "cwd", "%q is not a directory", s.dir)
		}
	}

	if s.launch.Path == "" {
		ce.add(idx, s.name, "script", "must not be empty")
		return
	}
	switch s.launch.Kind {
	case NativeExecutable:
		p, e := lookPath(s.launch.Path)
		if e != nil {
			ce.add(idx, s.name, "script", "%v", e)
			return
		}
		s.launch.Path = p
	case InterpretedScript:
		p, e := lookPath(s.launch.Interpreter)
		if e != nil {
			ce.add(idx, s.name, "interpreter", "%v", e)
		} else {
			s.launch.Interpreter = p
		}
		if fi, e := os.Stat(s.launch.Path); e != nil {
			ce.add(idx, s.name, "script", "%v", e)
		} else if fi.IsDir() {
			ce.add(idx, s.name, "script", "%q is a directory",
				s.launch.Path)
		}
	}
}

// lookPath resolves bare command names through PATH.  Names containing
// a separator must name an executable file directly.
func lookPath(name string) (string, error) {
	p, e := exec.LookPath(name)
	if e != nil {
		return "", e
	}
	if abs, e := filepath.Abs(p); e == nil {
		p = abs
	}
	return p, nil
}
