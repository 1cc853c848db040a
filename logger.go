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

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultMaxSizeMB is the rotation size used when a LogConfig does not
// set one.
const DefaultMaxSizeMB = 128

var nopLogger = zap.NewNop().Sugar()

// NewRotatingWriter returns an append-only writer on path that rotates
// per the limits in lc.  The file is opened on first write.
func NewRotatingWriter(path string, lc LogConfig) io.WriteCloser {
	size := lc.MaxSizeMB
	if size == 0 {
		size = DefaultMaxSizeMB
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    size, // megabytes
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays, // days
		Compress:   lc.Compress,
	}
}

// ParseLogLevel parses a level name, defaulting to info.
func ParseLogLevel(level string) (zap.AtomicLevel, error) {
	lvl := zap.NewAtomicLevel() // info level by default
	if level != "" && level != "info" {
		var err error
		lvl, err = zap.ParseAtomicLevel(level)
		if err != nil {
			return zap.AtomicLevel{}, err
		}
	}
	return lvl, nil
}

// NewLogger builds the supervisor's own diagnostic logger.  With an empty
// file it logs to standard error using the zap production settings,
// otherwise JSON lines go to a rotating file.
func NewLogger(level string, file string, lc LogConfig) (*zap.SugaredLogger, error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	if file != "" {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(NewRotatingWriter(file, lc)),
			lvl,
		)
		return zap.New(core).Sugar(), nil
	}

	c := zap.NewProductionConfig()
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	c.Level = lvl
	l, err := c.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
