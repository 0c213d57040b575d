// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging builds the zap loggers shared by every worker. Level
// encoding and field names follow pcap-fsnotify/main.go's zap.Config: JSON
// output when Config.JSON is set (console otherwise), a "severity" level
// key, ISO8601 timestamps.
package logging

import (
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls where and how logs are written.
type Config struct {
	// Level is a zap level name ("debug", "info", ...) or a bare integer
	// string. Integer strings are passed through uninterpreted rather than
	// rejected — see SPEC_FULL.md section 3.1.
	Level string
	// JSON selects JSON encoding; false gives console encoding for local runs.
	JSON bool
	// OutputPaths are zap sink URLs ("stdout", a file path, ...).
	OutputPaths []string
}

// New builds the operational logger for a Config.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoding := "console"
	if cfg.JSON {
		encoding = "json"
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Encoding:    encoding,
		Level:       zap.NewAtomicLevelAt(level),
		OutputPaths: outputs,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:   "message",
			LevelKey:     "severity",
			NameKey:      "component",
			TimeKey:      "time",
			EncodeLevel:  zapcore.CapitalLevelEncoder,
			EncodeTime:   zapcore.ISO8601TimeEncoder,
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}
	return zapCfg.Build()
}

// parseLevel accepts named zap levels and bare integers (passthrough).
func parseLevel(raw string) (zapcore.Level, error) {
	if raw == "" {
		return zapcore.InfoLevel, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return zapcore.Level(n), nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, err
	}
	return level, nil
}

// Named returns a SugaredLogger scoped to a worker for attributable log
// lines, mirroring the "module" tag pcap-fsnotify/main.go attaches to every
// logEvent call.
func Named(base *zap.Logger, component string) *zap.SugaredLogger {
	return base.Named(component).Sugar()
}
