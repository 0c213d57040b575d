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

// Package audit is the Uploader's dedicated structured record sink, kept
// separate from the operational log per SPEC_FULL.md section 3.2. Event
// shape mirrors datamover/uploader/upload_audit_event.py's
// create_upload_audit_event (see original_source/src/datamover/uploader/
// send_file_with_retries.py for every call site).
package audit

import (
	"time"

	"go.uber.org/zap"
)

// Event is one upload state-transition record.
type Event struct {
	Type             string
	FileName         string
	FileSizeBytes    *int64
	DestinationURL   string
	Attempt          int
	DurationMS       *float64
	StatusCode       *int
	ResponseSnippet  string
	BackoffSeconds   *float64
	FailureCategory  string
	FailureDetail    string
	ExceptionType    string
}

// Level classifies the severity of an audit record, independent of the
// operational logger's level.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
	LevelCritical
)

// Sink writes Events to a dedicated zap logger.
type Sink struct {
	logger *zap.Logger
}

// New builds a Sink writing JSON records to outputPaths (typically a
// dedicated audit.log file, distinct from the operational log's sinks).
func New(outputPaths []string) (*Sink, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = outputPaths
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "event"
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Sink{logger: logger}, nil
}

// Record emits one audit event at the given level.
func (s *Sink) Record(level Level, e Event) {
	fields := []zap.Field{
		zap.String("event_type", e.Type),
		zap.String("file_name", e.FileName),
		zap.String("destination_url", e.DestinationURL),
		zap.Int("attempt", e.Attempt),
		zap.Time("timestamp", time.Now()),
	}
	if e.FileSizeBytes != nil {
		fields = append(fields, zap.Int64("file_size_bytes", *e.FileSizeBytes))
	}
	if e.DurationMS != nil {
		fields = append(fields, zap.Float64("duration_ms", *e.DurationMS))
	}
	if e.StatusCode != nil {
		fields = append(fields, zap.Int("status_code", *e.StatusCode))
	}
	if e.BackoffSeconds != nil {
		fields = append(fields, zap.Float64("backoff_seconds", *e.BackoffSeconds))
	}
	if e.ResponseSnippet != "" {
		fields = append(fields, zap.String("response_text_snippet", truncate(e.ResponseSnippet, 100)))
	}
	if e.FailureCategory != "" {
		fields = append(fields, zap.String("failure_category", e.FailureCategory))
	}
	if e.FailureDetail != "" {
		fields = append(fields, zap.String("failure_detail", e.FailureDetail))
	}
	if e.ExceptionType != "" {
		fields = append(fields, zap.String("exception_type", e.ExceptionType))
	}

	switch level {
	case LevelWarn:
		s.logger.Warn(e.Type, fields...)
	case LevelError:
		s.logger.Error(e.Type, fields...)
	case LevelCritical:
		s.logger.Error(e.Type, append(fields, zap.Bool("critical", true))...)
	default:
		s.logger.Info(e.Type, fields...)
	}
}

// Sync flushes any buffered log entries.
func (s *Sink) Sync() error { return s.logger.Sync() }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
