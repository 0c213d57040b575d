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

// Package uploader ships every file in the worker directory to the remote
// endpoint exactly once from this side, retrying transient failures with
// exponential backoff and quarantining terminal failures to dead_letter.
// The state machine is ported function-by-function from original_source's
// datamover/uploader/send_file_with_retries.py, including every audit
// event call site.
package uploader

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alphadose/haxmap"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/audit"
	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/httpx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/mover"
	"github.com/GoogleCloudPlatform/pcapmover/internal/shutdown"
)

// outcome is the Sender's sum type: Succeeded | RetryableFailure |
// TerminalFailure | AbortedVanished | AbortedShutdown.
type outcome int

const (
	succeeded outcome = iota
	retryableFailure
	terminalFailure
	abortedVanished
	abortedShutdown
)

// Config bundles the Uploader's directories and remote parameters.
type Config struct {
	WorkerDir      string
	UploadedDir    string
	DeadLetterDir  string
	PCAPExtension  string
	RemoteURL      string
	RequestTimeout time.Duration
	VerifySSL      bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PollInterval   time.Duration
	HeartbeatEvery time.Duration
}

// Uploader scans the worker directory on a cycle and drives each file
// through the Sender state machine.
type Uploader struct {
	fs     fsx.FS
	client httpx.Client
	audit  *audit.Sink
	logger *zap.SugaredLogger
	cfg    Config

	criticallyFailed *haxmap.Map[string, struct{}]

	emptyStreak int
	heartbeatAt int
}

// New builds an Uploader.
func New(fs fsx.FS, client httpx.Client, auditSink *audit.Sink, logger *zap.SugaredLogger, cfg Config) *Uploader {
	return &Uploader{
		fs:               fs,
		client:           client,
		audit:            auditSink,
		logger:           logger,
		cfg:              cfg,
		criticallyFailed: haxmap.New[string, struct{}](),
	}
}

// RunCycle performs one scan-and-upload pass over the worker directory.
func (u *Uploader) RunCycle(ctx context.Context, sig *shutdown.Signal) {
	paths, err := u.scan()
	if err != nil {
		u.logger.Errorw("uploader: scan failed", "dir", u.cfg.WorkerDir, "error", err)
		return
	}

	u.reportHeartbeat(len(paths))

	for _, path := range paths {
		if sig.IsSet() {
			break
		}
		u.send(ctx, sig, path)
	}
}

func (u *Uploader) scan() ([]string, error) {
	entries, err := u.fs.ReadDir(u.cfg.WorkerDir)
	if err != nil {
		return nil, err
	}
	type entry struct {
		path  string
		mtime time.Time
	}
	var candidates []entry
	for _, e := range entries {
		if e.IsDir() || strings.TrimPrefix(filepath.Ext(e.Name()), ".") != u.cfg.PCAPExtension {
			continue
		}
		path := filepath.Join(u.cfg.WorkerDir, e.Name())
		if _, failed := u.criticallyFailed.Get(path); failed {
			continue
		}
		info, err := u.fs.Stat(path)
		if err != nil {
			continue
		}
		candidates = append(candidates, entry{path: path, mtime: info.ModTime()})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mtime.Before(candidates[j].mtime) })
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.path
	}
	return out, nil
}

// reportHeartbeat implements spec.md section 4.4's heartbeat and idle-log
// rules: an INFO heartbeat every N idle cycles, DEBUG "no files" logs on
// the idle streak, and a DEBUG recovery log when files reappear.
func (u *Uploader) reportHeartbeat(found int) {
	cyclesPerHeartbeat := int(math.Ceil(float64(u.cfg.HeartbeatEvery) / float64(u.cfg.PollInterval)))
	if cyclesPerHeartbeat < 1 {
		cyclesPerHeartbeat = 1
	}

	if found > 0 {
		if u.emptyStreak > 0 {
			u.logger.Debugw("uploader: files found again", "dir", u.cfg.WorkerDir, "idle_cycles", u.emptyStreak)
		}
		u.emptyStreak = 0
		u.heartbeatAt = 0
		return
	}

	u.emptyStreak++
	u.heartbeatAt++
	if u.emptyStreak == 1 || u.heartbeatAt >= cyclesPerHeartbeat {
		u.logger.Debugw("uploader: no files found for consecutive cycles", "dir", u.cfg.WorkerDir, "consecutive_cycles", u.emptyStreak)
	}
	if u.heartbeatAt >= cyclesPerHeartbeat {
		u.logger.Infow("uploader: heartbeat", "dir", u.cfg.WorkerDir)
		u.heartbeatAt = 0
	}
}

// send drives one file through the full Preparing -> Attempting -> outcome
// state machine and performs the resulting disposition (move to uploaded,
// move to dead_letter, or nothing).
func (u *Uploader) send(ctx context.Context, sig *shutdown.Signal, path string) {
	if !u.fs.Exists(path) {
		return // Aborted-vanished: decisive success, nothing to do.
	}

	size, failureDetail := int64(-1), ""
	if info, err := u.fs.Stat(path); err == nil {
		size = info.Size()
	} else {
		failureDetail = err.Error()
		u.logger.Warnw("uploader: stat failed, proceeding with unknown size", "path", path, "error", failureDetail)
	}

	result, statusCode, respSnippet, attempt := u.attempt(ctx, sig, path, size)

	switch result {
	case succeeded:
		u.finalize(path, u.cfg.UploadedDir, "upload_success", attempt, size, statusCode, respSnippet)
	case terminalFailure:
		u.finalize(path, u.cfg.DeadLetterDir, "upload_failure_terminal", attempt, size, statusCode, respSnippet)
	case abortedVanished, abortedShutdown:
		// No disposition: file stays where it is (already gone, or will be
		// retried on the next cycle).
	}
}

func (u *Uploader) attempt(ctx context.Context, sig *shutdown.Signal, path string, size int64) (result outcome, statusCode int, respSnippet string, attempt int) {
	backoff := u.cfg.InitialBackoff
	attempt = 1

	for {
		if !u.fs.Exists(path) {
			return abortedVanished, 0, "", attempt
		}

		start := time.Now()
		f, err := u.fs.Open(path)
		if err != nil {
			u.auditEvent(audit.LevelError, "upload_failure_terminal", path, size, attempt, time.Since(start), nil, "", "os_error", err.Error(), fmt.Sprintf("%T", err))
			return terminalFailure, 0, "", attempt
		}

		resp, postErr := u.client.Post(ctx, u.cfg.RemoteURL, f, map[string]string{
			"x-filename":   filepath.Base(path),
			"Content-Type": "application/octet-stream",
		})
		f.Close()

		if postErr != nil {
			if isRetryableNetworkError(postErr) {
				u.auditEvent(audit.LevelWarn, "upload_retry_network_error", path, size, attempt, time.Since(start), nil, "", "network_error", postErr.Error(), fmt.Sprintf("%T", postErr))
			} else {
				u.auditEvent(audit.LevelError, "upload_failure_terminal", path, size, attempt, time.Since(start), nil, "", "client_error", postErr.Error(), fmt.Sprintf("%T", postErr))
				return terminalFailure, 0, "", attempt
			}
		} else {
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				u.auditEvent(audit.LevelInfo, "upload_success", path, size, attempt, time.Since(start), &resp.StatusCode, resp.Text, "", "", "")
				return succeeded, resp.StatusCode, resp.Text, attempt
			case resp.StatusCode >= 500 && resp.StatusCode < 600:
				u.auditEvent(audit.LevelWarn, "upload_retry_http_5xx", path, size, attempt, time.Since(start), &resp.StatusCode, resp.Text, "http_5xx", "", "")
			default:
				u.auditEvent(audit.LevelError, "upload_failure_http_terminal", path, size, attempt, time.Since(start), &resp.StatusCode, resp.Text, "http_terminal", "", "")
				return terminalFailure, resp.StatusCode, resp.Text, attempt
			}
		}

		backoffSecs := backoff.Seconds()
		u.auditBackoff(path, size, attempt, backoffSecs)
		if sig.Wait(backoff) {
			u.auditEvent(audit.LevelWarn, "upload_aborted_shutdown", path, size, attempt, 0, nil, "", "", "", "")
			return abortedShutdown, 0, "", attempt
		}

		attempt++
		backoff = time.Duration(math.Min(float64(backoff*2), float64(u.cfg.MaxBackoff)))
	}
}

func (u *Uploader) finalize(path, destDir, eventType string, attempt int, size int64, statusCode int, respSnippet string) {
	dst, err := mover.SafeMove(context.Background(), u.fs, path, destDir)
	if err != nil {
		u.logger.Errorw("uploader: CRITICAL failed to finalize file", "path", path, "dest_dir", destDir, "error", err)
		u.auditEvent(audit.LevelCritical, "upload_finalize_failed", path, size, attempt, 0, nil, "", "finalize_error", err.Error(), fmt.Sprintf("%T", err))
		u.criticallyFailed.Set(path, struct{}{})
		return
	}
	var sc *int
	if statusCode != 0 {
		sc = &statusCode
	}
	u.auditEvent(audit.LevelInfo, eventType, dst, size, attempt, 0, sc, respSnippet, "", "", "")
}

func (u *Uploader) auditEvent(level audit.Level, eventType, path string, size int64, attempt int, duration time.Duration, statusCode *int, respSnippet, failureCategory, failureDetail, exceptionType string) {
	var sizePtr *int64
	if size >= 0 {
		sizePtr = &size
	}
	var durMS *float64
	if duration > 0 {
		d := float64(duration.Microseconds()) / 1000.0
		durMS = &d
	}
	u.audit.Record(level, audit.Event{
		Type:            eventType,
		FileName:        filepath.Base(path),
		FileSizeBytes:   sizePtr,
		DestinationURL:  u.cfg.RemoteURL,
		Attempt:         attempt,
		DurationMS:      durMS,
		StatusCode:      statusCode,
		ResponseSnippet: respSnippet,
		FailureCategory: failureCategory,
		FailureDetail:   failureDetail,
		ExceptionType:   exceptionType,
	})
}

func (u *Uploader) auditBackoff(path string, size int64, attempt int, backoffSeconds float64) {
	var sizePtr *int64
	if size >= 0 {
		sizePtr = &size
	}
	u.audit.Record(audit.LevelWarn, audit.Event{
		Type:           "upload_backoff",
		FileName:       filepath.Base(path),
		FileSizeBytes:  sizePtr,
		DestinationURL: u.cfg.RemoteURL,
		Attempt:        attempt,
		BackoffSeconds: &backoffSeconds,
	})
}

// isRetryableNetworkError classifies transport-level errors: timeouts and
// connection errors are retryable, everything else is terminal. Go's
// net/http surfaces these as *url.Error wrapping context.DeadlineExceeded,
// os.ErrDeadlineExceeded or a net.Error with Timeout() true.
func isRetryableNetworkError(err error) bool {
	var netErr interface{ Timeout() bool }
	if asNetError(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "EOF") ||
		strings.Contains(err.Error(), "timeout")
}

func asNetError(err error, target *interface{ Timeout() bool }) bool {
	for err != nil {
		if t, ok := err.(interface{ Timeout() bool }); ok {
			*target = t
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
