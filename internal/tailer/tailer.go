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

// Package tailer converts a producer's append-only CSV manifest into a
// stream of move requests. Grounded on original_source's
// datamover/tailer/thread_factory.py (boot-scan + observer + consumer
// wiring) and pcap-fsnotify/main.go's fsnotify watch loop.
package tailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/queue"
)

var manifestLineRE = regexp.MustCompile(`^([0-9]+),(.+),([0-9a-fA-F]{64})$`)

// ParsedLine is a validated manifest line: (timestamp, filepath, sha256).
type ParsedLine struct {
	Timestamp int64
	FilePath  string
	SHA256    string
}

// ParseLine validates the strict format spec.md section 4.1 requires:
// timestamp is a non-negative integer, filepath is non-empty, sha256 is
// exactly 64 hex digits.
func ParseLine(line string) (ParsedLine, error) {
	m := manifestLineRE.FindStringSubmatch(line)
	if m == nil {
		return ParsedLine{}, fmt.Errorf("tailer: malformed manifest line %q", line)
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ParsedLine{}, fmt.Errorf("tailer: bad timestamp in line %q: %w", line, err)
	}
	if m[2] == "" {
		return ParsedLine{}, fmt.Errorf("tailer: empty filepath in line %q", line)
	}
	return ParsedLine{Timestamp: ts, FilePath: m[2], SHA256: strings.ToLower(m[3])}, nil
}

// perFileState is the Consumer's private bookkeeping for one tracked CSV
// file: file_positions and file_buffers from spec.md section 3, merged
// since a path always appears in both or neither.
type perFileState struct {
	position int64
	buffer   []byte
}

// Consumer owns PerFileTailState and drives the single-threaded event
// processing loop described in spec.md section 4.1. It is not safe for
// concurrent use — only one goroutine (the worker loop) should call Run.
type Consumer struct {
	fs       fsx.FS
	moveQ    *queue.MoveQueue
	logger   *zap.SugaredLogger
	state    map[string]*perFileState
	csvDir   string
	csvExt   string
}

// NewConsumer builds a Consumer watching files with csvExt directly inside
// csvDir.
func NewConsumer(fs fsx.FS, moveQ *queue.MoveQueue, logger *zap.SugaredLogger, csvDir, csvExt string) *Consumer {
	return &Consumer{
		fs:     fs,
		moveQ:  moveQ,
		logger: logger,
		state:  make(map[string]*perFileState),
		csvDir: csvDir,
		csvExt: csvExt,
	}
}

// BootScan lists every matching file already in csvDir and emits
// InitialFound for each, per spec.md section 4.1's boot step.
func (c *Consumer) BootScan(ctx context.Context, events *queue.TailerEventQueue) error {
	entries, err := c.fs.ReadDir(c.csvDir)
	if err != nil {
		return fmt.Errorf("tailer: boot scan of %s: %w", c.csvDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != "."+c.csvExt {
			continue
		}
		path := filepath.Join(c.csvDir, entry.Name())
		if err := events.Put(ctx, queue.TailerEvent{Kind: queue.InitialFound, Src: path}); err != nil {
			return err
		}
	}
	return nil
}

// Run consumes events from the queue until ctx is done, dispatching each to
// the matching handler.
func (c *Consumer) Run(ctx context.Context, events *queue.TailerEventQueue) {
	for {
		ev, ok := events.Get(ctx)
		if !ok {
			return
		}
		c.handle(ctx, ev)
	}
}

func (c *Consumer) handle(ctx context.Context, ev queue.TailerEvent) {
	switch ev.Kind {
	case queue.InitialFound, queue.Created:
		c.handleCreated(ev.Src)
	case queue.Modified:
		c.handleModified(ctx, ev.Src)
	case queue.Deleted:
		delete(c.state, ev.Src)
	case queue.Moved:
		delete(c.state, ev.Src)
		if strings.HasPrefix(filepath.Dir(ev.Dst), c.csvDir) && filepath.Ext(ev.Dst) == "."+c.csvExt {
			c.handleCreated(ev.Dst)
		}
	}
}

// handleCreated begins tracking path at end-of-file, as spec.md section 4.1
// requires for InitialFound/Created and for late-sync.
func (c *Consumer) handleCreated(path string) {
	info, err := c.fs.Stat(path)
	if err != nil {
		c.logger.Warnw("tailer: stat failed on create, dropping", "path", path, "error", err)
		return
	}
	c.state[path] = &perFileState{position: info.Size()}
}

func (c *Consumer) handleModified(ctx context.Context, path string) {
	info, err := c.fs.Stat(path)
	if err != nil {
		c.logger.Warnw("tailer: stat failed on modify", "path", path, "error", err)
		return
	}

	st, tracked := c.state[path]
	if !tracked {
		// Late-sync: never saw create/initial-found, begin tracking now
		// with no backfill.
		c.state[path] = &perFileState{position: info.Size()}
		return
	}

	switch {
	case info.Size() == st.position:
		return
	case info.Size() < st.position:
		st.position = info.Size()
		st.buffer = nil
		return
	}

	if err := c.flushDelta(ctx, path, st, info.Size()); err != nil {
		c.logger.Warnw("tailer: read delta failed, will retry next modify", "path", path, "error", err)
	}
}

// flushDelta opens path, reads it whole, slices out the delta from the
// tracked position up to newSize, and parses every complete line in it,
// per spec.md section 4.1's flush algorithm.
func (c *Consumer) flushDelta(ctx context.Context, path string, st *perFileState, newSize int64) error {
	f, err := c.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	full, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if int64(len(full)) < newSize {
		return fmt.Errorf("tailer: read %d bytes, expected at least %d", len(full), newSize)
	}
	delta := full[st.position:newSize]

	combined := append(st.buffer, delta...)
	lines := bytes.Split(combined, []byte("\n"))
	// the final element is either empty (trailing newline) or an
	// incomplete fragment; either way it becomes the new buffer.
	st.buffer = append([]byte(nil), lines[len(lines)-1]...)
	st.position = newSize

	for _, raw := range lines[:len(lines)-1] {
		line := strings.TrimRight(string(raw), "\r")
		if line == "" {
			continue
		}
		parsed, err := ParseLine(line)
		if err != nil {
			c.logger.Warnw("tailer: rejecting malformed manifest line", "error", err)
			continue
		}
		if err := c.moveQ.Put(ctx, parsed.FilePath); err != nil {
			c.logger.Warnw("tailer: move queue put interrupted", "path", parsed.FilePath, "error", err)
			return nil
		}
	}
	return nil
}
