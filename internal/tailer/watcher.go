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

package tailer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/queue"
)

// Watcher runs on its own goroutine, translating fsnotify events on csvDir
// into TailerEvent values. It never mutates Consumer state itself — all
// mutation happens on the consumer goroutine, per spec.md section 5's
// "filesystem watcher is a separate thread that only enqueues events" rule.
// Grounded on pcap-fsnotify/main.go's fsnotify.NewWatcher loop.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *zap.SugaredLogger
	csvDir  string
	csvExt  string
}

// NewWatcher builds a Watcher on csvDir, matching files with csvExt
// directly inside it (not subdirectories).
func NewWatcher(csvDir, csvExt string, logger *zap.SugaredLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(csvDir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{watcher: fw, logger: logger, csvDir: csvDir, csvExt: csvExt}, nil
}

// Close releases the underlying OS watch.
func (w *Watcher) Close() error { return w.watcher.Close() }

// Run forwards matching events to out until ctx is done or the watcher's
// channels close.
func (w *Watcher) Run(ctx context.Context, out *queue.TailerEventQueue) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.dispatch(ctx, out, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("tailer: watch error", "error", err)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.csvDir) {
		return false
	}
	return strings.TrimPrefix(filepath.Ext(path), ".") == w.csvExt
}

func (w *Watcher) dispatch(ctx context.Context, out *queue.TailerEventQueue, ev fsnotify.Event) {
	var tev queue.TailerEvent
	switch {
	case ev.Has(fsnotify.Create):
		if !w.matches(ev.Name) {
			return
		}
		tev = queue.TailerEvent{Kind: queue.Created, Src: ev.Name}
	case ev.Has(fsnotify.Write):
		if !w.matches(ev.Name) {
			return
		}
		tev = queue.TailerEvent{Kind: queue.Modified, Src: ev.Name}
	case ev.Has(fsnotify.Remove):
		if !w.matches(ev.Name) {
			return
		}
		tev = queue.TailerEvent{Kind: queue.Deleted, Src: ev.Name}
	case ev.Has(fsnotify.Rename):
		// fsnotify reports a rename as a Rename on the old name; the
		// corresponding Create on the new name arrives separately. Treat
		// the rename itself as a delete of the old tracking entry.
		if !w.matches(ev.Name) {
			return
		}
		tev = queue.TailerEvent{Kind: queue.Moved, Src: ev.Name, Dst: ev.Name}
	default:
		return
	}
	if err := out.Put(ctx, tev); err != nil {
		w.logger.Warnw("tailer: event queue put interrupted", "error", err)
	}
}
