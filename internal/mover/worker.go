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

package mover

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/queue"
	"github.com/GoogleCloudPlatform/pcapmover/internal/shutdown"
)

// DequeueTimeout bounds how long a Worker blocks on an empty MoveQueue
// before re-checking the shutdown signal, per spec.md section 4.3 step 1.
const DequeueTimeout = 500 * time.Millisecond

// Worker is the single consumer of MoveQueue: it dequeues absolute paths
// and relocates each from sourceDir into workerDir.
type Worker struct {
	fs        fsx.FS
	moveQ     *queue.MoveQueue
	logger    *zap.SugaredLogger
	sourceDir string
	workerDir string
	timeout   time.Duration
}

// NewWorker builds a Mover worker.
func NewWorker(fs fsx.FS, moveQ *queue.MoveQueue, logger *zap.SugaredLogger, sourceDir, workerDir string, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DequeueTimeout
	}
	return &Worker{fs: fs, moveQ: moveQ, logger: logger, sourceDir: sourceDir, workerDir: workerDir, timeout: timeout}
}

// Run loops dequeue-and-move until sig fires.
func (w *Worker) Run(ctx context.Context, sig *shutdown.Signal) error {
	for !sig.IsSet() {
		dequeueCtx, cancel := context.WithTimeout(sig.Context(), w.timeout)
		path, ok := w.moveQ.Get(dequeueCtx)
		cancel()
		if !ok {
			continue
		}
		w.handle(ctx, path)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, path string) {
	if err := w.validate(path); err != nil {
		w.logger.Warnw("mover: dropping invalid path", "path", path, "error", err)
		return
	}

	dst, err := SafeMove(ctx, w.fs, path, w.workerDir)
	switch {
	case err == nil:
		w.logger.Debugw("mover: moved file", "src", path, "dst", dst)
	case errors.Is(err, ErrSourceVanished):
		// Treated as success per spec.md section 4.3 step 4.
	default:
		w.logger.Errorw("mover: move failed, dropping (scanner will redetect)", "path", path, "error", err)
	}
}

// validate checks the dequeued path sits directly inside sourceDir (after
// resolving symlinks), exists, is not a directory, and can be opened for
// reading, per spec.md section 4.3 step 2.
func (w *Worker) validate(path string) error {
	resolved, err := w.fs.Resolve(path)
	if err != nil {
		return err
	}
	resolvedSource, err := w.fs.Resolve(w.sourceDir)
	if err != nil {
		return err
	}
	if filepath.Dir(resolved) != resolvedSource {
		return errors.New("mover: path escapes source directory")
	}
	if !w.fs.Exists(path) {
		return errors.New("mover: path does not exist")
	}
	if w.fs.IsDir(path) {
		return errors.New("mover: path is a directory, not a regular file")
	}
	f, err := w.fs.Open(path)
	if err != nil {
		return errors.New("mover: path is not readable")
	}
	f.Close()
	return nil
}
