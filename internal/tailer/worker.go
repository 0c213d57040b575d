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
	"sync"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/queue"
	"github.com/GoogleCloudPlatform/pcapmover/internal/shutdown"
)

// Worker wires the watcher goroutine and the consumer goroutine together
// behind a single TailerEventQueue, matching spec.md section 5's "the
// Tailer's filesystem watcher is a separate thread that only enqueues
// events" split.
type Worker struct {
	watcher  *Watcher
	consumer *Consumer
	events   *queue.TailerEventQueue
	logger   *zap.SugaredLogger
}

// NewWorker builds a Tailer worker over csvDir/csvExt, routing move
// requests into moveQ.
func NewWorker(fs fsx.FS, moveQ *queue.MoveQueue, csvDir, csvExt string, logger *zap.SugaredLogger) (*Worker, error) {
	watcher, err := NewWatcher(csvDir, csvExt, logger)
	if err != nil {
		return nil, err
	}
	return &Worker{
		watcher:  watcher,
		consumer: NewConsumer(fs, moveQ, logger, csvDir, csvExt),
		events:   queue.NewTailerEventQueue(1024),
		logger:   logger,
	}, nil
}

// Run performs the boot scan, then runs the watcher and consumer goroutines
// until sig fires. It blocks until both goroutines exit.
func (w *Worker) Run(ctx context.Context, sig *shutdown.Signal) error {
	if err := w.consumer.BootScan(ctx, w.events); err != nil {
		w.logger.Errorw("tailer: boot scan failed", "error", err)
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.watcher.Run(sig.Context(), w.events)
	}()
	go func() {
		defer wg.Done()
		w.consumer.Run(sig.Context(), w.events)
	}()
	wg.Wait()
	return w.watcher.Close()
}
