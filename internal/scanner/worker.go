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

package scanner

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/shutdown"
)

// Worker schedules RunCycle every scanInterval using gocron, matching
// pcap-fsnotify's preference for a library scheduler over a raw
// time.Ticker, with singleton mode so a slow cycle never overlaps itself.
type Worker struct {
	scanner  *Scanner
	interval time.Duration
	logger   *zap.SugaredLogger
}

// NewWorker builds a scheduled Scanner worker.
func NewWorker(s *Scanner, interval time.Duration, logger *zap.SugaredLogger) *Worker {
	return &Worker{scanner: s, interval: interval, logger: logger}
}

// Run schedules the cycle and blocks until sig fires or a cycle returns a
// fatal error, in which case it trips sig itself before returning.
func (w *Worker) Run(ctx context.Context, sig *shutdown.Signal) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	defer s.Shutdown()

	var cycleErr error
	_, err = s.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			if err := w.scanner.RunCycle(sig.Context()); err != nil {
				cycleErr = err
				sig.Set()
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.Start()

	<-sig.Done()
	return cycleErr
}
