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

package purger

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/GoogleCloudPlatform/pcapmover/internal/shutdown"
)

// Worker schedules RunCycle every interval via gocron, typically hourly
// per spec.md section 4.5.
type Worker struct {
	purger   *Purger
	interval time.Duration
}

// NewWorker builds a scheduled Purger worker.
func NewWorker(p *Purger, interval time.Duration) *Worker {
	return &Worker{purger: p, interval: interval}
}

// Run schedules the cycle and blocks until sig fires.
func (w *Worker) Run(ctx context.Context, sig *shutdown.Signal) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	defer s.Shutdown()
	defer w.purger.Close()

	_, err = s.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() { w.purger.RunCycle() }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.Start()

	<-sig.Done()
	return nil
}
