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

package uploader

import (
	"context"

	"github.com/GoogleCloudPlatform/pcapmover/internal/shutdown"
)

// Worker drives RunCycle on a sleep/wake loop, waking early on shutdown per
// spec.md section 4.4 step 1 ("sleep up to uploader_poll_interval, waking
// early on shutdown"). Unlike Scanner/Purger, this isn't gocron-scheduled:
// the loop must also wake immediately when shutdown fires mid-sleep, which
// shutdown.Signal.Wait already expresses directly.
type Worker struct {
	uploader *Uploader
	cfg      Config
}

// NewWorker builds a scheduled Uploader worker.
func NewWorker(u *Uploader, cfg Config) *Worker {
	return &Worker{uploader: u, cfg: cfg}
}

// Run loops RunCycle until sig fires.
func (w *Worker) Run(ctx context.Context, sig *shutdown.Signal) error {
	for !sig.IsSet() {
		w.uploader.RunCycle(ctx, sig)
		sig.Wait(w.cfg.PollInterval)
	}
	return nil
}
