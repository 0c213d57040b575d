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

// Package supervisor builds the five core workers leaf-first, starts them,
// trips the shared shutdown signal as soon as any worker returns an error,
// and drives cooperative shutdown. Grounded on
// pcap-fsnotify/main.go's flock acquisition and signal handling, and
// ppiankov-runforge's sentinel (PID-lock-and-orphan-recovery shape).
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GoogleCloudPlatform/pcapmover/internal/audit"
	"github.com/GoogleCloudPlatform/pcapmover/internal/config"
	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/httpx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/mover"
	"github.com/GoogleCloudPlatform/pcapmover/internal/purger"
	"github.com/GoogleCloudPlatform/pcapmover/internal/queue"
	"github.com/GoogleCloudPlatform/pcapmover/internal/scanner"
	"github.com/GoogleCloudPlatform/pcapmover/internal/shutdown"
	"github.com/GoogleCloudPlatform/pcapmover/internal/tailer"
	"github.com/GoogleCloudPlatform/pcapmover/internal/uploader"
)

// worker is anything the supervisor starts and joins.
type worker interface {
	Run(ctx context.Context, sig *shutdown.Signal) error
}

// JoinTimeout bounds how long the supervisor waits for a worker to exit
// during shutdown before abandoning it (process exit reaps it), per
// spec.md section 5.
const JoinTimeout = 30 * time.Second

// lockFileName names the single-instance flock file, taken inside the
// worker directory so it always exists once configuration is validated.
const lockFileName = ".pcapmover.lock"

// Supervisor owns every worker's lifecycle.
type Supervisor struct {
	cfg        *config.Config
	logger     *zap.Logger
	auditSink  *audit.Sink
	fs         fsx.FS
	instanceID string

	lock    *flock.Flock
	sig     *shutdown.Signal
	workers []namedWorker
}

type namedWorker struct {
	name string
	w    worker
}

// New builds a Supervisor from a validated Config. It does not start any
// worker yet.
func New(cfg *config.Config, logger *zap.Logger, auditSink *audit.Sink, fs fsx.FS) (*Supervisor, error) {
	instanceID := uuid.NewString()
	logger = logger.With(zap.String("instance_id", instanceID))
	s := &Supervisor{
		cfg:        cfg,
		logger:     logger,
		auditSink:  auditSink,
		fs:         fs,
		instanceID: instanceID,
	}

	moveQ := queue.NewMoveQueue(1024)

	tailerWorker, err := tailer.NewWorker(fs, moveQ, cfg.Directories.CSV, cfg.Files.CSVExtension, logging(logger, "tailer"))
	if err != nil {
		return nil, fmt.Errorf("supervisor: build tailer: %w", err)
	}

	scan := scanner.New(fs, moveQ, logging(logger, "scanner"), scanner.Config{
		SourceDir:          cfg.Directories.Source,
		PCAPExtension:      cfg.Files.PCAPExtension,
		RestartDir:         cfg.Directories.CSVRestart,
		LostTimeout:        cfg.Scanner.LostTimeout,
		StuckActiveTimeout: cfg.Scanner.StuckActiveTimeout,
	})
	scannerWorker := scanner.NewWorker(scan, cfg.Scanner.ScanInterval, logging(logger, "scanner"))

	moverWorker := mover.NewWorker(fs, moveQ, logging(logger, "mover"), cfg.Directories.Source, cfg.Directories.Worker, cfg.Mover.DequeueTimeout)

	httpClient := httpx.NewRealClient(cfg.Uploader.RequestTimeout, cfg.Uploader.VerifySSL)
	up := uploader.New(fs, httpClient, auditSink, logging(logger, "uploader"), uploader.Config{
		WorkerDir:      cfg.Directories.Worker,
		UploadedDir:    cfg.Directories.Uploaded,
		DeadLetterDir:  cfg.Directories.DeadLetter,
		PCAPExtension:  cfg.Files.PCAPExtension,
		RemoteURL:      cfg.Uploader.RemoteURL,
		RequestTimeout: cfg.Uploader.RequestTimeout,
		VerifySSL:      cfg.Uploader.VerifySSL,
		InitialBackoff: cfg.Uploader.InitialBackoff,
		MaxBackoff:     cfg.Uploader.MaxBackoff,
		PollInterval:   cfg.Uploader.PollInterval,
		HeartbeatEvery: cfg.Uploader.HeartbeatInterval,
	})
	uploaderWorker := uploader.NewWorker(up, uploader.Config{PollInterval: cfg.Uploader.PollInterval})

	purg, err := purger.New(fs, logging(logger, "purger"), purger.Config{
		WorkerDir:              cfg.Directories.Worker,
		UploadedDir:            cfg.Directories.Uploaded,
		PCAPExtension:          cfg.Files.PCAPExtension,
		TargetDiskUsagePercent: cfg.Purger.TargetDiskUsagePercent,
		TotalDiskCapacityBytes: cfg.Purger.TotalDiskCapacityBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor: build purger: %w", err)
	}
	purgerWorker := purger.NewWorker(purg, cfg.Purger.PollInterval)

	// Leaf-first order: Mover depends on nothing downstream consuming its
	// output yet being alive; Tailer/Scanner produce into MoveQueue which
	// Mover drains; Uploader drains worker/ which Mover fills; Purger only
	// observes directories the others also touch, so it starts last.
	s.workers = []namedWorker{
		{"mover", moverWorker},
		{"tailer", tailerWorker},
		{"scanner", scannerWorker},
		{"uploader", uploaderWorker},
		{"purger", purgerWorker},
	}
	return s, nil
}

func logging(base *zap.Logger, component string) *zap.SugaredLogger {
	return base.Named(component).Sugar()
}

// Run acquires the single-instance lock, starts every worker, installs
// signal handlers, and blocks until shutdown completes. It returns a
// non-zero-worthy error if any worker reports a fatal condition.
func (s *Supervisor) Run(ctx context.Context) error {
	lockPath := fmt.Sprintf("%s/%s", s.cfg.Directories.Worker, lockFileName)
	s.lock = flock.New(lockPath)
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("supervisor: acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("supervisor: another instance already holds %s", lockPath)
	}
	defer s.lock.Unlock()

	s.sig = shutdown.New(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			s.logger.Info("supervisor: shutdown signal received")
			s.sig.Set()
		case <-s.sig.Done():
		}
	}()
	defer signal.Stop(sigCh)

	var eg errgroup.Group
	for _, nw := range s.workers {
		nw := nw
		eg.Go(func() error {
			if err := nw.w.Run(ctx, s.sig); err != nil {
				s.logger.Error("supervisor: worker terminated with error", zap.String("worker", nw.name), zap.Error(err))
				s.sig.Set()
				return fmt.Errorf("%s: %w", nw.name, err)
			}
			return nil
		})
	}

	return s.waitForShutdownThenJoin(&eg)
}

// waitForShutdownThenJoin blocks until the shutdown signal fires (whether
// from an external SIGINT/SIGTERM or a worker reporting a fatal error),
// then waits up to JoinTimeout for every worker to finish draining its
// in-flight work, per spec.md section 5. Workers still running past the
// timeout are abandoned; process exit will reap them.
func (s *Supervisor) waitForShutdownThenJoin(eg *errgroup.Group) error {
	<-s.sig.Done()

	done := make(chan error, 1)
	go func() { done <- eg.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(JoinTimeout):
		s.logger.Warn("supervisor: join timeout exceeded, abandoning workers")
		return nil
	}
}

// InstanceID returns the per-run identifier stamped into every worker's
// log lines as "instance_id".
func (s *Supervisor) InstanceID() string { return s.instanceID }
