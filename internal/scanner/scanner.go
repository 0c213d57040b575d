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

// Package scanner implements the directory scanner: a completeness-
// independent safety net that finds files the Tailer never heard about
// (lost) and files that grow forever (stuck active), signalling restarts
// for the latter. Grounded on ppiankov-runforge's sentinel (debounce +
// orphan-recovery shape) and original_source's scanner module for the
// three-state classification itself.
package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alphadose/haxmap"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/queue"
)

// FileStateRecord is one tracked source-directory file, per spec.md
// section 3. FirstSeenMono never changes after creation.
type FileStateRecord struct {
	Path               string
	Size               int64
	MtimeWall          time.Time
	FirstSeenMono      time.Time
	PrevScanSize       int64
	PrevScanMtimeWall  time.Time
}

// Clock abstracts monotonic/wall time so tests can control elapsed time
// without sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Scanner owns the FileStateRecord table and the three "previously_*" sets
// across cycles; spec.md section 5 assigns sole ownership of both to the
// Scanner goroutine.
type Scanner struct {
	fs       fsx.FS
	moveQ    *queue.MoveQueue
	logger   *zap.SugaredLogger
	clock    Clock

	sourceDir          string
	pcapExt            string
	restartDir         string
	lostTimeout        time.Duration
	stuckActiveTimeout time.Duration

	records                     *haxmap.Map[string, *FileStateRecord]
	previouslyLost              mapset.Set[string]
	previouslyStuckActive       mapset.Set[string]
	previouslySignaledStuckApps mapset.Set[string]
}

// Config bundles the Scanner's directory and timeout parameters.
type Config struct {
	SourceDir          string
	PCAPExtension      string
	RestartDir         string
	LostTimeout        time.Duration
	StuckActiveTimeout time.Duration
}

// New builds a Scanner. cfg.StuckActiveTimeout must exceed cfg.LostTimeout
// (enforced at configuration load, per spec.md section 4.2).
func New(fs fsx.FS, moveQ *queue.MoveQueue, logger *zap.SugaredLogger, cfg Config) *Scanner {
	return &Scanner{
		fs:                          fs,
		moveQ:                       moveQ,
		logger:                      logger,
		clock:                       realClock{},
		sourceDir:                   cfg.SourceDir,
		pcapExt:                     cfg.PCAPExtension,
		restartDir:                  cfg.RestartDir,
		lostTimeout:                 cfg.LostTimeout,
		stuckActiveTimeout:          cfg.StuckActiveTimeout,
		records:                     haxmap.New[string, *FileStateRecord](),
		previouslyLost:              mapset.NewSet[string](),
		previouslyStuckActive:       mapset.NewSet[string](),
		previouslySignaledStuckApps: mapset.NewSet[string](),
	}
}

// RunCycle performs one full scan cycle: enumerate, upsert, classify,
// enqueue lost files, signal stuck-active applications. A directory-
// enumeration failure is fatal per spec.md section 4.2 and is returned so
// the caller can trip the shutdown signal.
func (s *Scanner) RunCycle(ctx context.Context) error {
	observed, err := s.enumerate()
	if err != nil {
		s.logger.Errorw("scanner: fatal enumeration failure", "dir", s.sourceDir, "error", err)
		return fmt.Errorf("scanner: enumerate %s: %w", s.sourceDir, err)
	}

	seen := make(map[string]bool, len(observed))
	now := s.clock.Now()
	for _, obs := range observed {
		seen[obs.path] = true
		s.upsert(obs, now)
	}
	s.pruneRemoved(seen)

	lost, stuckActive := s.classify(now)

	newlyLost := lost.Difference(s.previouslyLost)
	newlyStuckActive := stuckActive.Difference(s.previouslyStuckActive)

	newlyLost.Each(func(path string) bool {
		if err := s.moveQ.Put(ctx, path); err != nil {
			s.logger.Warnw("scanner: move queue put interrupted for lost file", "path", path, "error", err)
		} else {
			s.logger.Infow("scanner: Identified file as LOST", "path", path)
		}
		return false
	})
	newlyStuckActive.Each(func(path string) bool {
		s.logger.Errorw("scanner: STUCK ACTIVE", "path", path)
		return false
	})

	s.signalStuckApps(stuckActive)

	s.previouslyLost = lost
	s.previouslyStuckActive = stuckActive
	return nil
}

type observation struct {
	path  string
	size  int64
	mtime time.Time
}

func (s *Scanner) enumerate() ([]observation, error) {
	entries, err := s.fs.ReadDir(s.sourceDir)
	if err != nil {
		return nil, err
	}
	out := make([]observation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.TrimPrefix(filepath.Ext(entry.Name()), ".") != s.pcapExt {
			continue
		}
		path := filepath.Join(s.sourceDir, entry.Name())
		info, err := s.fs.Stat(path)
		if err != nil {
			s.logger.Warnw("scanner: stat failed during enumeration, dropping for this cycle", "path", path, "error", err)
			continue
		}
		out = append(out, observation{path: path, size: info.Size(), mtime: info.ModTime()})
	}
	return out, nil
}

func (s *Scanner) upsert(obs observation, now time.Time) {
	if existing, ok := s.records.Get(obs.path); ok {
		existing.PrevScanSize = existing.Size
		existing.PrevScanMtimeWall = existing.MtimeWall
		existing.Size = obs.size
		existing.MtimeWall = obs.mtime
		return
	}
	s.records.Set(obs.path, &FileStateRecord{
		Path:              obs.path,
		Size:              obs.size,
		MtimeWall:         obs.mtime,
		FirstSeenMono:     now,
		PrevScanSize:      obs.size,
		PrevScanMtimeWall: obs.mtime,
	})
}

func (s *Scanner) pruneRemoved(seen map[string]bool) {
	var toDelete []string
	s.records.ForEach(func(path string, _ *FileStateRecord) bool {
		if !seen[path] {
			toDelete = append(toDelete, path)
		}
		return true
	})
	for _, path := range toDelete {
		s.records.Del(path)
		s.logger.Debugw("scanner: removed-from-tracking", "path", path)
	}
}

func (s *Scanner) classify(now time.Time) (lost mapset.Set[string], stuckActive mapset.Set[string]) {
	lost = mapset.NewSet[string]()
	stuckActive = mapset.NewSet[string]()
	s.records.ForEach(func(path string, r *FileStateRecord) bool {
		active := r.Size != r.PrevScanSize || !r.MtimeWall.Equal(r.PrevScanMtimeWall)
		presentTooLong := now.Sub(r.FirstSeenMono) > s.stuckActiveTimeout
		if now.Sub(r.MtimeWall) > s.lostTimeout {
			lost.Add(path)
		}
		if active && presentTooLong {
			stuckActive.Add(path)
		}
		return true
	})
	return lost, stuckActive
}

// signalStuckApps derives application names from currently_stuck_active
// filenames and writes a restart trigger for every app not already
// signaled this "generation", per spec.md section 4.2 step 7. The set of
// signaled apps is replaced (not unioned) with the current set every
// cycle, so an app that unsticks and re-sticks is re-signaled.
func (s *Scanner) signalStuckApps(stuckActive mapset.Set[string]) {
	apps := mapset.NewSet[string]()
	stuckActive.Each(func(path string) bool {
		name := filepath.Base(path)
		idx := strings.Index(name, "-")
		if idx <= 0 {
			s.logger.Warnw("scanner: stuck-active filename has no app prefix", "path", path)
			return false
		}
		apps.Add(name[:idx])
		return false
	})

	newlyToSignal := apps.Difference(s.previouslySignaledStuckApps)
	newlyToSignal.Each(func(app string) bool {
		restartPath := filepath.Join(s.restartDir, app+".restart")
		w, err := s.fs.OpenAppend(restartPath)
		if err != nil {
			s.logger.Errorw("scanner: failed to create restart trigger", "app", app, "error", err)
			return false
		}
		if err := w.Close(); err != nil {
			s.logger.Errorw("scanner: failed to finalize restart trigger", "app", app, "error", err)
		}
		return false
	})

	s.previouslySignaledStuckApps = apps
}
