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

// Package purger enforces a disk-usage ceiling across the worker and
// uploaded directories, deleting the oldest files first and preferring
// uploaded over worker, per spec.md section 4.5. Grounded on pcap-
// fsnotify/main.go's ticker-driven cycle cadence; the per-file stat fan-out
// uses an ants.Pool the way pcap-sidecar uses ants for bounded concurrent
// work, since spec.md fixes one goroutine per long-lived worker and this
// is the one place independent per-file work benefits from a pool.
package purger

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
)

// Config bundles the Purger's directories and budget.
type Config struct {
	WorkerDir              string
	UploadedDir            string
	PCAPExtension          string
	TargetDiskUsagePercent float64
	TotalDiskCapacityBytes int64
}

// Purger deletes oldest files across WorkerDir/UploadedDir to keep total
// bytes within the configured budget.
type Purger struct {
	fs     fsx.FS
	logger *zap.SugaredLogger
	cfg    Config
	pool   *ants.Pool
}

// New builds a Purger with a bounded stat-fan-out pool.
func New(fs fsx.FS, logger *zap.SugaredLogger, cfg Config) (*Purger, error) {
	pool, err := ants.NewPool(16)
	if err != nil {
		return nil, err
	}
	return &Purger{fs: fs, logger: logger, cfg: cfg, pool: pool}, nil
}

// Close releases the stat pool.
func (p *Purger) Close() { p.pool.Release() }

type fileEntry struct {
	path  string
	size  int64
	mtime int64
}

// RunCycle performs one purge pass.
func (p *Purger) RunCycle() {
	workerFiles, workerErr := p.listSorted(p.cfg.WorkerDir)
	uploadedFiles, uploadedErr := p.listSorted(p.cfg.UploadedDir)
	if workerErr != nil && uploadedErr != nil {
		p.logger.Errorw("purger: both directories failed to scan, retrying next cycle", "worker_error", workerErr, "uploaded_error", uploadedErr)
		return
	}

	totalUploaded := sumSizes(uploadedFiles)
	totalWorker := sumSizes(workerFiles)
	currentTotal := totalUploaded + totalWorker

	targetKeep := p.cfg.TargetDiskUsagePercent * float64(p.cfg.TotalDiskCapacityBytes)
	mustDelete := float64(currentTotal) - targetKeep
	if mustDelete <= 0 {
		p.logger.Infow("purger: within target", "current_total", humanSize(currentTotal), "target_keep", humanSize(int64(targetKeep)))
		return
	}

	remaining := mustDelete

	keepInUploaded := maxFloat(0, float64(totalUploaded)-mustDelete)
	deletedUploaded := p.deleteUntil(uploadedFiles, float64(totalUploaded), keepInUploaded)
	remaining -= deletedUploaded

	if remaining > 0 {
		keepInWorker := maxFloat(0, float64(totalWorker)-remaining)
		p.deleteUntil(workerFiles, float64(totalWorker), keepInWorker)
	}

	after := p.currentTotalBytes()
	if float64(after) > targetKeep {
		p.logger.Warnw("purger: target not met after cycle", "remaining_deficit_bytes", float64(after)-targetKeep)
	}
}

// deleteUntil removes entries (oldest first) from the front of files until
// the running total drops to keep, returning total bytes actually freed.
func (p *Purger) deleteUntil(files []fileEntry, startTotal, keep float64) float64 {
	running := startTotal
	var freed float64
	for _, f := range files {
		if running <= keep {
			break
		}
		if err := p.fs.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warnw("purger: failed to delete file", "path", f.path, "error", err)
			continue
		}
		running -= float64(f.size)
		freed += float64(f.size)
	}
	return freed
}

func (p *Purger) currentTotalBytes() int64 {
	worker, _ := p.listSorted(p.cfg.WorkerDir)
	uploaded, _ := p.listSorted(p.cfg.UploadedDir)
	return sumSizes(worker) + sumSizes(uploaded)
}

// listSorted enumerates dir, stats each matching file concurrently via the
// pool, and returns entries sorted oldest-mtime-first.
func (p *Purger) listSorted(dir string) ([]fileEntry, error) {
	entries, err := p.fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var out []fileEntry

	for _, e := range entries {
		e := e
		if e.IsDir() || strings.TrimPrefix(filepath.Ext(e.Name()), ".") != p.cfg.PCAPExtension {
			continue
		}
		path := filepath.Join(dir, e.Name())
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			info, err := p.fs.Stat(path)
			if err != nil {
				return
			}
			mu.Lock()
			out = append(out, fileEntry{path: path, size: info.Size(), mtime: info.ModTime().UnixNano()})
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			p.logger.Warnw("purger: stat pool submit failed", "path", path, "error", submitErr)
		}
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].mtime < out[j].mtime })
	return out, nil
}

func sumSizes(files []fileEntry) int64 {
	var total int64
	for _, f := range files {
		total += f.size
	}
	return total
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// humanSize renders n bytes for log lines, e.g. "1.5 MiB".
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for q := n / unit; q >= unit; q /= unit {
		div *= unit
		exp++
	}
	units := "KMGTPE"
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), units[exp])
}
