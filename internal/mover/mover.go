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

// Package mover implements the single atomic relocation primitive every
// worker that hands a file from one managed directory to another uses:
// collision-suffix resolution followed by a rename, falling back to
// copy-then-delete when source and destination sit on different devices.
// Grounded on EnigmaNetz-Enigma-Sensor's pcapingest watcher move-after-
// stable-detection step.
package mover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
)

// MaxCollisionSuffix bounds the stem-1, stem-2, ... search (spec.md section
// 4.3's "fixed limit (e.g., 1000)").
const MaxCollisionSuffix = 1000

// ErrCollisionLimitExhausted is returned when no free destination name was
// found within MaxCollisionSuffix attempts.
var ErrCollisionLimitExhausted = errors.New("mover: collision suffix limit exhausted")

// ErrSourceVanished is returned when src no longer exists by the time the
// move actually happens; callers treat this as a decisive success.
var ErrSourceVanished = errors.New("mover: source file vanished")

// SafeMove relocates src into dstDir, preserving its basename unless a
// collision forces a numeric suffix. It returns the final destination path.
func SafeMove(ctx context.Context, fs fsx.FS, src, dstDir string) (string, error) {
	if !fs.Exists(src) {
		return "", ErrSourceVanished
	}

	dst, err := resolveDestination(fs, src, dstDir)
	if err != nil {
		return "", err
	}

	if _, err := fs.Lstat(src); err != nil {
		if os.IsNotExist(err) {
			return "", ErrSourceVanished
		}
		return "", fmt.Errorf("stat source: %w", err)
	}

	sameDevice, err := fs.SameDevice(src, dst)
	if err != nil {
		return "", fmt.Errorf("compare device: %w", err)
	}

	if sameDevice {
		if err := fs.Rename(src, dst); err != nil {
			if os.IsNotExist(err) {
				return "", ErrSourceVanished
			}
			return "", fmt.Errorf("rename: %w", err)
		}
		return dst, nil
	}

	if err := copyThenDelete(ctx, fs, src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// resolveDestination finds the first free name in dstDir, preserving the
// file's stem/extension and trying "<stem>-1<ext>", "<stem>-2<ext>", ...
// on collision, matching spec.md section 4.3.
func resolveDestination(fs fsx.FS, src, dstDir string) (string, error) {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := filepath.Join(dstDir, base)
	if !fs.Exists(candidate) {
		return candidate, nil
	}
	for i := 1; i <= MaxCollisionSuffix; i++ {
		candidate = filepath.Join(dstDir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if !fs.Exists(candidate) {
			return candidate, nil
		}
	}
	return "", ErrCollisionLimitExhausted
}

// copyThenDelete is the cross-device fallback. Only the copy step is
// wrapped in retry-go: it is a one-shot idempotent I/O operation with no
// per-attempt audit requirement, unlike the Uploader's own retry loop.
func copyThenDelete(ctx context.Context, fs fsx.FS, src, dst string) error {
	err := retry.Do(
		func() error {
			in, err := fs.Open(src)
			if err != nil {
				if os.IsNotExist(err) {
					return retry.Unrecoverable(ErrSourceVanished)
				}
				return err
			}
			defer in.Close()

			out, err := fs.Create(dst)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, in); err != nil {
				out.Close()
				fs.Remove(dst)
				return err
			}
			if err := out.Close(); err != nil {
				fs.Remove(dst)
				return err
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
	)
	if err != nil {
		if errors.Is(err, ErrSourceVanished) {
			return ErrSourceVanished
		}
		return fmt.Errorf("copy to destination: %w", err)
	}
	if err := fs.Remove(src); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}
