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

// Package fsx defines the filesystem capability abstraction every worker
// depends on instead of calling os.* directly, so tests can swap in an
// in-memory implementation without touching a real disk.
package fsx

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FS is the set of filesystem operations the core workers need. Real is the
// only non-test implementation; Memory backs unit tests.
type FS interface {
	Open(path string) (io.ReadCloser, error)
	Create(path string) (io.WriteCloser, error)
	OpenAppend(path string) (io.WriteCloser, error)
	Stat(path string) (fs.FileInfo, error)
	Lstat(path string) (fs.FileInfo, error)
	Exists(path string) bool
	IsDir(path string) bool
	Resolve(path string) (string, error)
	Mkdir(path string, perm os.FileMode) error
	Rename(src, dst string) error
	Remove(path string) error
	ReadDir(path string) ([]fs.DirEntry, error)
	SameDevice(a, b string) (bool, error)
}

// Real implements FS on top of the standard library.
type Real struct{}

var _ FS = Real{}

func (Real) Open(path string) (io.ReadCloser, error) { return os.Open(path) }

func (Real) Create(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

func (Real) OpenAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}

func (Real) Stat(path string) (fs.FileInfo, error)  { return os.Stat(path) }
func (Real) Lstat(path string) (fs.FileInfo, error) { return os.Lstat(path) }

func (Real) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (Real) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (Real) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func (Real) Mkdir(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (Real) Rename(src, dst string) error { return os.Rename(src, dst) }

func (Real) Remove(path string) error { return os.Remove(path) }

func (Real) ReadDir(path string) ([]fs.DirEntry, error) { return os.ReadDir(path) }

// SameDevice reports whether a and b's parent directories reside on the same
// filesystem device, deciding whether Mover/Uploader can use a plain rename
// or must fall back to copy-then-delete.
func (Real) SameDevice(a, b string) (bool, error) {
	infoA, err := os.Stat(filepath.Dir(a))
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(filepath.Dir(b))
	if err != nil {
		return false, err
	}
	return sameDevice(infoA, infoB), nil
}
