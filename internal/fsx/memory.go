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

package fsx

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory FS used by unit tests that don't need a real disk.
// It is not a general-purpose virtual filesystem: directories are implicit
// (any path prefix of a file is "a directory"), and device identity is
// tracked per top-level root so tests can exercise the cross-device copy
// fallback path deterministically.
type Memory struct {
	mu    sync.Mutex
	files map[string]*memFile
	// deviceOf maps a path prefix to a device id; Mover/Uploader call
	// SameDevice to decide between rename and copy-then-delete.
	deviceOf map[string]int
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty in-memory filesystem.
func NewMemory() *Memory {
	return &Memory{
		files:    make(map[string]*memFile),
		deviceOf: make(map[string]int),
	}
}

var _ FS = (*Memory)(nil)

// SetDevice assigns a device id to every path under root, for SameDevice tests.
func (m *Memory) SetDevice(root string, device int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceOf[root] = device
}

// PutFile seeds a file directly, bypassing Create, for test fixtures.
func (m *Memory) PutFile(path string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &memFile{data: append([]byte(nil), data...), modTime: modTime}
}

func (m *Memory) deviceFor(path string) int {
	best := -1
	bestLen := -1
	for root, dev := range m.deviceOf {
		if len(root) > bestLen && (path == root || len(path) > len(root) && path[:len(root)+1] == root+"/") {
			best = dev
			bestLen = len(root)
		}
	}
	return best
}

type memInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o644 }
func (i memInfo) ModTime() time.Time { return i.modTime }
func (i memInfo) IsDir() bool        { return i.isDir }
func (i memInfo) Sys() any           { return nil }

func (m *Memory) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type memWriter struct {
	m    *Memory
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.m.files[w.path] = &memFile{data: w.buf.Bytes(), modTime: time.Now()}
	return nil
}

func (m *Memory) Create(path string) (io.WriteCloser, error) {
	m.mu.Lock()
	if _, exists := m.files[path]; exists {
		m.mu.Unlock()
		return nil, fs.ErrExist
	}
	m.mu.Unlock()
	return &memWriter{m: m, path: path}, nil
}

func (m *Memory) OpenAppend(path string) (io.WriteCloser, error) {
	m.mu.Lock()
	existing := []byte(nil)
	if f, ok := m.files[path]; ok {
		existing = f.data
	}
	m.mu.Unlock()
	w := &memWriter{m: m, path: path}
	w.buf.Write(existing)
	return w, nil
}

func (m *Memory) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return memInfo{name: filepath.Base(path), size: int64(len(f.data)), modTime: f.modTime}, nil
}

func (m *Memory) Lstat(path string) (fs.FileInfo, error) { return m.Stat(path) }

func (m *Memory) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *Memory) IsDir(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		return false
	}
	prefix := path + "/"
	for p := range m.files {
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func (m *Memory) Resolve(path string) (string, error) { return filepath.Clean(path), nil }

func (m *Memory) Mkdir(path string, perm fs.FileMode) error { return nil }

func (m *Memory) Rename(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[src]
	if !ok {
		return &fs.PathError{Op: "rename", Path: src, Err: fs.ErrNotExist}
	}
	delete(m.files, src)
	m.files[dst] = f
	return nil
}

func (m *Memory) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	delete(m.files, path)
	return nil
}

func (m *Memory) ReadDir(dir string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := dir + "/"
	seen := map[string]bool{}
	var entries []fs.DirEntry
	for p, f := range m.files {
		if len(p) <= len(prefix) || p[:len(prefix)] != prefix {
			continue
		}
		rest := p[len(prefix):]
		if idxSlash(rest) >= 0 {
			continue // nested deeper; not a direct child
		}
		if seen[rest] {
			continue
		}
		seen[rest] = true
		entries = append(entries, memDirEntry{
			name: rest,
			info: memInfo{name: rest, size: int64(len(f.data)), modTime: f.modTime},
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func idxSlash(s string) int {
	for i, c := range s {
		if c == '/' {
			return i
		}
	}
	return -1
}

type memDirEntry struct {
	name string
	info fs.FileInfo
}

func (e memDirEntry) Name() string               { return e.name }
func (e memDirEntry) IsDir() bool                 { return false }
func (e memDirEntry) Type() fs.FileMode           { return 0 }
func (e memDirEntry) Info() (fs.FileInfo, error)  { return e.info, nil }

func (m *Memory) SameDevice(a, b string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	da, db := m.deviceFor(a), m.deviceFor(b)
	if da == -1 || db == -1 {
		return true, nil
	}
	return da == db, nil
}

// ErrNotRegular is returned by helpers that expect a plain file.
var ErrNotRegular = errors.New("not a regular file")
