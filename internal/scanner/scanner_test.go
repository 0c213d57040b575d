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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/queue"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newTestScanner(fs fsx.FS, moveQ *queue.MoveQueue, clock *fakeClock) *Scanner {
	s := New(fs, moveQ, zap.NewNop().Sugar(), Config{
		SourceDir:          "/source",
		PCAPExtension:      "pcap",
		RestartDir:         "/restart",
		LostTimeout:        300 * time.Millisecond,
		StuckActiveTimeout: 900 * time.Millisecond,
	})
	s.clock = clock
	return s
}

func TestScanner_DetectsLostFile(t *testing.T) {
	fs := fsx.NewMemory()
	moveQ := queue.NewMoveQueue(10)
	clock := &fakeClock{now: time.Now()}
	fs.PutFile("/source/APP1-1.pcap", []byte("x"), clock.now.Add(-time.Second))

	s := newTestScanner(fs, moveQ, clock)
	require.NoError(t, s.RunCycle(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	path, ok := moveQ.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "/source/APP1-1.pcap", path)
}

func TestScanner_StuckActiveSignalsRestartOnce(t *testing.T) {
	fs := fsx.NewMemory()
	moveQ := queue.NewMoveQueue(10)
	clock := &fakeClock{now: time.Now()}
	s := newTestScanner(fs, moveQ, clock)

	fs.PutFile("/source/APP1-1.pcap", []byte("x"), clock.now)
	require.NoError(t, s.RunCycle(context.Background()))

	clock.now = clock.now.Add(1200 * time.Millisecond)
	fs.PutFile("/source/APP1-1.pcap", []byte("xy"), clock.now)
	require.NoError(t, s.RunCycle(context.Background()))

	assert.True(t, fs.Exists("/restart/APP1.restart"))

	// Re-running the same cycle without further growth makes the file
	// inactive, so it is no longer stuck active; the signaled set is replaced
	// by the current stuck set every cycle, so APP1 leaves it and would be
	// re-signaled if it became stuck again.
	require.NoError(t, s.RunCycle(context.Background()))
	assert.False(t, s.previouslySignaledStuckApps.Contains("APP1"))
}

func TestScanner_PrunesRemovedFiles(t *testing.T) {
	fs := fsx.NewMemory()
	moveQ := queue.NewMoveQueue(10)
	clock := &fakeClock{now: time.Now()}
	s := newTestScanner(fs, moveQ, clock)

	fs.PutFile("/source/APP1-1.pcap", []byte("x"), clock.now)
	require.NoError(t, s.RunCycle(context.Background()))
	_, tracked := s.records.Get("/source/APP1-1.pcap")
	require.True(t, tracked)

	fs.Remove("/source/APP1-1.pcap")
	require.NoError(t, s.RunCycle(context.Background()))
	_, stillTracked := s.records.Get("/source/APP1-1.pcap")
	assert.False(t, stillTracked)
}
