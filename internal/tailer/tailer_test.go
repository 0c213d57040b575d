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

package tailer

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

func TestParseLine_Valid(t *testing.T) {
	hash := ""
	for i := 0; i < 64; i++ {
		hash += "a"
	}
	parsed, err := ParseLine("1678886400,/srv/data/fileA.dat," + hash)
	require.NoError(t, err)
	assert.Equal(t, int64(1678886400), parsed.Timestamp)
	assert.Equal(t, "/srv/data/fileA.dat", parsed.FilePath)
	assert.Equal(t, hash, parsed.SHA256)
}

func TestParseLine_RejectsShortHash(t *testing.T) {
	_, err := ParseLine("1,/a,abcdef")
	assert.Error(t, err)
}

func TestParseLine_RejectsNonNumericTimestamp(t *testing.T) {
	hash := ""
	for i := 0; i < 64; i++ {
		hash += "f"
	}
	_, err := ParseLine("abc,/a," + hash)
	assert.Error(t, err)
}

func hash64() string {
	h := ""
	for i := 0; i < 64; i++ {
		h += "a"
	}
	return h
}

func TestConsumer_SplitLineAcrossTwoModifies(t *testing.T) {
	fs := fsx.NewMemory()
	moveQ := queue.NewMoveQueue(10)
	logger := zap.NewNop().Sugar()
	c := NewConsumer(fs, moveQ, logger, "/csv", "csv")

	fs.PutFile("/csv/manifest.csv", []byte(""), time.Now())
	c.handleCreated("/csv/manifest.csv")

	line := "100,/src/a.pcap," + hash64()
	fs.PutFile("/csv/manifest.csv", []byte(line[:10]), time.Now())
	c.handleModified(context.Background(), "/csv/manifest.csv")

	fs.PutFile("/csv/manifest.csv", []byte(line+"\n"), time.Now())
	c.handleModified(context.Background(), "/csv/manifest.csv")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	path, ok := moveQ.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "/src/a.pcap", path)
}

func TestConsumer_TruncationResetsPosition(t *testing.T) {
	fs := fsx.NewMemory()
	moveQ := queue.NewMoveQueue(10)
	logger := zap.NewNop().Sugar()
	c := NewConsumer(fs, moveQ, logger, "/csv", "csv")

	fs.PutFile("/csv/manifest.csv", []byte("0123456789"), time.Now())
	c.handleCreated("/csv/manifest.csv")
	require.Equal(t, int64(10), c.state["/csv/manifest.csv"].position)

	fs.PutFile("/csv/manifest.csv", []byte("01234"), time.Now())
	c.handleModified(context.Background(), "/csv/manifest.csv")

	assert.Equal(t, int64(5), c.state["/csv/manifest.csv"].position)
	assert.Empty(t, c.state["/csv/manifest.csv"].buffer)
}
