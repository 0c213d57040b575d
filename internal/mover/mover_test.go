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

package mover

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
)

func TestSafeMove_SameDevice_Renames(t *testing.T) {
	fs := fsx.NewMemory()
	fs.PutFile("/source/APP1-1.pcap", []byte("hello"), time.Now())

	dst, err := SafeMove(context.Background(), fs, "/source/APP1-1.pcap", "/worker")
	require.NoError(t, err)
	assert.Equal(t, "/worker/APP1-1.pcap", dst)
	assert.False(t, fs.Exists("/source/APP1-1.pcap"))
	assert.True(t, fs.Exists(dst))
}

func TestSafeMove_CollisionGetsSuffixed(t *testing.T) {
	fs := fsx.NewMemory()
	fs.PutFile("/source/APP1-1.pcap", []byte("new"), time.Now())
	fs.PutFile("/worker/APP1-1.pcap", []byte("existing"), time.Now())

	dst, err := SafeMove(context.Background(), fs, "/source/APP1-1.pcap", "/worker")
	require.NoError(t, err)
	assert.Equal(t, "/worker/APP1-1-1.pcap", dst)
}

func TestSafeMove_CrossDeviceCopiesThenDeletes(t *testing.T) {
	fs := fsx.NewMemory()
	fs.SetDevice("/source", 1)
	fs.SetDevice("/worker", 2)
	fs.PutFile("/source/APP1-1.pcap", []byte("payload"), time.Now())

	dst, err := SafeMove(context.Background(), fs, "/source/APP1-1.pcap", "/worker")
	require.NoError(t, err)
	assert.False(t, fs.Exists("/source/APP1-1.pcap"))
	assert.True(t, fs.Exists(dst))
}

func TestSafeMove_SourceVanished(t *testing.T) {
	fs := fsx.NewMemory()
	_, err := SafeMove(context.Background(), fs, "/source/gone.pcap", "/worker")
	assert.ErrorIs(t, err, ErrSourceVanished)
}

func TestSafeMove_CollisionLimitExhausted(t *testing.T) {
	fs := fsx.NewMemory()
	fs.PutFile("/source/a.pcap", []byte("x"), time.Now())
	fs.PutFile("/worker/a.pcap", []byte("x"), time.Now())
	for i := 1; i <= MaxCollisionSuffix; i++ {
		fs.PutFile(fsuffix("/worker/a", i, ".pcap"), []byte("x"), time.Now())
	}

	_, err := SafeMove(context.Background(), fs, "/source/a.pcap", "/worker")
	assert.ErrorIs(t, err, ErrCollisionLimitExhausted)
}

func fsuffix(stem string, n int, ext string) string {
	return stem + "-" + strconv.Itoa(n) + ext
}
