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
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_OpenAndReadRoundTrips(t *testing.T) {
	m := NewMemory()
	m.PutFile("/a/b.pcap", []byte("payload"), time.Now())

	r, err := m.Open("/a/b.pcap")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestMemory_ReadDirListsDirectChildrenOnly(t *testing.T) {
	m := NewMemory()
	m.PutFile("/a/b.pcap", nil, time.Now())
	m.PutFile("/a/nested/c.pcap", nil, time.Now())

	entries, err := m.ReadDir("/a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.pcap", entries[0].Name())
}

func TestMemory_RenameMovesFile(t *testing.T) {
	m := NewMemory()
	m.PutFile("/a/b.pcap", []byte("x"), time.Now())

	require.NoError(t, m.Rename("/a/b.pcap", "/a/c.pcap"))
	assert.False(t, m.Exists("/a/b.pcap"))
	assert.True(t, m.Exists("/a/c.pcap"))
}

func TestMemory_SameDeviceDefaultsTrueWhenUnset(t *testing.T) {
	m := NewMemory()
	same, err := m.SameDevice("/a/x", "/b/y")
	require.NoError(t, err)
	assert.True(t, same)
}

func TestMemory_SameDeviceFalseAcrossRoots(t *testing.T) {
	m := NewMemory()
	m.SetDevice("/a", 1)
	m.SetDevice("/b", 2)
	same, err := m.SameDevice("/a/x", "/b/y")
	require.NoError(t, err)
	assert.False(t, same)
}
