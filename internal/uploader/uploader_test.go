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

package uploader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/audit"
	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/httpx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/shutdown"
)

func newTestUploader(t *testing.T, fs fsx.FS, client httpx.Client) *Uploader {
	t.Helper()
	auditSink, err := audit.New([]string{"stdout"})
	require.NoError(t, err)
	return New(fs, client, auditSink, zap.NewNop().Sugar(), Config{
		WorkerDir:      "/worker",
		UploadedDir:    "/uploaded",
		DeadLetterDir:  "/dead_letter",
		PCAPExtension:  "pcap",
		RemoteURL:      "https://collector.example/upload",
		RequestTimeout: time.Second,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
		PollInterval:   50 * time.Millisecond,
		HeartbeatEvery: 500 * time.Millisecond,
	})
}

// S1: a single successful upload moves the file to uploaded after exactly
// one POST carrying the file's basename as x-filename.
func TestUploader_S1_SuccessMovesToUploaded(t *testing.T) {
	fs := fsx.NewMemory()
	fs.PutFile("/worker/APP1-ts1.pcap", []byte("0123456789abd"), time.Now())
	client := httpx.NewFakeClient(httpx.ScriptedStep{StatusCode: 200})
	u := newTestUploader(t, fs, client)
	sig := shutdown.New(context.Background())

	u.RunCycle(context.Background(), sig)

	assert.False(t, fs.Exists("/worker/APP1-ts1.pcap"))
	assert.True(t, fs.Exists("/uploaded/APP1-ts1.pcap"))
	require.Len(t, client.Calls(), 1)
	assert.Equal(t, "APP1-ts1.pcap", client.Calls()[0].Headers["x-filename"])
}

// S4: two 503s then a 200 means exactly three POSTs and a successful
// disposition to uploaded.
func TestUploader_S4_RetriesThenSucceeds(t *testing.T) {
	fs := fsx.NewMemory()
	fs.PutFile("/worker/retry_then_success_01.pcap", []byte("data"), time.Now())
	client := httpx.NewFakeClient(
		httpx.ScriptedStep{StatusCode: 503},
		httpx.ScriptedStep{StatusCode: 503},
		httpx.ScriptedStep{StatusCode: 200},
	)
	u := newTestUploader(t, fs, client)
	sig := shutdown.New(context.Background())

	u.RunCycle(context.Background(), sig)

	assert.Len(t, client.Calls(), 3)
	assert.True(t, fs.Exists("/uploaded/retry_then_success_01.pcap"))
}

// S6: a single 400 is a terminal failure; the file moves to dead_letter
// after exactly one POST.
func TestUploader_S6_TerminalFailureGoesToDeadLetter(t *testing.T) {
	fs := fsx.NewMemory()
	fs.PutFile("/worker/bad.pcap", []byte("data"), time.Now())
	client := httpx.NewFakeClient(httpx.ScriptedStep{StatusCode: 400})
	u := newTestUploader(t, fs, client)
	sig := shutdown.New(context.Background())

	u.RunCycle(context.Background(), sig)

	assert.Len(t, client.Calls(), 1)
	assert.True(t, fs.Exists("/dead_letter/bad.pcap"))
	assert.False(t, fs.Exists("/worker/bad.pcap"))
}

func TestUploader_VanishedFileIsSkipped(t *testing.T) {
	fs := fsx.NewMemory()
	client := httpx.NewFakeClient(httpx.ScriptedStep{StatusCode: 200})
	u := newTestUploader(t, fs, client)
	sig := shutdown.New(context.Background())

	u.send(context.Background(), sig, "/worker/gone.pcap")

	assert.Empty(t, client.Calls())
}

func TestUploader_ZeroByteFileUploads(t *testing.T) {
	fs := fsx.NewMemory()
	fs.PutFile("/worker/empty.pcap", []byte{}, time.Now())
	client := httpx.NewFakeClient(httpx.ScriptedStep{StatusCode: 200})
	u := newTestUploader(t, fs, client)
	sig := shutdown.New(context.Background())

	u.RunCycle(context.Background(), sig)

	assert.True(t, fs.Exists("/uploaded/empty.pcap"))
}
