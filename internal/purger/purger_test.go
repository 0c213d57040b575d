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

package purger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
)

// S5: uploaded is deleted before worker, oldest first, until the target is
// met.
func TestPurger_S5_DeletesFromUploadedBeforeWorker(t *testing.T) {
	fs := fsx.NewMemory()
	now := time.Now()
	fs.PutFile("/worker/A.pcap", make([]byte, 10), now)
	fs.PutFile("/uploaded/B.pcap", make([]byte, 1000), now.Add(time.Second))

	p, err := New(fs, zap.NewNop().Sugar(), Config{
		WorkerDir:              "/worker",
		UploadedDir:            "/uploaded",
		PCAPExtension:          "pcap",
		TargetDiskUsagePercent: 0.25,
		TotalDiskCapacityBytes: 2000,
	})
	require.NoError(t, err)
	defer p.Close()

	p.RunCycle()

	assert.False(t, fs.Exists("/uploaded/B.pcap"))
	assert.True(t, fs.Exists("/worker/A.pcap"))
}

func TestPurger_WithinTargetDeletesNothing(t *testing.T) {
	fs := fsx.NewMemory()
	fs.PutFile("/worker/A.pcap", make([]byte, 10), time.Now())

	p, err := New(fs, zap.NewNop().Sugar(), Config{
		WorkerDir:              "/worker",
		UploadedDir:            "/uploaded",
		PCAPExtension:          "pcap",
		TargetDiskUsagePercent: 1.0,
		TotalDiskCapacityBytes: 1000,
	})
	require.NoError(t, err)
	defer p.Close()

	p.RunCycle()

	assert.True(t, fs.Exists("/worker/A.pcap"))
}
