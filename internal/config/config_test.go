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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Directories: Directories{
			Source: "/source", CSV: "/csv", Worker: "/worker",
			Uploaded: "/uploaded", DeadLetter: "/dead_letter", CSVRestart: "/restart",
		},
		Files: Files{PCAPExtension: "pcap", CSVExtension: "csv"},
		Mover: Mover{DequeueTimeout: time.Second},
		Scanner: Scanner{
			ScanInterval: 30 * time.Second, LostTimeout: 300 * time.Second, StuckActiveTimeout: 900 * time.Second,
		},
		Tailer: Tailer{PollInterval: time.Second},
		Uploader: Uploader{
			RemoteURL: "https://collector.example/upload", RequestTimeout: 30 * time.Second,
			InitialBackoff: time.Second, MaxBackoff: 60 * time.Second, PollInterval: 10 * time.Second,
			HeartbeatInterval: 300 * time.Second,
		},
		Purger: Purger{PollInterval: time.Hour, TargetDiskUsagePercent: 0.8, TotalDiskCapacityBytes: 1 << 30},
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RejectsMissingDirectory(t *testing.T) {
	cfg := validConfig()
	cfg.Directories.Worker = ""
	err := cfg.Validate()
	assert.ErrorContains(t, err, "directories.worker")
}

func TestValidate_RejectsStuckTimeoutNotGreaterThanLost(t *testing.T) {
	cfg := validConfig()
	cfg.Scanner.StuckActiveTimeout = cfg.Scanner.LostTimeout
	err := cfg.Validate()
	assert.ErrorContains(t, err, "stuck_active_timeout_s must be greater than")
}

func TestValidate_RejectsBadURLScheme(t *testing.T) {
	cfg := validConfig()
	cfg.Uploader.RemoteURL = "ftp://collector.example"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "remote_host_url must start with")
}

func TestValidate_RejectsMaxBackoffBelowInitial(t *testing.T) {
	cfg := validConfig()
	cfg.Uploader.MaxBackoff = cfg.Uploader.InitialBackoff - time.Millisecond
	err := cfg.Validate()
	assert.ErrorContains(t, err, "max_backoff_s must be >=")
}

func TestValidate_RejectsOutOfRangeDiskPercent(t *testing.T) {
	cfg := validConfig()
	cfg.Purger.TargetDiskUsagePercent = 1.5
	err := cfg.Validate()
	assert.ErrorContains(t, err, "target_disk_usage_percent must be in")
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Directories.Source = ""
	cfg.Uploader.RemoteURL = ""
	err := cfg.Validate()
	assert.ErrorContains(t, err, "directories.source")
	assert.ErrorContains(t, err, "remote_host_url")
}
