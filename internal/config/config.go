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

// Package config loads and validates pcapmover's configuration: six
// directory paths, both file extensions, every worker's poll interval, the
// scanner's two timeouts, the uploader's retry/backoff/TLS parameters, and
// the purger's disk-usage ceiling. Loading goes through koanf (file
// provider plus CLI-flag overrides via posflag), matching
// pcap-config/internal/config's use of the same library for its own
// context-value config. Validation happens once, at startup, and reports
// every violation at once via errors.Join, per
// pcap-config/internal/config/context.go's error-composition style.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/json"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	sf "github.com/wissance/stringFormatter"
)

// Directories holds the six paths every worker shares a view of.
type Directories struct {
	Source      string
	CSV         string
	Worker      string
	Uploaded    string
	DeadLetter  string
	CSVRestart  string
}

// Files holds the two extensions (without leading dot) the core matches on.
type Files struct {
	PCAPExtension string
	CSVExtension  string
}

// Mover holds the Mover worker's tunables.
type Mover struct {
	DequeueTimeout time.Duration
}

// Scanner holds the Scanner worker's tunables.
type Scanner struct {
	ScanInterval      time.Duration
	LostTimeout       time.Duration
	StuckActiveTimeout time.Duration
}

// Tailer holds the Tailer worker's tunables.
type Tailer struct {
	PollInterval time.Duration
}

// Uploader holds the Uploader worker's tunables.
type Uploader struct {
	RemoteURL           string
	RequestTimeout      time.Duration
	VerifySSL           bool
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	PollInterval        time.Duration
	HeartbeatInterval   time.Duration
}

// Purger holds the Purger worker's tunables.
type Purger struct {
	PollInterval           time.Duration
	TargetDiskUsagePercent float64
	TotalDiskCapacityBytes int64
}

// Config is the fully validated, immutable configuration for one run.
type Config struct {
	Directories Directories
	Files       Files
	Mover       Mover
	Scanner     Scanner
	Tailer      Tailer
	Uploader    Uploader
	Purger      Purger

	LogLevel   string
	LogJSON    bool
	LogPaths   []string
	AuditPaths []string
}

// Load reads path (a JSON config file with one object per section, read
// through koanf's file provider and JSON parser) and merges in any matching
// CLI flag overrides, then validates the result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(kfile.Provider(path), json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %q: %w", path, err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("merge flag overrides: %w", err)
		}
	}

	cfg := &Config{
		Directories: Directories{
			Source:     k.String("directories.source"),
			CSV:        k.String("directories.csv"),
			Worker:     k.String("directories.worker"),
			Uploaded:   k.String("directories.uploaded"),
			DeadLetter: k.String("directories.dead_letter"),
			CSVRestart: k.String("directories.csv_restart"),
		},
		Files: Files{
			PCAPExtension: k.String("files.pcap_extension"),
			CSVExtension:  k.String("files.csv_extension"),
		},
		Mover: Mover{
			DequeueTimeout: floatSeconds(k, "mover.dequeue_timeout_s", 1),
		},
		Scanner: Scanner{
			ScanInterval:       floatSeconds(k, "scanner.scan_interval_s", 30),
			LostTimeout:        floatSeconds(k, "scanner.lost_timeout_s", 300),
			StuckActiveTimeout: floatSeconds(k, "scanner.stuck_active_timeout_s", 900),
		},
		Tailer: Tailer{
			PollInterval: floatSeconds(k, "tailer.poll_interval_s", 1),
		},
		Uploader: Uploader{
			RemoteURL:         k.String("uploader.remote_host_url"),
			RequestTimeout:    floatSeconds(k, "uploader.request_timeout_s", 30),
			VerifySSL:         k.Bool("uploader.verify_ssl"),
			InitialBackoff:    floatSeconds(k, "uploader.initial_backoff_s", 1),
			MaxBackoff:        floatSeconds(k, "uploader.max_backoff_s", 60),
			PollInterval:      floatSeconds(k, "uploader.poll_interval_s", 10),
			HeartbeatInterval: floatSeconds(k, "uploader.heartbeat_target_interval_s", 300),
		},
		Purger: Purger{
			PollInterval:           floatSeconds(k, "purger.poll_interval_s", 3600),
			TargetDiskUsagePercent: k.Float64("purger.target_disk_usage_percent"),
			TotalDiskCapacityBytes: k.Int64("purger.total_disk_capacity_bytes"),
		},
		LogLevel:   k.String("logging.level"),
		LogJSON:    k.Bool("logging.json"),
		LogPaths:   stringsOrDefault(k.Strings("logging.output_paths"), []string{"stdout"}),
		AuditPaths: stringsOrDefault(k.Strings("logging.audit_paths"), []string{"stdout"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func floatSeconds(k *koanf.Koanf, key string, def float64) time.Duration {
	if !k.Exists(key) {
		return time.Duration(def * float64(time.Second))
	}
	return time.Duration(k.Float64(key) * float64(time.Second))
}

func stringsOrDefault(v []string, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// Validate checks every invariant named in spec.md section 6, joining every
// violation found rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	requireDir := func(name, value string) {
		if value == "" {
			errs = append(errs, errors.New(sf.Format("directories.{0} is required", name)))
		}
	}
	requireDir("source", c.Directories.Source)
	requireDir("csv", c.Directories.CSV)
	requireDir("worker", c.Directories.Worker)
	requireDir("uploaded", c.Directories.Uploaded)
	requireDir("dead_letter", c.Directories.DeadLetter)
	requireDir("csv_restart", c.Directories.CSVRestart)

	if c.Files.PCAPExtension == "" {
		errs = append(errs, errors.New("files.pcap_extension is required"))
	} else if c.Files.PCAPExtension[0] == '.' {
		errs = append(errs, errors.New("files.pcap_extension must not have a leading dot"))
	}
	if c.Files.CSVExtension == "" {
		errs = append(errs, errors.New("files.csv_extension is required"))
	} else if c.Files.CSVExtension[0] == '.' {
		errs = append(errs, errors.New("files.csv_extension must not have a leading dot"))
	}

	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, errors.New(sf.Format("{0} must be > 0", name)))
		}
	}
	positive("mover.dequeue_timeout_s", c.Mover.DequeueTimeout)
	positive("scanner.scan_interval_s", c.Scanner.ScanInterval)
	positive("scanner.lost_timeout_s", c.Scanner.LostTimeout)
	positive("scanner.stuck_active_timeout_s", c.Scanner.StuckActiveTimeout)
	positive("tailer.poll_interval_s", c.Tailer.PollInterval)
	positive("uploader.request_timeout_s", c.Uploader.RequestTimeout)
	positive("uploader.initial_backoff_s", c.Uploader.InitialBackoff)
	positive("uploader.max_backoff_s", c.Uploader.MaxBackoff)
	positive("uploader.poll_interval_s", c.Uploader.PollInterval)
	positive("uploader.heartbeat_target_interval_s", c.Uploader.HeartbeatInterval)
	positive("purger.poll_interval_s", c.Purger.PollInterval)

	if c.Scanner.StuckActiveTimeout <= c.Scanner.LostTimeout {
		errs = append(errs, errors.New("scanner.stuck_active_timeout_s must be greater than scanner.lost_timeout_s"))
	}

	if c.Uploader.RemoteURL == "" {
		errs = append(errs, errors.New("uploader.remote_host_url is required"))
	} else if !hasHTTPScheme(c.Uploader.RemoteURL) {
		errs = append(errs, errors.New("uploader.remote_host_url must start with http:// or https://"))
	}
	if c.Uploader.MaxBackoff < c.Uploader.InitialBackoff {
		errs = append(errs, errors.New("uploader.max_backoff_s must be >= uploader.initial_backoff_s"))
	}

	if c.Purger.TargetDiskUsagePercent <= 0 || c.Purger.TargetDiskUsagePercent > 1 {
		errs = append(errs, errors.New("purger.target_disk_usage_percent must be in (0, 1]"))
	}
	if c.Purger.TotalDiskCapacityBytes <= 0 {
		errs = append(errs, errors.New("purger.total_disk_capacity_bytes must be > 0"))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func hasHTTPScheme(url string) bool {
	return len(url) >= 7 && url[:7] == "http://" || len(url) >= 8 && url[:8] == "https://"
}
