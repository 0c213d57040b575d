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

// Command pcapmover runs the file-ingestion agent: Tailer, Scanner, Mover,
// Uploader and Purger cooperating to watch a drop directory and ship
// completed PCAP captures to a remote endpoint. Grounded on pcap-cli's
// command registration shape and pcap-config/internal/cli/serve_command.go.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/GoogleCloudPlatform/pcapmover/internal/audit"
	"github.com/GoogleCloudPlatform/pcapmover/internal/config"
	"github.com/GoogleCloudPlatform/pcapmover/internal/fsx"
	"github.com/GoogleCloudPlatform/pcapmover/internal/logging"
	"github.com/GoogleCloudPlatform/pcapmover/internal/supervisor"
)

func main() {
	app := &cli.Command{
		Name:  "pcapmover",
		Usage: "ship completed PCAP captures to a remote collection endpoint",
		Commands: []*cli.Command{
			serveCommand(),
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the ingestion pipeline until terminated",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the configuration file", Required: true},
			&cli.StringFlag{Name: "log-level", Usage: "zap level name or bare integer, overrides the config file"},
			&cli.BoolFlag{Name: "dry-run", Usage: "validate configuration and directories, then exit without starting workers"},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"), nil)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON, OutputPaths: cfg.LogPaths})
	if err != nil {
		return fmt.Errorf("setup error: building logger: %w", err)
	}
	defer logger.Sync()

	realFS := fsx.Real{}
	for _, dir := range []string{
		cfg.Directories.Source, cfg.Directories.CSV, cfg.Directories.Worker,
		cfg.Directories.Uploaded, cfg.Directories.DeadLetter, cfg.Directories.CSVRestart,
	} {
		if err := realFS.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("setup error: precreating %s: %w", dir, err)
		}
	}

	if cmd.Bool("dry-run") {
		logger.Sugar().Infow("dry run: configuration and directories validated, exiting")
		return nil
	}

	auditSink, err := audit.New(cfg.AuditPaths)
	if err != nil {
		return fmt.Errorf("setup error: building audit sink: %w", err)
	}
	defer auditSink.Sync()

	sup, err := supervisor.New(cfg, logger, auditSink, realFS)
	if err != nil {
		return fmt.Errorf("setup error: building supervisor: %w", err)
	}

	if err := sup.Run(ctx); err != nil {
		logger.Sugar().Errorw("pcapmover: worker reported a fatal error", "error", err)
		return err
	}
	return nil
}
