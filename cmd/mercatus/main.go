// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Command mercatus runs the warehouse pipeline end to end: load the monthly
// extracts, resolve the catalog, deduplicate, fuse, segment, cluster.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/averal/mercatus/internal/config"
	"github.com/averal/mercatus/internal/logging"
	"github.com/averal/mercatus/internal/pipeline"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mercatus %s (%s)\n", version, commit)
		return
	}

	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Pipeline failed")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("database", cfg.Database.Path).
		Str("events_dir", cfg.Sources.EventsDir).
		Str("policy", cfg.Segmentation.Policy).
		Msg("Starting pipeline")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return pipeline.New(cfg).Run(ctx)
}
