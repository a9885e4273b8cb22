// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Package pipeline orchestrates the warehouse stages in their fixed order:
// build, catalog, dedup, fusion, segmentation, clustering.
//
// Stages communicate only through persisted relations, so every stage is a
// clean retry boundary: a transient store error reruns the whole stage
// against a fresh handle, never resumes one mid-flight. Fatal errors
// (schema mismatch, swap failure) abort the run immediately.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/averal/mercatus/internal/catalog"
	"github.com/averal/mercatus/internal/cluster"
	"github.com/averal/mercatus/internal/config"
	"github.com/averal/mercatus/internal/database"
	"github.com/averal/mercatus/internal/dedup"
	"github.com/averal/mercatus/internal/fusion"
	"github.com/averal/mercatus/internal/ingest"
	"github.com/averal/mercatus/internal/logging"
	"github.com/averal/mercatus/internal/segmentation"
)

// Runner executes the full pipeline described by cfg.
type Runner struct {
	cfg *config.Config
}

// New creates a pipeline runner.
func New(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg}
}

// stage is one retryable unit of pipeline work.
type stage struct {
	name string
	run  func(ctx context.Context, db *database.DB) error
}

// Run executes every stage in order. The first stage failure aborts the
// remaining stages; nothing downstream runs against inputs its predecessor
// did not finish.
func (r *Runner) Run(ctx context.Context) error {
	stages := []stage{
		{name: "build_event_store", run: r.buildEventStore},
		{name: "resolve_catalog", run: r.resolveCatalog},
		{name: "deduplicate_events", run: r.deduplicateEvents},
		{name: "fuse_events", run: r.fuseEvents},
		{name: "segment_customers", run: r.segmentCustomers},
		{name: "analyze_clusters", run: r.analyzeClusters},
	}

	started := time.Now()
	for _, s := range stages {
		if err := r.runStage(ctx, s); err != nil {
			return fmt.Errorf("stage %s: %w", s.name, err)
		}
	}

	logging.Info().
		Int("stages", len(stages)).
		Dur("elapsed", time.Since(started)).
		Msg("Pipeline complete")
	return nil
}

// runStage executes one stage, retrying transient store errors at the stage
// boundary. Each attempt opens its own store handle so a retry never
// inherits a poisoned connection.
func (r *Runner) runStage(ctx context.Context, s stage) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.Pipeline.RetryAttempts; attempt++ {
		if attempt > 0 {
			logging.Warn().
				Str("stage", s.name).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Retrying stage after transient store error")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.Pipeline.RetryDelay):
			}
		}

		started := time.Now()
		err := r.withStore(ctx, s.run)
		if err == nil {
			logging.Info().
				Str("stage", s.name).
				Dur("elapsed", time.Since(started)).
				Msg("Stage complete")
			return nil
		}
		if !database.IsTransient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}

// withStore opens the store for one stage attempt and releases it on every
// exit path.
func (r *Runner) withStore(ctx context.Context, fn func(context.Context, *database.DB) error) error {
	// Open failures classify themselves: lock contention matches the
	// transient markers and retries, a bad path fails the run outright.
	db, err := database.New(&r.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close store after stage")
		}
	}()
	return fn(ctx, db)
}

func (r *Runner) buildEventStore(ctx context.Context, db *database.DB) error {
	_, err := ingest.NewBuilder(db, r.cfg.Pipeline.ProgressInterval).Run(ctx, r.cfg.Sources.EventsDir)
	return err
}

func (r *Runner) resolveCatalog(ctx context.Context, db *database.DB) error {
	_, _, err := catalog.NewResolver(db).Run(ctx, r.cfg.Sources.CatalogPath)
	return err
}

func (r *Runner) deduplicateEvents(ctx context.Context, db *database.DB) error {
	_, err := dedup.NewDeduplicator(db).Run(ctx)
	return err
}

func (r *Runner) fuseEvents(ctx context.Context, db *database.DB) error {
	_, err := fusion.NewEngine(db).Run(ctx)
	return err
}

func (r *Runner) segmentCustomers(ctx context.Context, db *database.DB) error {
	policy, err := segmentation.PolicyByName(r.cfg.Segmentation.Policy)
	if err != nil {
		return err
	}
	pinned, _ := r.cfg.Segmentation.PinnedReferenceTime()
	_, err = segmentation.NewEngine(db, policy, pinned).Run(ctx)
	return err
}

func (r *Runner) analyzeClusters(ctx context.Context, db *database.DB) error {
	_, err := cluster.NewAnalyzer(db, r.cfg.Cluster).Run(ctx)
	return err
}
