// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Package dedup collapses duplicate event records to one canonical instance
// per duplicate group.
//
// Two events are duplicates when they share the full key tuple (event_type,
// product_id, price, user_id, user_session); the timestamp is NOT part of
// the key. Within each group the earliest event_time survives and every
// later observation is discarded. This is the intended policy even though it
// means a true repeat purchase sharing all five key fields collapses to one
// event: the source extracts overlap month boundaries, and an earlier
// observation of the same logical event is always the authoritative one.
package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/averal/mercatus/internal/database"
	"github.com/averal/mercatus/internal/logging"
)

// Deduplicator is the event deduplication stage.
type Deduplicator struct {
	db *database.DB
}

// NewDeduplicator creates a deduplicator writing to db.
func NewDeduplicator(db *database.DB) *Deduplicator {
	return &Deduplicator{db: db}
}

// Result reports the cardinality change of one dedup run.
type Result struct {
	InputRows  int64
	OutputRows int64
}

// Removed returns how many duplicate rows were discarded.
func (r Result) Removed() int64 {
	return r.InputRows - r.OutputRows
}

// Run partitions the events relation by the duplicate key, keeps the rank-1
// row per partition ordered by ascending event_time, and writes the
// survivors to the dedup relation. Output cardinality equals the number of
// distinct key partitions.
//
// Running against an already-deduplicated relation is a no-op: every
// partition has exactly one member, so every row survives.
func (d *Deduplicator) Run(ctx context.Context) (Result, error) {
	inputRows, err := d.db.CountRows(ctx, database.TableEvents)
	if err != nil {
		return Result{}, err
	}

	cols := strings.Join(database.EventColumnNames(), ", ")
	key := strings.Join(database.DuplicateKeyColumns, ", ")

	query := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS
		 WITH ranked_events AS (
			SELECT %s,
				ROW_NUMBER() OVER (
					PARTITION BY %s
					ORDER BY event_time
				) AS rn
			FROM %s
		 )
		 SELECT %s
		 FROM ranked_events
		 WHERE rn = 1
		 ORDER BY event_time`,
		database.TableEventsDedup, cols, key, database.TableEvents, cols)
	if _, err := d.db.Conn().ExecContext(ctx, query); err != nil {
		return Result{}, fmt.Errorf("failed to deduplicate events: %w", err)
	}

	outputRows, err := d.db.CountRows(ctx, database.TableEventsDedup)
	if err != nil {
		return Result{}, err
	}

	res := Result{InputRows: inputRows, OutputRows: outputRows}
	logging.Info().
		Int64("input_rows", res.InputRows).
		Int64("output_rows", res.OutputRows).
		Int64("removed", res.Removed()).
		Msg("Events deduplicated")
	return res, nil
}
