// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Package fusion joins the deduplicated events with the resolved catalog and
// promotes the result to be the active event relation.
//
// The join is an inner join on product_id: events for products with no
// catalog entry are dropped. That is a deliberate, lossy policy: an
// unenriched event cannot feed category- or brand-level reporting, and the
// pre-fusion relation survives as the backup for anyone who needs the
// dropped rows.
//
// The promote is all-or-nothing: a single transaction renames the active
// relation to its backup name and the fused relation into its place. If any
// step fails the transaction rolls back and the prior relation remains
// authoritative; a crash mid-swap cannot leave both relations half-renamed.
package fusion

import (
	"context"
	"fmt"
	"strings"

	"github.com/averal/mercatus/internal/database"
	"github.com/averal/mercatus/internal/logging"
)

// Engine is the fusion stage.
type Engine struct {
	db *database.DB
}

// NewEngine creates a fusion engine writing to db.
func NewEngine(db *database.DB) *Engine {
	return &Engine{db: db}
}

// Result reports the outcome of one fusion run.
type Result struct {
	DedupRows int64 // rows in the deduplicated input
	FusedRows int64 // rows surviving the catalog join (always <= DedupRows)
}

// Dropped returns how many events were lost to the inner join.
func (r Result) Dropped() int64 {
	return r.DedupRows - r.FusedRows
}

// Run builds the fused relation and promotes it. On any failure the prior
// events relation stays active.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	res, err := e.fuse(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := e.Promote(ctx); err != nil {
		return Result{}, err
	}

	logging.Info().
		Int64("dedup_rows", res.DedupRows).
		Int64("fused_rows", res.FusedRows).
		Int64("dropped", res.Dropped()).
		Msg("Fusion complete, fused relation promoted")
	return res, nil
}

// fuse builds the fused staging relation from the deduplicated events and
// the resolved catalog.
func (e *Engine) fuse(ctx context.Context) (Result, error) {
	dedupRows, err := e.db.CountRows(ctx, database.TableEventsDedup)
	if err != nil {
		return Result{}, err
	}

	eventCols := make([]string, len(database.EventColumnNames()))
	for i, c := range database.EventColumnNames() {
		eventCols[i] = "e." + c
	}

	query := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS
		 SELECT
			%s,
			c.category_id,
			c.category_code,
			c.brand
		 FROM %s e
		 JOIN %s c ON e.product_id = c.product_id`,
		database.TableEventsFused,
		strings.Join(eventCols, ",\n\t\t\t"),
		database.TableEventsDedup,
		database.TableCatalog)
	if _, err := e.db.Conn().ExecContext(ctx, query); err != nil {
		return Result{}, fmt.Errorf("failed to fuse events with catalog: %w", err)
	}

	fusedRows, err := e.db.CountRows(ctx, database.TableEventsFused)
	if err != nil {
		return Result{}, err
	}
	return Result{DedupRows: dedupRows, FusedRows: fusedRows}, nil
}

// Promote atomically replaces the active event relation with the fused one,
// keeping the prior relation under the backup name. The previous backup (if
// any) is discarded first; the dedup intermediate is dropped in the same
// transaction since its content now lives in the promoted relation.
//
// Exported separately from Run so failure-injection tests can exercise the
// swap in isolation.
func (e *Engine) Promote(ctx context.Context) error {
	tx, err := e.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return &database.SwapFailureError{Err: fmt.Errorf("begin promote transaction: %w", err)}
	}

	steps := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", database.TableEventsBackup),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", database.TableEvents, database.TableEventsBackup),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", database.TableEventsFused, database.TableEvents),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", database.TableEventsDedup),
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).Msg("Rollback of promote transaction failed")
			}
			return &database.SwapFailureError{Err: fmt.Errorf("%s: %w", step, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &database.SwapFailureError{Err: fmt.Errorf("commit promote transaction: %w", err)}
	}
	return nil
}
