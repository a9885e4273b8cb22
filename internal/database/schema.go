// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package database

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Relation names used by the pipeline. Stages communicate exclusively
// through these persisted relations; no in-memory state crosses a stage
// boundary.
const (
	// TableEvents is the active canonical event relation. The builder
	// creates it as the multiset union of the monthly staging tables; after
	// fusion it holds the enriched (deduplicated + catalog-joined) events.
	TableEvents = "events"

	// TableEventsBackup holds the pre-fusion event relation after the
	// promote swap, kept for manual recovery.
	TableEventsBackup = "events_backup"

	// TableEventsDedup is the deduplicated intermediate produced by the
	// deduplicator and consumed (then dropped) by fusion.
	TableEventsDedup = "events_dedup"

	// TableEventsFused is the fusion staging relation, promoted to
	// TableEvents by the atomic swap.
	TableEventsFused = "events_fused"

	// TableCatalogRaw holds raw catalog rows with their load-order key.
	TableCatalogRaw = "catalog_raw"

	// TableCatalog is the resolved catalog: one row per product_id.
	TableCatalog = "catalog"

	// TableCustomerProfiles holds the per-customer RFM profile and segment.
	TableCustomerProfiles = "customer_profiles"

	// TableClusterRuns and TableClusterAssignments hold the per-run
	// clustering parameters, diagnostics, and labels.
	TableClusterRuns        = "cluster_runs"
	TableClusterAssignments = "cluster_assignments"

	// StagingPrefix prefixes the per-period staging tables built from the
	// monthly extracts, e.g. raw_data_2022_dec.
	StagingPrefix = "raw_"
)

// EventColumn describes one column of the canonical event schema.
type EventColumn struct {
	Name string
	Type string // DuckDB type
}

// EventSchema is the canonical event column set, in source order. Every
// monthly extract must present exactly these columns; a mismatch is a fatal
// configuration error (upstream data drift), never retried.
var EventSchema = []EventColumn{
	{Name: "event_time", Type: "TIMESTAMP"},
	{Name: "event_type", Type: "VARCHAR"},
	{Name: "product_id", Type: "BIGINT"},
	{Name: "price", Type: "DOUBLE"},
	{Name: "user_id", Type: "BIGINT"},
	{Name: "user_session", Type: "VARCHAR"},
}

// CatalogSchema is the raw catalog column set, in source order.
var CatalogSchema = []EventColumn{
	{Name: "product_id", Type: "BIGINT"},
	{Name: "category_id", Type: "BIGINT"},
	{Name: "category_code", Type: "VARCHAR"},
	{Name: "brand", Type: "VARCHAR"},
}

// EventColumnNames returns the canonical event column names in order.
func EventColumnNames() []string {
	names := make([]string, len(EventSchema))
	for i, c := range EventSchema {
		names[i] = c.Name
	}
	return names
}

// DuplicateKeyColumns is the natural duplicate-detection key: two events
// sharing these five values are the same logical event regardless of
// timestamp.
var DuplicateKeyColumns = []string{"event_type", "product_id", "price", "user_id", "user_session"}

// createTables creates the durable output relations. The event and catalog
// relations are created by their stages with CREATE OR REPLACE so each stage
// stays independently re-runnable.
func (db *DB) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customer_profiles (
			user_id BIGINT NOT NULL,
			first_event_time TIMESTAMP NOT NULL,
			last_event_time TIMESTAMP NOT NULL,
			purchase_count BIGINT NOT NULL,
			total_events BIGINT NOT NULL,
			avg_purchase_price DOUBLE NOT NULL,
			total_spent DOUBLE NOT NULL,
			days_since_last_event BIGINT NOT NULL,
			customer_lifetime_days BIGINT NOT NULL,
			purchase_ratio DOUBLE NOT NULL,
			customer_segment VARCHAR NOT NULL,
			reference_time TIMESTAMP NOT NULL,
			policy VARCHAR NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cluster_runs (
			run_id VARCHAR PRIMARY KEY,
			k INTEGER NOT NULL,
			seed BIGINT NOT NULL,
			features VARCHAR NOT NULL,
			inertia_curve VARCHAR NOT NULL,
			centroids VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cluster_assignments (
			run_id VARCHAR NOT NULL,
			user_id BIGINT NOT NULL,
			cluster INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// identifierPattern restricts relation names built from file names.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate as a relation
// identifier. Table names cannot be bound as query parameters, so anything
// derived from external input goes through this check first.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// RelationExists reports whether a table with the given name exists.
func (db *DB) RelationExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check relation %s: %w", name, err)
	}
	return count > 0, nil
}

// CountRows returns the row count of the named relation.
func (db *DB) CountRows(ctx context.Context, name string) (int64, error) {
	if !ValidIdentifier(name) {
		return 0, fmt.Errorf("invalid relation name %q", name)
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", name, err)
	}
	return count, nil
}

// DropRelation drops the named relation if it exists.
func (db *DB) DropRelation(ctx context.Context, name string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("invalid relation name %q", name)
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("failed to drop relation %s: %w", name, err)
	}
	return nil
}

// StagingTables lists the per-period staging tables currently present,
// sorted by name so downstream unions are deterministic.
func (db *DB) StagingTables(ctx context.Context) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_name LIKE ? ORDER BY table_name`, StagingPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list staging tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan staging table name: %w", err)
		}
		// LIKE treats '_' as a single-character wildcard; re-check literally.
		if strings.HasPrefix(name, StagingPrefix) {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}
