// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Package ingest builds the canonical event store from the monthly source
// extracts. Each extract is loaded into its own staging table; the builder
// then unions all staging tables into the events relation. The union is a
// multiset union; deduplication is a separate, later stage.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/averal/mercatus/internal/database"
	"github.com/averal/mercatus/internal/logging"
)

// eventTimeFormat parses source timestamps like "2022-12-01 09:11:52 UTC".
const eventTimeFormat = "%Y-%m-%d %H:%M:%S UTC"

// Builder is the event store builder stage.
type Builder struct {
	db *database.DB

	// progressInterval drives the elapsed-time reporter during bulk loads;
	// 0 disables it.
	progressInterval time.Duration
}

// NewBuilder creates a builder writing to db.
func NewBuilder(db *database.DB, progressInterval time.Duration) *Builder {
	return &Builder{db: db, progressInterval: progressInterval}
}

// BatchResult describes one loaded source extract.
type BatchResult struct {
	File  string
	Table string
	Rows  int64
}

// Run loads every monthly extract under dir and unions the staging tables
// into the events relation. Any schema mismatch aborts the whole run before
// the union is attempted.
func (b *Builder) Run(ctx context.Context, dir string) ([]BatchResult, error) {
	files, err := listBatchFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no source extracts found in %s", dir)
	}

	// Validate every batch before loading any: a mismatch in the last file
	// must not leave a half-loaded staging set behind a fatal error.
	for _, f := range files {
		if err := validateBatchHeader(f); err != nil {
			return nil, err
		}
	}

	reporter := StartReporter("event store load", b.progressInterval)
	defer reporter.Stop()

	results := make([]BatchResult, 0, len(files))
	tables := make([]string, 0, len(files))
	for _, f := range files {
		res, err := b.loadBatch(ctx, f)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		tables = append(tables, res.Table)
	}

	if err := b.dropStaleStaging(ctx, tables); err != nil {
		return nil, err
	}
	if err := b.buildEventStore(ctx, tables); err != nil {
		return nil, err
	}
	return results, nil
}

// dropStaleStaging removes staging tables left behind by earlier runs whose
// source extract no longer exists. Without this, a removed extract would keep
// feeding phantom events into every later union.
func (b *Builder) dropStaleStaging(ctx context.Context, loaded []string) error {
	current := make(map[string]bool, len(loaded))
	for _, table := range loaded {
		current[table] = true
	}

	existing, err := b.db.StagingTables(ctx)
	if err != nil {
		return err
	}
	for _, table := range existing {
		if current[table] {
			continue
		}
		logging.Warn().Str("table", table).Msg("Dropping stale staging table with no source extract")
		if err := b.db.DropRelation(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

// listBatchFiles returns the CSV extracts under dir sorted by name, so load
// order (and therefore staging order) is deterministic per run.
func listBatchFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// stagingTableName derives the staging table name from the extract file
// name: data_2022_dec.csv -> raw_data_2022_dec.
func stagingTableName(path string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".csv")
	name := database.StagingPrefix + strings.ToLower(base)
	if !database.ValidIdentifier(name) {
		return "", fmt.Errorf("extract file name %q does not form a valid table name", filepath.Base(path))
	}
	return name, nil
}

// validateBatchHeader checks the extract's header row against the canonical
// event schema. A mismatch is a fatal configuration error.
func validateBatchHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open extract %s: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	expected := database.EventColumnNames()
	if !slices.Equal(header, expected) {
		return &database.SchemaMismatchError{
			Batch:    filepath.Base(path),
			Expected: expected,
			Actual:   header,
		}
	}
	return nil
}

// loadBatch loads one extract into its staging table, replacing any prior
// load of the same period.
func (b *Builder) loadBatch(ctx context.Context, path string) (BatchResult, error) {
	table, err := stagingTableName(path)
	if err != nil {
		return BatchResult{}, err
	}

	logging.Info().Str("file", filepath.Base(path)).Str("table", table).Msg("Loading extract")

	query := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS
		 SELECT %s FROM read_csv(?, header = true, columns = %s, timestampformat = '%s')`,
		table,
		strings.Join(database.EventColumnNames(), ", "),
		columnSpec(database.EventSchema),
		eventTimeFormat,
	)
	if _, err := b.db.Conn().ExecContext(ctx, query, path); err != nil {
		return BatchResult{}, fmt.Errorf("failed to load extract %s: %w", path, err)
	}

	rows, err := b.db.CountRows(ctx, table)
	if err != nil {
		return BatchResult{}, err
	}

	logging.Info().Str("table", table).Int64("rows", rows).Msg("Extract loaded")
	return BatchResult{File: filepath.Base(path), Table: table, Rows: rows}, nil
}

// buildEventStore unions this run's staging tables into the events relation.
// Only the tables just loaded participate, so the output equals the union of
// the given source batches and nothing else.
func (b *Builder) buildEventStore(ctx context.Context, staging []string) error {
	if len(staging) == 0 {
		return fmt.Errorf("no staging tables loaded, nothing to union")
	}

	cols := strings.Join(database.EventColumnNames(), ", ")
	selects := make([]string, len(staging))
	for i, table := range staging {
		selects[i] = fmt.Sprintf("SELECT %s FROM %s", cols, table)
	}

	query := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s",
		database.TableEvents, strings.Join(selects, " UNION ALL "))
	if _, err := b.db.Conn().ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to build event store: %w", err)
	}

	total, err := b.db.CountRows(ctx, database.TableEvents)
	if err != nil {
		return err
	}
	logging.Info().
		Int("batches", len(staging)).
		Int64("rows", total).
		Msg("Event store built")
	return nil
}

// columnSpec renders a schema as a DuckDB read_csv columns struct, e.g.
// {'event_time': 'TIMESTAMP', 'event_type': 'VARCHAR', ...}.
func columnSpec(schema []database.EventColumn) string {
	parts := make([]string, len(schema))
	for i, c := range schema {
		parts[i] = fmt.Sprintf("'%s': '%s'", c.Name, c.Type)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
