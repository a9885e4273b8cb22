// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averal/mercatus/internal/config"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{Path: ":memory:", PreserveInsertionOrder: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewInitializesSchema(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Ping(ctx))

	for _, table := range []string{TableCustomerProfiles, TableClusterRuns, TableClusterAssignments} {
		exists, err := db.RelationExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, exists, "expected %s to exist after initialization", table)
	}

	// Stage-owned relations are created by their stages, not at startup.
	for _, table := range []string{TableEvents, TableCatalog, TableEventsDedup} {
		exists, err := db.RelationExists(ctx, table)
		require.NoError(t, err)
		assert.False(t, exists, "expected %s to not exist after initialization", table)
	}
}

func TestNewCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store", "test.duckdb")

	db, err := New(&config.DatabaseConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"events", true},
		{"raw_data_2022_dec", true},
		{"_private", true},
		{"", false},
		{"2022_data", false},
		{"raw-data", false},
		{"events; DROP TABLE events", false},
		{"Events", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidIdentifier(tt.name), "identifier %q", tt.name)
	}
}

func TestCountRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Conn().ExecContext(ctx, `CREATE TABLE sample AS SELECT * FROM range(7)`)
	require.NoError(t, err)

	count, err := db.CountRows(ctx, "sample")
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	_, err = db.CountRows(ctx, "no such table")
	assert.Error(t, err)
}

func TestDropRelation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Conn().ExecContext(ctx, `CREATE TABLE doomed (id BIGINT)`)
	require.NoError(t, err)

	require.NoError(t, db.DropRelation(ctx, "doomed"))

	exists, err := db.RelationExists(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, exists)

	// Dropping an absent relation is a no-op.
	require.NoError(t, db.DropRelation(ctx, "doomed"))
}

func TestStagingTables(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"raw_data_2023_jan", "raw_data_2022_dec", "unrelated"} {
		_, err := db.Conn().ExecContext(ctx, "CREATE TABLE "+table+" (id BIGINT)")
		require.NoError(t, err)
	}

	staging, err := db.StagingTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"raw_data_2022_dec", "raw_data_2023_jan"}, staging)
}
