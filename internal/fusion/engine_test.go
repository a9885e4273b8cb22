// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package fusion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averal/mercatus/internal/config"
	"github.com/averal/mercatus/internal/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", PreserveInsertionOrder: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seedFusionInputs stages an active events relation, its deduplicated copy,
// and a catalog covering only product 1001.
func seedFusionInputs(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2022, 12, 1, 9, 0, 0, 0, time.UTC)

	_, err := db.Conn().ExecContext(ctx, `
		CREATE TABLE events (
			event_time TIMESTAMP, event_type VARCHAR, product_id BIGINT,
			price DOUBLE, user_id BIGINT, user_session VARCHAR
		)`)
	require.NoError(t, err)

	for i, productID := range []int64{1001, 1001, 2002} {
		_, err := db.Conn().ExecContext(ctx,
			`INSERT INTO events VALUES (?, 'purchase', ?, 49.99, 42, ?)`,
			base.Add(time.Duration(i)*time.Hour), productID, uuid.NewString())
		require.NoError(t, err)
	}

	_, err = db.Conn().ExecContext(ctx,
		`CREATE TABLE events_dedup AS SELECT * FROM events`)
	require.NoError(t, err)

	_, err = db.Conn().ExecContext(ctx, `
		CREATE TABLE catalog AS SELECT * FROM (VALUES
			(1001, 10, 'electronics.audio', 'sony')
		) t(product_id, category_id, category_code, brand)`)
	require.NoError(t, err)
}

func TestRunFusesAndPromotes(t *testing.T) {
	db := newTestDB(t)
	seedFusionInputs(t, db)
	ctx := context.Background()

	res, err := NewEngine(db).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.DedupRows)
	assert.Equal(t, int64(2), res.FusedRows, "events without a catalog entry are dropped")
	assert.Equal(t, int64(1), res.Dropped())

	// The active relation now carries the catalog attributes.
	events, err := db.UserEvents(ctx, 42)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		require.NotNil(t, e.Brand)
		assert.Equal(t, "sony", *e.Brand)
		assert.Equal(t, int64(1001), e.ProductID)
	}

	// The pre-fusion relation survives under the backup name.
	backupRows, err := db.CountRows(ctx, database.TableEventsBackup)
	require.NoError(t, err)
	assert.Equal(t, int64(3), backupRows)

	// The dedup intermediate is gone.
	exists, err := db.RelationExists(ctx, database.TableEventsDedup)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunReplacesPreviousBackup(t *testing.T) {
	db := newTestDB(t)
	seedFusionInputs(t, db)
	ctx := context.Background()

	_, err := db.Conn().ExecContext(ctx,
		`CREATE TABLE events_backup AS SELECT * FROM events LIMIT 1`)
	require.NoError(t, err)

	_, err = NewEngine(db).Run(ctx)
	require.NoError(t, err)

	backupRows, err := db.CountRows(ctx, database.TableEventsBackup)
	require.NoError(t, err)
	assert.Equal(t, int64(3), backupRows, "stale backup is replaced, not appended to")
}

func TestPromoteRollsBackOnFailure(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS events_backup`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE events RENAME TO events_backup`).
		WillReturnError(errors.New("table events is locked"))
	mock.ExpectRollback()

	err = NewEngine(database.NewWithConn(conn)).Promote(context.Background())

	var swapErr *database.SwapFailureError
	require.ErrorAs(t, err, &swapErr)
	assert.False(t, database.IsTransient(err), "a failed swap must never be silently retried")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoteFailsOnBegin(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	err = NewEngine(database.NewWithConn(conn)).Promote(context.Background())

	var swapErr *database.SwapFailureError
	require.ErrorAs(t, err, &swapErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
