// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averal/mercatus/internal/config"
	"github.com/averal/mercatus/internal/database"
	"github.com/averal/mercatus/internal/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", PreserveInsertionOrder: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedEvents(t *testing.T, db *database.DB, rows []models.Event) {
	t.Helper()
	ctx := context.Background()

	_, err := db.Conn().ExecContext(ctx, `
		CREATE OR REPLACE TABLE events (
			event_time TIMESTAMP, event_type VARCHAR, product_id BIGINT,
			price DOUBLE, user_id BIGINT, user_session VARCHAR
		)`)
	require.NoError(t, err)

	for _, r := range rows {
		_, err := db.Conn().ExecContext(ctx,
			`INSERT INTO events VALUES (?, ?, ?, ?, ?, ?)`,
			r.EventTime, string(r.EventType), r.ProductID, r.Price, r.UserID, r.UserSession)
		require.NoError(t, err)
	}
}

func TestRunKeepsEarliestPerKey(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2022, 12, 1, 9, 0, 0, 0, time.UTC)
	session := uuid.NewString()

	// Three observations of the same logical event across overlapping
	// extracts, plus one genuinely different event.
	seedEvents(t, db, []models.Event{
		{EventTime: base.Add(2 * time.Hour), EventType: models.EventTypePurchase, ProductID: 1001, Price: 49.99, UserID: 42, UserSession: session},
		{EventTime: base, EventType: models.EventTypePurchase, ProductID: 1001, Price: 49.99, UserID: 42, UserSession: session},
		{EventTime: base.Add(time.Hour), EventType: models.EventTypePurchase, ProductID: 1001, Price: 49.99, UserID: 42, UserSession: session},
		{EventTime: base, EventType: models.EventTypeView, ProductID: 1001, Price: 49.99, UserID: 42, UserSession: session},
	})

	res, err := NewDeduplicator(db).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.InputRows)
	assert.Equal(t, int64(2), res.OutputRows)
	assert.Equal(t, int64(2), res.Removed())

	var kept time.Time
	require.NoError(t, db.Conn().QueryRow(
		`SELECT event_time FROM events_dedup WHERE event_type = 'purchase'`).Scan(&kept))
	assert.True(t, kept.Equal(base), "earliest observation survives, got %v", kept)
}

func TestRunKeyExcludesTimestamp(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2022, 12, 1, 9, 0, 0, 0, time.UTC)

	// Same five key fields, different days: still one logical event. A price
	// change breaks the key.
	session := uuid.NewString()
	seedEvents(t, db, []models.Event{
		{EventTime: base, EventType: models.EventTypePurchase, ProductID: 1001, Price: 49.99, UserID: 42, UserSession: session},
		{EventTime: base.AddDate(0, 0, 3), EventType: models.EventTypePurchase, ProductID: 1001, Price: 49.99, UserID: 42, UserSession: session},
		{EventTime: base.AddDate(0, 0, 3), EventType: models.EventTypePurchase, ProductID: 1001, Price: 39.99, UserID: 42, UserSession: session},
	})

	res, err := NewDeduplicator(db).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.OutputRows)
}

func TestRunIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2022, 12, 1, 9, 0, 0, 0, time.UTC)

	var rows []models.Event
	for i := 0; i < 5; i++ {
		row := models.Event{
			EventTime:   base.Add(time.Duration(i) * time.Minute),
			EventType:   models.EventTypeView,
			ProductID:   int64(1000 + i),
			Price:       9.99,
			UserID:      7,
			UserSession: uuid.NewString(),
		}
		rows = append(rows, row, row) // every event observed twice
	}
	seedEvents(t, db, rows)

	ctx := context.Background()
	d := NewDeduplicator(db)

	first, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.OutputRows)

	// Feed the dedup output back in: a second pass must be a no-op.
	_, err = db.Conn().ExecContext(ctx,
		`CREATE OR REPLACE TABLE events AS SELECT * FROM events_dedup`)
	require.NoError(t, err)

	second, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), second.OutputRows)
	assert.Zero(t, second.Removed())
}
