// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedReportingEvents(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()

	_, err := db.Conn().ExecContext(ctx, `
		CREATE TABLE events (
			event_time TIMESTAMP, event_type VARCHAR, product_id BIGINT,
			price DOUBLE, user_id BIGINT, user_session VARCHAR
		)`)
	require.NoError(t, err)

	base := time.Date(2023, 1, 10, 12, 0, 0, 0, time.UTC)
	insert := func(offsetHours int, eventType string, userID int64, price float64, session string) {
		t.Helper()
		_, err := db.Conn().ExecContext(ctx,
			`INSERT INTO events VALUES (?, ?, ?, ?, ?, ?)`,
			base.Add(time.Duration(offsetHours)*time.Hour), eventType, int64(1001), price, userID, session)
		require.NoError(t, err)
	}

	// User 1: two purchase sessions, 30 + 150 total.
	s1, s2 := uuid.NewString(), uuid.NewString()
	insert(0, "purchase", 1, 30, s1)
	insert(1, "purchase", 1, 150, s2)
	// User 2: browses only, never buys.
	insert(2, "view", 2, 20, uuid.NewString())
	// User 3: one purchase session worth 300.
	insert(3, "purchase", 3, 300, uuid.NewString())
}

func TestOrderCountDistribution(t *testing.T) {
	db := newTestDB(t)
	seedReportingEvents(t, db)

	buckets, err := db.OrderCountDistribution(context.Background())
	require.NoError(t, err)

	counts := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		counts[b.Label] = b.Count
	}
	assert.Equal(t, int64(1), counts["0"], "non-purchasing customer lands in the zero bucket")
	assert.Equal(t, int64(2), counts["1 - 8"])
}

func TestSpendDistribution(t *testing.T) {
	db := newTestDB(t)
	seedReportingEvents(t, db)

	buckets, err := db.SpendDistribution(context.Background())
	require.NoError(t, err)

	counts := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		counts[b.Label] = b.Count
	}
	// User 1 spent 180 total, user 3 spent 300; user 2 never purchased.
	assert.Equal(t, int64(1), counts["150-200"])
	assert.Equal(t, int64(1), counts["200+"])
	assert.Zero(t, counts["0-50"])
}

func TestSegmentCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ref := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, segment := range []string{"platinum", "gold", "silver", "bronze", "inactive_customer"} {
		_, err := db.Conn().ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s VALUES (?, ?, ?, 1, 2, 10.0, 10.0, 5, 100, 0.5, ?, ?, 'activity')`,
			TableCustomerProfiles),
			int64(i+1), ref.AddDate(0, -6, 0), ref.AddDate(0, 0, -5), segment, ref)
		require.NoError(t, err)
	}

	counts, err := db.SegmentCounts(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["platinum"])
	assert.Equal(t, int64(1), counts["bronze"])
	assert.NotContains(t, counts, "loyal")

	rolled, err := db.SegmentCounts(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rolled["loyal"], "platinum, gold and silver collapse into loyal")
	assert.Equal(t, int64(1), rolled["bronze"])
	assert.Equal(t, int64(1), rolled["inactive_customer"])
	assert.NotContains(t, rolled, "platinum")
}
