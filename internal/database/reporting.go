// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package database

import (
	"context"
	"fmt"

	"github.com/averal/mercatus/internal/models"
)

// Reporting aggregates over the fused event relation and the profile
// relation. These are the stable queries charting collaborators consume so
// they never re-derive business logic themselves.

// DistributionBucket is one bucket of a reporting distribution.
type DistributionBucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// OrderCountDistribution buckets customers by the number of distinct
// purchase sessions they completed. Customers with no purchases land in the
// "0" bucket.
func (db *DB) OrderCountDistribution(ctx context.Context) ([]DistributionBucket, error) {
	query := `
		WITH orders_by_client AS (
			SELECT user_id, COUNT(DISTINCT user_session) AS order_count
			FROM (
				SELECT DISTINCT user_id, user_session
				FROM events
				WHERE event_type = ?
			)
			GROUP BY user_id
		),
		all_clients AS (
			SELECT DISTINCT user_id FROM events
		),
		clients_with_orders AS (
			SELECT CASE
				WHEN order_count IS NULL THEN '0'
				WHEN order_count BETWEEN 1 AND 8 THEN '1 - 8'
				WHEN order_count BETWEEN 9 AND 16 THEN '9 - 16'
				WHEN order_count BETWEEN 17 AND 23 THEN '17 - 24'
				WHEN order_count BETWEEN 24 AND 31 THEN '25 - 31'
				ELSE '32+'
			END AS order_range
			FROM all_clients
			LEFT JOIN orders_by_client USING (user_id)
		)
		SELECT order_range, COUNT(*) AS client_number
		FROM clients_with_orders
		GROUP BY order_range
		ORDER BY CASE order_range
			WHEN '0' THEN 1
			WHEN '1 - 8' THEN 2
			WHEN '9 - 16' THEN 3
			WHEN '17 - 24' THEN 4
			WHEN '25 - 31' THEN 5
			ELSE 6
		END`
	return db.queryDistribution(ctx, query, string(models.EventTypePurchase))
}

// SpendDistribution buckets purchasing customers by their total spend.
func (db *DB) SpendDistribution(ctx context.Context) ([]DistributionBucket, error) {
	query := `
		SELECT CASE
			WHEN total_amount > 0 AND total_amount <= 50 THEN '0-50'
			WHEN total_amount > 50 AND total_amount <= 100 THEN '50-100'
			WHEN total_amount > 100 AND total_amount <= 150 THEN '100-150'
			WHEN total_amount > 150 AND total_amount <= 200 THEN '150-200'
			ELSE '200+'
		END AS spend_band,
		COUNT(*) AS client_amount
		FROM (
			SELECT user_id, SUM(price) AS total_amount
			FROM events
			WHERE event_type = ?
			GROUP BY user_id
		)
		GROUP BY spend_band
		ORDER BY CASE spend_band
			WHEN '0-50' THEN 1
			WHEN '50-100' THEN 2
			WHEN '100-150' THEN 3
			WHEN '150-200' THEN 4
			ELSE 5
		END`
	return db.queryDistribution(ctx, query, string(models.EventTypePurchase))
}

// SegmentCounts returns the number of customers per segment label. When
// rollupLoyal is true, platinum, gold and silver are collapsed into the
// single reporting label "loyal".
func (db *DB) SegmentCounts(ctx context.Context, rollupLoyal bool) (map[string]int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	segmentExpr := "customer_segment"
	if rollupLoyal {
		segmentExpr = `CASE WHEN customer_segment IN ('platinum', 'gold', 'silver')
			THEN 'loyal' ELSE customer_segment END`
	}
	query := fmt.Sprintf(`SELECT %s AS segment, COUNT(*) FROM customer_profiles GROUP BY segment`, segmentExpr)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count segments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var segment string
		var count int64
		if err := rows.Scan(&segment, &count); err != nil {
			return nil, fmt.Errorf("failed to scan segment count: %w", err)
		}
		counts[segment] = count
	}
	return counts, rows.Err()
}

// queryDistribution runs a two-column (label, count) query.
func (db *DB) queryDistribution(ctx context.Context, query string, args ...any) ([]DistributionBucket, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution: %w", err)
	}
	defer rows.Close()

	var buckets []DistributionBucket
	for rows.Next() {
		var b DistributionBucket
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan distribution bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
