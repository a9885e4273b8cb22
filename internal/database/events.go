// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/averal/mercatus/internal/models"
)

// UserEvents returns one customer's enriched event history in time order.
// Valid after fusion has promoted the enriched relation; support tooling uses
// this to inspect a single customer without raw SQL.
func (db *DB) UserEvents(ctx context.Context, userID int64) ([]models.FusedEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(
		`SELECT event_time, event_type, product_id, price, user_id, user_session,
		        category_id, category_code, brand
		 FROM %s WHERE user_id = ? ORDER BY event_time`, TableEvents), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for user %d: %w", userID, err)
	}
	defer rows.Close()

	var events []models.FusedEvent
	for rows.Next() {
		var (
			e            models.FusedEvent
			eventType    string
			categoryID   sql.NullInt64
			categoryCode sql.NullString
			brand        sql.NullString
		)
		if err := rows.Scan(
			&e.EventTime, &eventType, &e.ProductID, &e.Price, &e.UserID, &e.UserSession,
			&categoryID, &categoryCode, &brand,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event for user %d: %w", userID, err)
		}
		e.EventType = models.EventType(eventType)
		if categoryID.Valid {
			e.CategoryID = &categoryID.Int64
		}
		if categoryCode.Valid {
			e.CategoryCode = &categoryCode.String
		}
		if brand.Valid {
			e.Brand = &brand.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
