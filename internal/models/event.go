// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Package models defines the domain types shared by the warehouse pipeline:
// raw and fused events, catalog entries, customer profiles, and cluster runs.
package models

import "time"

// EventType classifies a customer interaction.
// The set is open: new types appearing in source extracts flow through
// unchanged, these constants only name the ones the pipeline reasons about.
type EventType string

const (
	EventTypeView           EventType = "view"
	EventTypeCart           EventType = "cart"
	EventTypePurchase       EventType = "purchase"
	EventTypeRemoveFromCart EventType = "remove_from_cart"
)

// Event is one customer interaction record.
//
// The tuple (EventType, ProductID, Price, UserID, UserSession) is the
// duplicate-detection key: two records sharing it are the same logical event
// regardless of timestamp.
type Event struct {
	EventTime   time.Time `json:"event_time"`
	EventType   EventType `json:"event_type"`
	ProductID   int64     `json:"product_id"`
	Price       float64   `json:"price"`
	UserID      int64     `json:"user_id"`
	UserSession string    `json:"user_session"`
}

// FusedEvent is an event enriched with catalog metadata by the fusion stage.
// Catalog attributes stay nil when the resolved catalog row has no value.
type FusedEvent struct {
	Event
	CategoryID   *int64  `json:"category_id"`
	CategoryCode *string `json:"category_code"`
	Brand        *string `json:"brand"`
}

// CatalogEntry is one product's resolved metadata.
// After resolution there is exactly one entry per ProductID; each attribute
// holds the first non-null value found across the raw duplicate rows, or nil
// when no raw row carried a value.
type CatalogEntry struct {
	ProductID    int64   `json:"product_id"`
	CategoryID   *int64  `json:"category_id"`
	CategoryCode *string `json:"category_code"`
	Brand        *string `json:"brand"`
}
