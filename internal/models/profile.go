// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package models

import "time"

// Segment is a rule-assigned customer tier label.
type Segment string

const (
	SegmentNewCustomer      Segment = "new_customer"
	SegmentInactiveCustomer Segment = "inactive_customer"
	SegmentPlatinum         Segment = "platinum"
	SegmentGold             Segment = "gold"
	SegmentSilver           Segment = "silver"
	SegmentBronze           Segment = "bronze"

	// SegmentLoyal is a reporting-only rollup of platinum, gold and silver.
	// It is never assigned by a classification policy.
	SegmentLoyal Segment = "loyal"
)

// CustomerProfile holds the per-customer RFM aggregates derived from the
// fused event relation against a fixed reference instant. Recomputing over
// the same relation with the same reference time yields an identical profile.
type CustomerProfile struct {
	UserID           int64     `json:"user_id"`
	FirstEventTime   time.Time `json:"first_event_time"`
	LastEventTime    time.Time `json:"last_event_time"`
	PurchaseCount    int64     `json:"purchase_count"`
	TotalEvents      int64     `json:"total_events"`
	AvgPurchasePrice float64   `json:"avg_purchase_price"`
	TotalSpent       float64   `json:"total_spent"`

	// DaysSinceLastEvent is measured from LastEventTime to the reference
	// instant; LifetimeDays from FirstEventTime to LastEventTime. Both are
	// whole days, fractional parts truncated.
	DaysSinceLastEvent int64 `json:"days_since_last_event"`
	LifetimeDays       int64 `json:"customer_lifetime_days"`

	// PurchaseRatio is PurchaseCount / TotalEvents, 0 when TotalEvents is 0.
	PurchaseRatio float64 `json:"purchase_ratio"`

	Segment Segment `json:"customer_segment"`
}

// ReportingSegment collapses the three paying tiers into loyal for the
// secondary reporting view; all other labels pass through unchanged.
func (p *CustomerProfile) ReportingSegment() Segment {
	switch p.Segment {
	case SegmentPlatinum, SegmentGold, SegmentSilver:
		return SegmentLoyal
	default:
		return p.Segment
	}
}
