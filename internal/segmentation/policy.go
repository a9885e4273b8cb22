// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package segmentation

import (
	"fmt"

	"github.com/averal/mercatus/internal/models"
)

// Policy is a named, ordered rule cascade assigning a segment to a customer
// profile. Rules are evaluated top to bottom, first match wins. The two
// shipped policies reflect the two historical rule sets of this system;
// a run uses exactly one of them, never a mix.
type Policy interface {
	Name() string

	// Classify assigns a segment. ageDays is the whole-day span from the
	// customer's first event to the reference instant (recency and lifetime
	// are already on the profile).
	Classify(p *models.CustomerProfile, ageDays int64) models.Segment
}

// PolicyByName returns the policy registered under name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "activity":
		return ActivityPolicy{}, nil
	case "spend":
		return SpendPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown segmentation policy %q", name)
	}
}

// ActivityPolicy tiers paying customers by purchase count and recency:
//
//	new_customer       age <= 30 days
//	inactive_customer  recency > 90 days
//	platinum           >= 10 purchases and recency <= 30 days
//	gold               >=  5 purchases and recency <= 60 days
//	silver             >=  2 purchases and recency <= 90 days
//	bronze             everyone else
//
// This is the default policy: it ranks sustained engagement over raw spend,
// so one large one-off order does not mint a platinum customer.
type ActivityPolicy struct{}

func (ActivityPolicy) Name() string { return "activity" }

func (ActivityPolicy) Classify(p *models.CustomerProfile, ageDays int64) models.Segment {
	switch {
	case ageDays <= 30:
		return models.SegmentNewCustomer
	case p.DaysSinceLastEvent > 90:
		return models.SegmentInactiveCustomer
	case p.PurchaseCount >= 10 && p.DaysSinceLastEvent <= 30:
		return models.SegmentPlatinum
	case p.PurchaseCount >= 5 && p.DaysSinceLastEvent <= 60:
		return models.SegmentGold
	case p.PurchaseCount >= 2 && p.DaysSinceLastEvent <= 90:
		return models.SegmentSilver
	default:
		return models.SegmentBronze
	}
}

// SpendPolicy tiers paying customers by total spend:
//
//	new_customer       lifetime (first to last event) <= 30 days
//	inactive_customer  recency > 90 days
//	platinum           total spent >= 1000
//	gold               total spent >=  500
//	silver             total spent >=  100
//	bronze             everyone else
type SpendPolicy struct{}

func (SpendPolicy) Name() string { return "spend" }

func (SpendPolicy) Classify(p *models.CustomerProfile, _ int64) models.Segment {
	switch {
	case p.LifetimeDays <= 30:
		return models.SegmentNewCustomer
	case p.DaysSinceLastEvent > 90:
		return models.SegmentInactiveCustomer
	case p.TotalSpent >= 1000:
		return models.SegmentPlatinum
	case p.TotalSpent >= 500:
		return models.SegmentGold
	case p.TotalSpent >= 100:
		return models.SegmentSilver
	default:
		return models.SegmentBronze
	}
}
