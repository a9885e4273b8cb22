// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Package segmentation derives per-customer RFM profiles from the fused
// event relation and assigns each customer a tier under a named policy.
//
// Every run is anchored to a single reference instant: either one pinned in
// configuration, or the maximum event_time in the relation. All recency and
// age arithmetic uses that one instant, so recomputing over the same relation
// with the same reference yields byte-identical profiles. The instant and the
// policy name are persisted alongside every profile row.
package segmentation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/averal/mercatus/internal/database"
	"github.com/averal/mercatus/internal/logging"
	"github.com/averal/mercatus/internal/models"
)

// Engine is the segmentation stage.
type Engine struct {
	db     *database.DB
	policy Policy

	// pinned, when non-zero, is used as the reference instant instead of
	// deriving it from the data.
	pinned time.Time
}

// NewEngine creates a segmentation engine classifying under policy. A
// non-zero pinned time anchors the run; the zero value means "derive from
// the latest event".
func NewEngine(db *database.DB, policy Policy, pinned time.Time) *Engine {
	return &Engine{db: db, policy: policy, pinned: pinned}
}

// Result reports the outcome of one segmentation run.
type Result struct {
	Customers     int64
	Policy        string
	ReferenceTime time.Time
	SegmentCounts map[models.Segment]int64
}

// Run computes a profile per customer, classifies it, and replaces the
// customer_profiles relation with the new set.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	ref, err := e.referenceTime(ctx)
	if err != nil {
		return Result{}, err
	}

	profiles, err := e.computeProfiles(ctx, ref)
	if err != nil {
		return Result{}, err
	}

	counts := make(map[models.Segment]int64)
	for _, p := range profiles {
		p.Segment = e.policy.Classify(p, wholeDays(p.FirstEventTime, ref))
		counts[p.Segment]++
	}

	if err := e.persist(ctx, profiles, ref); err != nil {
		return Result{}, err
	}

	res := Result{
		Customers:     int64(len(profiles)),
		Policy:        e.policy.Name(),
		ReferenceTime: ref,
		SegmentCounts: counts,
	}
	logging.Info().
		Int64("customers", res.Customers).
		Str("policy", res.Policy).
		Time("reference_time", ref).
		Msg("Customer segmentation complete")
	return res, nil
}

// referenceTime returns the pinned instant, or the latest event_time in the
// active relation when none is pinned. An empty relation cannot anchor a run.
func (e *Engine) referenceTime(ctx context.Context) (time.Time, error) {
	if !e.pinned.IsZero() {
		return e.pinned, nil
	}

	var latest sql.NullTime
	err := e.db.Conn().QueryRowContext(ctx,
		fmt.Sprintf("SELECT MAX(event_time) FROM %s", database.TableEvents),
	).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to derive reference time: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, fmt.Errorf("cannot segment: %s relation is empty", database.TableEvents)
	}
	return latest.Time, nil
}

// computeProfiles aggregates the active event relation into one RFM profile
// per customer. Purchase counts and event totals count distinct timestamps,
// so a purchase spanning several product rows in one instant still counts
// once. The day-granularity fields are derived from ref in Go, truncating
// fractional days.
func (e *Engine) computeProfiles(ctx context.Context, ref time.Time) ([]*models.CustomerProfile, error) {
	query := fmt.Sprintf(
		`SELECT
			user_id,
			MIN(event_time) AS first_event_time,
			MAX(event_time) AS last_event_time,
			COUNT(DISTINCT CASE WHEN event_type = ? THEN event_time END) AS purchase_count,
			COUNT(DISTINCT event_time) AS total_events,
			COALESCE(AVG(CASE WHEN event_type = ? THEN price END), 0) AS avg_purchase_price,
			COALESCE(SUM(CASE WHEN event_type = ? THEN price END), 0) AS total_spent
		 FROM %s
		 GROUP BY user_id
		 ORDER BY user_id`,
		database.TableEvents)

	purchase := string(models.EventTypePurchase)
	rows, err := e.db.Conn().QueryContext(ctx, query, purchase, purchase, purchase)
	if err != nil {
		return nil, fmt.Errorf("failed to compute customer profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.CustomerProfile
	for rows.Next() {
		p := &models.CustomerProfile{}
		if err := rows.Scan(
			&p.UserID,
			&p.FirstEventTime,
			&p.LastEventTime,
			&p.PurchaseCount,
			&p.TotalEvents,
			&p.AvgPurchasePrice,
			&p.TotalSpent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer profile: %w", err)
		}

		p.DaysSinceLastEvent = wholeDays(p.LastEventTime, ref)
		p.LifetimeDays = wholeDays(p.FirstEventTime, p.LastEventTime)
		if p.TotalEvents > 0 {
			p.PurchaseRatio = float64(p.PurchaseCount) / float64(p.TotalEvents)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// persist replaces the customer_profiles relation with the given set in one
// transaction, keeping the relation consistent for concurrent readers and
// the run re-runnable.
func (e *Engine) persist(ctx context.Context, profiles []*models.CustomerProfile, ref time.Time) error {
	tx, err := e.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin profile transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s", database.TableCustomerProfiles)); err != nil {
		return fmt.Errorf("failed to clear customer profiles: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (
			user_id, first_event_time, last_event_time,
			purchase_count, total_events, avg_purchase_price, total_spent,
			days_since_last_event, customer_lifetime_days, purchase_ratio,
			customer_segment, reference_time, policy
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		database.TableCustomerProfiles))
	if err != nil {
		return fmt.Errorf("failed to prepare profile insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range profiles {
		if _, err := stmt.ExecContext(ctx,
			p.UserID, p.FirstEventTime, p.LastEventTime,
			p.PurchaseCount, p.TotalEvents, p.AvgPurchasePrice, p.TotalSpent,
			p.DaysSinceLastEvent, p.LifetimeDays, p.PurchaseRatio,
			string(p.Segment), ref, e.policy.Name(),
		); err != nil {
			return fmt.Errorf("failed to insert profile for user %d: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit customer profiles: %w", err)
	}
	return nil
}

// wholeDays returns the number of complete days from a to b, truncated
// toward zero.
func wholeDays(a, b time.Time) int64 {
	return int64(b.Sub(a).Hours() / 24)
}
