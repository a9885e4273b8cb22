// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Package cluster groups customers by behavioral similarity with seeded
// k-means over standardized profile features.
//
// The analyzer produces two things: an inertia-vs-k diagnostic curve over a
// candidate range, from which a human picks the production k, and a labeling
// of every customer at the configured k. Labels are only meaningful within
// the run that produced them, so each run is persisted with its full
// parameters under a fresh run id.
package cluster

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/averal/mercatus/internal/config"
	"github.com/averal/mercatus/internal/database"
	"github.com/averal/mercatus/internal/logging"
	"github.com/averal/mercatus/internal/models"
)

// Analyzer is the clustering stage.
type Analyzer struct {
	db  *database.DB
	cfg config.ClusterConfig
}

// NewAnalyzer creates a cluster analyzer with the given parameters.
func NewAnalyzer(db *database.DB, cfg config.ClusterConfig) *Analyzer {
	return &Analyzer{db: db, cfg: cfg}
}

// Run computes the inertia curve, labels every customer at the configured k,
// and persists the run. Requires customer_profiles to be populated.
func (a *Analyzer) Run(ctx context.Context) (*models.ClusterRun, error) {
	userIDs, matrix, err := a.loadFeatures(ctx)
	if err != nil {
		return nil, err
	}
	if len(matrix) < a.cfg.K {
		return nil, fmt.Errorf("cannot form %d clusters from %d customers", a.cfg.K, len(matrix))
	}

	scaler, err := FitStandardizer(matrix)
	if err != nil {
		return nil, err
	}
	scaled := scaler.Transform(matrix)

	run := &models.ClusterRun{
		RunID:     uuid.New(),
		K:         a.cfg.K,
		Seed:      a.cfg.Seed,
		Features:  a.cfg.Features,
		CreatedAt: time.Now().UTC(),
	}

	// One source drives the whole run: first the curve sweep, then the
	// production fit. Same inputs and seed, same curve and labels.
	rng := rand.New(rand.NewSource(a.cfg.Seed))

	maxK := a.cfg.MaxK
	if maxK > len(scaled) {
		maxK = len(scaled)
	}
	for k := 1; k <= maxK; k++ {
		fit, err := fitKMeans(scaled, k, rng)
		if err != nil {
			return nil, fmt.Errorf("inertia curve at k=%d: %w", k, err)
		}
		run.InertiaCurve = append(run.InertiaCurve, models.InertiaPoint{K: k, Inertia: fit.inertia})
	}

	final, err := fitKMeans(scaled, a.cfg.K, rng)
	if err != nil {
		return nil, err
	}
	run.Centroids = scaler.InverseTransform(final.centroids)

	if err := a.persist(ctx, run, userIDs, final.labels); err != nil {
		return nil, err
	}
	if a.cfg.CurvePath != "" {
		if err := a.writeCurveArtifact(run); err != nil {
			return nil, err
		}
	}

	logging.Info().
		Str("run_id", run.RunID.String()).
		Int("k", run.K).
		Int64("seed", run.Seed).
		Int("customers", len(userIDs)).
		Float64("inertia", final.inertia).
		Msg("Cluster analysis complete")
	return run, nil
}

// loadFeatures reads the configured feature columns for every customer,
// ordered by user_id so row order is stable across runs.
func (a *Analyzer) loadFeatures(ctx context.Context) ([]int64, [][]float64, error) {
	for _, f := range a.cfg.Features {
		if !database.ValidIdentifier(f) {
			return nil, nil, fmt.Errorf("invalid feature column %q", f)
		}
	}

	query := fmt.Sprintf(
		`SELECT user_id, %s FROM %s ORDER BY user_id`,
		strings.Join(a.cfg.Features, ", "), database.TableCustomerProfiles)
	rows, err := a.db.Conn().QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cluster features: %w", err)
	}
	defer rows.Close()

	var (
		userIDs []int64
		matrix  [][]float64
	)
	for rows.Next() {
		var userID int64
		features := make([]float64, len(a.cfg.Features))
		dest := make([]any, 0, len(features)+1)
		dest = append(dest, &userID)
		for j := range features {
			dest = append(dest, &features[j])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan cluster features: %w", err)
		}
		userIDs = append(userIDs, userID)
		matrix = append(matrix, features)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(matrix) == 0 {
		return nil, nil, fmt.Errorf("cannot cluster: %s relation is empty", database.TableCustomerProfiles)
	}
	return userIDs, matrix, nil
}

// persist stores the run and its assignments in one transaction. Earlier
// runs are kept; readers select by run id.
func (a *Analyzer) persist(ctx context.Context, run *models.ClusterRun, userIDs []int64, labels []int) error {
	features, err := json.Marshal(run.Features)
	if err != nil {
		return fmt.Errorf("failed to encode feature list: %w", err)
	}
	curve, err := json.Marshal(run.InertiaCurve)
	if err != nil {
		return fmt.Errorf("failed to encode inertia curve: %w", err)
	}
	centroids, err := json.Marshal(run.Centroids)
	if err != nil {
		return fmt.Errorf("failed to encode centroids: %w", err)
	}

	tx, err := a.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cluster transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (run_id, k, seed, features, inertia_curve, centroids, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, database.TableClusterRuns),
		run.RunID.String(), run.K, run.Seed,
		string(features), string(curve), string(centroids), run.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert cluster run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (run_id, user_id, cluster) VALUES (?, ?, ?)`,
		database.TableClusterAssignments))
	if err != nil {
		return fmt.Errorf("failed to prepare assignment insert: %w", err)
	}
	defer stmt.Close()

	for i, userID := range userIDs {
		if _, err := stmt.ExecContext(ctx, run.RunID.String(), userID, labels[i]); err != nil {
			return fmt.Errorf("failed to insert assignment for user %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cluster run: %w", err)
	}
	return nil
}

// writeCurveArtifact writes the inertia curve as a standalone JSON file for
// plotting, alongside the run parameters needed to interpret it.
func (a *Analyzer) writeCurveArtifact(run *models.ClusterRun) error {
	artifact := struct {
		RunID    uuid.UUID             `json:"run_id"`
		Seed     int64                 `json:"seed"`
		Features []string              `json:"features"`
		Curve    []models.InertiaPoint `json:"inertia_curve"`
	}{
		RunID:    run.RunID,
		Seed:     run.Seed,
		Features: run.Features,
		Curve:    run.InertiaCurve,
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode curve artifact: %w", err)
	}
	if dir := filepath.Dir(a.cfg.CurvePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create curve artifact directory: %w", err)
		}
	}
	if err := os.WriteFile(a.cfg.CurvePath, data, 0o640); err != nil {
		return fmt.Errorf("failed to write curve artifact: %w", err)
	}
	return nil
}
