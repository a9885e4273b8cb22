// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package models

import (
	"time"

	"github.com/google/uuid"
)

// InertiaPoint is one sample of the inertia-vs-k diagnostic curve.
type InertiaPoint struct {
	K       int     `json:"k"`
	Inertia float64 `json:"inertia"`
}

// ClusterRun records the parameters and diagnostics of one clustering run.
// A cluster label is meaningless without the run it came from: always qualify
// assignments with the run's k, seed, and feature set.
type ClusterRun struct {
	RunID        uuid.UUID      `json:"run_id"`
	K            int            `json:"k"`
	Seed         int64          `json:"seed"`
	Features     []string       `json:"features"`
	InertiaCurve []InertiaPoint `json:"inertia_curve"`

	// Centroids are in original feature scale (standardization undone),
	// one row per cluster, columns ordered as Features.
	Centroids [][]float64 `json:"centroids"`

	CreatedAt time.Time `json:"created_at"`
}

// ClusterAssignment maps one customer to a cluster label within a run.
type ClusterAssignment struct {
	RunID   uuid.UUID `json:"run_id"`
	UserID  int64     `json:"user_id"`
	Cluster int       `json:"cluster"`
}
