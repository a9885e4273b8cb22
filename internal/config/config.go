// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Package config provides layered configuration for the warehouse pipeline.
//
// Loading order (Koanf v2): built-in defaults, then an optional YAML config
// file, then environment variables. Config is immutable after Load and safe
// for concurrent reads.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration.
type Config struct {
	Database     DatabaseConfig     `koanf:"database"`
	Sources      SourcesConfig      `koanf:"sources"`
	Pipeline     PipelineConfig     `koanf:"pipeline"`
	Segmentation SegmentationConfig `koanf:"segmentation"`
	Cluster      ClusterConfig      `koanf:"cluster"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	// Path is the DuckDB database file, or ":memory:" for an ephemeral store.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory is the DuckDB memory limit, e.g. "2GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads" validate:"min=0"`

	// PreserveInsertionOrder keeps DuckDB's default result ordering.
	// Disabling reduces memory usage for large bulk loads.
	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`
}

// SourcesConfig locates the raw source extracts.
type SourcesConfig struct {
	// EventsDir holds the monthly event extracts, one CSV per period
	// (e.g. data_2022_dec.csv). Every *.csv file in the directory is loaded.
	EventsDir string `koanf:"events_dir" validate:"required"`

	// CatalogPath is the raw product catalog CSV. The raw file may carry
	// duplicate product_id rows; the resolver collapses them.
	CatalogPath string `koanf:"catalog_path" validate:"required"`
}

// PipelineConfig controls stage execution behavior.
type PipelineConfig struct {
	// RetryAttempts is the number of times a stage is retried after a
	// transient store error. Retries happen at the stage boundary only;
	// a stage never resumes mid-flight.
	RetryAttempts int `koanf:"retry_attempts" validate:"min=0"`

	// RetryDelay is the fixed wait between stage retries.
	RetryDelay time.Duration `koanf:"retry_delay"`

	// ProgressInterval is how often the bulk-load progress reporter logs
	// elapsed time. 0 disables the reporter.
	ProgressInterval time.Duration `koanf:"progress_interval"`
}

// SegmentationConfig configures the customer segmentation stage.
type SegmentationConfig struct {
	// Policy names the classification rule set: "activity" (purchase-count
	// and recency tiers) or "spend" (total-spent tiers). The two are never
	// mixed; see the segmentation package for the exact cascades.
	Policy string `koanf:"policy" validate:"oneof=activity spend"`

	// ReferenceTime pins the "now" instant for recency metrics, RFC3339.
	// Empty means the maximum event_time in the fused relation is used.
	// Either way the instant is recorded with the output, so a run can be
	// reproduced exactly.
	ReferenceTime string `koanf:"reference_time"`
}

// ClusterConfig configures the cluster analyzer.
type ClusterConfig struct {
	// K is the production cluster count, chosen by a human from the
	// inertia curve. The analyzer never picks K itself.
	K int `koanf:"k" validate:"min=1"`

	// MaxK is the upper bound of the candidate range for the inertia curve
	// (k = 1..MaxK).
	MaxK int `koanf:"max_k" validate:"min=1"`

	// Seed fixes the k-means random source so relabeling is reproducible
	// for the same input and K.
	Seed int64 `koanf:"seed"`

	// Features is the profile feature subset to cluster on.
	Features []string `koanf:"features" validate:"required,min=1"`

	// CurvePath is where the inertia-curve JSON artifact is written.
	// Empty skips the artifact (the curve is still persisted in the store).
	CurvePath string `koanf:"curve_path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// clusterableFeatures is the set of profile columns the analyzer accepts.
var clusterableFeatures = map[string]bool{
	"purchase_count":         true,
	"total_events":           true,
	"avg_purchase_price":     true,
	"total_spent":            true,
	"days_since_last_event":  true,
	"customer_lifetime_days": true,
	"purchase_ratio":         true,
}

// Validate checks the configuration for structural and cross-field errors.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Cluster.K > c.Cluster.MaxK {
		return fmt.Errorf("cluster.k (%d) must not exceed cluster.max_k (%d)", c.Cluster.K, c.Cluster.MaxK)
	}
	for _, f := range c.Cluster.Features {
		if !clusterableFeatures[f] {
			return fmt.Errorf("cluster.features: unknown feature %q", f)
		}
	}

	if c.Segmentation.ReferenceTime != "" {
		if _, err := time.Parse(time.RFC3339, c.Segmentation.ReferenceTime); err != nil {
			return fmt.Errorf("segmentation.reference_time: %w", err)
		}
	}

	return nil
}

// PinnedReferenceTime returns the pinned reference instant, or ok=false when
// the run should derive it from the data. Call Validate first; a malformed
// value is reported there.
func (c *SegmentationConfig) PinnedReferenceTime() (t time.Time, ok bool) {
	if c.ReferenceTime == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, c.ReferenceTime)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
