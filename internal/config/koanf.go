// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mercatus/config.yaml",
	"/etc/mercatus/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first, then the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/mercatus.duckdb",
			MaxMemory:              "2GB",
			Threads:                0,    // 0 = runtime.NumCPU()
			PreserveInsertionOrder: true, // DuckDB default
		},
		Sources: SourcesConfig{
			EventsDir:   "/data/customer",
			CatalogPath: "/data/item/item.csv",
		},
		Pipeline: PipelineConfig{
			RetryAttempts:    3,
			RetryDelay:       2 * time.Second,
			ProgressInterval: time.Second,
		},
		Segmentation: SegmentationConfig{
			Policy:        "activity",
			ReferenceTime: "",
		},
		Cluster: ClusterConfig{
			K:    5,
			MaxK: 10,
			Seed: 42,
			Features: []string{
				"purchase_count", "total_events", "avg_purchase_price",
				"total_spent", "days_since_last_event",
				"customer_lifetime_days", "purchase_ratio",
			},
			CurvePath: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// MERCATUS_DATABASE_PATH -> database.path, MERCATUS_CLUSTER_MAX_K ->
	// cluster.max_k, and so on; see envTransformFunc for the legacy names.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when supplied through environment variables.
var sliceConfigPaths = []string{
	"cluster.features",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment variables cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	// Short legacy names kept from the original deployment scripts.
	envMappings := map[string]string{
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		"events_dir":   "sources.events_dir",
		"catalog_path": "sources.catalog_path",

		"retry_attempts":    "pipeline.retry_attempts",
		"retry_delay":       "pipeline.retry_delay",
		"progress_interval": "pipeline.progress_interval",

		"segment_policy":         "segmentation.policy",
		"segment_reference_time": "segmentation.reference_time",

		"cluster_k":          "cluster.k",
		"cluster_max_k":      "cluster.max_k",
		"cluster_seed":       "cluster.seed",
		"cluster_features":   "cluster.features",
		"cluster_curve_path": "cluster.curve_path",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// MERCATUS_<SECTION>_<FIELD> maps structurally, e.g.
	// MERCATUS_CLUSTER_SEED -> cluster.seed.
	if rest, ok := strings.CutPrefix(key, "mercatus_"); ok {
		for _, section := range []string{"database", "sources", "pipeline", "segmentation", "cluster", "logging"} {
			if field, ok := strings.CutPrefix(rest, section+"_"); ok {
				return section + "." + field
			}
		}
	}

	return ""
}
