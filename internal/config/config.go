// Package config defines pipeline configuration and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults, Load(ctx) to layer
//   file and environment on top.
// - External errors must be wrapped via this package's error kinds.
package config

import (
	"runtime"

	"github.com/kerbstat/kerbstat/internal/adapters/source"
)

// Config contains process configuration for one pipeline run.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Input file paths. RecordsPath is the only required one; every
	// other source is optional and the run degrades without it.
	RecordsPath       string `koanf:"records_path"`
	AliasPath         string `koanf:"alias_path"`
	FuelLookupPath    string `koanf:"fuel_lookup_path"`
	FailureLookupPath string `koanf:"failure_lookup_path"`
	FailureItemsPath  string `koanf:"failure_items_path"`
	RecallsPath       string `koanf:"recalls_path"`
	EmissionsPath     string `koanf:"emissions_path"`
	VEDTablePath      string `koanf:"ved_table_path"`

	// OutputDir receives the published document tree.
	OutputDir string `koanf:"output_dir"`

	// MetricsDBPath is the optional SQLite sink for aggregated rows.
	MetricsDBPath string `koanf:"metrics_db_path"`

	// Source names the ingestion source stamped into document metadata.
	Source string `koanf:"source"`

	// ShardIndex selects one shard of a ShardCount-way partition;
	// -1 publishes every shard in one process.
	ShardIndex int `koanf:"shard_index"`
	ShardCount int `koanf:"shard_count"`

	// WorkerCount sets the number of concurrent publish workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxAge caps the age axis of published curves.
	MaxAge int `koanf:"max_age"`

	// SampleCap bounds the per-group mileage reservoir.
	SampleCap int `koanf:"sample_cap"`

	// FuzzyThreshold gates fuzzy alias acceptance, 0-100.
	FuzzyThreshold float64 `koanf:"fuzzy_threshold"`

	// Cohort filters. Empty or zero means no filter.
	MakeFilter  string `koanf:"make_filter"`
	ModelFilter string `koanf:"model_filter"`
	YearFrom    int    `koanf:"year_from"`
	YearTo      int    `koanf:"year_to"`

	// CohortCap bounds how many cohorts a run may publish; 0 is
	// unlimited.
	CohortCap int `koanf:"cohort_cap"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Source:         "dvsa",
		ShardIndex:     -1,
		ShardCount:     1,
		WorkerCount:    runtime.NumCPU(),
		MaxAge:         40,
		SampleCap:      4096,
		FuzzyThreshold: 92,
	}
}

// Paths maps the configured input files onto the source layer's view.
func (c *Config) Paths() source.Paths {
	return source.Paths{
		Records:       c.RecordsPath,
		AliasTable:    c.AliasPath,
		FuelLookup:    c.FuelLookupPath,
		FailureLookup: c.FailureLookupPath,
		FailureItems:  c.FailureItemsPath,
		Recalls:       c.RecallsPath,
		Emissions:     c.EmissionsPath,
		VEDTable:      c.VEDTablePath,
	}
}
