package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kerbstat/kerbstat/internal/domain/ved"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if KERBSTAT_CONFIG is set
//  3. env (prefix KERBSTAT_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("KERBSTAT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: KERBSTAT_RECORDS_PATH, KERBSTAT_SHARD_COUNT, ...
	// Map env keys like KERBSTAT_SHARD_COUNT -> shard_count (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("KERBSTAT_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "kerbstat_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks internal consistency. It does not touch the
// filesystem; missing optional inputs are a runtime concern.
func (c *Config) Validate() error {
	if c.RecordsPath == "" {
		return fmt.Errorf("%w: records_path must not be empty", ErrInvalidConfig)
	}
	if c.ShardCount < 1 {
		return fmt.Errorf("%w: shard_count must be at least 1", ErrInvalidConfig)
	}
	if c.ShardIndex < -1 || c.ShardIndex >= c.ShardCount {
		return fmt.Errorf("%w: shard_index %d out of range for %d shards",
			ErrInvalidConfig, c.ShardIndex, c.ShardCount)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: worker_count must be at least 1", ErrInvalidConfig)
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 100 {
		return fmt.Errorf("%w: fuzzy_threshold must be in (0,100]", ErrInvalidConfig)
	}
	if c.MaxAge < 1 {
		return fmt.Errorf("%w: max_age must be at least 1", ErrInvalidConfig)
	}
	if c.YearFrom != 0 && c.YearTo != 0 && c.YearTo < c.YearFrom {
		return fmt.Errorf("%w: year_to %d precedes year_from %d",
			ErrInvalidConfig, c.YearTo, c.YearFrom)
	}
	if c.CohortCap < 0 {
		return fmt.Errorf("%w: cohort_cap must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadVEDTable reads a tax-band table from a YAML file.
func LoadVEDTable(path string) (*ved.Table, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	var table ved.Table
	if err := k.UnmarshalWithConf("", &table, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &table, nil
}
