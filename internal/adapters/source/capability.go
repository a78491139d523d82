package source

import (
	"context"
	"os"

	"github.com/kerbstat/kerbstat/pkg/logger"
)

// Capabilities is the run's single descriptor of which optional inputs
// are present. It is computed once per run and consulted by every
// downstream component instead of per-call existence probing.
type Capabilities struct {
	AliasTable     bool
	FuelLookup     bool
	FailureLookup  bool
	FailureItems   bool
	FailureLinkage bool // shared test ids join failure items to tests
	Recalls        bool
	Emissions      bool
	VEDTable       bool
}

// Paths names the run's input files. Empty entries are absent sources.
type Paths struct {
	Records       string
	AliasTable    string
	FuelLookup    string
	FailureLookup string
	FailureItems  string
	Recalls       string
	Emissions     string
	VEDTable      string
}

// Probe checks which optional sources exist on disk. Linkage presence
// is filled in later by LoadFailureItems since it depends on content,
// not existence.
func Probe(ctx context.Context, log logger.Logger, paths Paths) Capabilities {
	caps := Capabilities{
		AliasTable:    fileExists(paths.AliasTable),
		FuelLookup:    fileExists(paths.FuelLookup),
		FailureLookup: fileExists(paths.FailureLookup),
		FailureItems:  fileExists(paths.FailureItems),
		Recalls:       fileExists(paths.Recalls),
		Emissions:     fileExists(paths.Emissions),
		VEDTable:      fileExists(paths.VEDTable),
	}
	log.Info(ctx, "probed optional sources",
		logger.Any("alias_table", caps.AliasTable),
		logger.Any("fuel_lookup", caps.FuelLookup),
		logger.Any("failure_lookup", caps.FailureLookup),
		logger.Any("failure_items", caps.FailureItems),
		logger.Any("recalls", caps.Recalls),
		logger.Any("emissions", caps.Emissions),
		logger.Any("ved_table", caps.VEDTable),
	)
	return caps
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
