// Package service wires the pipeline stages into one run: ingest,
// resolve, aggregate, classify, join, and publish.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kerbstat/kerbstat/internal/adapters/join"
	"github.com/kerbstat/kerbstat/internal/adapters/metricsdb"
	"github.com/kerbstat/kerbstat/internal/adapters/publish"
	"github.com/kerbstat/kerbstat/internal/adapters/source"
	"github.com/kerbstat/kerbstat/internal/config"
	"github.com/kerbstat/kerbstat/internal/domain/aggregate"
	"github.com/kerbstat/kerbstat/internal/domain/alias"
	"github.com/kerbstat/kerbstat/internal/domain/failure"
	"github.com/kerbstat/kerbstat/internal/domain/identity"
	"github.com/kerbstat/kerbstat/internal/domain/model"
	"github.com/kerbstat/kerbstat/internal/domain/ved"
	"github.com/kerbstat/kerbstat/pkg/logger"
	"github.com/kerbstat/kerbstat/pkg/metrics"
)

// countingResolver instruments alias resolution outcomes.
type countingResolver struct {
	inner *alias.Resolver
}

func (c *countingResolver) Resolve(rawMake, rawModel string) model.Identity {
	id, match := c.inner.ResolveDetail(rawMake, rawModel)
	switch match {
	case alias.MatchExact:
		metrics.AliasExact()
	case alias.MatchFuzzy:
		metrics.AliasFuzzy()
	case alias.MatchNone:
		metrics.AliasUnresolved()
	}
	return id
}

// RunSummary reports what one pipeline run did.
type RunSummary struct {
	RunID        string
	Capabilities source.Capabilities

	RecordsLoaded    int
	RecordsDropped   int
	AgeUnknown       int
	AgeDegraded      int
	MileageDiscarded int

	Cohorts    int
	MetricRows int

	FailureMode model.FailureShareMode

	Published int
	Skipped   int
	Shards    map[int]publish.ShardCounts

	Duration time.Duration
}

// Service runs the cohort pipeline end to end.
type Service struct {
	cfg *config.Config

	// Logging
	logger logger.Logger

	// Overridable for tests
	similarity identity.Similarity
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithSimilarity replaces the fuzzy-match scorer used for alias
// resolution.
func WithSimilarity(sim identity.Similarity) Option {
	return func(s *Service) {
		s.similarity = sim
	}
}

// New constructs a Service for one configuration.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("pipeline")
	}
	return s
}

// Run executes the pipeline once. Optional sources degrade the output
// rather than failing the run; only the primary record source, the
// output tree, and the metrics sink can abort it.
func (s *Service) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{RunID: uuid.NewString()}
	log := s.logger
	cfg := s.cfg

	log.Info(ctx, "starting pipeline run", logger.String("run_id", summary.RunID))

	caps := source.Probe(ctx, log, cfg.Paths())
	summary.Capabilities = caps

	records, recStats, err := s.ingest(ctx, caps)
	if err != nil {
		return nil, err
	}
	summary.RecordsLoaded = recStats.Loaded
	summary.RecordsDropped = recStats.Dropped
	metrics.RecordLoaded(recStats.Loaded)
	metrics.RecordDropped(recStats.Dropped)

	resolver, err := s.buildResolver(ctx, caps)
	if err != nil {
		return nil, err
	}

	rows, aggStats := s.aggregate(records, resolver)
	summary.AgeUnknown = aggStats.AgeUnknown
	summary.AgeDegraded = aggStats.AgeDegraded
	summary.MileageDiscarded = aggStats.MileageDiscarded
	summary.Cohorts = len(aggStats.CohortTotals)
	summary.MetricRows = len(rows)
	metrics.MileageDiscarded(aggStats.MileageDiscarded)
	metrics.SetCohortCount(len(aggStats.CohortTotals))
	metrics.SetMetricRows(len(rows))
	log.Info(ctx, "aggregation complete",
		logger.Int("cohorts", len(aggStats.CohortTotals)),
		logger.Int("metric_rows", len(rows)),
		logger.Int("age_unknown", aggStats.AgeUnknown),
		logger.Int("age_degraded", aggStats.AgeDegraded),
	)

	shares, mode := s.failureShares(ctx, caps, &aggStats)
	summary.FailureMode = mode
	summary.Capabilities.FailureLinkage = mode == model.ShareModeLinked

	joiner, err := s.buildJoiner(ctx, caps, resolver)
	if err != nil {
		return nil, err
	}

	rows = s.filterRows(rows)

	if cfg.MetricsDBPath != "" {
		if err := s.sinkMetrics(ctx, summary.RunID, rows); err != nil {
			return nil, err
		}
	}

	pub := publish.New(cfg.OutputDir,
		publish.WithShard(cfg.ShardIndex, cfg.ShardCount),
		publish.WithWorkers(cfg.WorkerCount),
		publish.WithRunID(summary.RunID),
		publish.WithSource(cfg.Source),
		publish.WithLogger(log.Named("publish")),
	)
	pubStart := time.Now()
	pubSummary, err := pub.Publish(ctx, rows, shares, joiner)
	metrics.ObserveStage("publish", time.Since(pubStart).Seconds())
	if err != nil && !errors.Is(err, publish.ErrNoCohorts) {
		return nil, fmt.Errorf("publishing cohorts: %w", err)
	}
	if errors.Is(err, publish.ErrNoCohorts) {
		log.Warn(ctx, "no cohorts survived filtering; nothing published")
	}
	summary.Published = pubSummary.Published
	summary.Skipped = pubSummary.Skipped
	summary.Shards = pubSummary.Shards

	summary.Duration = time.Since(start)
	log.Info(ctx, "pipeline run finished",
		logger.String("run_id", summary.RunID),
		logger.Int("published", summary.Published),
		logger.Int("skipped", summary.Skipped),
		logger.Any("duration", summary.Duration),
	)
	return summary, nil
}

func (s *Service) ingest(ctx context.Context, caps source.Capabilities) ([]model.RawRecord, source.RecordStats, error) {
	start := time.Now()
	defer func() { metrics.ObserveStage("ingest", time.Since(start).Seconds()) }()

	var fuelLookup map[string]string
	if caps.FuelLookup {
		lookup, err := source.LoadFuelLookup(s.cfg.FuelLookupPath)
		if err != nil {
			s.logger.Warn(ctx, "fuel lookup unusable, falling back to built-in codes", logger.Error(err))
		} else {
			fuelLookup = lookup
		}
	}

	records, stats, err := source.LoadRecords(s.cfg.RecordsPath, fuelLookup)
	if err != nil {
		return nil, stats, fmt.Errorf("loading records: %w", err)
	}
	s.logger.Info(ctx, "records loaded",
		logger.Int("loaded", stats.Loaded),
		logger.Int("dropped", stats.Dropped),
	)
	return records, stats, nil
}

func (s *Service) buildResolver(ctx context.Context, caps source.Capabilities) (*countingResolver, error) {
	var rules []alias.Rule
	if caps.AliasTable {
		loaded, err := source.LoadAliasRules(s.cfg.AliasPath)
		if err != nil {
			s.logger.Warn(ctx, "alias table unusable, resolving without aliases", logger.Error(err))
		} else {
			rules = loaded
		}
	}

	opts := []alias.Option{alias.WithThreshold(s.cfg.FuzzyThreshold)}
	if s.similarity != nil {
		opts = append(opts, alias.WithSimilarity(s.similarity))
	}
	resolver, err := alias.Load(rules, opts...)
	if err != nil {
		return nil, fmt.Errorf("building alias resolver: %w", err)
	}
	s.logger.Info(ctx, "alias resolver ready", logger.Int("aliases", resolver.Len()))
	return &countingResolver{inner: resolver}, nil
}

func (s *Service) aggregate(records []model.RawRecord, resolver aggregate.Resolver) ([]model.CohortMetric, aggregate.Stats) {
	start := time.Now()
	defer func() { metrics.ObserveStage("aggregate", time.Since(start).Seconds()) }()

	agg := aggregate.New(resolver,
		aggregate.WithMaxAge(s.cfg.MaxAge),
		aggregate.WithSampleCap(s.cfg.SampleCap),
	)
	return agg.Aggregate(records)
}

// failureShares decides the share mode once per run: linked when the
// failure items carry test identifiers that join to records, global
// otherwise. The two are never blended.
func (s *Service) failureShares(ctx context.Context, caps source.Capabilities, aggStats *aggregate.Stats) ([]model.FailureShare, model.FailureShareMode) {
	if !caps.FailureLookup || !caps.FailureItems {
		return nil, ""
	}
	start := time.Now()
	defer func() { metrics.ObserveStage("classify", time.Since(start).Seconds()) }()

	lookup, err := source.LoadFailureLookup(s.cfg.FailureLookupPath)
	if err != nil {
		s.logger.Warn(ctx, "failure lookup unusable, skipping failure shares", logger.Error(err))
		return nil, ""
	}
	rawItems, hasLinkage, err := source.LoadFailureItems(s.cfg.FailureItemsPath)
	if err != nil {
		s.logger.Warn(ctx, "failure items unusable, skipping failure shares", logger.Error(err))
		return nil, ""
	}

	classifier := failure.NewClassifier(lookup)

	mode := model.ShareModeGlobal
	items := make([]failure.Item, 0, len(rawItems))
	if hasLinkage {
		mode = model.ShareModeLinked
		for _, raw := range rawItems {
			cohort, ok := aggStats.CohortByTest[raw.TestID]
			if !ok {
				continue
			}
			items = append(items, failure.Item{Cohort: cohort, Code: raw.Code})
		}
	} else {
		for _, raw := range rawItems {
			items = append(items, failure.Item{Code: raw.Code})
		}
	}

	cohorts := make([]model.Cohort, 0, len(aggStats.CohortTotals))
	for cohort := range aggStats.CohortTotals {
		cohorts = append(cohorts, cohort)
	}
	shares := classifier.ComputeShares(items, mode, cohorts)
	s.logger.Info(ctx, "failure shares computed",
		logger.String("mode", string(mode)),
		logger.Int("items", len(items)),
		logger.Int("cohorts_with_shares", len(shares)),
	)
	return shares, mode
}

func (s *Service) buildJoiner(ctx context.Context, caps source.Capabilities, resolver join.Resolver) (*join.Joiner, error) {
	start := time.Now()
	defer func() { metrics.ObserveStage("join", time.Since(start).Seconds()) }()

	var recalls []source.RecallRow
	if caps.Recalls {
		rows, err := source.LoadRecalls(s.cfg.RecallsPath)
		if err != nil {
			s.logger.Warn(ctx, "recall source unusable, publishing without recalls", logger.Error(err))
		} else {
			recalls = rows
		}
	}

	var emissions []source.EmissionsRow
	if caps.Emissions {
		rows, err := source.LoadEmissions(s.cfg.EmissionsPath)
		if err != nil {
			s.logger.Warn(ctx, "emissions source unusable, publishing without emissions", logger.Error(err))
		} else {
			emissions = rows
		}
	}

	var opts []join.Option
	if caps.VEDTable {
		table, err := s.loadVEDTable()
		if err != nil {
			s.logger.Warn(ctx, "tax table unusable, quoting as unknown", logger.Error(err))
		} else {
			opts = append(opts, join.WithVEDTable(table))
		}
	}

	return join.New(resolver, recalls, emissions, opts...), nil
}

func (s *Service) loadVEDTable() (*ved.Table, error) {
	return config.LoadVEDTable(s.cfg.VEDTablePath)
}

// filterRows applies the configured cohort filters and cap.
func (s *Service) filterRows(rows []model.CohortMetric) []model.CohortMetric {
	cfg := s.cfg
	makeFilter := identity.Normalize(cfg.MakeFilter)
	modelFilter := identity.Normalize(cfg.ModelFilter)

	filtered := rows[:0:0]
	for _, row := range rows {
		if makeFilter != "" && row.Cohort.Make != makeFilter {
			continue
		}
		if modelFilter != "" && row.Cohort.Model != modelFilter {
			continue
		}
		if cfg.YearFrom != 0 && row.Cohort.FirstRegYear < cfg.YearFrom {
			continue
		}
		if cfg.YearTo != 0 && row.Cohort.FirstRegYear > cfg.YearTo {
			continue
		}
		filtered = append(filtered, row)
	}

	if cfg.CohortCap <= 0 {
		return filtered
	}
	// Rows arrive cohort-sorted, so the cap keeps whole leading cohorts.
	kept := make(map[model.Cohort]struct{})
	capped := filtered[:0:0]
	for _, row := range filtered {
		if _, ok := kept[row.Cohort]; !ok {
			if len(kept) == cfg.CohortCap {
				continue
			}
			kept[row.Cohort] = struct{}{}
		}
		capped = append(capped, row)
	}
	return capped
}

func (s *Service) sinkMetrics(ctx context.Context, runID string, rows []model.CohortMetric) error {
	start := time.Now()
	defer func() { metrics.ObserveStage("sink", time.Since(start).Seconds()) }()

	store, err := metricsdb.Open(ctx, s.cfg.MetricsDBPath)
	if err != nil {
		return fmt.Errorf("opening metrics sink: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.WriteMetrics(ctx, runID, rows); err != nil {
		return fmt.Errorf("writing metric rows: %w", err)
	}
	s.logger.Info(ctx, "metric rows written",
		logger.String("db", s.cfg.MetricsDBPath),
		logger.Int("rows", len(rows)),
	)
	return nil
}

// DiscoverAliases scans the primary record source for uncurated
// make/model pairs and appends seed rules for them to the alias table.
// It returns the new rules in first-sighting order.
func (s *Service) DiscoverAliases(ctx context.Context) ([]alias.Rule, error) {
	caps := source.Probe(ctx, s.logger, s.cfg.Paths())

	var fuelLookup map[string]string
	if caps.FuelLookup {
		if lookup, err := source.LoadFuelLookup(s.cfg.FuelLookupPath); err == nil {
			fuelLookup = lookup
		}
	}
	records, _, err := source.LoadRecords(s.cfg.RecordsPath, fuelLookup)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}

	var existing []alias.Rule
	if caps.AliasTable {
		if rules, err := source.LoadAliasRules(s.cfg.AliasPath); err == nil {
			existing = rules
		}
	}

	observed := make([]alias.RawPair, 0, len(records))
	for i := range records {
		observed = append(observed, alias.RawPair{Make: records[i].Make, Model: records[i].Model})
	}
	discovered := alias.Discover(observed, existing)
	if len(discovered) == 0 {
		s.logger.Info(ctx, "no new make/model pairs to seed")
		return nil, nil
	}

	if s.cfg.AliasPath == "" {
		return nil, fmt.Errorf("alias discovery needs alias_path to append to")
	}
	if err := source.AppendAliasRules(s.cfg.AliasPath, discovered); err != nil {
		return nil, fmt.Errorf("appending alias rules: %w", err)
	}
	s.logger.Info(ctx, "alias rules seeded", logger.Int("rules", len(discovered)))
	return discovered, nil
}
