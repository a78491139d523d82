// Package publish assembles cohort documents and writes them to a
// sharded output tree. Cohorts are partitioned across shards by a
// stable hash of their identity, so independent runs given distinct
// shard indices produce disjoint, jointly exhaustive outputs.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/kerbstat/kerbstat/internal/domain/identity"
	"github.com/kerbstat/kerbstat/internal/domain/model"
	"github.com/kerbstat/kerbstat/pkg/logger"
	"github.com/kerbstat/kerbstat/pkg/metrics"
)

const (
	defaultShardCount = 1
	defaultWorkers    = 4

	// AllShards selects every shard for a single-process run.
	AllShards = -1
)

// Signaler supplies the optional external panels for a cohort.
type Signaler interface {
	Join(id model.Identity, firstRegYear int) model.ExternalSignal
}

// Publisher writes cohort documents under an output directory as
// <make-slug>/<model-slug>/<year>.json.
type Publisher struct {
	outDir     string
	shardCount int
	shardIndex int
	workers    int
	runID      string
	source     string
	log        logger.Logger
}

// Options configure a Publisher.
type Options func(*Publisher)

// WithShard restricts a run to one shard of a shardCount-way
// partition. Pass AllShards as index to publish every shard.
func WithShard(index, count int) Options {
	return func(p *Publisher) {
		if count > 0 {
			p.shardCount = count
		}
		p.shardIndex = index
	}
}

// WithWorkers sets the number of concurrent shard workers.
func WithWorkers(n int) Options {
	return func(p *Publisher) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithRunID stamps documents with a run identifier.
func WithRunID(id string) Options {
	return func(p *Publisher) { p.runID = id }
}

// WithSource stamps documents with the ingestion source name.
func WithSource(source string) Options {
	return func(p *Publisher) { p.source = source }
}

// WithLogger overrides the package-named global logger.
func WithLogger(log logger.Logger) Options {
	return func(p *Publisher) { p.log = log }
}

// New creates a Publisher writing under outDir.
func New(outDir string, opts ...Options) *Publisher {
	p := &Publisher{
		outDir:     outDir,
		shardCount: defaultShardCount,
		shardIndex: AllShards,
		workers:    defaultWorkers,
		log:        logger.Named("publish"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShardIndex returns the shard a cohort identity belongs to. The hash
// covers only the identity, so every first-registration year of one
// model lands on the same shard.
func (p *Publisher) ShardIndex(id model.Identity) int {
	return int(xxhash.Sum64String(id.Make+"|"+id.Model) % uint64(p.shardCount))
}

// ShardCounts holds per-shard publish outcomes.
type ShardCounts struct {
	Published int
	Skipped   int
}

// Summary reports what one publish run wrote.
type Summary struct {
	Published int
	Skipped   int
	Shards    map[int]ShardCounts
}

type cohortJob struct {
	cohort model.Cohort
	shard  int
	curve  []model.CohortMetric
}

type cohortResult struct {
	shard     int
	published bool
}

// Publish assembles and writes one document per cohort present in
// metrics. A cohort that cannot be assembled or written is logged and
// skipped; only infrastructure failures (output directory unusable,
// context cancelled) abort the run.
func (p *Publisher) Publish(ctx context.Context, rows []model.CohortMetric, shares []model.FailureShare, sig Signaler) (Summary, error) {
	summary := Summary{Shards: make(map[int]ShardCounts)}
	if len(rows) == 0 {
		return summary, ErrNoCohorts
	}
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return summary, fmt.Errorf("creating output dir: %w", err)
	}

	byCohort := make(map[model.Cohort][]model.CohortMetric)
	for _, row := range rows {
		byCohort[row.Cohort] = append(byCohort[row.Cohort], row)
	}
	shareByCohort := make(map[model.Cohort]*model.FailureShare, len(shares))
	for i := range shares {
		shareByCohort[shares[i].Cohort] = &shares[i]
	}

	jobs := make(chan cohortJob)
	results := make(chan cohortResult, len(byCohort))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- cohortResult{
					shard:     job.shard,
					published: p.publishOne(ctx, job, shareByCohort[job.cohort], sig),
				}
			}
		}()
	}

	// Deterministic feed order keeps logs stable across runs.
	cohorts := make([]model.Cohort, 0, len(byCohort))
	for cohort := range byCohort {
		cohorts = append(cohorts, cohort)
	}
	sort.Slice(cohorts, func(i, j int) bool { return lessCohort(cohorts[i], cohorts[j]) })

	dispatched := 0
feed:
	for _, cohort := range cohorts {
		shard := p.ShardIndex(cohort.Identity)
		if p.shardIndex != AllShards && shard != p.shardIndex {
			continue
		}
		select {
		case jobs <- cohortJob{cohort: cohort, shard: shard, curve: byCohort[cohort]}:
			dispatched++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	for res := range results {
		counts := summary.Shards[res.shard]
		if res.published {
			counts.Published++
			summary.Published++
			metrics.CohortPublished(res.shard)
		} else {
			counts.Skipped++
			summary.Skipped++
			metrics.CohortSkipped(res.shard)
		}
		summary.Shards[res.shard] = counts
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("publish interrupted after %d cohorts: %w", dispatched, err)
	}
	return summary, nil
}

func (p *Publisher) publishOne(ctx context.Context, job cohortJob, share *model.FailureShare, sig Signaler) bool {
	meta := model.DocumentMeta{
		RunID:  p.runID,
		Source: p.source,
		Shard:  job.shard,
	}
	var signal model.ExternalSignal
	if sig != nil {
		signal = sig.Join(job.cohort.Identity, job.cohort.FirstRegYear)
	}
	doc, err := Assemble(job.cohort, job.curve, share, signal, meta)
	if err != nil {
		p.log.Warn(ctx, "skipping cohort",
			logger.String("make", job.cohort.Make),
			logger.String("model", job.cohort.Model),
			logger.Int("first_reg_year", job.cohort.FirstRegYear),
			logger.Int("shard", job.shard),
			logger.Error(err))
		return false
	}
	if err := p.write(doc); err != nil {
		p.log.Warn(ctx, "skipping cohort",
			logger.String("make", job.cohort.Make),
			logger.String("model", job.cohort.Model),
			logger.Int("first_reg_year", job.cohort.FirstRegYear),
			logger.Int("shard", job.shard),
			logger.Error(err))
		return false
	}
	return true
}

func (p *Publisher) write(doc *model.CohortDocument) error {
	dir := filepath.Join(p.outDir, doc.MakeSlug, doc.ModelSlug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cohort dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.json", doc.FirstRegYear))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

// DocumentPath returns where a cohort's document lands under outDir.
func (p *Publisher) DocumentPath(cohort model.Cohort) string {
	return filepath.Join(p.outDir,
		identity.Slugify(cohort.Make),
		identity.Slugify(cohort.Model),
		fmt.Sprintf("%d.json", cohort.FirstRegYear))
}

func lessCohort(a, b model.Cohort) bool {
	if a.Make != b.Make {
		return a.Make < b.Make
	}
	if a.Model != b.Model {
		return a.Model < b.Model
	}
	return a.FirstRegYear < b.FirstRegYear
}
