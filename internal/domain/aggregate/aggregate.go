// Package aggregate folds inspection records into per-cohort,
// age-indexed pass-rate and mileage statistics.
package aggregate

import (
	"math"
	"math/rand"
	"sort"

	"github.com/kerbstat/kerbstat/internal/domain/model"
)

// Default aggregation configuration constants.
const (
	defaultMaxAge      = 40
	defaultSampleCap   = 4096   // per-key reservoir bound for percentiles
	maxPlausibleKMiles = 500.0  // readings above this are unknown
	kmPerMile          = 1.609344
	daysPerYear        = 365.25
	reservoirSeed      = 1
)

// groupKey identifies one accumulator.
type groupKey struct {
	cohort model.Cohort
	age    int
	fuel   string
}

// accumulator is the per-key running aggregate of the single-pass fold.
type accumulator struct {
	tests   int
	passes  int
	mileage []float64 // bounded sample, thousand miles
	seen    int       // mileage readings offered, for reservoir sampling
}

// Stats reports what the fold did with its input.
type Stats struct {
	Records          int
	AgeUnknown       int // excluded from age-indexed curves
	AgeDegraded      int // age derived from years only or test year alone
	MileageDiscarded int // non-positive or implausible readings
	CohortTotals     map[model.Cohort]int

	// CohortByTest maps shared test identifiers to the cohort their
	// record folded into, for joining per-test failure items.
	CohortByTest map[string]model.Cohort
}

// Aggregator folds records into cohort metrics. Zero value is not
// usable; construct with New.
type Aggregator struct {
	resolver  Resolver
	maxAge    int
	sampleCap int
	rng       *rand.Rand
}

// Resolver maps raw make/model text to a canonical identity.
type Resolver interface {
	Resolve(rawMake, rawModel string) model.Identity
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithMaxAge sets the age clamp for age-indexed curves.
func WithMaxAge(maxAge int) Option {
	return func(a *Aggregator) {
		if maxAge > 0 {
			a.maxAge = maxAge
		}
	}
}

// WithSampleCap bounds the per-key mileage sample used for percentile
// estimation.
func WithSampleCap(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.sampleCap = n
		}
	}
}

// New creates an Aggregator resolving identities through the given
// resolver.
func New(resolver Resolver, opts ...Option) *Aggregator {
	a := &Aggregator{
		resolver:  resolver,
		maxAge:    defaultMaxAge,
		sampleCap: defaultSampleCap,
		rng:       rand.New(rand.NewSource(reservoirSeed)), //nolint:gosec // deterministic sampling, not crypto
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate performs a single pass over the records, folding each one
// into a per-key running aggregate. Keys with no tests are never
// emitted; records whose age cannot be placed on a curve still count
// toward their cohort total.
func (a *Aggregator) Aggregate(records []model.RawRecord) ([]model.CohortMetric, Stats) {
	groups := make(map[groupKey]*accumulator)
	stats := Stats{
		CohortTotals: make(map[model.Cohort]int),
		CohortByTest: make(map[string]model.Cohort),
	}

	for i := range records {
		rec := &records[i]
		stats.Records++

		id := a.resolver.Resolve(rec.Make, rec.Model)
		age, source := a.deriveAge(rec)
		year := firstRegYear(rec, age, source)
		cohort := model.Cohort{Identity: id, FirstRegYear: year}
		stats.CohortTotals[cohort]++
		if rec.TestID != "" {
			stats.CohortByTest[rec.TestID] = cohort
		}

		if source == model.AgeSourceUnknown || source == model.AgeSourceTestYearOnly {
			// No usable age; contributes to the cohort total only.
			stats.AgeUnknown++
			continue
		}
		if source == model.AgeSourceYearDiff {
			stats.AgeDegraded++
		}

		key := groupKey{cohort: cohort, age: age, fuel: rec.FuelType}
		acc := groups[key]
		if acc == nil {
			acc = &accumulator{}
			groups[key] = acc
		}

		acc.tests++
		if rec.Result == model.ResultPass {
			acc.passes++
		}

		if miles, ok := a.usableMileage(rec); ok {
			a.sample(acc, miles)
		} else if rec.Odometer != 0 {
			stats.MileageDiscarded++
		}
	}

	out := make([]model.CohortMetric, 0, len(groups))
	for key, acc := range groups {
		m := model.CohortMetric{
			Cohort:   key.cohort,
			Age:      key.age,
			FuelType: key.fuel,
			Tests:    acc.tests,
			Passes:   acc.passes,
			PassRate: float64(acc.passes) / float64(acc.tests),
		}
		if len(acc.mileage) > 0 {
			sort.Float64s(acc.mileage)
			m.HasMileage = true
			m.P50 = percentile(acc.mileage, 50)
			m.P75 = percentile(acc.mileage, 75)
			m.P90 = percentile(acc.mileage, 90)
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return lessMetric(&out[i], &out[j]) })
	return out, stats
}

// deriveAge returns the record's age at test and how it was obtained.
// Priority: both dates, then the explicit age field, then year
// difference, then the bare test year (unusable for curves).
func (a *Aggregator) deriveAge(rec *model.RawRecord) (int, model.AgeSource) {
	if !rec.TestDate.IsZero() && !rec.FirstRegDate.IsZero() {
		days := rec.TestDate.Sub(rec.FirstRegDate).Hours() / 24
		// Nearest year, so a test a few weeks short of an anniversary
		// lands in the anniversary's age bucket.
		age := int(math.Floor(days/daysPerYear + 0.5))
		return clampAge(age, a.maxAge), model.AgeSourceDates
	}
	if rec.AgeAtTest >= 0 {
		return clampAge(rec.AgeAtTest, a.maxAge), model.AgeSourceExplicit
	}
	if !rec.TestDate.IsZero() && rec.FirstRegYear > 0 {
		age := rec.TestDate.Year() - rec.FirstRegYear
		return clampAge(age, a.maxAge), model.AgeSourceYearDiff
	}
	if !rec.TestDate.IsZero() {
		return 0, model.AgeSourceTestYearOnly
	}
	return 0, model.AgeSourceUnknown
}

// firstRegYear picks the cohort year for a record.
func firstRegYear(rec *model.RawRecord, age int, source model.AgeSource) int {
	if !rec.FirstRegDate.IsZero() {
		return rec.FirstRegDate.Year()
	}
	if rec.FirstRegYear > 0 {
		return rec.FirstRegYear
	}
	if rec.TestDate.IsZero() {
		return 0
	}
	testYear := rec.TestDate.Year()
	if source == model.AgeSourceExplicit {
		return testYear - age
	}
	return testYear
}

// usableMileage converts a reading to thousand miles and applies the
// plausibility bound. Out-of-bound readings are unknown, never zero.
func (a *Aggregator) usableMileage(rec *model.RawRecord) (float64, bool) {
	if rec.Odometer <= 0 {
		return 0, false
	}
	miles := rec.Odometer
	if rec.OdometerUnit == model.UnitKilometres {
		miles = rec.Odometer / kmPerMile
	}
	kMiles := miles / 1000
	if kMiles > maxPlausibleKMiles {
		return 0, false
	}
	return kMiles, true
}

// sample appends to a bounded per-key reservoir.
func (a *Aggregator) sample(acc *accumulator, v float64) {
	acc.seen++
	if len(acc.mileage) < a.sampleCap {
		acc.mileage = append(acc.mileage, v)
		return
	}
	if j := a.rng.Intn(acc.seen); j < a.sampleCap {
		acc.mileage[j] = v
	}
}

// percentile uses the nearest-rank method: the value at index
// ceil(p/100*n)-1 of the sorted sample. Ranks are monotone in p, so
// p50 <= p75 <= p90 holds whenever all three are defined.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func clampAge(age, maxAge int) int {
	if age < 0 {
		return 0
	}
	if age > maxAge {
		return maxAge
	}
	return age
}

func lessMetric(a, b *model.CohortMetric) bool {
	if a.Cohort.Make != b.Cohort.Make {
		return a.Cohort.Make < b.Cohort.Make
	}
	if a.Cohort.Model != b.Cohort.Model {
		return a.Cohort.Model < b.Cohort.Model
	}
	if a.Cohort.FirstRegYear != b.Cohort.FirstRegYear {
		return a.Cohort.FirstRegYear < b.Cohort.FirstRegYear
	}
	if a.Age != b.Age {
		return a.Age < b.Age
	}
	return a.FuelType < b.FuelType
}
