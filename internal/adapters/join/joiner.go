// Package join looks up optional external signal tables by cohort
// identity. Lookups are join-not-filter: a cohort with no matching
// rows gets an empty signal, never an error.
package join

import (
	"sort"
	"strings"
	"time"

	"github.com/kerbstat/kerbstat/internal/adapters/source"
	"github.com/kerbstat/kerbstat/internal/domain/model"
	"github.com/kerbstat/kerbstat/internal/domain/ved"
)

// Resolver maps raw make/model text to a canonical identity.
type Resolver interface {
	Resolve(rawMake, rawModel string) model.Identity
}

type variantKey struct {
	id   model.Identity
	year int
	fuel string
}

// variantAgg collects per-key emissions samples for median collapse.
type variantAgg struct {
	co2    []float64
	mpg    []float64
	price  []float64
	cycles map[string]int
}

// Joiner holds the indexed optional sources for one run. Build it once
// with New; it is immutable afterwards and safe for concurrent shard
// workers.
type Joiner struct {
	recalls   map[model.Identity]map[int]int
	variants  map[variantKey]model.EmissionsVariant
	vedTable  *ved.Table
	quoteYear int
}

// Option applies a configuration option to the Joiner.
type Option func(*Joiner)

// WithVEDTable enables tax-band quoting on emissions panels.
func WithVEDTable(t *ved.Table) Option {
	return func(j *Joiner) {
		j.vedTable = t
	}
}

// WithQuoteYear pins the year tax quotes are computed against. The
// default is the current calendar year.
func WithQuoteYear(year int) Option {
	return func(j *Joiner) {
		j.quoteYear = year
	}
}

// New indexes the optional sources by canonical identity. Either slice
// may be nil when its source is absent.
func New(resolver Resolver, recalls []source.RecallRow, emissions []source.EmissionsRow, opts ...Option) *Joiner {
	j := &Joiner{
		recalls:  make(map[model.Identity]map[int]int),
		variants: make(map[variantKey]model.EmissionsVariant),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.quoteYear == 0 {
		j.quoteYear = time.Now().UTC().Year()
	}

	for _, r := range recalls {
		id := resolver.Resolve(r.Make, r.Model)
		byYear := j.recalls[id]
		if byYear == nil {
			byYear = make(map[int]int)
			j.recalls[id] = byYear
		}
		byYear[r.Year] += r.Count
	}

	aggs := make(map[variantKey]*variantAgg)
	for _, e := range emissions {
		if e.CO2GKm <= 0 && e.MPG <= 0 {
			continue
		}
		id := resolver.Resolve(e.Make, e.Model)
		for year := e.YearFrom; year <= e.YearTo; year++ {
			key := variantKey{id: id, year: year, fuel: strings.ToLower(e.FuelType)}
			agg := aggs[key]
			if agg == nil {
				agg = &variantAgg{cycles: make(map[string]int)}
				aggs[key] = agg
			}
			if e.CO2GKm > 0 {
				agg.co2 = append(agg.co2, e.CO2GKm)
			}
			if e.MPG > 0 {
				agg.mpg = append(agg.mpg, e.MPG)
			}
			if e.ListPrice > 0 {
				agg.price = append(agg.price, e.ListPrice)
			}
			if e.TestCycle != "" {
				agg.cycles[e.TestCycle]++
			}
		}
	}
	for key, agg := range aggs {
		j.variants[key] = model.EmissionsVariant{
			FuelType:  key.fuel,
			CO2GKm:    median(agg.co2),
			MPG:       median(agg.mpg),
			TestCycle: modalCycle(agg.cycles),
			ListPrice: median(agg.price),
		}
	}

	return j
}

// Join returns the external signal for one cohort. Absent sources and
// unmatched identities produce empty panels.
func (j *Joiner) Join(id model.Identity, firstRegYear int) model.ExternalSignal {
	var sig model.ExternalSignal

	if byYear := j.recalls[id]; len(byYear) > 0 {
		years := make([]int, 0, len(byYear))
		for y := range byYear {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			sig.Recalls = append(sig.Recalls, model.RecallEvent{Year: y, Count: byYear[y]})
		}
	}

	fuels := make([]string, 0, 4)
	for key := range j.variants {
		if key.id == id && key.year == firstRegYear {
			fuels = append(fuels, key.fuel)
		}
	}
	sort.Strings(fuels)
	for _, fuel := range fuels {
		v := j.variants[variantKey{id: id, year: firstRegYear, fuel: fuel}]
		v.VED = j.quote(v, firstRegYear)
		sig.Emissions = append(sig.Emissions, v)
	}

	return sig
}

// quote computes the VED panel for one variant; without a configured
// rate table every quote is unknown.
func (j *Joiner) quote(v model.EmissionsVariant, firstRegYear int) model.VEDQuote {
	if j.vedTable == nil {
		return model.VEDQuote{}
	}
	expensive := j.vedTable.Expensive(v.ListPrice)
	return j.vedTable.Quote(v.CO2GKm, firstRegYear, j.quoteYear, v.FuelType, expensive)
}

// median of a sample; zero when empty. Even-sized samples take the
// lower middle, matching how the emissions source collapses variants.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return sorted[(len(sorted)-1)/2]
}

func modalCycle(counts map[string]int) string {
	best, bestN := "", 0
	for cycle, n := range counts {
		if n > bestN || (n == bestN && cycle < best) {
			best, bestN = cycle, n
		}
	}
	return best
}
