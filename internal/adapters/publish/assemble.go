package publish

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kerbstat/kerbstat/internal/domain/identity"
	"github.com/kerbstat/kerbstat/internal/domain/model"
)

// maxFailureBuckets caps the published failure mix at the largest
// shares.
const maxFailureBuckets = 5

// Assemble builds the published document for one cohort from its
// age-ordered metric rows, failure share, and external signal.
// It fails when the cohort cannot produce a well-formed document;
// callers log and skip, they do not abort the run.
func Assemble(cohort model.Cohort, curve []model.CohortMetric, share *model.FailureShare, sig model.ExternalSignal, meta model.DocumentMeta) (*model.CohortDocument, error) {
	if len(curve) == 0 {
		return nil, fmt.Errorf("cohort %s %s %d: empty metric curve",
			cohort.Make, cohort.Model, cohort.FirstRegYear)
	}
	makeSlug := identity.Slugify(cohort.Make)
	modelSlug := identity.Slugify(cohort.Model)
	if makeSlug == "" || modelSlug == "" {
		return nil, fmt.Errorf("cohort %q %q %d: identity does not slug",
			cohort.Make, cohort.Model, cohort.FirstRegYear)
	}

	doc := &model.CohortDocument{
		Make:         displayName(cohort.Make),
		Model:        displayName(cohort.Model),
		MakeSlug:     makeSlug,
		ModelSlug:    modelSlug,
		FirstRegYear: cohort.FirstRegYear,
		Meta:         meta,
	}

	points := buildCurve(curve)
	doc.Curve = points
	doc.Fuels = observedFuels(curve, sig)
	if share != nil {
		doc.FailureMix = topBuckets(share.Shares)
		doc.Meta.FailureMode = share.Mode
	}
	doc.Emissions = emissionsPanels(sig.Emissions)
	doc.Recalls = recallPanels(sig.Recalls)

	return doc, nil
}

// buildCurve merges per-fuel rows of the same age into one point and
// orders the curve by age.
func buildCurve(curve []model.CohortMetric) []model.CurvePoint {
	type ageAgg struct {
		tests, passes int
		mileage       *model.MileagePanel
		mileageTests  int
	}
	byAge := make(map[int]*ageAgg)
	for i := range curve {
		m := &curve[i]
		agg := byAge[m.Age]
		if agg == nil {
			agg = &ageAgg{}
			byAge[m.Age] = agg
		}
		agg.tests += m.Tests
		agg.passes += m.Passes
		// Keep the percentiles of the biggest contributing group;
		// cross-fuel percentile merging would need the raw samples.
		if m.HasMileage && m.Tests > agg.mileageTests {
			agg.mileage = &model.MileagePanel{P50: m.P50, P75: m.P75, P90: m.P90}
			agg.mileageTests = m.Tests
		}
	}

	ages := make([]int, 0, len(byAge))
	for age := range byAge {
		ages = append(ages, age)
	}
	sort.Ints(ages)

	points := make([]model.CurvePoint, 0, len(ages))
	for _, age := range ages {
		agg := byAge[age]
		points = append(points, model.CurvePoint{
			Age:      age,
			Tests:    agg.tests,
			PassRate: round3(float64(agg.passes) / float64(agg.tests)),
			Mileage:  agg.mileage,
		})
	}
	return points
}

// observedFuels unions the fuel types seen in test records and
// emissions panels.
func observedFuels(curve []model.CohortMetric, sig model.ExternalSignal) []string {
	set := make(map[string]struct{})
	for i := range curve {
		if f := strings.ToLower(curve[i].FuelType); f != "" {
			set[f] = struct{}{}
		}
	}
	for _, v := range sig.Emissions {
		if f := strings.ToLower(v.FuelType); f != "" {
			set[f] = struct{}{}
		}
	}
	fuels := make([]string, 0, len(set))
	for f := range set {
		fuels = append(fuels, f)
	}
	sort.Strings(fuels)
	return fuels
}

// topBuckets keeps the largest positive shares, biggest first.
func topBuckets(shares map[string]float64) []model.FailureBucket {
	buckets := make([]model.FailureBucket, 0, len(shares))
	for bucket, share := range shares {
		if share > 0 {
			buckets = append(buckets, model.FailureBucket{Bucket: bucket, Share: round3(share)})
		}
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Share != buckets[j].Share {
			return buckets[i].Share > buckets[j].Share
		}
		return buckets[i].Bucket < buckets[j].Bucket
	})
	if len(buckets) > maxFailureBuckets {
		buckets = buckets[:maxFailureBuckets]
	}
	return buckets
}

func emissionsPanels(variants []model.EmissionsVariant) []model.EmissionsPanel {
	panels := make([]model.EmissionsPanel, 0, len(variants))
	for _, v := range variants {
		p := model.EmissionsPanel{
			Fuel:      v.FuelType,
			CO2GKm:    v.CO2GKm,
			TestCycle: v.TestCycle,
		}
		if v.MPG > 0 {
			mpg := v.MPG
			p.MPG = &mpg
		}
		if v.VED.Known {
			p.VEDBand = v.VED.Band
			annual := v.VED.Annual
			p.VEDAnnual = &annual
			if v.VED.FirstYear > 0 {
				firstYear := v.VED.FirstYear
				p.VEDFirstYear = &firstYear
			}
		}
		panels = append(panels, p)
	}
	return panels
}

func recallPanels(events []model.RecallEvent) []model.RecallPanel {
	panels := make([]model.RecallPanel, 0, len(events))
	for _, e := range events {
		panels = append(panels, model.RecallPanel{Year: e.Year, Count: e.Count})
	}
	return panels
}

// displayName title-cases a canonical identity string for display.
func displayName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w[0] >= 'a' && w[0] <= 'z' {
			words[i] = string(w[0]-'a'+'A') + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
