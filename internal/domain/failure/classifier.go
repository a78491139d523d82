// Package failure classifies inspection failure codes into a closed
// category set and computes per-cohort failure shares.
package failure

import (
	"strings"

	"github.com/kerbstat/kerbstat/internal/domain/model"
)

// CategoryOther is the default bucket for unclassifiable codes.
const CategoryOther = "other"

// categoryBySection maps the leading dotted-section digit of a defect
// item to its high-level bucket.
var categoryBySection = map[string]string{
	"1": "brakes",
	"2": "steering",
	"3": "visibility",
	"4": "lights",
	"5": "axles_wheels_tyres_suspension",
	"6": "body_structure",
	"7": "other_equipment",
	"8": "emissions",
}

// Categories returns the closed category set including CategoryOther.
func Categories() []string {
	out := make([]string, 0, len(categoryBySection)+1)
	for _, c := range categoryBySection {
		out = append(out, c)
	}
	return append(out, CategoryOther)
}

// Classifier maps failure codes to categories through a code -> section
// lookup table. The zero value classifies everything as other.
type Classifier struct {
	sectionByCode map[string]string
}

// NewClassifier builds a classifier from failure-code metadata rows
// mapping each code to its section string, e.g. "1.2.3 (a) (ii)".
func NewClassifier(sectionByCode map[string]string) *Classifier {
	c := &Classifier{sectionByCode: make(map[string]string, len(sectionByCode))}
	for code, section := range sectionByCode {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		c.sectionByCode[code] = strings.TrimSpace(section)
	}
	return c
}

// Classify is total: any code, known or not, yields a category.
func (c *Classifier) Classify(code string) string {
	section, ok := c.sectionByCode[strings.TrimSpace(code)]
	if !ok {
		return CategoryOther
	}
	head, _, _ := strings.Cut(section, ".")
	if cat, ok := categoryBySection[strings.TrimSpace(head)]; ok {
		return cat
	}
	return CategoryOther
}

// Item is one failure/defect occurrence to be shared out. Cohort is
// only meaningful when per-test linkage resolved it; in global mode it
// is ignored.
type Item struct {
	Cohort model.Cohort
	Code   string
}

// ComputeShares turns failure items into per-cohort category shares.
//
// In ShareModeLinked every item carries the cohort its test record
// resolved to, and shares are category_count / cohort_total, summing
// to 1 per cohort. In ShareModeGlobal one distribution over all items
// is broadcast to every cohort in cohorts and flagged as an
// approximation. The mode is decided once per run by linkage
// availability; the two are never blended.
func (c *Classifier) ComputeShares(items []Item, mode model.FailureShareMode, cohorts []model.Cohort) []model.FailureShare {
	if len(items) == 0 {
		return nil
	}

	if mode == model.ShareModeGlobal {
		global := c.distribution(items)
		out := make([]model.FailureShare, 0, len(cohorts))
		for _, cohort := range cohorts {
			out = append(out, model.FailureShare{
				Cohort: cohort,
				Mode:   model.ShareModeGlobal,
				Shares: copyShares(global),
			})
		}
		return out
	}

	byCohort := make(map[model.Cohort][]Item)
	for _, it := range items {
		byCohort[it.Cohort] = append(byCohort[it.Cohort], it)
	}
	out := make([]model.FailureShare, 0, len(byCohort))
	for cohort, cohortItems := range byCohort {
		out = append(out, model.FailureShare{
			Cohort: cohort,
			Mode:   model.ShareModeLinked,
			Shares: c.distribution(cohortItems),
		})
	}
	return out
}

// distribution computes category counts over items normalized to
// fractions of the total.
func (c *Classifier) distribution(items []Item) map[string]float64 {
	counts := make(map[string]int)
	for _, it := range items {
		counts[c.Classify(it.Code)]++
	}
	shares := make(map[string]float64, len(counts))
	total := float64(len(items))
	for cat, n := range counts {
		shares[cat] = float64(n) / total
	}
	return shares
}

func copyShares(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
