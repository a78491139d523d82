package identity

import (
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Similarity scores how alike two normalized strings are on a 0-100
// scale. Implementations must be deterministic and symmetric; the
// acceptance threshold lives with the caller, not the metric.
type Similarity interface {
	Score(a, b string) float64
}

// TokenSetRatio scores by comparing the sorted token intersection
// against each side's sorted token union, taking the best of the three
// pairings. Word order and duplicate tokens do not matter, so
// "fiesta zetec s" and "s fiesta" compare high.
type TokenSetRatio struct {
	lev *metrics.Levenshtein
}

// NewTokenSetRatio creates the default similarity strategy.
func NewTokenSetRatio() *TokenSetRatio {
	return &TokenSetRatio{lev: metrics.NewLevenshtein()}
}

// Score implements Similarity.
func (t *TokenSetRatio) Score(a, b string) float64 {
	if a == b {
		return 100
	}
	setA := tokenSet(a)
	setB := tokenSet(b)
	// A side with no tokens (a model that was pure noise) has nothing
	// to compare against; the ratio degenerates to 0/0 otherwise.
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if _, ok := setA[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	fullA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	fullB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := strutil.Similarity(base, fullA, t.lev)
	if s := strutil.Similarity(base, fullB, t.lev); s > best {
		best = s
	}
	if s := strutil.Similarity(fullA, fullB, t.lev); s > best {
		best = s
	}
	return best * 100
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		out[tok] = struct{}{}
	}
	return out
}
