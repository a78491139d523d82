package alias

import (
	"strings"

	"github.com/kerbstat/kerbstat/internal/domain/identity"
	"github.com/kerbstat/kerbstat/internal/domain/model"
)

// RawPair is one observed raw make/model occurrence from a corpus scan.
type RawPair struct {
	Make  string
	Model string
}

// Discover scans observed raw pairs and returns new rules for keys the
// existing table does not cover, with canonical set to the title-cased
// normalized form. Curated entries are never overwritten. When the same
// normalized key appears more than once in the input, the last
// occurrence wins.
func Discover(observed []RawPair, existing []Rule) []Rule {
	covered := make(map[model.Identity]struct{}, len(existing))
	for _, rule := range existing {
		covered[normIdentity(rule.RawMake, rule.RawModel)] = struct{}{}
	}

	// Last occurrence wins, but output order follows first sighting so
	// repeated discovery runs append deterministically.
	order := make([]model.Identity, 0)
	latest := make(map[model.Identity]RawPair)
	for _, p := range observed {
		key := normIdentity(p.Make, p.Model)
		if key.Make == "" && key.Model == "" {
			continue
		}
		if _, ok := covered[key]; ok {
			continue
		}
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = p
	}

	rules := make([]Rule, 0, len(order))
	for _, key := range order {
		p := latest[key]
		rules = append(rules, Rule{
			RawMake:        p.Make,
			RawModel:       p.Model,
			CanonicalMake:  titleCase(identity.Normalize(p.Make)),
			CanonicalModel: titleCase(identity.Normalize(p.Model)),
		})
	}
	return rules
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w[0] >= 'a' && w[0] <= 'z' {
			words[i] = string(w[0]-'a'+'A') + w[1:]
		}
	}
	return strings.Join(words, " ")
}
