// Package alias resolves raw make/model pairs to canonical identities
// via a curated alias table with threshold-gated fuzzy fallback.
package alias

import (
	"fmt"

	"github.com/kerbstat/kerbstat/internal/domain/identity"
	"github.com/kerbstat/kerbstat/internal/domain/model"
)

// DefaultFuzzyThreshold is the minimum token-set score (0-100) for a
// fuzzy candidate to be accepted.
const DefaultFuzzyThreshold = 92

// Rule is one persisted raw -> canonical mapping. Empty canonical
// fields mean the raw values are already canonical.
type Rule struct {
	RawMake        string
	RawModel       string
	CanonicalMake  string
	CanonicalModel string
}

// Resolver holds the flattened alias table. It is immutable after
// Load and safe for concurrent use; callers pass it by reference
// instead of relying on any package-level state.
type Resolver struct {
	table map[model.Identity]model.Identity
	// canonical models grouped by canonical make, for fuzzy candidate
	// restriction.
	modelsByMake map[string][]string

	sim       identity.Similarity
	threshold float64
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithSimilarity replaces the default token-set similarity strategy.
func WithSimilarity(s identity.Similarity) Option {
	return func(r *Resolver) {
		if s != nil {
			r.sim = s
		}
	}
}

// WithThreshold sets the fuzzy acceptance threshold on the 0-100 scale.
func WithThreshold(t float64) Option {
	return func(r *Resolver) {
		if t > 0 && t <= 100 {
			r.threshold = t
		}
	}
}

// Load normalizes and flattens the rule set into an immutable resolver.
// Duplicate raw keys are last-write-wins. Multi-hop chains are
// collapsed to their final target once at load time; a cycle among
// chains fails the load with an error wrapping ErrAliasCycle.
func Load(rules []Rule, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		table:        make(map[model.Identity]model.Identity, len(rules)),
		modelsByMake: make(map[string][]string),
		sim:          identity.NewTokenSetRatio(),
		threshold:    DefaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}

	raw := make(map[model.Identity]model.Identity, len(rules))
	for _, rule := range rules {
		src := normIdentity(rule.RawMake, rule.RawModel)
		if src.Make == "" && src.Model == "" {
			continue
		}
		dst := normIdentity(rule.CanonicalMake, rule.CanonicalModel)
		if dst.Make == "" && dst.Model == "" {
			dst = src // raw values are canonical
		}
		raw[src] = dst
	}

	// Flatten chains so Resolve never follows more than one hop.
	for src := range raw {
		dst, err := follow(raw, src)
		if err != nil {
			return nil, err
		}
		r.table[src] = dst
	}

	seen := make(map[model.Identity]struct{})
	for _, dst := range r.table {
		if _, ok := seen[dst]; ok {
			continue
		}
		seen[dst] = struct{}{}
		r.modelsByMake[dst.Make] = append(r.modelsByMake[dst.Make], dst.Model)
	}

	return r, nil
}

// follow walks a chain from src to its terminal target, failing if the
// walk revisits a key.
func follow(table map[model.Identity]model.Identity, src model.Identity) (model.Identity, error) {
	visited := map[model.Identity]struct{}{src: {}}
	cur := src
	for {
		next, ok := table[cur]
		if !ok || next == cur {
			return cur, nil
		}
		if _, loop := visited[next]; loop {
			return model.Identity{}, fmt.Errorf("%w: %s %s -> %s %s",
				ErrAliasCycle, src.Make, src.Model, next.Make, next.Model)
		}
		visited[next] = struct{}{}
		cur = next
	}
}

// Match tells how a resolution was satisfied.
type Match int

const (
	// MatchExact hit the flattened table directly.
	MatchExact Match = iota
	// MatchFuzzy was accepted by the threshold-gated similarity scan.
	MatchFuzzy
	// MatchNone passed the normalized raw pair through as a new,
	// as-yet-uncurated identity.
	MatchNone
)

// Resolve maps a raw make/model pair to its canonical identity.
// Lookup order: exact match in the flattened table, then fuzzy match
// against canonical models sharing the raw pair's canonical make,
// accepted only above the threshold. Unmatched pairs come back as
// their own normalized form, treated as a new uncurated identity.
func (r *Resolver) Resolve(rawMake, rawModel string) model.Identity {
	id, _ := r.ResolveDetail(rawMake, rawModel)
	return id
}

// ResolveDetail is Resolve plus how the match was found.
func (r *Resolver) ResolveDetail(rawMake, rawModel string) (model.Identity, Match) {
	src := normIdentity(rawMake, rawModel)
	if dst, ok := r.table[src]; ok {
		return dst, MatchExact
	}

	candidates := r.modelsByMake[src.Make]
	bestScore := 0.0
	bestModel := ""
	for _, cand := range candidates {
		if score := r.sim.Score(src.Model, cand); score > bestScore {
			bestScore = score
			bestModel = cand
		}
	}
	if bestScore >= r.threshold {
		return model.Identity{Make: src.Make, Model: bestModel}, MatchFuzzy
	}
	return src, MatchNone
}

// Len reports the number of flattened rules loaded.
func (r *Resolver) Len() int {
	return len(r.table)
}

func normIdentity(mk, md string) model.Identity {
	return model.Identity{
		Make:  identity.Normalize(mk),
		Model: identity.Normalize(md),
	}
}
