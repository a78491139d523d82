// Package identity turns raw free-text make/model strings into stable
// canonical forms and slugs, and defines the string-similarity strategy
// used by alias resolution.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// noiseTokens are trim levels and engine/transmission codes that carry
// no identity information. Matching is whole-word only: "gti" is
// stripped from "golf gti" but left alone inside "gtilda".
var noiseTokens = map[string]struct{}{
	"16v": {}, "20v": {},
	"tdci": {}, "tdi": {}, "tsi": {}, "vvt": {},
	"sport": {}, "gt": {}, "gti": {}, "gtd": {},
	"se": {}, "zetec": {}, "style": {}, "trend": {},
	"sline": {}, "mhd": {},
	"bluemotion": {}, "bluedrive": {},
	"ecoboost": {},
}

// foldASCII strips diacritics and drops any remaining non-ASCII runes.
func foldASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize lowercases, folds to ASCII, replaces punctuation runs with
// single spaces, removes noise tokens, and collapses whitespace.
// It is total and idempotent; empty input yields the empty string.
func Normalize(s string) string {
	s = strings.ToLower(foldASCII(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, f := range fields {
		if _, noise := noiseTokens[f]; !noise {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// Slugify produces a URL-safe slug: folded, lowercased, with
// non-alphanumeric runs replaced by single hyphens. Noise tokens are
// kept; slugs reflect the display name, not the canonical identity.
func Slugify(s string) string {
	s = strings.ToLower(foldASCII(s))

	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := true // suppress a leading hyphen
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
