package corroborate

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists legal-form and boilerplate words stripped during name
// normalization. Matching is per word, anywhere in the name.
var legalSuffixes = map[string]bool{
	"as":      true,
	"asa":     true,
	"holding": true,
	"group":   true,
	"gruppen": true,
	"norge":   true,
	"norway":  true,
}

// minSubstringLen is the shortest normalized name allowed to match by substring.
const minSubstringLen = 4

var lower = cases.Lower(language.Norwegian)

// NormalizeName standardizes a company name for matching by:
//  1. Composing unicode (NFC) so "å" typed either way compares equal
//  2. Lowercasing
//  3. Dropping legal-form words (AS, ASA, Holding, Group, ...)
//  4. Removing every character that is not a letter or digit
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = lower.String(norm.NFC.String(name))

	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var b strings.Builder
	b.Grow(len(name))
	for _, w := range words {
		if legalSuffixes[w] {
			continue
		}
		b.WriteString(w)
	}
	return b.String()
}

// NamesMatch reports whether two raw names refer to the same company: equal
// after normalization, or one contained in the other when both normalized
// names are at least four characters long.
func NamesMatch(a, b string) bool {
	return normalizedMatch(NormalizeName(a), NormalizeName(b))
}

func normalizedMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if len([]rune(a)) < minSubstringLen || len([]rune(b)) < minSubstringLen {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
