package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "your": true, "you": true,
	"our": true, "are": true, "was": true, "has": true, "have": true, "been": true,
	"from": true, "this": true, "that": true, "its": true, "item": true, "items": true,
	"order": true, "orders": true, "ordered": true, "shipped": true, "delivered": true,
	"more": true, "other": true, "new": true, "now": true, "via": true, "per": true,
}

// Tokenize reduces item text to a set of comparable words: accents folded,
// lower-cased, punctuation stripped, stop words and words under three
// characters dropped.
func Tokenize(s string) map[string]bool {
	folded := fold(s)
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		w = strings.ToLower(w)
		if len([]rune(w)) < 3 || stopWords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// Jaccard is |a ∩ b| / |a ∪ b|. Two empty sets score 1: nothing conflicts.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
