package enrich

import (
	"strings"
	"unicode/utf8"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/extract"
)

const windowSeparator = "\n...\n"

type span struct{ start, end int }

// ContextBuilder cuts the parts of a message worth sending to the extractor:
// windows around return-policy phrases, capped at Budget bytes.
type ContextBuilder struct {
	Radius int
	Budget int
}

func NewContextBuilder(radius, budget int) *ContextBuilder {
	return &ContextBuilder{Radius: radius, Budget: budget}
}

// Build returns the anchor windows of text joined in document order. When no
// anchor fits the budget the leading text is used instead. found reports
// whether any anchor contributed.
func (b *ContextBuilder) Build(text string) (context string, found bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	var out strings.Builder
	for _, s := range b.windows(text) {
		piece := strings.TrimSpace(text[s.start:s.end])
		extra := len(piece)
		if out.Len() > 0 {
			extra += len(windowSeparator)
		}
		if out.Len()+extra > b.Budget {
			break
		}
		if out.Len() > 0 {
			out.WriteString(windowSeparator)
		}
		out.WriteString(piece)
	}

	if out.Len() > 0 {
		return out.String(), true
	}
	return strings.TrimSpace(text[:clampBack(text, min(len(text), b.Budget))]), false
}

// windows expands every anchor match by Radius and merges overlaps.
func (b *ContextBuilder) windows(text string) []span {
	var merged []span
	for _, m := range extract.AnchorPattern.FindAllStringIndex(text, -1) {
		s := span{
			start: clampForward(text, max(0, m[0]-b.Radius)),
			end:   clampBack(text, min(len(text), m[1]+b.Radius)),
		}
		if n := len(merged); n > 0 && s.start <= merged[n-1].end {
			merged[n-1].end = max(merged[n-1].end, s.end)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// clampForward moves i to the next rune boundary.
func clampForward(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// clampBack moves i to the previous rune boundary.
func clampBack(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
