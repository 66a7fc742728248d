package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/types"
)

// Context delimiters shared with the enrichment prompt builder.
const (
	ContextStart = "<<<"
	ContextEnd   = ">>>"
)

var (
	mockSentence  = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
	mockPolicy    = regexp.MustCompile(`(?i)\b(returns?|refunds?|exchange)\b`)
	mockFinalSale = regexp.MustCompile(`(?i)\b(?:this|the|your)\s+(?:items?|products?|purchases?|orders?)\s+(?:(?:is|are)\s+(?:an?\s+)?(?:final[- ]sale|non-?returnable)|cannot be returned)\b`)
	mockDays      = regexp.MustCompile(`(?i)\b(\d{1,3})[- ]?days?\b`)
	mockDate      = regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})\b`)
)

// MockGenerator answers extraction prompts deterministically by reading
// return-policy sentences out of the delimited email context.
type MockGenerator struct {
	model string
	delay time.Duration
}

func NewMockGenerator(model string) *MockGenerator {
	return &MockGenerator{model: model}
}

// WithDelay simulates provider latency.
func (g *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	g.delay = d
	return g
}

type mockAnswer struct {
	ReturnByDate     string `json:"return_by_date,omitempty"`
	ReturnWindowDays *int   `json:"return_window_days,omitempty"`
	FinalSale        bool   `json:"final_sale,omitempty"`
	EvidenceQuote    string `json:"evidence_quote,omitempty"`
	Confidence       string `json:"confidence"`
}

func (g *MockGenerator) Complete(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	answer := mockAnswer{Confidence: "none"}
	for _, sentence := range mockSentence.FindAllString(contextOf(prompt), -1) {
		sentence = strings.TrimSpace(sentence)
		if !mockPolicy.MatchString(sentence) && !mockFinalSale.MatchString(sentence) {
			continue
		}
		if mockFinalSale.MatchString(sentence) {
			answer = mockAnswer{FinalSale: true, EvidenceQuote: sentence, Confidence: "high"}
			break
		}
		if m := mockDate.FindStringSubmatch(sentence); m != nil {
			if d, ok := parseMockDate(m[1]); ok {
				answer = mockAnswer{ReturnByDate: d.Format("2006-01-02"), EvidenceQuote: sentence, Confidence: "high"}
				break
			}
		}
		if m := mockDays.FindStringSubmatch(sentence); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 {
				answer = mockAnswer{ReturnWindowDays: &n, EvidenceQuote: sentence, Confidence: "high"}
				break
			}
		}
	}

	out, err := json.Marshal(answer)
	if err != nil {
		return "", fmt.Errorf("failed to encode mock answer: %w", err)
	}
	return string(out), nil
}

func (g *MockGenerator) Model() string {
	return g.model + "-mock"
}

func contextOf(prompt string) string {
	start := strings.Index(prompt, ContextStart)
	end := strings.LastIndex(prompt, ContextEnd)
	if start < 0 || end <= start {
		return prompt
	}
	return prompt[start+len(ContextStart) : end]
}

func parseMockDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, ".", "")), " ")
	for _, layout := range []string{"January 2, 2006", "January 2 2006", "Jan 2, 2006", "Jan 2 2006"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Compile-time interface check
var _ types.Generator = (*MockGenerator)(nil)
