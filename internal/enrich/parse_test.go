package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtraction(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		days     int
		date     string
		quote    string
		wantErr  bool
		noClaims bool
	}{
		{
			name:  "plain",
			raw:   `{"return_window_days": 45, "evidence_quote": "Return within 45 days", "confidence": "high"}`,
			days:  45,
			quote: "Return within 45 days",
		},
		{
			name:  "fenced with chatter",
			raw:   "Here you go:\n```json\n{\"return_by_date\": \"2024-01-15\", \"evidence_quote\": \"until January 15, 2024\"}\n```",
			date:  "2024-01-15",
			quote: "until January 15, 2024",
		},
		{
			name:     "nulls and template zeros",
			raw:      `{"return_by_date": null, "return_window_days": 0, "amount": 0, "final_sale": false, "confidence": "none"}`,
			noClaims: true,
		},
		{
			name:    "days as string",
			raw:     `{"return_window_days": "45"}`,
			wantErr: true,
		},
		{
			name:    "bad date format",
			raw:     `{"return_by_date": "Jan 15"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     "I could not find a return policy.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, raw, err := ParseExtraction(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, raw)
			if tt.noClaims {
				assert.True(t, x.Empty())
				return
			}
			if tt.days > 0 {
				require.NotNil(t, x.ReturnWindowDays)
				assert.Equal(t, tt.days, *x.ReturnWindowDays)
			}
			assert.Equal(t, tt.date, x.ReturnByDate)
			assert.Equal(t, tt.quote, x.EvidenceQuote)
		})
	}
}
