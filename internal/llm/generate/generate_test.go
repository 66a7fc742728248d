package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGenerator_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, 123, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, DefaultSystem, req.Messages[0].Content)
		assert.Equal(t, "hello", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"confidence\":\"none\"}"}}]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator("gpt-test", "", "sk-test")
	require.NoError(t, err)
	out, err := g.WithBaseURL(srv.URL).Complete(context.Background(), "hello", map[string]any{"max_tokens": 123})
	require.NoError(t, err)
	assert.Equal(t, `{"confidence":"none"}`, out)
}

func TestAnthropicGenerator_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"return_window_days\":30"},{"type":"text","text":"}"}]}`))
	}))
	defer srv.Close()

	g, err := NewAnthropicGenerator("claude-test", "", "key")
	require.NoError(t, err)
	out, err := g.WithBaseURL(srv.URL).Complete(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"return_window_days":30}`, out)
}

func TestGenerators_APIErrors(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			g, err := NewOpenAIGenerator("m", "", "k")
			require.NoError(t, err)
			_, err = g.WithBaseURL(srv.URL).Complete(context.Background(), "x", nil)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.transient, apiErr.Transient())
		})
	}
}

func TestNewGenerator_MissingKey(t *testing.T) {
	t.Setenv("SHOPQ_TEST_MISSING_KEY", "")
	_, err := NewOpenAIGenerator("m", "SHOPQ_TEST_MISSING_KEY", "")
	assert.Error(t, err)

	t.Setenv("SHOPQ_TEST_KEY", "from-env")
	g, err := NewAnthropicGenerator("m", "SHOPQ_TEST_KEY", "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", g.apiKey)
}

func TestMockGenerator(t *testing.T) {
	g := NewMockGenerator("extractor")
	assert.Equal(t, "extractor-mock", g.Model())

	tests := []struct {
		name    string
		context string
		want    map[string]any
	}{
		{
			name:    "window days",
			context: "Thanks for shopping. Return within 45 days of delivery for a full refund.",
			want: map[string]any{
				"return_window_days": float64(45),
				"evidence_quote":     "Return within 45 days of delivery for a full refund.",
				"confidence":         "high",
			},
		},
		{
			name:    "explicit date",
			context: "Your order shipped.\nReturns accepted until January 15, 2024.",
			want: map[string]any{
				"return_by_date": "2024-01-15",
				"evidence_quote": "Returns accepted until January 15, 2024.",
				"confidence":     "high",
			},
		},
		{
			name:    "final sale",
			context: "This item is a final sale and cannot be returned.",
			want: map[string]any{
				"final_sale":     true,
				"evidence_quote": "This item is a final sale and cannot be returned.",
				"confidence":     "high",
			},
		},
		{
			name:    "store-wide final sale policy",
			context: "Gift cards and items marked final sale cannot be returned.",
			want:    map[string]any{"confidence": "none"},
		},
		{
			name:    "nothing",
			context: "Your package is on its way. Arrives in 3 days.",
			want:    map[string]any{"confidence": "none"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := "Instructions mention returns within 30 days.\n" + ContextStart + "\n" + tt.context + "\n" + ContextEnd
			out, err := g.Complete(context.Background(), prompt, nil)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}
