package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/config"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/llm/generate"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/mailbox"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/orders"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/store"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/tracker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	handler http.Handler
	source  *mailbox.FileSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	src := mailbox.NewFileSource(nil)
	svc := tracker.Assemble(config.Default(), tracker.Deps{
		Repo:      orders.NewRepository(store.NewMemoryKV()),
		Source:    src,
		Generator: generate.NewMockGenerator("extract"),
	})
	return &fixture{handler: NewServer(svc).Handler(), source: src}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (f *fixture) create(t *testing.T, body map[string]any) string {
	t.Helper()
	w, out := f.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return out["order"].(map[string]any)["order_key"].(string)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, out := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	key := f.create(t, map[string]any{
		"merchant_domain": "acme.com",
		"order_id":        "A-1001",
		"item_summary":    "Walnut Desk",
		"purchase_date":   "2024-05-01",
	})

	w, out := f.do(t, http.MethodGet, "/api/orders/"+key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unknown", out["deadline_confidence"])
	assert.Equal(t, true, out["manual_override_available"])

	w, out = f.do(t, http.MethodPut, "/api/rules/acme.com", map[string]any{"return_window_days": 30})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme.com", out["merchant_domain"])

	w, out = f.do(t, http.MethodGet, "/api/orders/deadlines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := out["orders"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "estimated", first["deadline_confidence"])
	assert.Equal(t, false, first["manual_override_available"])

	w, out = f.do(t, http.MethodPut, "/api/orders/"+key+"/deadline", map[string]any{"return_by_date": "2024-07-04"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "exact", out["deadline_confidence"])
	assert.Equal(t, "manual", out["window_source"])

	w, out = f.do(t, http.MethodDelete, "/api/orders/"+key+"/evidence", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "estimated", out["deadline_confidence"])

	w, out = f.do(t, http.MethodPatch, "/api/orders/"+key+"/status", map[string]any{"status": "returned"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "returned", out["order_status"])

	w, out = f.do(t, http.MethodPost, "/api/orders/"+key+"/enrich", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["enriched"])
	assert.Equal(t, "order is returned", out["skipped"])

	w, _ = f.do(t, http.MethodDelete, "/api/rules/acme.com", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = f.do(t, http.MethodDelete, "/api/rules/acme.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidationErrors(t *testing.T) {
	f := newFixture(t)
	key := f.create(t, map[string]any{"merchant_domain": "acme.com", "order_id": "A-1001"})
	other := f.create(t, map[string]any{"merchant_domain": "acme.com", "order_id": "A-2002"})
	require.NotEqual(t, key, other)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing merchant", http.MethodPost, "/api/orders", map[string]any{"order_id": "X1"}, http.StatusBadRequest},
		{"bad purchase date", http.MethodPost, "/api/orders", map[string]any{"merchant_domain": "acme.com", "purchase_date": "05/01/2024"}, http.StatusBadRequest},
		{"unknown status", http.MethodPatch, "/api/orders/" + key + "/status", map[string]any{"status": "lost"}, http.StatusBadRequest},
		{"missing deadline", http.MethodPut, "/api/orders/" + key + "/deadline", map[string]any{}, http.StatusBadRequest},
		{"window too long", http.MethodPut, "/api/rules/acme.com", map[string]any{"return_window_days": 400}, http.StatusBadRequest},
		{"window missing", http.MethodPut, "/api/rules/acme.com", map[string]any{}, http.StatusBadRequest},
		{"unknown order", http.MethodGet, "/api/orders/nope", nil, http.StatusNotFound},
		{"self merge", http.MethodPost, "/api/orders/" + key + "/merge", map[string]any{"source_key": key}, http.StatusBadRequest},
		{"merge unknown", http.MethodPost, "/api/orders/" + key + "/merge", map[string]any{"source_key": "nope"}, http.StatusNotFound},
		{"conflicting merge", http.MethodPost, "/api/orders/" + key + "/merge", map[string]any{"source_key": other}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestScanAndConflict(t *testing.T) {
	f := newFixture(t)
	f.source.Add(mailbox.FixtureMessage{
		Message: mailbox.Message{
			ID:         "m1",
			ReceivedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
			From:       "Acme <orders@acme.com>",
			Subject:    "Order confirmed: Walnut Desk",
			Snippet:    "Order #A12345 placed.",
		},
	})

	w, out := f.do(t, http.MethodPost, "/api/scans", map[string]any{"after": "2024-04-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), out["created"])

	w, out = f.do(t, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["orders"], 1)
}

// blockingSource holds List open until released.
type blockingSource struct {
	mailbox.Source
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) List(ctx context.Context, q mailbox.Query) ([]mailbox.Message, error) {
	close(b.started)
	<-b.release
	return b.Source.List(ctx, q)
}

func TestScanInProgressReturnsConflict(t *testing.T) {
	src := &blockingSource{
		Source:  mailbox.NewFileSource(nil),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := tracker.Assemble(config.Default(), tracker.Deps{
		Repo:      orders.NewRepository(store.NewMemoryKV()),
		Source:    src,
		Generator: generate.NewMockGenerator("extract"),
	})
	f := &fixture{handler: NewServer(svc).Handler()}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Scan(context.Background(), mailbox.Query{})
		done <- err
	}()
	<-src.started

	w, out := f.do(t, http.MethodPost, "/api/scans", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, out["error"], "already in progress")

	close(src.release)
	require.NoError(t, <-done)
}
