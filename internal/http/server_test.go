package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/rag"
	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"github.com/fyrsmithlabs/ragserve/internal/vectorstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeBackend struct {
	ingested  [][]rag.Item
	removed   []string
	queries   []rag.Query
	results   []rag.ScoredItem
	ingestErr error
	queryErr  error
	removeErr error
}

func (f *fakeBackend) Ingest(_ context.Context, items []rag.Item) error {
	f.ingested = append(f.ingested, items)
	return f.ingestErr
}

func (f *fakeBackend) Remove(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return f.removeErr
}

func (f *fakeBackend) Retrieve(_ context.Context, q rag.Query) ([]rag.ScoredItem, error) {
	f.queries = append(f.queries, q)
	return f.results, f.queryErr
}

func (f *fakeBackend) Stats() (vectorstore.Stats, int) {
	return vectorstore.Stats{Backend: "memory", Metric: "ip", Dimension: 384, Partitions: 2, Vectors: 3}, 2
}

func setupTestServer(t *testing.T, mutate ...func(*Config)) (*Server, *fakeBackend, *logging.TestLogger) {
	t.Helper()
	backend := &fakeBackend{}
	cfg := &Config{
		Host:    "localhost",
		Port:    8080,
		Version: "test",
		Limits:  Limits{MaxQueryChars: 20, MaxDocumentChars: 10, MaxNumItems: 50, MaxBatch: 2},
	}
	for _, m := range mutate {
		m(cfg)
	}
	logger := logging.NewTestLogger()
	srv, err := NewServer(Deps{
		Ingester:           backend,
		Retriever:          backend,
		Stats:              backend,
		EmbeddingDimension: 384,
		Gatherer:           prometheus.NewRegistry(),
	}, logger.Logger, cfg)
	require.NoError(t, err)
	return srv, backend, logger
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)
	return rec
}

func TestNewServer(t *testing.T) {
	backend := &fakeBackend{}
	deps := Deps{Ingester: backend, Retriever: backend, Stats: backend}

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		srv, err := NewServer(deps, logging.NewTestLogger().Logger, nil)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", srv.config.Host)
		assert.Equal(t, 8080, srv.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(deps, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when dependencies are missing", func(t *testing.T) {
		_, err := NewServer(Deps{}, logging.NewTestLogger().Logger, nil)
		assert.Error(t, err)
	})
}

func TestHandlePing(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	rec := do(t, srv, http.MethodGet, "/ping", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 3, resp.Index.Vectors)
	assert.Equal(t, 2, resp.StoredItems)
	assert.Equal(t, 384, resp.EmbeddingDimension)
}

func TestHandleQuery(t *testing.T) {
	t.Run("returns scored items", func(t *testing.T) {
		srv, backend, _ := setupTestServer(t)
		backend.results = []rag.ScoredItem{
			{Item: rag.Item{ID: "1", Content: "a", Tags: []string{"films"}}, Score: 0.9},
		}

		rec := do(t, srv, http.MethodPost, "/v1/query", `{"query":"q","tags":["films"],"num_items":5,"remove_duplicates":false}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"items":[{"item_id":"1","content":"a","tags":["films"],"score":0.9}]}`, rec.Body.String())

		require.Len(t, backend.queries, 1)
		assert.Equal(t, rag.Query{Text: "q", Tags: []string{"films"}, NumItems: 5}, backend.queries[0])
	})

	t.Run("remove_duplicates defaults to true", func(t *testing.T) {
		srv, backend, _ := setupTestServer(t)
		rec := do(t, srv, http.MethodPost, "/v1/query", `{"query":"q","tags":["films"],"num_items":5}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
		assert.True(t, backend.queries[0].RemoveDuplicates)
	})

	t.Run("rejects oversized query", func(t *testing.T) {
		srv, backend, _ := setupTestServer(t)
		rec := do(t, srv, http.MethodPost, "/v1/query", fmt.Sprintf(`{"query":%q,"tags":["t"],"num_items":1}`, strings.Repeat("x", 21)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, backend.queries)
	})

	t.Run("query limit counts runes", func(t *testing.T) {
		srv, backend, _ := setupTestServer(t)
		rec := do(t, srv, http.MethodPost, "/v1/query", fmt.Sprintf(`{"query":%q,"tags":["t"],"num_items":1}`, strings.Repeat("é", 20)))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, backend.queries, 1)

		rec = do(t, srv, http.MethodPost, "/v1/query", fmt.Sprintf(`{"query":%q,"tags":["t"],"num_items":1}`, strings.Repeat("é", 21)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Len(t, backend.queries, 1)
	})

	t.Run("rejects num_items over limit", func(t *testing.T) {
		srv, _, _ := setupTestServer(t)
		rec := do(t, srv, http.MethodPost, "/v1/query", `{"query":"q","tags":["t"],"num_items":51}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		srv, _, _ := setupTestServer(t)
		rec := do(t, srv, http.MethodPost, "/v1/query", `{"query":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid input", fmt.Errorf("%w: bad tag", ragerr.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{"transient", fmt.Errorf("%w: tei down", ragerr.ErrTransient), http.StatusServiceUnavailable, "transient"},
		{"consistency", fmt.Errorf("%w: orphan hit", ragerr.ErrConsistency), http.StatusInternalServerError, "consistency_violation"},
		{"not found", fmt.Errorf("%w: item", ragerr.ErrNotFound), http.StatusNotFound, "not_found"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, backend, _ := setupTestServer(t)
			backend.queryErr = tt.err

			rec := do(t, srv, http.MethodPost, "/v1/query", `{"query":"q","tags":["t"],"num_items":1}`)
			assert.Equal(t, tt.status, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	srv, backend, logger := setupTestServer(t)
	backend.queryErr = fmt.Errorf("%w: secret detail", ragerr.ErrConsistency)

	rec := do(t, srv, http.MethodPost, "/v1/query", `{"query":"q","tags":["t"],"num_items":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
	logger.AssertLogged(t, zapcore.ErrorLevel, "request failed")
}

func TestHandleAddDocuments(t *testing.T) {
	for _, path := range []string{"/v1/", "/v1/add"} {
		t.Run(path, func(t *testing.T) {
			srv, backend, _ := setupTestServer(t)
			rec := do(t, srv, http.MethodPut, path, `{"documents":[{"item_id":"1","content":"a","tags":["films","books"]}]}`)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			require.Len(t, backend.ingested, 1)
			assert.Equal(t, []rag.Item{{ID: "1", Content: "a", Tags: []string{"films", "books"}}}, backend.ingested[0])
		})
	}

	t.Run("rejects oversized document", func(t *testing.T) {
		srv, backend, _ := setupTestServer(t)
		rec := do(t, srv, http.MethodPut, "/v1/", `{"documents":[{"item_id":"1","content":"01234567890","tags":["t"]}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, backend.ingested)
	})

	t.Run("document limit counts runes", func(t *testing.T) {
		srv, backend, _ := setupTestServer(t)
		rec := do(t, srv, http.MethodPut, "/v1/", `{"documents":[{"item_id":"1","content":"日本語のテキスト本文","tags":["t"]}]}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Len(t, backend.ingested, 1)
	})

	t.Run("rejects oversized batch", func(t *testing.T) {
		srv, _, _ := setupTestServer(t)
		var buf bytes.Buffer
		buf.WriteString(`{"documents":[`)
		for i := 0; i < 3; i++ {
			if i > 0 {
				buf.WriteString(",")
			}
			fmt.Fprintf(&buf, `{"item_id":"%d","content":"a","tags":["t"]}`, i)
		}
		buf.WriteString(`]}`)
		rec := do(t, srv, http.MethodPut, "/v1/", buf.String())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleRemove(t *testing.T) {
	srv, backend, _ := setupTestServer(t)
	rec := do(t, srv, http.MethodDelete, "/v1/items/abc", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"abc"}, backend.removed)

	backend.removeErr = fmt.Errorf("%w: item %q", ragerr.ErrNotFound, "abc")
	rec = do(t, srv, http.MethodDelete, "/v1/items/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	srv, _, _ := setupTestServer(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, srv, http.MethodGet, "/health", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/ping", "").Code, "ping is never limited")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLogging(t *testing.T) {
	srv, _, logger := setupTestServer(t)
	do(t, srv, http.MethodGet, "/ping", "")

	logger.AssertLogged(t, zapcore.InfoLevel, "http request")
	logger.AssertField(t, "http request", "status", int64(http.StatusOK))
}
