package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eternisai/titlegen/internal/config"
	apierrors "github.com/eternisai/titlegen/internal/errors"
	"github.com/eternisai/titlegen/internal/logger"
	"github.com/eternisai/titlegen/internal/metrics"
	"github.com/eternisai/titlegen/internal/storage/journal"
	"github.com/eternisai/titlegen/internal/title_generation"
	"github.com/eternisai/titlegen/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeGenerator struct {
	batches  [][]vault.Document
	settings []config.Settings
	outcomes func(docs []vault.Document) []title_generation.Outcome
	active   title_generation.Outcome
}

func (f *fakeGenerator) GenerateAll(_ context.Context, settings config.Settings, docs []vault.Document) []title_generation.Outcome {
	f.batches = append(f.batches, docs)
	f.settings = append(f.settings, settings)
	if f.outcomes != nil {
		return f.outcomes(docs)
	}
	outcomes := make([]title_generation.Outcome, 0, len(docs))
	for _, d := range docs {
		outcomes = append(outcomes, title_generation.Outcome{Document: d, NewPath: "renamed/" + d.Path, Title: "T"})
	}
	return outcomes
}

func (f *fakeGenerator) GenerateActive(context.Context, config.Settings) title_generation.Outcome {
	return f.active
}

type fakeDocuments map[string]bool

func (f fakeDocuments) Document(p string) (vault.Document, error) {
	if !f[p] {
		return vault.Document{}, errors.New("stat " + p + ": no such file or directory")
	}
	return vault.Document{ID: p, Path: p}, nil
}

type fakeHistory struct {
	entries []journal.Entry
	limit   int
	err     error
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]journal.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

func newTestRouter(gen Generator, docs Documents, history History, token string) *gin.Engine {
	settings := config.StaticSource(config.Settings{APIKey: "sk-test", BaseURL: "http://example.invalid/v1", Model: "m"})
	handler := NewHandler(gen, docs, history, settings, logger.Discard())
	return NewRouter(Options{
		Handler:  handler,
		Metrics:  metrics.New(),
		APIToken: token,
		Logger:   logger.Discard(),
	})
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGenerateTitles(t *testing.T) {
	gen := &fakeGenerator{
		outcomes: func(docs []vault.Document) []title_generation.Outcome {
			return []title_generation.Outcome{
				{Document: docs[0], NewPath: "First.md", Title: "First", RunID: "r1"},
				{Document: docs[1], Err: &title_generation.Error{Kind: title_generation.KindTransportError, Err: errors.New("request failed, status 500")}},
				{Document: docs[2], Skipped: true, Err: context.Canceled},
			}
		},
	}
	router := newTestRouter(gen, fakeDocuments{"a.md": true, "b.md": true, "c.md": true}, nil, "")

	w := do(t, router, http.MethodPost, "/api/v1/titles", GenerateTitlesRequest{Paths: []string{"a.md", "b.md", "c.md"}}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp GenerateTitlesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 1, resp.Skipped)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, OutcomeResponse{Path: "a.md", NewPath: "First.md", Title: "First", RunID: "r1"}, resp.Results[0])
	assert.Equal(t, "transport_error", resp.Results[1].Kind)
	assert.Equal(t, "request failed, status 500", resp.Results[1].Error)
	assert.True(t, resp.Results[2].Skipped)

	require.Len(t, gen.batches, 1)
	assert.Equal(t, []vault.Document{{ID: "a.md", Path: "a.md"}, {ID: "b.md", Path: "b.md"}, {ID: "c.md", Path: "c.md"}}, gen.batches[0])
	assert.Equal(t, "sk-test", gen.settings[0].APIKey)
	assert.NotEmpty(t, w.Header().Get("x-request-id"))
}

func TestGenerateTitles_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"no body", nil},
		{"no paths", map[string]any{"paths": []string{}}},
		{"blank path", map[string]any{"paths": []string{""}}},
		{"unknown path", map[string]any{"paths": []string{"a.md", "missing.md"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			router := newTestRouter(gen, fakeDocuments{"a.md": true}, nil, "")

			w := do(t, router, http.MethodPost, "/api/v1/titles", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var body apierrors.APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.Empty(t, gen.batches, "nothing may be generated")
		})
	}
}

func TestGenerateActiveTitle(t *testing.T) {
	gen := &fakeGenerator{active: title_generation.Outcome{
		Document: vault.Document{ID: "Notes/draft.md", Path: "Notes/draft.md"},
		NewPath:  "Notes/Fox Story.md",
		Title:    "Fox Story",
	}}
	router := newTestRouter(gen, fakeDocuments{}, nil, "")

	w := do(t, router, http.MethodPost, "/api/v1/titles/active", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp OutcomeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Notes/Fox Story.md", resp.NewPath)
}

func TestGenerateActiveTitle_NoActiveDocument(t *testing.T) {
	gen := &fakeGenerator{active: title_generation.Outcome{
		Err: &title_generation.Error{Kind: title_generation.KindNoActiveDocument, Err: vault.ErrNoActiveDocument},
	}}
	router := newTestRouter(gen, fakeDocuments{}, nil, "")

	w := do(t, router, http.MethodPost, "/api/v1/titles/active", nil, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"no active file","details":{"kind":"no_active_document"}}`, w.Body.String())
}

func TestListHistory(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{entries: []journal.Entry{
		{ID: "1", RunID: "r1", OldPath: "draft.md", NewPath: "Fox.md", Title: "Fox", Model: "m", CreatedAt: created},
	}}
	router := newTestRouter(&fakeGenerator{}, fakeDocuments{}, history, "")

	w := do(t, router, http.MethodGet, "/api/v1/history?limit=5", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, history.limit)

	var resp struct {
		Entries []journal.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "Fox.md", resp.Entries[0].NewPath)
	assert.True(t, created.Equal(resp.Entries[0].CreatedAt))
}

func TestListHistory_Errors(t *testing.T) {
	tests := []struct {
		name    string
		history History
		query   string
		status  int
	}{
		{"disabled", nil, "", http.StatusServiceUnavailable},
		{"bad limit", &fakeHistory{}, "?limit=abc", http.StatusBadRequest},
		{"zero limit", &fakeHistory{}, "?limit=0", http.StatusBadRequest},
		{"too large", &fakeHistory{}, "?limit=100000", http.StatusBadRequest},
		{"db failure", &fakeHistory{err: errors.New("locked")}, "", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeGenerator{}, fakeDocuments{}, tt.history, "")
			w := do(t, router, http.MethodGet, "/api/v1/history"+tt.query, nil, nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestListHistory_EmptyIsArray(t *testing.T) {
	router := newTestRouter(&fakeGenerator{}, fakeDocuments{}, &fakeHistory{}, "")
	w := do(t, router, http.MethodGet, "/api/v1/history", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"entries":[]}`, w.Body.String())
}

func TestRequireToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"right", "Bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeGenerator{}, fakeDocuments{}, &fakeHistory{}, "s3cret")
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := do(t, router, http.MethodGet, "/api/v1/history", nil, headers)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestOpenRoutes(t *testing.T) {
	router := newTestRouter(&fakeGenerator{}, fakeDocuments{}, nil, "s3cret")

	w := do(t, router, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)

	w = do(t, router, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "titlegen_documents_in_flight")
}

func TestRequestIDIsReused(t *testing.T) {
	router := newTestRouter(&fakeGenerator{}, fakeDocuments{}, nil, "")
	w := do(t, router, http.MethodGet, "/health", nil, map[string]string{"x-request-id": "req-123"})
	assert.Equal(t, "req-123", w.Header().Get("x-request-id"))
}

// TestRoundTrip drives the API against a real vault, journal and service with
// a fake completion endpoint.
func TestRoundTrip(t *testing.T) {
	completions := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Fox Story"}}]}`))
	}))
	defer completions.Close()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Notes", "draft.md"), []byte("The quick brown fox..."), 0o644))

	fs, err := vault.NewFileSystem(root)
	require.NoError(t, err)

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	service := title_generation.NewService(title_generation.Dependencies{
		Storage: fs,
		Journal: j,
	})
	settings := config.StaticSource(config.Settings{APIKey: "sk", BaseURL: completions.URL + "/v1", Model: "m"})
	router := NewRouter(Options{
		Handler: NewHandler(service, fs, j, settings, logger.Discard()),
		Logger:  logger.Discard(),
	})

	w := do(t, router, http.MethodPost, "/api/v1/titles", GenerateTitlesRequest{Paths: []string{"Notes/draft.md"}}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateTitlesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Notes/Fox Story.md", resp.Results[0].NewPath)
	assert.FileExists(t, filepath.Join(root, "Notes", "Fox Story.md"))
	assert.NoFileExists(t, filepath.Join(root, "Notes", "draft.md"))

	w = do(t, router, http.MethodGet, "/api/v1/history", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Entries []journal.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.Entries, 1)
	assert.Equal(t, "Notes/draft.md", history.Entries[0].OldPath)
	assert.Equal(t, "Notes/Fox Story.md", history.Entries[0].NewPath)
}
