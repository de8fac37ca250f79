package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engram-labs/engram/internal/classify"
	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/importance"
	"github.com/engram-labs/engram/internal/memory"
	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/search"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/syncmgr"
	"github.com/engram-labs/engram/internal/vectorindex"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	records := store.NewRecordStore(db)
	categories := store.NewCategoryStore(db)
	require.NoError(t, categories.SeedDefaults())

	emb := embedding.NewMock(64)
	index, err := vectorindex.New(emb)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := memory.NewManager(memory.Services{
		Records:    records,
		Categories: categories,
		AccessLog:  store.NewAccessLogStore(db),
		Index:      index,
		Sync:       syncmgr.New(records, index, 3, logger),
		Classifier: classify.New(categories, emb, logger),
		Scorer:     importance.NewScorer(),
		Engine:     search.NewEngine(records, index, logger),
		Logger:     logger,
	})

	defaults := RecallDefaults{TopK: 10}
	srv := httptest.NewServer(NewRouter(db, mgr, index, defaults, logger))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := decode[map[string]any](t, resp)
	require.Equal(t, "ok", body["status"])
}

func TestRequestIDPassthrough(t *testing.T) {
	srv := setupServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-1234")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "trace-1234", resp.Header.Get("X-Request-ID"))
}

func TestMemoryEndpoints(t *testing.T) {
	srv := setupServer(t)

	// Store
	resp := postJSON(t, srv.URL+"/memories", models.RememberRequest{
		Content: "I enjoy hiking on weekends",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.MemoryRecord](t, resp)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "preference", created.Category)

	// Search
	resp = postJSON(t, srv.URL+"/memories/search", models.RecallRequest{Query: "hiking"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	searched := decode[struct {
		Results []models.RecallResult `json:"results"`
	}](t, resp)
	require.Len(t, searched.Results, 1)
	require.Equal(t, created.ID, searched.Results[0].Record.ID)

	// Get
	resp, err := http.Get(srv.URL + "/memories/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Unknown id
	resp, err = http.Get(srv.URL + "/memories/no-such-id")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Archive then default search excludes it
	resp = postJSON(t, srv.URL+"/memories/"+created.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/memories/search", models.RecallRequest{Query: "hiking"})
	searched = decode[struct {
		Results []models.RecallResult `json:"results"`
	}](t, resp)
	require.Empty(t, searched.Results)

	// Delete
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/memories/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestRememberValidation(t *testing.T) {
	srv := setupServer(t)

	resp := postJSON(t, srv.URL+"/memories", models.RememberRequest{Content: ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	bad := 2.0
	resp = postJSON(t, srv.URL+"/memories", models.RememberRequest{Content: "x", Importance: &bad})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestForgetEndpoint(t *testing.T) {
	srv := setupServer(t)

	resp := postJSON(t, srv.URL+"/memories", models.RememberRequest{Content: "obsolete project detail"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/forget", map[string]string{"pattern": "obsolete"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[models.ForgetResult](t, resp)
	require.Equal(t, 1, result.Archived)
	require.Equal(t, 0, result.Deleted)

	resp = postJSON(t, srv.URL+"/forget", map[string]string{"pattern": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCategoryEndpoints(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/categories")
	require.NoError(t, err)
	listed := decode[struct {
		Categories []models.Category `json:"categories"`
	}](t, resp)
	require.Len(t, listed.Categories, len(models.DefaultCategories))

	resp = postJSON(t, srv.URL+"/categories", map[string]any{
		"name":     "Finances",
		"keywords": []string{"budget"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decode[map[string]string](t, resp)
	require.Equal(t, "finances", added["id"])
}

func TestSyncAndStatsEndpoints(t *testing.T) {
	srv := setupServer(t)

	resp := postJSON(t, srv.URL+"/memories", models.RememberRequest{Content: "counted fact here"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/sync/status")
	require.NoError(t, err)
	status := decode[syncmgr.Status](t, resp)
	require.True(t, status.IndexActive)
	require.Equal(t, 1, status.Successes)

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	stats := decode[models.StoreStats](t, resp)
	require.Equal(t, 1, stats.TotalRecords)
	require.Equal(t, 1, stats.IndexedIDs)

	resp = postJSON(t, srv.URL+"/sync/rebuild", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rebuilt := decode[map[string]int](t, resp)
	require.Equal(t, 1, rebuilt["synced"])
}
