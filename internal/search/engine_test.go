package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vectorindex"
)

type fixture struct {
	records *store.RecordStore
	index   *vectorindex.Index
	engine  *Engine
}

func setupEngine(t *testing.T, emb embedding.Embedder) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	records := store.NewRecordStore(db)
	index, err := vectorindex.New(emb)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		records: records,
		index:   index,
		engine:  NewEngine(records, index, logger),
	}
}

// seed inserts a record and mirrors it into the index when one is active.
func (f *fixture) seed(t *testing.T, content, category string, importance float64) string {
	t.Helper()
	id, err := f.records.Insert(&models.MemoryRecord{
		Content: content, Category: category, Importance: importance,
	})
	require.NoError(t, err)
	if f.index.Available() {
		require.NoError(t, f.index.Upsert(context.Background(), vectorindex.Entry{
			ID: id, Content: content, Category: category, Importance: importance,
		}))
	}
	return id
}

func TestKeywordSearch(t *testing.T) {
	f := setupEngine(t, embedding.NewMock(64))
	f.seed(t, "bought new hiking boots", "preference", 0.5)
	f.seed(t, "hiking trip planned for June", "event", 0.8)
	f.seed(t, "quarterly budget review", "work", 0.6)

	results, err := f.engine.Search(context.Background(), models.RecallRequest{
		Query:     "hiking",
		QueryType: models.QueryKeyword,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Keyword ordering follows the store: importance desc.
	require.Equal(t, "event", results[0].Record.Category)
	require.Nil(t, results[0].Similarity, "keyword-only results carry no similarity")

	// Scores are the weighted RRF contribution of each rank.
	require.InDelta(t, rrfScore(1.0, 0), results[0].Score, 1e-12)
	require.InDelta(t, rrfScore(1.0, 1), results[1].Score, 1e-12)
}

func TestSemanticSearch(t *testing.T) {
	f := setupEngine(t, embedding.NewMock(64))
	f.seed(t, "mountain hiking with friends", "preference", 0.5)
	f.seed(t, "tax return paperwork filed", "work", 0.6)

	results, err := f.engine.Search(context.Background(), models.RecallRequest{
		Query:     "mountain hiking",
		QueryType: models.QuerySemantic,
		TopK:      1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "mountain hiking with friends", results[0].Record.Content)
	require.NotNil(t, results[0].Similarity)
	require.Greater(t, *results[0].Similarity, 0.5)
}

func TestHybridFusion(t *testing.T) {
	f := setupEngine(t, embedding.NewMock(64))
	f.seed(t, "hiking gear checklist", "knowledge", 0.5)
	f.seed(t, "hiking and camping this summer", "event", 0.6)
	f.seed(t, "grocery list for the week", "general", 0.4)

	results, err := f.engine.Search(context.Background(), models.RecallRequest{
		Query:     "hiking",
		QueryType: models.QueryHybrid,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Records found by both legs outscore the one only the vector leg saw.
	require.NotEqual(t, "grocery list for the week", results[0].Record.Content)

	// Fused order is descending by score.
	for i := 1; i < len(results); i++ {
		require.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestHybridDualLegBeatsSingleLeg(t *testing.T) {
	f := setupEngine(t, embedding.NewMock(64))

	// Both legs find the first record; only the vector leg can find the
	// second (no keyword overlap with the query text).
	f.seed(t, "morning hiking routine", "preference", 0.5)
	f.seed(t, "alpine trekking gear", "preference", 0.9)

	results, err := f.engine.Search(context.Background(), models.RecallRequest{
		Query:     "hiking",
		QueryType: models.QueryHybrid,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "morning hiking routine", results[0].Record.Content)
}

func TestDegradedIndexFallsBackToKeyword(t *testing.T) {
	f := setupEngine(t, nil)
	f.seed(t, "hiking in the rain", "preference", 0.5)

	for _, qt := range []models.QueryType{models.QueryHybrid, models.QuerySemantic} {
		results, err := f.engine.Search(context.Background(), models.RecallRequest{
			Query:     "hiking",
			QueryType: qt,
		})
		require.NoError(t, err, "query type %s", qt)
		require.Len(t, results, 1, "query type %s", qt)
		require.Nil(t, results[0].Similarity)
	}
}

// brokenEmbedder is configured but cannot produce vectors, like a lazy
// model wrapper whose load failed.
type brokenEmbedder struct{}

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model file missing")
}

func (brokenEmbedder) Dimensions() int { return 64 }

func TestBrokenEmbedderFallsBackToKeyword(t *testing.T) {
	f := setupEngine(t, brokenEmbedder{})
	for _, rec := range []models.MemoryRecord{
		{Content: "hiking trip planned for June", Category: "event", Importance: 0.8},
		{Content: "quarterly budget review", Category: "work", Importance: 0.6},
	} {
		r := rec
		_, err := f.records.Insert(&r)
		require.NoError(t, err)
	}

	for _, qt := range []models.QueryType{models.QuerySemantic, models.QueryHybrid} {
		results, err := f.engine.Search(context.Background(), models.RecallRequest{
			Query:     "hiking",
			QueryType: qt,
		})
		require.NoError(t, err, "query type %s", qt)
		require.Len(t, results, 1, "query type %s", qt)
		require.Equal(t, "hiking trip planned for June", results[0].Record.Content)
		require.Nil(t, results[0].Similarity)
	}
}

func TestSearchExcludesArchived(t *testing.T) {
	f := setupEngine(t, embedding.NewMock(64))
	activeID := f.seed(t, "active hiking note", "preference", 0.5)
	archivedID := f.seed(t, "archived hiking note", "preference", 0.5)

	_, err := f.records.Archive(archivedID)
	require.NoError(t, err)
	// The index may transiently still hold the archived entry; hydration
	// must filter it out regardless.

	results, err := f.engine.Search(context.Background(), models.RecallRequest{
		Query:     "hiking",
		QueryType: models.QueryHybrid,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, activeID, results[0].Record.ID)

	results, err = f.engine.Search(context.Background(), models.RecallRequest{
		Query:           "hiking",
		QueryType:       models.QueryHybrid,
		IncludeArchived: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestSearchCategoryFilter(t *testing.T) {
	f := setupEngine(t, embedding.NewMock(64))
	f.seed(t, "hiking for fun", "preference", 0.5)
	f.seed(t, "hiking team offsite", "work", 0.5)

	results, err := f.engine.Search(context.Background(), models.RecallRequest{
		Query:     "hiking",
		QueryType: models.QueryHybrid,
		Category:  "work",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "work", results[0].Record.Category)
}

func TestSearchTopKLimit(t *testing.T) {
	f := setupEngine(t, embedding.NewMock(64))
	for i := 0; i < 8; i++ {
		f.seed(t, "hiking note number recorded", "general", 0.5)
	}

	results, err := f.engine.Search(context.Background(), models.RecallRequest{
		Query:     "hiking",
		QueryType: models.QueryHybrid,
		TopK:      3,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
}

func TestSearchNoMatches(t *testing.T) {
	f := setupEngine(t, embedding.NewMock(64))
	f.seed(t, "completely unrelated", "general", 0.5)

	results, err := f.engine.Search(context.Background(), models.RecallRequest{
		Query:               "xylophone maintenance",
		QueryType:           models.QueryKeyword,
		SimilarityThreshold: 0.99,
	})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRRFScore(t *testing.T) {
	require.InDelta(t, 1.0/61.0, rrfScore(1.0, 0), 1e-12)
	require.InDelta(t, 1.0/62.0, rrfScore(1.0, 1), 1e-12)
	require.InDelta(t, 0.5/61.0, rrfScore(0.5, 0), 1e-12)
	require.Zero(t, rrfScore(0, 7))
}
