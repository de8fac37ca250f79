// Package search answers recall queries by fusing canonical keyword
// search with vector similarity search using weighted Reciprocal Rank
// Fusion.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vectorindex"
)

// RRFK is the rank-fusion constant: contributions are weight/(K+rank+1)
// with a 0-based rank. 60 is the standard choice from the RRF literature.
const RRFK = 60

// epsilon below which a strategy weight disables its retrieval leg.
const epsilon = 0.001

// Engine runs hybrid retrieval over the canonical store and the vector
// index. The two legs are independent and run concurrently; fusion waits
// for both.
type Engine struct {
	records *store.RecordStore
	index   *vectorindex.Index
	logger  *slog.Logger
}

func NewEngine(records *store.RecordStore, index *vectorindex.Index, logger *slog.Logger) *Engine {
	return &Engine{records: records, index: index, logger: logger}
}

// Search resolves a recall request into scored, hydrated records. Vector
// unavailability silently degrades to keyword-only retrieval; "no match"
// is an empty slice, never an error.
func (e *Engine) Search(ctx context.Context, req models.RecallRequest) ([]models.RecallResult, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	queryType := req.QueryType
	if !queryType.IsValid() {
		queryType = models.QueryHybrid
	}
	weights := models.QueryTypeWeights[queryType]

	// Embedding unavailable: the vector leg cannot run, keyword carries
	// the whole query.
	if !e.index.Available() {
		if weights.Keyword < epsilon {
			weights.Keyword = 1.0
		}
		weights.Vector = 0
	}

	// Fast path: pure keyword search is already ordered by the store.
	if weights.Vector < epsilon {
		return e.keywordOnly(req, weights.Keyword, topK)
	}
	// Fast path: pure vector search, hydrated from the canonical store.
	if weights.Keyword < epsilon {
		return e.vectorOnly(ctx, req, weights.Vector, topK)
	}

	return e.fused(ctx, req, weights, topK)
}

func (e *Engine) keywordOnly(req models.RecallRequest, weight float64, topK int) ([]models.RecallResult, error) {
	records, err := e.records.Search(models.SearchFilter{
		Text:            req.Query,
		Category:        req.Category,
		IncludeArchived: req.IncludeArchived,
		Limit:           topK,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]models.RecallResult, 0, len(records))
	for rank, rec := range records {
		results = append(results, models.RecallResult{
			Record: rec,
			Score:  rrfScore(weight, rank),
		})
	}
	return results, nil
}

func (e *Engine) vectorOnly(ctx context.Context, req models.RecallRequest, weight float64, topK int) ([]models.RecallResult, error) {
	matches, err := e.index.QuerySimilar(ctx, req.Query, topK, req.Category, req.SimilarityThreshold)
	if err != nil {
		// A broken embedder degrades to keyword retrieval, same as an
		// absent one.
		e.logger.Warn("vector leg failed, falling back to keyword search", "error", err)
		return e.keywordOnly(req, 1.0, topK)
	}

	results := make([]models.RecallResult, 0, len(matches))
	for rank, m := range matches {
		rec, err := e.records.GetByID(m.ID)
		if err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", m.ID, err)
		}
		if rec == nil || (rec.IsArchived && !req.IncludeArchived) {
			continue
		}
		sim := m.Similarity
		results = append(results, models.RecallResult{
			Record:     rec,
			Score:      rrfScore(weight, rank),
			Similarity: &sim,
		})
	}
	return results, nil
}

// fused runs both legs concurrently and merges them with weighted RRF.
func (e *Engine) fused(ctx context.Context, req models.RecallRequest, weights models.QueryWeights, topK int) ([]models.RecallResult, error) {
	var (
		wg         sync.WaitGroup
		keywordIDs []string
		matches    []vectorindex.Match
		kwErr      error
		vecErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		records, err := e.records.Search(models.SearchFilter{
			Text:            req.Query,
			Category:        req.Category,
			IncludeArchived: req.IncludeArchived,
			Limit:           2 * topK,
		})
		if err != nil {
			kwErr = err
			return
		}
		keywordIDs = make([]string, len(records))
		for i, r := range records {
			keywordIDs[i] = r.ID
		}
	}()
	go func() {
		defer wg.Done()
		matches, vecErr = e.index.QuerySimilar(ctx, req.Query, 2*topK, req.Category, req.SimilarityThreshold)
	}()
	wg.Wait()

	if kwErr != nil {
		return nil, fmt.Errorf("keyword search: %w", kwErr)
	}
	if vecErr != nil {
		// Degraded vector leg is not a caller-visible failure.
		e.logger.Warn("vector leg failed, fusing keyword results only", "error", vecErr)
		matches = nil
	}

	type candidate struct {
		score     float64
		firstSeen int
	}
	scores := make(map[string]*candidate)
	similarities := make(map[string]float64)
	seen := 0

	// Keyword list is scanned before the vector list, which fixes the
	// first-seen tie-break order.
	for rank, id := range keywordIDs {
		c, ok := scores[id]
		if !ok {
			c = &candidate{firstSeen: seen}
			seen++
			scores[id] = c
		}
		c.score += rrfScore(weights.Keyword, rank)
	}
	for rank, m := range matches {
		c, ok := scores[m.ID]
		if !ok {
			c = &candidate{firstSeen: seen}
			seen++
			scores[m.ID] = c
		}
		c.score += rrfScore(weights.Vector, rank)
		similarities[m.ID] = m.Similarity
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := scores[ids[i]], scores[ids[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		return a.firstSeen < b.firstSeen
	})

	results := make([]models.RecallResult, 0, topK)
	for _, id := range ids {
		if len(results) == topK {
			break
		}
		rec, err := e.records.GetByID(id)
		if err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", id, err)
		}
		if rec == nil || (rec.IsArchived && !req.IncludeArchived) {
			continue
		}
		res := models.RecallResult{Record: rec, Score: scores[id].score}
		if sim, ok := similarities[id]; ok {
			s := sim
			res.Similarity = &s
		}
		results = append(results, res)
	}
	return results, nil
}

// rrfScore is the weighted reciprocal-rank contribution for a 0-based rank.
func rrfScore(weight float64, rank int) float64 {
	return weight * (1.0 / float64(RRFK+rank+1))
}
