package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/engram-labs/engram/internal/embedding"
)

// collectionName is the single chromem collection backing the index.
const collectionName = "memories"

// Entry is the index-side copy of a record: its embedding plus the
// metadata used for index-side filtering. Entries are fully regenerable
// from the canonical store and never authoritative.
type Entry struct {
	ID         string
	Content    string
	Category   string
	Importance float64
	Source     string
}

// Match is one similarity result, already converted to the normalized
// [0,1] similarity scale.
type Match struct {
	ID         string
	Similarity float64
}

// Index is the derived similarity projection over chromem-go, an embedded
// pure-Go vector database. When no embedder is configured the index
// reports itself non-functional: writes no-op and queries return nothing,
// but nothing ever crashes.
type Index struct {
	embedder embedding.Embedder // nil means the provider is unavailable

	mu      sync.RWMutex
	col     *chromem.Collection
	entries map[string]Entry // chromem exposes no listing API; we keep our own
}

// New builds the index. embedder may be nil (offline mode).
func New(embedder embedding.Embedder) (*Index, error) {
	db := chromem.NewDB()
	// Embeddings are supplied explicitly, so no embedding func is wired
	// into the collection itself.
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{
		embedder: embedder,
		col:      col,
		entries:  make(map[string]Entry),
	}, nil
}

// Available reports whether the index can embed and therefore serve.
func (x *Index) Available() bool {
	return x.embedder != nil
}

// Upsert embeds text and stores or overwrites the entry for id. A no-op
// when the index is non-functional.
func (x *Index) Upsert(ctx context.Context, entry Entry) error {
	if !x.Available() {
		return nil
	}

	vec, err := x.embedder.Embed(ctx, entry.Content)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// chromem has no replace semantics; delete any stale document first.
	if _, exists := x.entries[entry.ID]; exists {
		if err := x.col.Delete(ctx, nil, nil, entry.ID); err != nil {
			return fmt.Errorf("delete stale entry: %w", err)
		}
	}

	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.Content,
		Embedding: vec,
		Metadata: map[string]string{
			"category":   entry.Category,
			"importance": strconv.FormatFloat(entry.Importance, 'f', 2, 64),
			"source":     entry.Source,
		},
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	x.entries[entry.ID] = entry
	return nil
}

// Delete removes entries by id set and/or by category filter. Returns
// whether anything was removed.
func (x *Index) Delete(ctx context.Context, ids []string, category string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var victims []string
	for _, id := range ids {
		if _, ok := x.entries[id]; ok {
			victims = append(victims, id)
		}
	}
	if category != "" {
		for id, e := range x.entries {
			if e.Category == category {
				victims = append(victims, id)
			}
		}
	}
	if len(victims) == 0 {
		return false, nil
	}

	if err := x.col.Delete(ctx, nil, nil, victims...); err != nil {
		return false, fmt.Errorf("delete entries: %w", err)
	}
	for _, id := range victims {
		delete(x.entries, id)
	}
	return true, nil
}

// QuerySimilar embeds text and returns up to k matches at or above the
// similarity threshold, best first. The underlying nearest-neighbor
// search is asked for 2k candidates so threshold filtering still leaves
// enough survivors. Non-functional or empty indexes return nothing.
func (x *Index) QuerySimilar(ctx context.Context, text string, k int, category string, threshold float64) ([]Match, error) {
	if !x.Available() || k <= 0 {
		return nil, nil
	}

	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	// chromem rejects nResults greater than the candidate set size.
	candidates := x.col.Count()
	if category != "" {
		candidates = 0
		for _, e := range x.entries {
			if e.Category == category {
				candidates++
			}
		}
	}
	n := 2 * k
	if n > candidates {
		n = candidates
	}
	if n == 0 {
		return nil, nil
	}

	var where map[string]string
	if category != "" {
		where = map[string]string{"category": category}
	}

	results, err := x.col.QueryEmbedding(ctx, vec, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		// chromem reports cosine similarity; the engine-native distance is
		// 1 - cos, and the normalized similarity contract is 1 - distance/2.
		sim := SimilarityFromDistance(1 - float64(r.Similarity))
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{ID: r.ID, Similarity: sim})
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// GetByID returns the index-side entry for id, if present.
func (x *Index) GetByID(id string) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[id]
	return e, ok
}

// ListIDs returns every indexed id.
func (x *Index) ListIDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]string, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of indexed entries.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// SimilarityFromDistance converts an engine-native distance in [0,2] to
// the normalized [0,1] similarity scale: 1 - distance/2, clamped.
func SimilarityFromDistance(distance float64) float64 {
	sim := 1 - distance/2
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
