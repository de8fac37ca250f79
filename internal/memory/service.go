// Package memory is the façade composing the canonical store, vector
// index, classifier, scorer, sync manager and retrieval engine into the
// remember/recall/forget surface the host application uses.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/engram-labs/engram/internal/classify"
	"github.com/engram-labs/engram/internal/importance"
	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/search"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/syncmgr"
	"github.com/engram-labs/engram/internal/vectorindex"
)

// Services is the explicit service context handed to the Manager at
// construction. Its lifetime belongs to whoever builds it; nothing here
// is a process-wide singleton.
type Services struct {
	Records    *store.RecordStore
	Categories *store.CategoryStore
	AccessLog  *store.AccessLogStore
	Index      *vectorindex.Index
	Sync       *syncmgr.Manager
	Classifier *classify.Classifier
	Scorer     *importance.Scorer
	Engine     *search.Engine
	Logger     *slog.Logger
}

// Manager orchestrates all memory operations. Ordinary "no match" and
// "feature degraded" conditions come back as empty results or false;
// errors are reserved for invalid input and storage failures.
type Manager struct {
	svc Services
}

func NewManager(svc Services) *Manager {
	return &Manager{svc: svc}
}

// Remember classifies, scores and stores a new fact, then reconciles the
// vector index. A failed index sync is logged and counted but never
// unwinds the stored record.
func (m *Manager) Remember(ctx context.Context, req models.RememberRequest) (*models.MemoryRecord, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("content must not be empty")
	}
	if req.Importance != nil && (*req.Importance < 0 || *req.Importance > 1) {
		return nil, fmt.Errorf("importance must be in [0,1], got %v", *req.Importance)
	}

	category := req.Category
	if category == "" {
		category = m.svc.Classifier.Classify(ctx, req.Content, true)
	}

	score := m.svc.Scorer.Score(req.Content, category)
	if req.Importance != nil {
		score = m.svc.Scorer.Blend(score, *req.Importance)
	}

	rec := &models.MemoryRecord{
		Content:    req.Content,
		Category:   category,
		Importance: score,
		Source:     req.Source,
		Tags:       req.Tags,
		Metadata:   req.Metadata,
	}
	id, err := m.svc.Records.Insert(rec)
	if err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}

	if err := m.svc.Records.RecordAccess(id, models.AccessWrite, "remember"); err != nil {
		m.svc.Logger.Warn("record write access", "id", id, "error", err)
	}

	m.svc.Sync.SyncMemory(ctx, id, syncmgr.OpAdd)

	m.svc.Logger.Info("memory stored",
		"id", id,
		"category", category,
		"importance", score,
	)
	return rec, nil
}

// Recall retrieves records relevant to query. Empty queries and queries
// with no matches return an empty slice.
func (m *Manager) Recall(ctx context.Context, req models.RecallRequest) ([]models.RecallResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	results, err := m.svc.Engine.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}

	for _, r := range results {
		if err := m.svc.Records.RecordAccess(r.Record.ID, models.AccessRead, "recall"); err != nil {
			m.svc.Logger.Warn("record read access", "id", r.Record.ID, "error", err)
		}
	}
	return results, nil
}

// Get fetches one record by id. Returns (nil, nil) when unknown.
func (m *Manager) Get(id string) (*models.MemoryRecord, error) {
	rec, err := m.svc.Records.GetByID(id)
	if err != nil || rec == nil {
		return rec, err
	}
	if err := m.svc.Records.RecordAccess(id, models.AccessRead, "get"); err != nil {
		m.svc.Logger.Warn("record read access", "id", id, "error", err)
	}
	return rec, nil
}

// Forget applies the two-stage deletion policy to every record whose
// content matches pattern: active matches are archived, already-archived
// matches are hard-deleted. Non-matching records are untouched.
func (m *Manager) Forget(ctx context.Context, pattern string) (models.ForgetResult, error) {
	var result models.ForgetResult
	if strings.TrimSpace(pattern) == "" {
		return result, nil
	}

	matches, err := m.svc.Records.Search(models.SearchFilter{
		Text:            pattern,
		IncludeArchived: true,
		Limit:           1000,
	})
	if err != nil {
		return result, fmt.Errorf("match pattern: %w", err)
	}

	for _, rec := range matches {
		if rec.IsArchived {
			ok, err := m.delete(ctx, rec.ID, "forget")
			if err != nil {
				return result, err
			}
			if ok {
				result.Deleted++
			}
			continue
		}
		if ok, err := m.svc.Records.Archive(rec.ID); err != nil {
			return result, fmt.Errorf("archive %s: %w", rec.ID, err)
		} else if ok {
			m.svc.Sync.SyncMemory(ctx, rec.ID, syncmgr.OpDelete)
			result.Archived++
		}
	}

	m.svc.Logger.Info("forget applied",
		"pattern", pattern,
		"archived", result.Archived,
		"deleted", result.Deleted,
	)
	return result, nil
}

// Update applies partial updates and re-syncs the index. Returns false
// when the id is unknown or no fields were supplied.
func (m *Manager) Update(ctx context.Context, id string, req *models.UpdateRequest) (bool, error) {
	if req != nil && req.Importance != nil && (*req.Importance < 0 || *req.Importance > 1) {
		return false, fmt.Errorf("importance must be in [0,1], got %v", *req.Importance)
	}

	ok, err := m.svc.Records.Update(id, req)
	if err != nil || !ok {
		return ok, err
	}

	if err := m.svc.Records.RecordAccess(id, models.AccessWrite, "update"); err != nil {
		m.svc.Logger.Warn("record write access", "id", id, "error", err)
	}
	m.svc.Sync.SyncMemory(ctx, id, syncmgr.OpUpdate)
	return true, nil
}

// Archive soft-deletes a record and removes it from the index.
func (m *Manager) Archive(ctx context.Context, id string) (bool, error) {
	ok, err := m.svc.Records.Archive(id)
	if err != nil || !ok {
		return ok, err
	}
	if err := m.svc.Records.RecordAccess(id, models.AccessWrite, "archive"); err != nil {
		m.svc.Logger.Warn("record write access", "id", id, "error", err)
	}
	m.svc.Sync.SyncMemory(ctx, id, syncmgr.OpDelete)
	return true, nil
}

// Unarchive restores a record and re-adds it to the index.
func (m *Manager) Unarchive(ctx context.Context, id string) (bool, error) {
	ok, err := m.svc.Records.Unarchive(id)
	if err != nil || !ok {
		return ok, err
	}
	if err := m.svc.Records.RecordAccess(id, models.AccessWrite, "unarchive"); err != nil {
		m.svc.Logger.Warn("record write access", "id", id, "error", err)
	}
	m.svc.Sync.SyncMemory(ctx, id, syncmgr.OpAdd)
	return true, nil
}

// Delete hard-deletes a record from both representations. Terminal.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	return m.delete(ctx, id, "delete")
}

func (m *Manager) delete(ctx context.Context, id, accessContext string) (bool, error) {
	ok, err := m.svc.Records.Delete(id)
	if err != nil {
		return false, fmt.Errorf("delete record %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}
	// The log entry outlives the row it describes (no foreign key), but it
	// is only written once the row is actually gone.
	if err := m.svc.Records.RecordAccess(id, models.AccessDelete, accessContext); err != nil {
		m.svc.Logger.Warn("record delete access", "id", id, "error", err)
	}
	m.svc.Sync.SyncMemory(ctx, id, syncmgr.OpDelete)
	return true, nil
}

// GetRecent returns active records created in the last `days` days.
func (m *Manager) GetRecent(days, limit int) ([]*models.MemoryRecord, error) {
	return m.svc.Records.GetRecent(days, limit)
}

// GetImportant returns active records at or above an importance floor.
func (m *Manager) GetImportant(minImportance float64, limit int) ([]*models.MemoryRecord, error) {
	return m.svc.Records.GetImportant(minImportance, limit)
}

// AddCategory extends the taxonomy at runtime and invalidates the
// classifier's description-embedding cache.
func (m *Manager) AddCategory(name, description string, keywords models.StringList, parentID *string) (string, error) {
	id, err := m.svc.Categories.Add(name, description, keywords, parentID)
	if err != nil {
		return "", err
	}
	m.svc.Classifier.Invalidate()
	return id, nil
}

// ListCategories returns the taxonomy in classification order.
func (m *Manager) ListCategories() ([]models.Category, error) {
	return m.svc.Categories.List()
}

// AccessHistory returns the append-only access trail for a record.
func (m *Manager) AccessHistory(id string, limit int) ([]models.AccessLogEntry, error) {
	return m.svc.AccessLog.ForMemory(id, limit)
}

// RecentAccess returns the latest access trail across all records.
func (m *Manager) RecentAccess(limit int) ([]models.AccessLogEntry, error) {
	return m.svc.AccessLog.Recent(limit)
}

// Stats summarizes both representations.
func (m *Manager) Stats() (*models.StoreStats, error) {
	stats, err := m.svc.Records.Stats()
	if err != nil {
		return nil, err
	}
	stats.IndexedIDs = m.svc.Index.Count()
	return stats, nil
}

// SyncStatus exposes the sync manager's running counters.
func (m *Manager) SyncStatus() syncmgr.Status {
	return m.svc.Sync.GetSyncStatus()
}

// RebuildIndex regenerates the vector index from the canonical store.
// The index is a derived projection, so this is always safe.
func (m *Manager) RebuildIndex(ctx context.Context) (synced int, err error) {
	if !m.svc.Index.Available() {
		return 0, nil
	}
	ids, err := m.svc.Records.ActiveIDs()
	if err != nil {
		return 0, fmt.Errorf("list active records: %w", err)
	}
	for _, id := range ids {
		if m.svc.Sync.SyncMemory(ctx, id, syncmgr.OpUpdate) {
			synced++
		}
	}
	return synced, nil
}
