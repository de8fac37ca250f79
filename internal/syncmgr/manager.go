// Package syncmgr reconciles the vector index with the canonical store
// after every record mutation. The canonical store always wins: a failed
// sync leaves the mutation in place and the index transiently stale.
package syncmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vectorindex"
)

// Operation is the kind of reconciliation to perform.
type Operation string

const (
	OpAdd    Operation = "add"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Status carries the running sync counters.
type Status struct {
	TotalAttempts int       `json:"totalAttempts"`
	Successes     int       `json:"successes"`
	Failures      int       `json:"failures"`
	LastError     string    `json:"lastError,omitempty"`
	LastAttempt   time.Time `json:"lastAttempt"`
	IndexActive   bool      `json:"indexActive"`
}

// Manager owns the eventual-consistency guarantee between the record
// store and the vector index. Operations on the same id are serialized;
// different ids proceed in parallel.
type Manager struct {
	records    *store.RecordStore
	index      *vectorindex.Index
	maxRetries int
	logger     *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	statusMu sync.Mutex
	status   Status
}

func New(records *store.RecordStore, index *vectorindex.Index, maxRetries int, logger *slog.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Manager{
		records:    records,
		index:      index,
		maxRetries: maxRetries,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// SyncMemory reconciles one record with the index. Returns whether the
// index now reflects the canonical state for that id. A false return only
// means the index is stale; the canonical mutation is never rolled back.
func (m *Manager) SyncMemory(ctx context.Context, id string, op Operation) bool {
	// Nothing to reconcile when the index cannot serve at all.
	if !m.index.Available() {
		return true
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	res := Retry(m.maxRetries, func() error {
		return m.syncOnce(ctx, id, op)
	})
	m.record(res)

	if res.Err != nil {
		m.logger.Warn("vector index sync failed",
			"id", id,
			"operation", string(op),
			"attempts", res.Attempts,
			"error", res.Err,
		)
		return false
	}
	return true
}

// syncOnce performs a single fresh reconciliation attempt.
func (m *Manager) syncOnce(ctx context.Context, id string, op Operation) error {
	if op == OpDelete {
		_, err := m.index.Delete(ctx, []string{id}, "")
		return err
	}

	rec, err := m.records.GetByID(id)
	if err != nil {
		return fmt.Errorf("fetch record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("record vanished before sync: %s", id)
	}

	// Archived records must not be index members; an add/update on one
	// collapses into a removal.
	if rec.IsArchived {
		_, err := m.index.Delete(ctx, []string{id}, "")
		return err
	}

	if op == OpUpdate {
		if _, err := m.index.Delete(ctx, []string{id}, ""); err != nil {
			return fmt.Errorf("drop stale entry: %w", err)
		}
	}

	return m.index.Upsert(ctx, vectorindex.Entry{
		ID:         rec.ID,
		Content:    rec.Content,
		Category:   rec.Category,
		Importance: rec.Importance,
		Source:     rec.Source,
	})
}

// GetSyncStatus returns a copy of the running counters.
func (m *Manager) GetSyncStatus() Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	st := m.status
	st.IndexActive = m.index.Available()
	return st
}

func (m *Manager) record(res Result) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.status.TotalAttempts += res.Attempts
	m.status.LastAttempt = time.Now()
	if res.Err != nil {
		m.status.Failures++
		m.status.LastError = res.Err.Error()
	} else {
		m.status.Successes++
	}
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Result is the outcome of a Retry run.
type Result struct {
	Attempts int
	Err      error
}

// Retry calls op up to maxAttempts times, stopping at the first success.
// Every attempt is a fresh call; no backoff is applied because the index
// is local and failures are not load-related.
func Retry(maxAttempts int, op func() error) Result {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = op(); lastErr == nil {
			return Result{Attempts: attempt}
		}
	}
	return Result{Attempts: maxAttempts, Err: lastErr}
}
