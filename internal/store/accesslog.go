package store

import (
	"database/sql"
	"fmt"

	"github.com/engram-labs/engram/internal/models"
)

// AccessLogStore reads the append-only access log. Writes go through
// RecordStore.RecordAccess so the log entry and the record's counters
// move in the same transaction.
type AccessLogStore struct {
	db *DB
}

func NewAccessLogStore(db *DB) *AccessLogStore {
	return &AccessLogStore{db: db}
}

// ForMemory returns the access history of one record, newest first.
func (s *AccessLogStore) ForMemory(memoryID string, limit int) ([]models.AccessLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, memory_id, access_type, access_context, accessed_at
		FROM access_log
		WHERE memory_id = ?
		ORDER BY accessed_at DESC, id DESC
		LIMIT ?
	`, memoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("access log for memory: %w", err)
	}
	defer rows.Close()
	return scanAccessEntries(rows)
}

// Recent returns the latest log entries across all records.
func (s *AccessLogStore) Recent(limit int) ([]models.AccessLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, memory_id, access_type, access_context, accessed_at
		FROM access_log
		ORDER BY accessed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent access log: %w", err)
	}
	defer rows.Close()
	return scanAccessEntries(rows)
}

func scanAccessEntries(rows *sql.Rows) ([]models.AccessLogEntry, error) {
	var entries []models.AccessLogEntry
	for rows.Next() {
		var e models.AccessLogEntry
		var context sql.NullString
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.AccessType, &context, &e.AccessedAt); err != nil {
			return nil, fmt.Errorf("scan access entry: %w", err)
		}
		if context.Valid {
			e.Context = context.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
