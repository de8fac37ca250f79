package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/engram-labs/engram/internal/models"
)

// recordColumns is the canonical column list for all SELECT queries.
// Order must match scanOne/scanMany.
const recordColumns = `id, content, category, importance, source, tags, metadata,
	created_at, updated_at, last_accessed, access_count, is_archived, archived_at`

// RecordStore handles MemoryRecord CRUD on SQLite. It is the canonical,
// authoritative copy of all memory data; I/O errors from the engine
// propagate, unknown ids come back as (nil, nil) or false.
type RecordStore struct {
	db *DB
}

func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// Insert stores a new record and returns its generated id. The store is
// deliberately permissive about content: validation belongs to the
// Manager boundary, not here.
func (s *RecordStore) Insert(m *models.MemoryRecord) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Category == "" {
		m.Category = models.DefaultCategoryID
	}
	now := models.Now()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO records (
			id, content, category, importance, source, tags, metadata,
			created_at, updated_at, last_accessed, access_count, is_archived, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Content, m.Category, m.Importance, nullIfEmpty(m.Source),
		m.Tags.EncodeJSON(), m.Metadata.EncodeJSON(),
		m.CreatedAt, m.UpdatedAt, m.LastAccessed, m.AccessCount,
		boolToInt(m.IsArchived), m.ArchivedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return m.ID, nil
}

// GetByID fetches a single record. Returns (nil, nil) when the id is unknown.
func (s *RecordStore) GetByID(id string) (*models.MemoryRecord, error) {
	m, err := s.scanOne(s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM records WHERE id = ?`, recordColumns), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// Update applies partial updates. Returns false when the id is unknown or
// the request carries no fields.
func (s *RecordStore) Update(id string, req *models.UpdateRequest) (bool, error) {
	if req == nil || req.IsEmpty() {
		return false, nil
	}

	sets := []string{"updated_at = ?"}
	args := []any{models.Now()}

	if req.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *req.Content)
	}
	if req.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *req.Category)
	}
	if req.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *req.Importance)
	}
	if req.Source != nil {
		sets = append(sets, "source = ?")
		args = append(args, nullIfEmpty(*req.Source))
	}
	if req.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, req.Tags.EncodeJSON())
	}
	if req.Metadata != nil {
		sets = append(sets, "metadata = ?")
		args = append(args, req.Metadata.EncodeJSON())
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE records SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("update record: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Delete hard-deletes a record. Terminal: there is no undelete.
func (s *RecordStore) Delete(id string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Archive soft-deletes a record. Archiving an already-archived record
// succeeds again (the timestamp is refreshed).
func (s *RecordStore) Archive(id string) (bool, error) {
	now := models.Now()
	res, err := s.db.Exec(`
		UPDATE records SET is_archived = 1, archived_at = ?, updated_at = ?
		WHERE id = ?
	`, now, now, id)
	if err != nil {
		return false, fmt.Errorf("archive record: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Unarchive returns a record to the active state.
func (s *RecordStore) Unarchive(id string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE records SET is_archived = 0, archived_at = NULL, updated_at = ?
		WHERE id = ?
	`, models.Now(), id)
	if err != nil {
		return false, fmt.Errorf("unarchive record: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Search returns records ordered by importance DESC, created_at DESC.
// The text filter is a case-insensitive substring match (SQLite LIKE);
// archived records are excluded unless IncludeArchived is set.
func (s *RecordStore) Search(f models.SearchFilter) ([]*models.MemoryRecord, error) {
	var conditions []string
	var args []any

	if f.Text != "" {
		conditions = append(conditions, "content LIKE ?")
		args = append(args, "%"+f.Text+"%")
	}
	if f.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, f.Category)
	}
	if f.MinImportance > 0 {
		conditions = append(conditions, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	if f.MaxImportance > 0 {
		conditions = append(conditions, "importance <= ?")
		args = append(args, f.MaxImportance)
	}
	if !f.IncludeArchived {
		conditions = append(conditions, "is_archived = 0")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s FROM records %s
		ORDER BY importance DESC, created_at DESC
		LIMIT ? OFFSET ?
	`, recordColumns, whereClause)
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// GetRecent returns active records created within the last `days` days.
func (s *RecordStore) GetRecent(days, limit int) ([]*models.MemoryRecord, error) {
	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 20
	}
	cutoff := models.Now() - int64(days)*86400

	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s FROM records
		WHERE created_at >= ? AND is_archived = 0
		ORDER BY created_at DESC
		LIMIT ?
	`, recordColumns), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// GetImportant returns active records at or above the importance floor.
func (s *RecordStore) GetImportant(minImportance float64, limit int) ([]*models.MemoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.Search(models.SearchFilter{
		MinImportance: minImportance,
		Limit:         limit,
	})
}

// RecordAccess appends an access_log entry and updates the record's access
// counters in one transaction.
func (s *RecordStore) RecordAccess(id string, accessType models.AccessType, context string) error {
	now := models.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin access tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO access_log (memory_id, access_type, access_context, accessed_at)
		VALUES (?, ?, ?, ?)
	`, id, string(accessType), nullIfEmpty(context), now); err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE records SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?
	`, now, id); err != nil {
		return fmt.Errorf("update access counters: %w", err)
	}

	return tx.Commit()
}

// ActiveIDs returns the ids of every non-archived record. Used to
// regenerate the vector index, which is a derived projection.
func (s *RecordStore) ActiveIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM records WHERE is_archived = 0`)
	if err != nil {
		return nil, fmt.Errorf("list active ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns store-wide counts used by the stats endpoint.
func (s *RecordStore) Stats() (*models.StoreStats, error) {
	stats := &models.StoreStats{ByCategory: make(map[string]int)}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&stats.TotalRecords); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records WHERE is_archived = 1`).Scan(&stats.Archived); err != nil {
		return nil, fmt.Errorf("count archived: %w", err)
	}
	stats.ActiveRecords = stats.TotalRecords - stats.Archived

	rows, err := s.db.Query(`SELECT category, COUNT(*) FROM records GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		stats.ByCategory[cat] = n
	}
	return stats, rows.Err()
}

func (s *RecordStore) scanOne(row *sql.Row) (*models.MemoryRecord, error) {
	var m models.MemoryRecord
	var source, tagsJSON, metaJSON sql.NullString
	var lastAccessed, archivedAt sql.NullInt64
	var isArchived int

	err := row.Scan(
		&m.ID, &m.Content, &m.Category, &m.Importance, &source,
		&tagsJSON, &metaJSON,
		&m.CreatedAt, &m.UpdatedAt, &lastAccessed, &m.AccessCount,
		&isArchived, &archivedAt,
	)
	if err != nil {
		return nil, err
	}

	populateNullables(&m, source, tagsJSON, metaJSON, lastAccessed, archivedAt, isArchived)
	return &m, nil
}

func (s *RecordStore) scanMany(rows *sql.Rows) ([]*models.MemoryRecord, error) {
	var result []*models.MemoryRecord
	for rows.Next() {
		var m models.MemoryRecord
		var source, tagsJSON, metaJSON sql.NullString
		var lastAccessed, archivedAt sql.NullInt64
		var isArchived int

		if err := rows.Scan(
			&m.ID, &m.Content, &m.Category, &m.Importance, &source,
			&tagsJSON, &metaJSON,
			&m.CreatedAt, &m.UpdatedAt, &lastAccessed, &m.AccessCount,
			&isArchived, &archivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		populateNullables(&m, source, tagsJSON, metaJSON, lastAccessed, archivedAt, isArchived)
		result = append(result, &m)
	}
	return result, rows.Err()
}

// populateNullables fills in optional fields from nullable SQL columns.
func populateNullables(
	m *models.MemoryRecord,
	source, tagsJSON, metaJSON sql.NullString,
	lastAccessed, archivedAt sql.NullInt64,
	isArchived int,
) {
	if source.Valid {
		m.Source = source.String
	}
	if tagsJSON.Valid {
		m.Tags = models.DecodeStringList(tagsJSON.String)
	}
	if metaJSON.Valid {
		m.Metadata = models.DecodeMetadata(metaJSON.String)
	}
	if lastAccessed.Valid {
		m.LastAccessed = &lastAccessed.Int64
	}
	if archivedAt.Valid {
		m.ArchivedAt = &archivedAt.Int64
	}
	m.IsArchived = isArchived != 0
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
