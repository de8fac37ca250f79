package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/engram-labs/engram/internal/models"
)

// CategoryStore manages the classification taxonomy. Categories carry an
// explicit position column: the classifier's keyword tier iterates in
// position order and the first match wins, so the order is part of the
// classification contract rather than an accident of registration.
type CategoryStore struct {
	db *DB
}

func NewCategoryStore(db *DB) *CategoryStore {
	return &CategoryStore{db: db}
}

// SeedDefaults inserts the default taxonomy if absent. Existing rows are
// never overwritten, so user edits to defaults survive restarts.
func (s *CategoryStore) SeedDefaults() error {
	for i, c := range models.DefaultCategories {
		_, err := s.db.Exec(`
			INSERT OR IGNORE INTO categories (id, name, description, keywords, parent_id, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.ID, c.Name, nullIfEmpty(c.Description), c.Keywords.EncodeJSON(), c.ParentID, i)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", c.ID, err)
		}
	}
	return nil
}

// Add registers a new category at the end of the iteration order and
// returns its id. The id is derived from the name; adding a name that
// already resolved to an existing id returns that id unchanged.
func (s *CategoryStore) Add(name, description string, keywords models.StringList, parentID *string) (string, error) {
	id := Slug(name)
	if id == "" {
		return "", fmt.Errorf("category name must not be empty")
	}

	existing, err := s.Get(id)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return id, nil
	}

	var maxPos sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(position) FROM categories`).Scan(&maxPos); err != nil {
		return "", fmt.Errorf("next category position: %w", err)
	}
	pos := 0
	if maxPos.Valid {
		pos = int(maxPos.Int64) + 1
	}

	_, err = s.db.Exec(`
		INSERT INTO categories (id, name, description, keywords, parent_id, position)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, name, nullIfEmpty(description), keywords.EncodeJSON(), parentID, pos)
	if err != nil {
		return "", fmt.Errorf("add category: %w", err)
	}
	return id, nil
}

// Get fetches a category by id. Returns (nil, nil) when unknown.
func (s *CategoryStore) Get(id string) (*models.Category, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, keywords, parent_id, position
		FROM categories WHERE id = ?
	`, id)

	c, err := scanCategory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// List returns all categories in iteration (position) order.
func (s *CategoryStore) List() ([]models.Category, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, keywords, parent_id, position
		FROM categories ORDER BY position ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var result []models.Category
	for rows.Next() {
		c, err := scanCategory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// MergeOverlay inserts categories supplied by the host configuration,
// skipping any id that already exists. Used at startup only.
func (s *CategoryStore) MergeOverlay(overlay []models.Category) (added int, err error) {
	for _, c := range overlay {
		id := c.ID
		if id == "" {
			id = Slug(c.Name)
		}
		if id == "" {
			continue
		}
		existing, err := s.Get(id)
		if err != nil {
			return added, err
		}
		if existing != nil {
			continue
		}
		if _, err := s.Add(c.Name, c.Description, c.Keywords, c.ParentID); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// Slug derives a stable category id from a display name.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func scanCategory(scan func(...any) error) (*models.Category, error) {
	var c models.Category
	var description, keywordsJSON sql.NullString
	var parentID sql.NullString

	if err := scan(&c.ID, &c.Name, &description, &keywordsJSON, &parentID, &c.Position); err != nil {
		return nil, err
	}
	if description.Valid {
		c.Description = description.String
	}
	if keywordsJSON.Valid {
		c.Keywords = models.DecodeStringList(keywordsJSON.String)
	}
	if parentID.Valid {
		c.ParentID = &parentID.String
	}
	return &c, nil
}
