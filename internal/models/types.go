package models

import (
	"encoding/json"
	"time"
)

// MemoryRecord is a single remembered fact. The records table in SQLite is
// the single source of truth for every field; the vector index only ever
// holds a derived copy.
type MemoryRecord struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	Category     string     `json:"category"`
	Importance   float64    `json:"importance"`
	Source       string     `json:"source,omitempty"`
	Tags         StringList `json:"tags,omitempty"`
	Metadata     Metadata   `json:"metadata,omitempty"`
	CreatedAt    int64      `json:"createdAt"`
	UpdatedAt    int64      `json:"updatedAt"`
	LastAccessed *int64     `json:"lastAccessed,omitempty"`
	AccessCount  int        `json:"accessCount"`
	IsArchived   bool       `json:"isArchived"`
	ArchivedAt   *int64     `json:"archivedAt,omitempty"`
}

// Category is a node in the classification taxonomy. Keywords drive the
// exact-match tier of the classifier; Description is embedded for the
// semantic tier. Position fixes the keyword-tier iteration order.
type Category struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Keywords    StringList `json:"keywords,omitempty"`
	ParentID    *string    `json:"parentId,omitempty"`
	Position    int        `json:"position"`
}

// AccessType labels an access_log entry.
type AccessType string

const (
	AccessRead   AccessType = "read"
	AccessWrite  AccessType = "write"
	AccessDelete AccessType = "delete"
)

// AccessLogEntry is one append-only access_log row. Entries are never
// mutated or deleted, and deliberately outlive hard-deleted records.
type AccessLogEntry struct {
	ID         int64      `json:"id"`
	MemoryID   string     `json:"memoryId"`
	AccessType AccessType `json:"accessType"`
	Context    string     `json:"context,omitempty"`
	AccessedAt int64      `json:"accessedAt"`
}

// StringList is an ordered list of strings stored as a JSON TEXT column.
// Encoding happens only at the store perimeter.
type StringList []string

// Metadata is an opaque key→value map stored as a JSON TEXT column.
type Metadata map[string]any

// EncodeJSON serializes the list for a TEXT column. A nil list encodes as
// NULL rather than "null".
func (l StringList) EncodeJSON() *string {
	if l == nil {
		return nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// DecodeStringList parses a JSON TEXT column back into a list.
func DecodeStringList(s string) StringList {
	if s == "" {
		return nil
	}
	var l StringList
	if err := json.Unmarshal([]byte(s), &l); err != nil {
		return nil
	}
	return l
}

// EncodeJSON serializes the map for a TEXT column.
func (m Metadata) EncodeJSON() *string {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// DecodeMetadata parses a JSON TEXT column back into a map.
func DecodeMetadata(s string) Metadata {
	if s == "" {
		return nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// QueryType selects the keyword/vector weight pair for retrieval.
type QueryType string

const (
	QueryKeyword  QueryType = "keyword"
	QuerySemantic QueryType = "semantic"
	QueryHybrid   QueryType = "hybrid"
)

func (q QueryType) IsValid() bool {
	_, ok := QueryTypeWeights[q]
	return ok
}

// QueryWeights is a (keyword, vector) weight pair. The weights need not
// sum to 1; rank fusion normalizes nothing.
type QueryWeights struct {
	Keyword float64
	Vector  float64
}

// QueryTypeWeights is the fixed strategy table. A weight below 0.001
// short-circuits the corresponding retrieval leg entirely.
var QueryTypeWeights = map[QueryType]QueryWeights{
	QueryKeyword:  {Keyword: 1.0, Vector: 0.0},
	QuerySemantic: {Keyword: 0.0, Vector: 1.0},
	QueryHybrid:   {Keyword: 1.0, Vector: 1.0},
}

// DefaultCategoryID is the fallback bucket for unclassifiable content.
const DefaultCategoryID = "general"

// DefaultCategories is the fixed taxonomy seeded on first open, in
// keyword-tier iteration order. The order is load-bearing: the first
// category whose keyword matches wins.
var DefaultCategories = []Category{
	{
		ID:          "personal",
		Name:        "Personal",
		Description: "Personal identity facts: name, age, birthday, where the user lives, family details",
		Keywords:    StringList{"my name is", "years old", "i am ", "i live", "my birthday", "my family"},
	},
	{
		ID:          "contact",
		Name:        "Contact",
		Description: "Contact details: email addresses, phone numbers, postal addresses, messaging handles",
		Keywords:    StringList{"email", "phone", "address", "wechat", "telegram", "@"},
	},
	{
		ID:          "preference",
		Name:        "Preference",
		Description: "Likes, dislikes, tastes and habits the user has expressed",
		Keywords:    StringList{"i like", "i love", "i enjoy", "i prefer", "favorite", "i hate", "i dislike"},
	},
	{
		ID:          "work",
		Name:        "Work",
		Description: "Job, projects, meetings, colleagues and other professional context",
		Keywords:    StringList{"work", "my job", "project", "meeting", "deadline", "colleague"},
	},
	{
		ID:          "goal",
		Name:        "Goal",
		Description: "Goals, plans and intentions the user wants to accomplish",
		Keywords:    StringList{"my goal", "i want to", "i plan to", "i aim to", "objective"},
	},
	{
		ID:          "knowledge",
		Name:        "Knowledge",
		Description: "General knowledge, facts, instructions and how-to information",
		Keywords:    StringList{"recipe", "how to", "definition", "fact:", "means that"},
	},
	{
		ID:          "event",
		Name:        "Event",
		Description: "Appointments, schedules, anniversaries and other dated happenings",
		Keywords:    StringList{"tomorrow", "appointment", "schedule", "anniversary", "next week"},
	},
	{
		ID:          DefaultCategoryID,
		Name:        "General",
		Description: "",
		Keywords:    nil,
	},
}

// CategoryBaseWeights maps a category id to the importance scorer's
// starting weight. Categories absent from the table use ScorerDefaultBase.
var CategoryBaseWeights = map[string]float64{
	"personal":   0.7,
	"contact":    0.8,
	"preference": 0.6,
	"work":       0.6,
	"goal":       0.75,
	"knowledge":  0.5,
	"event":      0.6,
	"general":    0.4,
}

// ScorerDefaultBase is the base weight for categories outside the table.
const ScorerDefaultBase = 0.5

// RememberRequest is the input to Manager.Remember.
type RememberRequest struct {
	Content    string     `json:"content"`
	Category   string     `json:"category,omitempty"`
	Importance *float64   `json:"importance,omitempty"`
	Source     string     `json:"source,omitempty"`
	Tags       StringList `json:"tags,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
}

// RecallRequest is the input to Manager.Recall.
type RecallRequest struct {
	Query               string    `json:"query"`
	QueryType           QueryType `json:"queryType,omitempty"`
	TopK                int       `json:"topK,omitempty"`
	Category            string    `json:"category,omitempty"`
	SimilarityThreshold float64   `json:"similarityThreshold,omitempty"`
	IncludeArchived     bool      `json:"includeArchived,omitempty"`
}

// RecallResult is a hydrated record plus retrieval scores. Similarity is
// only set when the vector leg saw the record.
type RecallResult struct {
	Record     *MemoryRecord `json:"record"`
	Score      float64       `json:"score"`
	Similarity *float64      `json:"similarity,omitempty"`
}

// UpdateRequest carries partial field updates; nil fields are untouched.
type UpdateRequest struct {
	Content    *string     `json:"content,omitempty"`
	Category   *string     `json:"category,omitempty"`
	Importance *float64    `json:"importance,omitempty"`
	Source     *string     `json:"source,omitempty"`
	Tags       *StringList `json:"tags,omitempty"`
	Metadata   *Metadata   `json:"metadata,omitempty"`
}

// IsEmpty reports whether no fields were supplied.
func (r *UpdateRequest) IsEmpty() bool {
	return r.Content == nil && r.Category == nil && r.Importance == nil &&
		r.Source == nil && r.Tags == nil && r.Metadata == nil
}

// SearchFilter is the canonical-store search contract. Text matching is a
// case-insensitive substring match (SQLite LIKE semantics).
type SearchFilter struct {
	Text            string
	Category        string
	MinImportance   float64
	MaxImportance   float64
	IncludeArchived bool
	Limit           int
	Offset          int
}

// ForgetResult reports what Forget did per lifecycle stage.
type ForgetResult struct {
	Archived int `json:"archived"`
	Deleted  int `json:"deleted"`
}

// StoreStats is the per-store summary exposed by the stats endpoint.
type StoreStats struct {
	TotalRecords  int            `json:"totalRecords"`
	ActiveRecords int            `json:"activeRecords"`
	Archived      int            `json:"archived"`
	ByCategory    map[string]int `json:"byCategory"`
	IndexedIDs    int            `json:"indexedIds"`
}

// Now returns the current unix time. Indirection so tests can pin time.
var Now = func() int64 { return time.Now().Unix() }
