package store_test

import (
	"path/filepath"
	"testing"

	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordStore(t *testing.T) {
	db := setupTestDB(t)
	rs := store.NewRecordStore(db)

	t.Run("Insert and GetByID", func(t *testing.T) {
		rec := &models.MemoryRecord{
			Content:    "Alex prefers dark roast coffee",
			Category:   "preference",
			Importance: 0.6,
			Source:     "chat",
			Tags:       models.StringList{"coffee"},
			Metadata:   models.Metadata{"channel": "dm"},
		}
		id, err := rs.Insert(rec)
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		if id == "" {
			t.Fatal("expected generated id")
		}

		got, err := rs.GetByID(id)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected record, got nil")
		}
		if got.Content != rec.Content {
			t.Fatalf("content mismatch: %s != %s", got.Content, rec.Content)
		}
		if got.Category != "preference" {
			t.Fatalf("category mismatch: %s", got.Category)
		}
		if len(got.Tags) != 1 || got.Tags[0] != "coffee" {
			t.Fatalf("tags mismatch: %v", got.Tags)
		}
		if got.Metadata["channel"] != "dm" {
			t.Fatalf("metadata mismatch: %v", got.Metadata)
		}
		if got.CreatedAt == 0 || got.UpdatedAt == 0 {
			t.Fatal("expected timestamps to be set")
		}
	})

	t.Run("GetByID unknown returns nil nil", func(t *testing.T) {
		got, err := rs.GetByID("no-such-id")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})

	t.Run("empty category defaults", func(t *testing.T) {
		id, err := rs.Insert(&models.MemoryRecord{Content: "uncategorized fact"})
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		got, _ := rs.GetByID(id)
		if got.Category != models.DefaultCategoryID {
			t.Fatalf("expected default category, got %s", got.Category)
		}
	})

	t.Run("Update partial fields", func(t *testing.T) {
		id, _ := rs.Insert(&models.MemoryRecord{
			Content: "original content", Category: "work", Importance: 0.5,
		})

		newContent := "revised content"
		newImportance := 0.9
		ok, err := rs.Update(id, &models.UpdateRequest{
			Content:    &newContent,
			Importance: &newImportance,
		})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if !ok {
			t.Fatal("expected update to apply")
		}

		got, _ := rs.GetByID(id)
		if got.Content != newContent {
			t.Fatalf("content not updated: %s", got.Content)
		}
		if got.Importance != newImportance {
			t.Fatalf("importance not updated: %f", got.Importance)
		}
		if got.Category != "work" {
			t.Fatalf("untouched field changed: %s", got.Category)
		}
	})

	t.Run("Update empty request is a no-op", func(t *testing.T) {
		id, _ := rs.Insert(&models.MemoryRecord{Content: "stable"})
		ok, err := rs.Update(id, &models.UpdateRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("expected no-op for empty request")
		}
	})

	t.Run("Update unknown id returns false", func(t *testing.T) {
		c := "x"
		ok, err := rs.Update("no-such-id", &models.UpdateRequest{Content: &c})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("expected false for unknown id")
		}
	})

	t.Run("Archive and Unarchive", func(t *testing.T) {
		id, _ := rs.Insert(&models.MemoryRecord{Content: "to archive"})

		ok, err := rs.Archive(id)
		if err != nil || !ok {
			t.Fatalf("archive failed: ok=%v err=%v", ok, err)
		}
		got, _ := rs.GetByID(id)
		if !got.IsArchived || got.ArchivedAt == nil {
			t.Fatalf("expected archived state, got %+v", got)
		}

		ok, err = rs.Unarchive(id)
		if err != nil || !ok {
			t.Fatalf("unarchive failed: ok=%v err=%v", ok, err)
		}
		got, _ = rs.GetByID(id)
		if got.IsArchived || got.ArchivedAt != nil {
			t.Fatalf("expected active state, got %+v", got)
		}
	})

	t.Run("Delete is terminal", func(t *testing.T) {
		id, _ := rs.Insert(&models.MemoryRecord{Content: "ephemeral"})

		ok, err := rs.Delete(id)
		if err != nil || !ok {
			t.Fatalf("delete failed: ok=%v err=%v", ok, err)
		}
		got, _ := rs.GetByID(id)
		if got != nil {
			t.Fatal("expected record gone")
		}

		ok, _ = rs.Delete(id)
		if ok {
			t.Fatal("expected second delete to report false")
		}
	})
}

func TestRecordSearch(t *testing.T) {
	db := setupTestDB(t)
	rs := store.NewRecordStore(db)

	seed := []*models.MemoryRecord{
		{Content: "Team standup moved to 9:30", Category: "work", Importance: 0.6},
		{Content: "Passport renewal deadline in March", Category: "event", Importance: 0.9},
		{Content: "Likes hiking on weekends", Category: "preference", Importance: 0.5},
	}
	for _, r := range seed {
		if _, err := rs.Insert(r); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}
	archivedID, _ := rs.Insert(&models.MemoryRecord{
		Content: "Old hiking trail notes", Category: "preference", Importance: 0.3,
	})
	if _, err := rs.Archive(archivedID); err != nil {
		t.Fatalf("seed archive failed: %v", err)
	}

	t.Run("orders by importance then recency", func(t *testing.T) {
		got, err := rs.Search(models.SearchFilter{})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 active records, got %d", len(got))
		}
		if got[0].Importance != 0.9 {
			t.Fatalf("expected highest importance first, got %f", got[0].Importance)
		}
	})

	t.Run("text filter is case-insensitive substring", func(t *testing.T) {
		got, err := rs.Search(models.SearchFilter{Text: "HIKING"})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 match, got %d", len(got))
		}
		if got[0].Category != "preference" {
			t.Fatalf("unexpected match: %+v", got[0])
		}
	})

	t.Run("archived excluded unless requested", func(t *testing.T) {
		got, _ := rs.Search(models.SearchFilter{Text: "hiking"})
		if len(got) != 1 {
			t.Fatalf("expected archived record excluded, got %d", len(got))
		}

		got, _ = rs.Search(models.SearchFilter{Text: "hiking", IncludeArchived: true})
		if len(got) != 2 {
			t.Fatalf("expected archived record included, got %d", len(got))
		}
	})

	t.Run("category and importance filters", func(t *testing.T) {
		got, _ := rs.Search(models.SearchFilter{Category: "work"})
		if len(got) != 1 {
			t.Fatalf("expected 1 work record, got %d", len(got))
		}

		got, _ = rs.Search(models.SearchFilter{MinImportance: 0.6})
		if len(got) != 2 {
			t.Fatalf("expected 2 records at >= 0.6, got %d", len(got))
		}

		got, _ = rs.Search(models.SearchFilter{MaxImportance: 0.5})
		if len(got) != 1 {
			t.Fatalf("expected 1 record at <= 0.5, got %d", len(got))
		}
	})

	t.Run("GetImportant", func(t *testing.T) {
		got, err := rs.GetImportant(0.8, 10)
		if err != nil {
			t.Fatalf("get important failed: %v", err)
		}
		if len(got) != 1 || got[0].Category != "event" {
			t.Fatalf("unexpected important set: %d", len(got))
		}
	})

	t.Run("GetRecent", func(t *testing.T) {
		got, err := rs.GetRecent(7, 10)
		if err != nil {
			t.Fatalf("get recent failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 recent active records, got %d", len(got))
		}
	})

	t.Run("ActiveIDs skips archived", func(t *testing.T) {
		ids, err := rs.ActiveIDs()
		if err != nil {
			t.Fatalf("active ids failed: %v", err)
		}
		if len(ids) != 3 {
			t.Fatalf("expected 3 active ids, got %d", len(ids))
		}
		for _, id := range ids {
			if id == archivedID {
				t.Fatal("archived id leaked into active set")
			}
		}
	})
}

func TestRecordAccess(t *testing.T) {
	db := setupTestDB(t)
	rs := store.NewRecordStore(db)
	al := store.NewAccessLogStore(db)

	id, _ := rs.Insert(&models.MemoryRecord{Content: "tracked fact"})

	if err := rs.RecordAccess(id, models.AccessRead, "recall"); err != nil {
		t.Fatalf("record access failed: %v", err)
	}
	if err := rs.RecordAccess(id, models.AccessWrite, "update"); err != nil {
		t.Fatalf("record access failed: %v", err)
	}

	got, _ := rs.GetByID(id)
	if got.AccessCount != 2 {
		t.Fatalf("expected access count 2, got %d", got.AccessCount)
	}
	if got.LastAccessed == nil {
		t.Fatal("expected last accessed to be set")
	}

	entries, err := al.ForMemory(id, 10)
	if err != nil {
		t.Fatalf("access log read failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}

	t.Run("log survives hard delete", func(t *testing.T) {
		if err := rs.RecordAccess(id, models.AccessDelete, "forget"); err != nil {
			t.Fatalf("record access failed: %v", err)
		}
		if _, err := rs.Delete(id); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		entries, err := al.ForMemory(id, 10)
		if err != nil {
			t.Fatalf("access log read failed: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("expected log to outlive record, got %d entries", len(entries))
		}
	})
}

func TestRecordStats(t *testing.T) {
	db := setupTestDB(t)
	rs := store.NewRecordStore(db)

	for i := 0; i < 3; i++ {
		if _, err := rs.Insert(&models.MemoryRecord{Content: "work item", Category: "work"}); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	id, _ := rs.Insert(&models.MemoryRecord{Content: "old", Category: "general"})
	rs.Archive(id)

	stats, err := rs.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalRecords != 4 || stats.ActiveRecords != 3 || stats.Archived != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.ByCategory["work"] != 3 {
		t.Fatalf("unexpected category counts: %v", stats.ByCategory)
	}
}
