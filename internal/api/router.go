package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/engram-labs/engram/internal/memory"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vectorindex"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	db *store.DB,
	mgr *memory.Manager,
	index *vectorindex.Index,
	defaults RecallDefaults,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(db, index)
	memoryH := NewMemoryHandler(mgr, defaults)

	r.Get("/health", healthH.Health)

	r.Route("/memories", func(r chi.Router) {
		r.Post("/", memoryH.Remember)
		r.Post("/search", memoryH.Recall)
		r.Get("/recent", memoryH.Recent)
		r.Get("/important", memoryH.Important)
		r.Get("/{id}", memoryH.Get)
		r.Patch("/{id}", memoryH.Update)
		r.Delete("/{id}", memoryH.Delete)
		r.Post("/{id}/archive", memoryH.Archive)
		r.Post("/{id}/unarchive", memoryH.Unarchive)
		r.Get("/{id}/history", memoryH.History)
	})

	r.Post("/forget", memoryH.Forget)
	r.Get("/access-log", memoryH.RecentAccess)

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", memoryH.ListCategories)
		r.Post("/", memoryH.AddCategory)
	})

	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", memoryH.SyncStatus)
		r.Post("/rebuild", memoryH.RebuildIndex)
	})

	r.Get("/stats", memoryH.Stats)

	return r
}
