package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/engram-labs/engram/internal/memory"
	"github.com/engram-labs/engram/internal/models"
)

// RecallDefaults fill request fields the client left unset.
type RecallDefaults struct {
	TopK                int
	SimilarityThreshold float64
}

type MemoryHandler struct {
	mgr      *memory.Manager
	defaults RecallDefaults
}

func NewMemoryHandler(mgr *memory.Manager, defaults RecallDefaults) *MemoryHandler {
	return &MemoryHandler{mgr: mgr, defaults: defaults}
}

// Remember handles POST /memories
func (h *MemoryHandler) Remember(w http.ResponseWriter, r *http.Request) {
	var req models.RememberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.mgr.Remember(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// Recall handles POST /memories/search
func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	var req models.RecallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.TopK == 0 {
		req.TopK = h.defaults.TopK
	}
	if req.SimilarityThreshold == 0 {
		req.SimilarityThreshold = h.defaults.SimilarityThreshold
	}

	results, err := h.mgr.Recall(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.RecallResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Get handles GET /memories/{id}
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.mgr.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Update handles PATCH /memories/{id}
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ok, err := h.mgr.Update(r.Context(), id, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}

	rec, err := h.mgr.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /memories/{id}
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.mgr.Delete(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Archive handles POST /memories/{id}/archive
func (h *MemoryHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.mgr.Archive(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "memory not found or already archived")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"archived": true})
}

// Unarchive handles POST /memories/{id}/unarchive
func (h *MemoryHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.mgr.Unarchive(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "memory not found or not archived")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"archived": false})
}

// History handles GET /memories/{id}/history
func (h *MemoryHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.mgr.AccessHistory(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.AccessLogEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// RecentAccess handles GET /access-log
func (h *MemoryHandler) RecentAccess(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.mgr.RecentAccess(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.AccessLogEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Recent handles GET /memories/recent
func (h *MemoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if days < 1 {
		days = 7
	}

	memories, err := h.mgr.GetRecent(days, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if memories == nil {
		memories = []*models.MemoryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

// Important handles GET /memories/important
func (h *MemoryHandler) Important(w http.ResponseWriter, r *http.Request) {
	min, err := strconv.ParseFloat(r.URL.Query().Get("min"), 64)
	if err != nil {
		min = 0.7
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	memories, err := h.mgr.GetImportant(min, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if memories == nil {
		memories = []*models.MemoryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

// Forget handles POST /forget
func (h *MemoryHandler) Forget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}

	result, err := h.mgr.Forget(r.Context(), req.Pattern)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListCategories handles GET /categories
func (h *MemoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.mgr.ListCategories()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// AddCategory handles POST /categories
func (h *MemoryHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string            `json:"name"`
		Description string            `json:"description,omitempty"`
		Keywords    models.StringList `json:"keywords,omitempty"`
		ParentID    *string           `json:"parentId,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := h.mgr.AddCategory(req.Name, req.Description, req.Keywords, req.ParentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// SyncStatus handles GET /sync/status
func (h *MemoryHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.SyncStatus())
}

// RebuildIndex handles POST /sync/rebuild
func (h *MemoryHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	synced, err := h.mgr.RebuildIndex(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"synced": synced})
}

// Stats handles GET /stats
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.mgr.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
