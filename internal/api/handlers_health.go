package api

import (
	"net/http"

	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vectorindex"
)

type serviceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status      string       `json:"status"`
	DB          serviceCheck `json:"db"`
	Index       serviceCheck `json:"index"`
	RecordCount int          `json:"recordCount,omitempty"`
	IndexCount  int          `json:"indexCount,omitempty"`
}

type HealthHandler struct {
	db    *store.DB
	index *vectorindex.Index
}

func NewHealthHandler(db *store.DB, index *vectorindex.Index) *HealthHandler {
	return &HealthHandler{db: db, index: index}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	count, err := h.db.RecordCount()
	if err != nil {
		resp.DB = serviceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.DB = serviceCheck{Status: "ok"}
		resp.RecordCount = count
	}

	// A missing embedder is keyword-only degraded mode, not an outage.
	if h.index.Available() {
		resp.Index = serviceCheck{Status: "ok"}
		resp.IndexCount = h.index.Count()
	} else {
		resp.Index = serviceCheck{Status: "disabled", Message: "no embedder configured"}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
