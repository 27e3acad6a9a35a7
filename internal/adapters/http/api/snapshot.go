package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/kudos/internal/domain/model"
)

// SnapshotDependencies defines the interface for snapshot reads.
type SnapshotDependencies interface {
	GetSnapshot(ctx context.Context, userID string) (model.Snapshot, error)
}

// SnapshotHandler handles snapshot requests.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

// HandleGetSnapshot handles GET /users/{userID}/snapshot requests.
func (h *SnapshotHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	snap, err := h.deps.GetSnapshot(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
