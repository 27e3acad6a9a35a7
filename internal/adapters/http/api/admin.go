package api

import (
	"context"
	"net/http"
	"time"
)

// AdminDependencies defines the interface for maintenance operations.
type AdminDependencies interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type sweepRequest struct {
	Now string `json:"now,omitempty"`
}

type sweepResponse struct {
	Removed int `json:"removed"`
}

// AdminHandler handles maintenance requests.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// HandleSweep handles POST /admin/sweep requests. An omitted now uses the
// service clock.
func (h *AdminHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	const op = "api.sweep"
	var req sweepRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	now, err := parseTime("now", req.Now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	n, err := h.deps.SweepExpired(r.Context(), now)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Removed: n})
}
