package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/kudos/internal/domain/model"
)

// PointsDependencies defines the interface for point balance operations.
type PointsDependencies interface {
	AwardPoints(ctx context.Context, userID string, amount int64) (model.PointsAccount, error)
	RedeemPoints(ctx context.Context, userID string, amount int64) (model.PointsAccount, error)
	Balance(ctx context.Context, userID string) (model.PointsAccount, error)
}

// PointsHandler handles point balance requests.
type PointsHandler struct {
	deps PointsDependencies
}

// NewPointsHandler creates a new points handler.
func NewPointsHandler(deps PointsDependencies) *PointsHandler {
	return &PointsHandler{deps: deps}
}

// HandleGetBalance handles GET /users/{userID}/points requests.
func (h *PointsHandler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_points"
	acct, err := h.deps.Balance(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// HandleAward handles POST /users/{userID}/points requests.
func (h *PointsHandler) HandleAward(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "api.award_points", h.deps.AwardPoints)
}

// HandleRedeem handles POST /users/{userID}/points/redeem requests.
func (h *PointsHandler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "api.redeem_points", h.deps.RedeemPoints)
}

func (h *PointsHandler) apply(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, string, int64) (model.PointsAccount, error),
) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	acct, err := fn(r.Context(), chi.URLParam(r, "userID"), req.Amount)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
