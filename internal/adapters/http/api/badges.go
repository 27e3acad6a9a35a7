package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/kudos/internal/domain/badge"
	"github.com/okian/kudos/internal/domain/model"
)

// BadgeDependencies defines the interface for badge operations.
type BadgeDependencies interface {
	OnBadgeEvent(ctx context.Context, userID string, t model.BadgeType, increment int) (badge.Transition, error)
	AwardBadge(ctx context.Context, userID string, t model.BadgeType, opts ...badge.AwardOption) (badge.Transition, error)
	GetBadge(ctx context.Context, userID string, t model.BadgeType) (model.Badge, error)
}

type progressRequest struct {
	Increment int `json:"increment"`
}

type awardBadgeRequest struct {
	Level     string `json:"level,omitempty"`
	Goal      int    `json:"goal,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func (a awardBadgeRequest) options() ([]badge.AwardOption, error) {
	var opts []badge.AwardOption
	if a.Level != "" {
		opts = append(opts, badge.WithLevel(model.BadgeLevel(a.Level)))
	}
	if a.Goal != 0 {
		opts = append(opts, badge.WithGoal(a.Goal))
	}
	exp, err := parseTime("expires_at", a.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if !exp.IsZero() {
		opts = append(opts, badge.WithExpiresAt(exp))
	}
	return opts, nil
}

// BadgesHandler handles badge requests.
type BadgesHandler struct {
	deps BadgeDependencies
}

// NewBadgesHandler creates a new badges handler.
func NewBadgesHandler(deps BadgeDependencies) *BadgesHandler {
	return &BadgesHandler{deps: deps}
}

func badgeParams(r *http.Request) (string, model.BadgeType) {
	return chi.URLParam(r, "userID"), model.BadgeType(chi.URLParam(r, "badgeType"))
}

// HandleGetBadge handles GET /users/{userID}/badges/{badgeType} requests.
func (h *BadgesHandler) HandleGetBadge(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_badge"
	userID, t := badgeParams(r)
	b, err := h.deps.GetBadge(r.Context(), userID, t)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleProgress handles POST /users/{userID}/badges/{badgeType}/progress requests.
func (h *BadgesHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.badge_progress"
	var req progressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	userID, t := badgeParams(r)
	tr, err := h.deps.OnBadgeEvent(r.Context(), userID, t, req.Increment)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// HandleAwardBadge handles POST /users/{userID}/badges/{badgeType} requests.
func (h *BadgesHandler) HandleAwardBadge(w http.ResponseWriter, r *http.Request) {
	const op = "api.award_badge"
	var req awardBadgeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	opts, err := req.options()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	userID, t := badgeParams(r)
	tr, err := h.deps.AwardBadge(r.Context(), userID, t, opts...)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	status := http.StatusOK
	if tr.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, tr)
}
