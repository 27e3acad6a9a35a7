package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/kudos/internal/app"
	"github.com/okian/kudos/internal/domain/model"
)

// GoalDependencies defines the interface for goal activity operations.
type GoalDependencies interface {
	OnGoalTaskCompleted(ctx context.Context, userID, goalID string, at time.Time) (service.TaskResult, error)
	GetStreak(ctx context.Context, userID, goalID string) (model.StreakRecord, error)
}

type activityRequest struct {
	At string `json:"at,omitempty"`
}

// GoalsHandler handles goal activity requests.
type GoalsHandler struct {
	deps GoalDependencies
}

// NewGoalsHandler creates a new goals handler.
func NewGoalsHandler(deps GoalDependencies) *GoalsHandler {
	return &GoalsHandler{deps: deps}
}

// HandleActivity handles POST /users/{userID}/goals/{goalID}/activity requests.
func (h *GoalsHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	const op = "api.goal_activity"
	var req activityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	at, err := parseTime("at", req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.OnGoalTaskCompleted(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "goalID"), at)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetStreak handles GET /users/{userID}/goals/{goalID}/streak requests.
func (h *GoalsHandler) HandleGetStreak(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_streak"
	rec, err := h.deps.GetStreak(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "goalID"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
