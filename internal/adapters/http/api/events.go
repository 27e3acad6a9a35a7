package api

import (
	"context"
	"net/http"

	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/internal/domain/types"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	Enqueue(ctx context.Context, e model.Event) (types.Receipt, error)
}

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	EventID   string `json:"event_id"`
	Kind      string `json:"kind"`
	UserID    string `json:"user_id"`
	GoalID    string `json:"goal_id,omitempty"`
	BadgeType string `json:"badge_type,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	TS        string `json:"ts,omitempty"`
}

func (e eventRequest) event() (model.Event, error) {
	ts, err := parseTime("ts", e.TS)
	if err != nil {
		return model.Event{}, err
	}
	ev := model.Event{
		EventID:   e.EventID,
		Kind:      model.EventKind(e.Kind),
		UserID:    e.UserID,
		GoalID:    e.GoalID,
		BadgeType: model.BadgeType(e.BadgeType),
		Amount:    e.Amount,
		TS:        ts,
	}
	return ev, ev.Validate()
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests. Accepted events are
// applied asynchronously; a redelivered event_id is acknowledged as a
// duplicate.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	e, err := req.event()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	receipt, err := h.deps.Enqueue(r.Context(), e)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if receipt.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: receipt.EventID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: receipt.EventID})
}
