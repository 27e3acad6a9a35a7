// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	PointsDependencies
	BadgeDependencies
	GoalDependencies
	SnapshotDependencies
	LeaderboardDependencies
	AdminDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	pointsHandler      *PointsHandler
	badgesHandler      *BadgesHandler
	goalsHandler       *GoalsHandler
	snapshotHandler    *SnapshotHandler
	leaderboardHandler *LeaderboardHandler
	adminHandler       *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		eventsHandler:      NewEventsHandler(deps),
		pointsHandler:      NewPointsHandler(deps),
		badgesHandler:      NewBadgesHandler(deps),
		goalsHandler:       NewGoalsHandler(deps),
		snapshotHandler:    NewSnapshotHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
		adminHandler:       NewAdminHandler(deps),
	}
}

// Routes attaches all business routes to r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Post("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	r.Get("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	r.Post("/admin/sweep", MetricsMiddleware(s.adminHandler.HandleSweep, "admin_sweep"))

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/points", MetricsMiddleware(s.pointsHandler.HandleGetBalance, "points"))
		r.Post("/points", MetricsMiddleware(s.pointsHandler.HandleAward, "points"))
		r.Post("/points/redeem", MetricsMiddleware(s.pointsHandler.HandleRedeem, "points_redeem"))

		r.Get("/badges/{badgeType}", MetricsMiddleware(s.badgesHandler.HandleGetBadge, "badges"))
		r.Post("/badges/{badgeType}", MetricsMiddleware(s.badgesHandler.HandleAwardBadge, "badges"))
		r.Post("/badges/{badgeType}/progress", MetricsMiddleware(s.badgesHandler.HandleProgress, "badges_progress"))

		r.Get("/goals/{goalID}/streak", MetricsMiddleware(s.goalsHandler.HandleGetStreak, "goals_streak"))
		r.Post("/goals/{goalID}/activity", MetricsMiddleware(s.goalsHandler.HandleActivity, "goals_activity"))

		r.Get("/snapshot", MetricsMiddleware(s.snapshotHandler.HandleGetSnapshot, "snapshot"))
	})
}

// Handler returns a chi router with the standard middleware and all routes.
func (s *Server) Handler() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	s.Routes(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// parseTime parses an optional RFC3339 timestamp; empty yields the zero time.
func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s; must be RFC3339", field)
	}
	return t, nil
}
