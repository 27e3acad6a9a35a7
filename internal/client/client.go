// Package client is a typed HTTP client for the kudos API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/kudos/internal/domain/badge"
	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/internal/domain/types"
)

const defaultTimeout = 30 * time.Second

// Sentinel kinds for responses the client cannot map to a domain error.
var (
	ErrBackpressure = errors.New("server queue full")
	ErrUnavailable  = errors.New("server unavailable")
	ErrServer       = errors.New("server error")
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the status to the matching sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == "insufficient_points":
		return model.ErrInsufficientPoints
	case e.Status == http.StatusBadRequest:
		return model.ErrInvalidArgument
	case e.Status == http.StatusNotFound:
		return model.ErrNotFound
	case e.Status == http.StatusTooManyRequests:
		return ErrBackpressure
	case e.Status == http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return ErrServer
	}
}

// Client talks to a kudos server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a Client for baseURL, e.g. "http://localhost:9080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Event is the wire form of POST /events.
type Event struct {
	EventID   string `json:"event_id,omitempty"`
	Kind      string `json:"kind"`
	UserID    string `json:"user_id"`
	GoalID    string `json:"goal_id,omitempty"`
	BadgeType string `json:"badge_type,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	TS        string `json:"ts,omitempty"`
}

// Ack is the response to POST /events.
type Ack struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// TaskResult is the response to a goal activity.
type TaskResult struct {
	Streak    model.StreakRecord `json:"streak"`
	Milestone bool               `json:"milestone"`
	Badge     *badge.Transition  `json:"badge,omitempty"`
}

// BadgeAward holds the optional fields of a badge grant.
type BadgeAward struct {
	Level     string `json:"level,omitempty"`
	Goal      int    `json:"goal,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func userPath(userID string, parts ...string) string {
	p := "/users/" + url.PathEscape(userID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// do sends a request and decodes a 2xx JSON body into out (when non-nil).
// It returns the status code.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader = http.NoBody
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return resp.StatusCode, apiErr
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Health checks that the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

// Stats returns the server statistics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	_, err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

// PostEvent submits an event for asynchronous processing.
func (c *Client) PostEvent(ctx context.Context, e Event) (Ack, error) {
	var ack Ack
	_, err := c.do(ctx, http.MethodPost, "/events", e, &ack)
	return ack, err
}

// AwardPoints credits amount to userID.
func (c *Client) AwardPoints(ctx context.Context, userID string, amount int64) (model.PointsAccount, error) {
	var acct model.PointsAccount
	_, err := c.do(ctx, http.MethodPost, userPath(userID, "points"), map[string]int64{"amount": amount}, &acct)
	return acct, err
}

// RedeemPoints debits amount from userID.
func (c *Client) RedeemPoints(ctx context.Context, userID string, amount int64) (model.PointsAccount, error) {
	var acct model.PointsAccount
	_, err := c.do(ctx, http.MethodPost, userPath(userID, "points", "redeem"), map[string]int64{"amount": amount}, &acct)
	return acct, err
}

// Balance reads userID's account.
func (c *Client) Balance(ctx context.Context, userID string) (model.PointsAccount, error) {
	var acct model.PointsAccount
	_, err := c.do(ctx, http.MethodGet, userPath(userID, "points"), nil, &acct)
	return acct, err
}

// BadgeProgress records increment on userID's badge of type t.
func (c *Client) BadgeProgress(ctx context.Context, userID, t string, increment int) (badge.Transition, error) {
	var tr badge.Transition
	_, err := c.do(ctx, http.MethodPost, userPath(userID, "badges", t, "progress"), map[string]int{"increment": increment}, &tr)
	return tr, err
}

// AwardBadge grants or upgrades userID's badge of type t.
func (c *Client) AwardBadge(ctx context.Context, userID, t string, award BadgeAward) (badge.Transition, error) {
	var tr badge.Transition
	_, err := c.do(ctx, http.MethodPost, userPath(userID, "badges", t), award, &tr)
	return tr, err
}

// Badge reads userID's badge of type t.
func (c *Client) Badge(ctx context.Context, userID, t string) (model.Badge, error) {
	var b model.Badge
	_, err := c.do(ctx, http.MethodGet, userPath(userID, "badges", t), nil, &b)
	return b, err
}

// Activity records a completed task on goalID at at (zero means now).
func (c *Client) Activity(ctx context.Context, userID, goalID string, at time.Time) (TaskResult, error) {
	var res TaskResult
	in := map[string]string{}
	if s := formatTime(at); s != "" {
		in["at"] = s
	}
	_, err := c.do(ctx, http.MethodPost, userPath(userID, "goals", goalID, "activity"), in, &res)
	return res, err
}

// Streak reads userID's streak on goalID.
func (c *Client) Streak(ctx context.Context, userID, goalID string) (model.StreakRecord, error) {
	var rec model.StreakRecord
	_, err := c.do(ctx, http.MethodGet, userPath(userID, "goals", goalID, "streak"), nil, &rec)
	return rec, err
}

// Snapshot reads userID's progression snapshot.
func (c *Client) Snapshot(ctx context.Context, userID string) (model.Snapshot, error) {
	var snap model.Snapshot
	_, err := c.do(ctx, http.MethodGet, userPath(userID, "snapshot"), nil, &snap)
	return snap, err
}

// Leaderboard reads the top n accounts.
func (c *Client) Leaderboard(ctx context.Context, n int) ([]types.Entry, error) {
	var entries []types.Entry
	_, err := c.do(ctx, http.MethodGet, "/leaderboard?limit="+strconv.Itoa(n), nil, &entries)
	return entries, err
}

// Sweep removes expired badges as of at (zero means the server clock).
func (c *Client) Sweep(ctx context.Context, at time.Time) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	in := map[string]string{}
	if s := formatTime(at); s != "" {
		in["now"] = s
	}
	_, err := c.do(ctx, http.MethodPost, "/admin/sweep", in, &out)
	return out.Removed, err
}
