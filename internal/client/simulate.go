package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/kudos/pkg/logger"
)

// Simulation describes a synthetic load of points_awarded events.
type Simulation struct {
	Users     int     // distinct users
	Events    int     // events to submit
	Workers   int     // concurrent submitters
	MaxAmount int64   // amounts are uniform in [1, MaxAmount]
	DupRate   float64 // fraction of events submitted twice
}

// Report summarizes a simulation run.
type Report struct {
	Submitted  int64
	Accepted   int64
	Duplicates int64
	Failed     int64
	Duration   time.Duration
	// Expected holds the points each user should end with, counting only
	// accepted events.
	Expected map[string]int64
}

func (s Simulation) validate() error {
	switch {
	case s.Users < 1:
		return errors.New("users must be positive")
	case s.Events < 1:
		return errors.New("events must be positive")
	case s.Workers < 1:
		return errors.New("workers must be positive")
	case s.MaxAmount < 1:
		return errors.New("max amount must be positive")
	case s.DupRate < 0 || s.DupRate > 1:
		return errors.New("dup rate must be within [0, 1]")
	}
	return nil
}

// generate builds the event list. Duplicates reuse an earlier event verbatim.
func (s Simulation) generate() []Event {
	users := make([]string, s.Users)
	for i := range users {
		users[i] = "sim-" + uuid.NewString()
	}
	events := make([]Event, 0, s.Events)
	for len(events) < s.Events {
		if len(events) > 0 && rand.Float64() < s.DupRate { //nolint:gosec // load generation
			events = append(events, events[rand.IntN(len(events))]) //nolint:gosec // load generation
			continue
		}
		events = append(events, Event{
			EventID: uuid.NewString(),
			Kind:    "points_awarded",
			UserID:  users[rand.IntN(len(users))], //nolint:gosec // load generation
			Amount:  1 + rand.Int64N(s.MaxAmount), //nolint:gosec // load generation
		})
	}
	return events
}

// Simulate submits the generated events with s.Workers concurrent requests.
// Individual submission failures are counted, not returned.
func (c *Client) Simulate(ctx context.Context, s Simulation, log logger.Logger) (Report, error) {
	if err := s.validate(); err != nil {
		return Report{}, fmt.Errorf("simulation: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	events := s.generate()
	log.Info(ctx, "submitting events",
		logger.Int("events", len(events)),
		logger.Int("users", s.Users),
		logger.Int("workers", s.Workers),
	)

	var (
		rep      = Report{Expected: make(map[string]int64, s.Users)}
		mu       sync.Mutex
		accepted sync.Map // event id -> struct{}
		start    = time.Now()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for _, e := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			atomic.AddInt64(&rep.Submitted, 1)
			ack, err := c.PostEvent(gctx, e)
			switch {
			case err != nil:
				atomic.AddInt64(&rep.Failed, 1)
				log.Debug(gctx, "event rejected", logger.String("event_id", e.EventID), logger.Error(err))
			case ack.Duplicate:
				atomic.AddInt64(&rep.Duplicates, 1)
			default:
				if _, dup := accepted.LoadOrStore(e.EventID, struct{}{}); !dup {
					atomic.AddInt64(&rep.Accepted, 1)
					mu.Lock()
					rep.Expected[e.UserID] += e.Amount
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	rep.Duration = time.Since(start)

	log.Info(ctx, "event submission completed",
		logger.Int64("accepted", rep.Accepted),
		logger.Int64("duplicates", rep.Duplicates),
		logger.Int64("failed", rep.Failed),
		logger.Duration("duration", rep.Duration),
	)
	return rep, ctx.Err()
}

// Verify polls each user's balance until it is at least the expected value
// or ctx expires. It returns the users whose balance still differs.
func (c *Client) Verify(ctx context.Context, expected map[string]int64, interval time.Duration) (map[string]int64, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		mismatched, err := c.compare(ctx, expected)
		if err != nil || len(mismatched) == 0 {
			return mismatched, err
		}
		select {
		case <-ctx.Done():
			return mismatched, nil
		case <-ticker.C:
		}
	}
}

// compare reads every expected balance concurrently and returns the users
// whose balance is below expectation, with the balance observed.
func (c *Client) compare(ctx context.Context, expected map[string]int64) (map[string]int64, error) {
	var (
		mu         sync.Mutex
		mismatched = map[string]int64{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for user, want := range expected {
		g.Go(func() error {
			acct, err := c.Balance(gctx, user)
			if err != nil {
				return fmt.Errorf("balance %s: %w", user, err)
			}
			if acct.Points < want {
				mu.Lock()
				mismatched[user] = acct.Points
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mismatched, nil
}
