// Package worker applies queued progression events through a Handler.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Handler applies one event.
type Handler interface {
	Handle(ctx context.Context, e model.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e model.Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, e model.Event) error { return f(ctx, e) } //nolint:gocritic // hugeParam

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Event
}

// Worker processes events until its queue is drained or it is stopped.
type Worker interface {
	// Run processes events until the queue channel closes, ctx is
	// cancelled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current event.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		handler:  handler,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Run implements Worker.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			_ = w.process(ctx, e)
		}
	}
}

// Shutdown implements Worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.handler.Handle(ctx, e); err != nil {
		metrics.RecordEventFailed(string(e.Kind))
		w.logger.Error(ctx, "event failed",
			logger.String("event_id", e.EventID),
			logger.String("kind", string(e.Kind)),
			logger.String("user_id", e.UserID),
			logger.Error(err),
		)
		return err
	}
	metrics.RecordEventProcessed(string(e.Kind))
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A non-positive count
// defaults to twice the CPU count. A nil log discards output.
func NewPool(workerCount int, queue Queue, handler Handler, log logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	if log == nil {
		log = logger.Nop()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  log.Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(queue, handler,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(log),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets the workers drain what is buffered and
// waits for them until ctx (bounded by 30s) expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
		}
	}
	if timedOut > 0 {
		for _, w := range p.workers {
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
		p.logger.Warn(ctx, "workers did not drain in time", logger.Int("workers", timedOut))
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
