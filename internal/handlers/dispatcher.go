package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"finbot/internal/convo"
	"finbot/internal/logging"
	"finbot/internal/metrics"
)

var (
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrQueueFull        = errors.New("user queue full")
)

// Processor runs one event. NotifyFailure is called after Handle panics.
type Processor interface {
	Handle(ctx context.Context, ev convo.Event) error
	NotifyFailure(ctx context.Context, ev convo.Event)
}

// DispatcherConfig tunes the per-user queues.
type DispatcherConfig struct {
	// JobTimeout bounds a single event, classifier retries included.
	JobTimeout time.Duration
	// QueueSize is the backlog allowed per user before updates are dropped.
	QueueSize int
}

type job struct {
	ev      convo.Event
	traceID string
}

// Dispatcher runs events serially per user and in parallel across users.
// A user's worker goroutine exists only while that user has queued work.
type Dispatcher struct {
	proc    Processor
	cfg     DispatcherConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[int64]chan job
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(proc Processor, cfg DispatcherConfig, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 60 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	return &Dispatcher{
		proc:    proc,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "dispatcher"),
		queues:  make(map[int64]chan job),
	}
}

// Submit queues ev behind any earlier events of the same user.
func (d *Dispatcher) Submit(traceID string, ev convo.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	q, ok := d.queues[ev.UserID]
	if !ok {
		q = make(chan job, d.cfg.QueueSize)
		d.queues[ev.UserID] = q
		d.wg.Add(1)
		go d.run(ev.UserID, q)
	}
	select {
	case q <- job{ev: ev, traceID: traceID}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) run(userID int64, q chan job) {
	defer d.wg.Done()
	for {
		select {
		case j := <-q:
			d.process(j)
		default:
			// Submit sends while holding mu, so an empty queue seen under mu
			// stays empty until the entry is gone.
			d.mu.Lock()
			if len(q) == 0 {
				delete(d.queues, userID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
		}
	}
}

func (d *Dispatcher) process(j job) {
	ctx := logging.WithTraceID(context.Background(), j.traceID)
	ctx, cancel := context.WithTimeout(ctx, d.cfg.JobTimeout)
	defer cancel()
	logger := logging.WithTrace(ctx, d.logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing update",
				"panic", fmt.Sprint(r),
				"update_id", j.ev.UpdateID,
				"stack", string(debug.Stack()),
			)
			if d.metrics != nil {
				d.metrics.Errors.WithLabelValues("dispatcher").Inc()
			}
			notifyCtx, cancelNotify := context.WithTimeout(logging.WithTraceID(context.Background(), j.traceID), 10*time.Second)
			defer cancelNotify()
			d.proc.NotifyFailure(notifyCtx, j.ev)
		}
	}()

	start := time.Now()
	if err := d.proc.Handle(ctx, j.ev); err != nil {
		logger.Warn("update processed with error", "update_id", j.ev.UpdateID, "error", err, "duration", time.Since(start))
		return
	}
	logger.Debug("update processed", "update_id", j.ev.UpdateID, "duration", time.Since(start))
}

// Close stops accepting events and waits for queued ones to finish or for
// ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain dispatcher: %w", ctx.Err())
	}
}
