// Package outbox drains the transactional outbox into the graph store.
// Delivery is at least once; every handler is an idempotent merge so
// replays converge instead of duplicating.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tovey/reverie/internal/config"
	"github.com/tovey/reverie/internal/graph"
	"github.com/tovey/reverie/internal/metrics"
	"github.com/tovey/reverie/internal/poll"
	"github.com/tovey/reverie/internal/store"
)

// Outcome of dispatching one event.
type Outcome string

const (
	OutcomeDone       Outcome = "done"
	OutcomeRetry      Outcome = "retry"
	OutcomeDeadletter Outcome = "deadletter"
)

// DispatchResult reports what happened to one event in a pass.
type DispatchResult struct {
	EventID string
	Outcome Outcome
	Err     error
}

// errUnknownEventType can never succeed on retry, so it dead-letters
// immediately instead of burning the retry budget.
var errUnknownEventType = errors.New("unknown event type")

// Dispatcher polls pending outbox events and applies them to the
// graph store, sequentially within a batch, in creation order.
type Dispatcher struct {
	db    *store.DB
	graph graph.Store
	cfg   config.OutboxConfig

	now func() time.Time
}

func NewDispatcher(db *store.DB, g graph.Store, cfg config.OutboxConfig) *Dispatcher {
	return &Dispatcher{db: db, graph: g, cfg: cfg, now: time.Now}
}

// ProcessPending drains one batch of due events. The returned error
// covers only the poll itself; per-event failures are folded into
// their DispatchResult.
func (d *Dispatcher) ProcessPending(ctx context.Context) ([]DispatchResult, error) {
	events, err := d.db.PendingEvents(d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("poll outbox: %w", err)
	}
	metrics.SetOutboxPending(len(events))
	if len(events) == 0 {
		return nil, nil
	}

	results := make([]DispatchResult, 0, len(events))
	for _, ev := range events {
		results = append(results, d.dispatch(ctx, ev))
	}
	return results, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, ev store.OutboxEvent) DispatchResult {
	res := DispatchResult{EventID: ev.ID}

	if err := d.db.MarkProcessing(ev.ID); err != nil {
		// Leave the event pending; the next poll retries it.
		res.Outcome = OutcomeRetry
		res.Err = err
		return res
	}

	err := d.handle(ctx, ev)
	if err == nil {
		if err := d.db.MarkDone(ev.ID); err != nil {
			log.Printf("outbox: mark done %s: %v", ev.ID, err)
		}
		res.Outcome = OutcomeDone
		metrics.RecordDispatch(string(OutcomeDone))
		return res
	}
	res.Err = err

	attempts := ev.Attempts + 1
	if errors.Is(err, errUnknownEventType) || attempts >= d.cfg.MaxAttempts {
		if dlErr := d.db.DeadletterEvent(ev.ID, attempts, err.Error()); dlErr != nil {
			log.Printf("outbox: deadletter %s: %v", ev.ID, dlErr)
		}
		log.Printf("outbox: event %s (%s) dead-lettered after %d attempts: %v", ev.ID, ev.EventType, attempts, err)
		res.Outcome = OutcomeDeadletter
		metrics.RecordDispatch(string(OutcomeDeadletter))
		return res
	}

	retryAt := d.now().Add(d.backoff(ev.Attempts)).UnixMilli()
	if rqErr := d.db.RequeueEvent(ev.ID, attempts, err.Error(), retryAt); rqErr != nil {
		log.Printf("outbox: requeue %s: %v", ev.ID, rqErr)
	}
	log.Printf("outbox: event %s (%s) failed attempt %d: %v", ev.ID, ev.EventType, attempts, err)
	res.Outcome = OutcomeRetry
	metrics.RecordDispatch(string(OutcomeRetry))
	return res
}

// backoff computes the retry delay for the given prior attempt count.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	base := time.Duration(d.cfg.BackoffBaseMs) * time.Millisecond
	max := time.Duration(d.cfg.BackoffMaxMs) * time.Millisecond

	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

func (d *Dispatcher) handle(ctx context.Context, ev store.OutboxEvent) error {
	ops, err := buildOps(ev)
	if err != nil {
		return err
	}
	if err := d.graph.Apply(ctx, ops); err != nil {
		return fmt.Errorf("apply %s: %w", ev.EventType, err)
	}
	return nil
}

// Loop returns the periodic driver for this dispatcher.
func (d *Dispatcher) Loop() *poll.Loop {
	return &poll.Loop{
		Name:     "outbox",
		Interval: d.cfg.PollInterval(),
		Cooldown: d.cfg.PollInterval(),
		Run: func(ctx context.Context) error {
			_, err := d.ProcessPending(ctx)
			return err
		},
	}
}
