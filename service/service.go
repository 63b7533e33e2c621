// Package service coordinates workers that share a guarded counter.
//
// The coordinator creates a [Service], spawns workers, and joins them with
// [Service.JoinAll] before reading the settled value:
//
//	svc := service.Create(ctx, 0)
//	for range 10 {
//		svc.SpawnWorker()
//	}
//	summary, err := svc.JoinAll(ctx) // summary.Final == 10
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quii/guardedcounter/sync/counter"
	"github.com/quii/guardedcounter/sync/guarded"
	"github.com/quii/guardedcounter/sync/joinset"
)

// Mutation is a critical-section body. It receives a copy of the counter
// value; the copy is committed only if the mutation returns nil.
type Mutation func(v *int64) error

// Increment is the canonical mutation: add one.
func Increment(v *int64) error {
	*v++

	return nil
}

// Option configures a [Service].
type Option func(*options)

type options struct {
	id       uuid.UUID
	log      *slog.Logger
	observer func(joinset.Event)
}

// WithID sets the run ID. Defaults to a random UUID.
func WithID(id uuid.UUID) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithObserver receives every worker state transition.
func WithObserver(fn func(joinset.Event)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// Service owns a shared counter and the workers that mutate it. Create
// instances with [Create].
type Service struct {
	id      uuid.UUID
	initial int64
	counter *counter.Counter
	set     *joinset.JoinSet
	log     *slog.Logger
	started time.Time
}

// Create allocates a counter starting at initial. Workers spawned later
// receive ctx.
func Create(ctx context.Context, initial int64, opts ...Option) *Service {
	o := options{
		id:  uuid.New(),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.log.With(slog.String("run", o.id.String()))

	setOpts := []joinset.Option{joinset.WithLogger(logger)}
	if o.observer != nil {
		setOpts = append(setOpts, joinset.WithObserver(o.observer))
	}

	logger.Debug("created counter", slog.Int64("initial", initial))

	return &Service{
		id:      o.id,
		initial: initial,
		counter: counter.New(initial),
		set:     joinset.New(ctx, setOpts...),
		log:     logger,
		started: time.Now(),
	}
}

// ID returns the run ID.
func (s *Service) ID() uuid.UUID { return s.id }

// Counter returns the shared counter.
func (s *Service) Counter() *counter.Counter { return s.counter }

// SpawnWorker starts a worker that adds one to the counter and returns its
// handle without waiting for it to run.
func (s *Service) SpawnWorker() *joinset.Task {
	return s.Spawn(Increment)
}

// Spawn starts a worker that applies mutate inside the critical section.
func (s *Service) Spawn(mutate Mutation) *joinset.Task {
	return s.set.Spawn(func(ctx context.Context, t *joinset.Task) error {
		if err := t.MarkWaiting(); err != nil {
			return err
		}

		return s.counter.Update(ctx, func(v *int64) error {
			if err := t.MarkHolding(); err != nil {
				return err
			}

			return mutate(v)
		})
	})
}

// Acquire returns exclusive access to the counter for the caller. See
// [guarded.Value.Acquire].
func (s *Service) Acquire(ctx context.Context) (*guarded.Guard[int64], error) {
	return s.counter.Acquire(ctx)
}

// Read returns the current counter value. The value is only settled once
// [Service.JoinAll] has returned.
func (s *Service) Read(ctx context.Context) (int64, error) {
	return s.counter.Read(ctx)
}

// Stats returns live worker counts.
func (s *Service) Stats() joinset.Stats {
	return s.set.Stats()
}

// JoinAll waits for every spawned worker and then reads the final value.
//
// A non-nil error with a populated [Summary] means at least one worker
// failed; Summary.Trustworthy is false and the error lists the failures.
// If ctx ends before every worker is joined, the summary only has the run
// ID and initial value.
func (s *Service) JoinAll(ctx context.Context) (Summary, error) {
	summary := Summary{
		ID:      s.id,
		Initial: s.initial,
		Started: s.started,
	}

	results, joinErr := s.set.JoinAll(ctx)
	if errors.Is(joinErr, joinset.ErrJoinInterrupted) {
		return summary, fmt.Errorf("join workers: %w", joinErr)
	}

	// Every worker is terminal, so the result stands even if ctx has just
	// ended.
	final, err := s.Read(context.WithoutCancel(ctx))
	if err != nil {
		return summary, fmt.Errorf("read final value: %w", err)
	}

	summary.Final = final
	summary.Duration = time.Since(s.started)
	summary.Workers = make([]WorkerResult, 0, len(results))

	for _, r := range results {
		summary.Workers = append(summary.Workers, workerResult(r))

		switch r.State {
		case joinset.StateCompleted:
			summary.Completed++
		case joinset.StateFailed:
			summary.Failed++
		}
	}

	summary.Spawned = len(results)
	summary.Trustworthy = summary.Failed == 0

	s.log.Info("joined workers",
		slog.Int64("final", summary.Final),
		slog.Int("completed", summary.Completed),
		slog.Int("failed", summary.Failed),
	)

	if joinErr != nil {
		return summary, fmt.Errorf("%d worker(s) failed: %w", summary.Failed, joinErr)
	}

	return summary, nil
}
