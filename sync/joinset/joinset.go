package joinset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/quii/guardedcounter/sync/counter"
)

// Result is the terminal outcome of one task.
type Result struct {
	ID    int
	State State
	Err   error
}

// Stats is a snapshot of task counts.
type Stats struct {
	Spawned   int64
	Completed int64
	Failed    int64
}

// Running returns the number of tasks that are not yet terminal.
func (s Stats) Running() int64 {
	return s.Spawned - s.Completed - s.Failed
}

// Option configures a [JoinSet].
type Option func(*JoinSet)

// WithObserver registers fn to receive every task [Event], including the
// initial SPAWNED event. fn is called from the task's goroutine and must be
// safe for concurrent use.
func WithObserver(fn func(Event)) Option {
	return func(s *JoinSet) {
		s.observer = fn
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *JoinSet) {
		s.log = l
	}
}

// JoinSet owns an ordered sequence of spawned tasks. Create instances with [New].
type JoinSet struct {
	ctx      context.Context
	observer func(Event)
	log      *slog.Logger

	mu    sync.Mutex
	tasks []*Task

	spawned   counter.AtomicCounter
	completed counter.AtomicCounter
	failed    counter.AtomicCounter
}

// New creates a [JoinSet]. Every task receives ctx.
func New(ctx context.Context, opts ...Option) *JoinSet {
	s := &JoinSet{
		ctx: ctx,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Spawn starts fn in a new goroutine and returns its handle immediately.
func (s *JoinSet) Spawn(fn Func) *Task {
	s.mu.Lock()
	t := &Task{
		id:     len(s.tasks) + 1,
		state:  StateSpawned,
		done:   make(chan struct{}),
		notify: s.observe,
	}
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()

	s.spawned.Inc()
	s.log.Debug("spawned worker", slog.Int("worker", t.id))
	s.observe(Event{TaskID: t.id, To: StateSpawned, At: time.Now()})

	go t.run(s.ctx, fn)

	return t
}

// Tasks returns the handles spawned so far, in spawn order.
func (s *JoinSet) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Task, len(s.tasks))
	copy(out, s.tasks)

	return out
}

// Stats returns the current task counts.
func (s *JoinSet) Stats() Stats {
	return Stats{
		Spawned:   s.spawned.Value(),
		Completed: s.completed.Value(),
		Failed:    s.failed.Value(),
	}
}

// JoinAll waits, in spawn order, for every task spawned before the call and
// returns their results. The error is nil only if every task completed;
// otherwise it is a [*multierror.Error] holding one [*TaskError] per failed
// task. If ctx ends first, JoinAll returns the results gathered so far and
// an error wrapping [ErrJoinInterrupted] and the context's error.
func (s *JoinSet) JoinAll(ctx context.Context) ([]Result, error) {
	tasks := s.Tasks()
	results := make([]Result, 0, len(tasks))

	var merr *multierror.Error

	for _, t := range tasks {
		if err := t.wait(ctx); err != nil {
			return results, err
		}

		r := t.result()
		results = append(results, r)

		if r.Err != nil {
			merr = multierror.Append(merr, &TaskError{TaskID: r.ID, Err: r.Err})
		}
	}

	return results, merr.ErrorOrNil()
}

func (s *JoinSet) observe(ev Event) {
	switch ev.To {
	case StateCompleted:
		s.completed.Inc()
	case StateFailed:
		s.failed.Inc()
		s.log.Warn("worker failed",
			slog.Int("worker", ev.TaskID),
			slog.String("from", string(ev.From)),
			slog.Any("err", ev.Err),
		)
	}

	if s.observer != nil {
		s.observer(ev)
	}
}
