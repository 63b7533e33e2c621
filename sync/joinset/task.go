package joinset

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Func is the body of a task. Bodies that take a lock report their progress
// with [Task.MarkWaiting] and [Task.MarkHolding].
type Func func(ctx context.Context, t *Task) error

// Task is the handle of a spawned worker.
type Task struct {
	id     int
	notify func(Event)
	done   chan struct{}

	mu    sync.Mutex
	state State
	err   error
}

// ID returns the task's position in spawn order, starting at 1.
func (t *Task) ID() int { return t.id }

// State returns the task's current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Done returns a channel that is closed once the task is terminal.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's failure, or nil if it completed or is still running.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.err
}

// Join blocks until the task is terminal and returns its failure, if any.
// If ctx ends first, Join returns the context's error instead.
func (t *Task) Join(ctx context.Context) error {
	if err := t.wait(ctx); err != nil {
		return err
	}

	return t.Err()
}

// MarkWaiting records that the task is about to block on a lock.
func (t *Task) MarkWaiting() error {
	return t.transition(StateWaitingForLock, nil)
}

// MarkHolding records that the task has acquired its lock.
func (t *Task) MarkHolding() error {
	return t.transition(StateHoldingLock, nil)
}

func (t *Task) result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Result{ID: t.id, State: t.state, Err: t.err}
}

func (t *Task) wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	default:
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: worker %d: %w", ErrJoinInterrupted, t.id, ctx.Err())
	}
}

func (t *Task) transition(to State, cause error) error {
	t.mu.Lock()
	from := t.state
	if !isAllowedTransition(from, to) {
		t.mu.Unlock()

		return fmt.Errorf("%w: worker %d: %s -> %s", ErrInvalidTransition, t.id, from, to)
	}
	t.state = to
	if to == StateFailed {
		t.err = cause
	}
	t.mu.Unlock()

	if t.notify != nil {
		t.notify(Event{TaskID: t.id, From: from, To: to, Err: cause, At: time.Now()})
	}

	return nil
}

func (t *Task) run(ctx context.Context, fn Func) {
	defer close(t.done)

	returned := false
	defer func() {
		// fn called runtime.Goexit.
		if !returned {
			_ = t.transition(StateFailed, ErrAbnormalExit)
		}
	}()

	err := t.call(ctx, fn)
	returned = true
	if err == nil {
		err = t.transition(StateCompleted, nil)
	}

	if err != nil {
		// Only fails if already terminal, which run is the sole writer of.
		_ = t.transition(StateFailed, err)
	}
}

func (t *Task) call(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return fn(ctx, t)
}
