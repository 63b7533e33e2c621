// Package guarded provides a value that can only be read or written while
// holding its lock.
//
// Holders share a *Value by pointer. The lock is a weighted semaphore of
// size one, so acquisition can be abandoned through a context without ever
// leaving the lock held.
package guarded

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrAcquire indicates the lock could not be acquired before the context ended.
	ErrAcquire = errors.New("acquire lock")

	// ErrReleased indicates a [Guard] was used after it was released.
	ErrReleased = errors.New("guard already released")
)

// Value holds a T behind an exclusive lock. Create instances with [New].
type Value[T any] struct {
	sem *semaphore.Weighted
	v   T
}

// New creates a [Value] holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		sem: semaphore.NewWeighted(1),
		v:   initial,
	}
}

// With runs fn while holding the lock and releases it when fn returns or
// panics. A panic in fn is re-raised after the release.
func (g *Value[T]) With(ctx context.Context, fn func(v *T) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	defer g.sem.Release(1)

	return fn(&g.v)
}

// Update runs fn on a copy of the value and stores the copy only if fn
// returns nil. Readers never see a half-applied update.
func (g *Value[T]) Update(ctx context.Context, fn func(v *T) error) error {
	return g.With(ctx, func(v *T) error {
		next := *v
		if err := fn(&next); err != nil {
			return err
		}

		*v = next

		return nil
	})
}

// Load returns a copy of the current value.
func (g *Value[T]) Load(ctx context.Context) (T, error) {
	var out T

	err := g.With(ctx, func(v *T) error {
		out = *v

		return nil
	})

	return out, err
}

// Acquire blocks until the lock is free and returns a [Guard] holding it.
// Callers must release the guard, normally with defer:
//
//	g, err := v.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer g.Release()
func (g *Value[T]) Acquire(ctx context.Context) (*Guard[T], error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}

	return &Guard[T]{owner: g}, nil
}

// TryAcquire acquires the lock only if it is free right now.
func (g *Value[T]) TryAcquire() (*Guard[T], bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}

	return &Guard[T]{owner: g}, true
}

// Guard is exclusive access to a [Value] obtained from [Value.Acquire].
type Guard[T any] struct {
	owner    *Value[T]
	released atomic.Bool
}

// Get returns the guarded value.
func (a *Guard[T]) Get() T {
	a.mustHold()

	return a.owner.v
}

// Set replaces the guarded value.
func (a *Guard[T]) Set(v T) {
	a.mustHold()

	a.owner.v = v
}

// Release gives the lock back. Calling it more than once is a no-op.
func (a *Guard[T]) Release() {
	if a.released.Swap(true) {
		return
	}

	a.owner.sem.Release(1)
}

func (a *Guard[T]) mustHold() {
	if a.released.Load() {
		panic(ErrReleased)
	}
}
