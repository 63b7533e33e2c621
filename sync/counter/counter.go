// Package counter provides integer counters that are safe to share between
// goroutines.
package counter

import (
	"context"
	"fmt"

	"github.com/quii/guardedcounter/sync/guarded"
)

// ICounter is a counter that can be incremented and read concurrently.
type ICounter interface {
	Inc()
	Value() int64
}

// Counter is an int64 that is only read or written while holding its lock.
// Create instances with [New] and share them by pointer.
type Counter struct {
	v *guarded.Value[int64]
}

// New creates a [Counter] starting at initial.
func New(initial int64) *Counter {
	return &Counter{v: guarded.New(initial)}
}

// Inc adds one to the counter.
func (c *Counter) Inc() {
	if err := c.Add(context.Background(), 1); err != nil {
		// Acquire only fails when its context ends.
		panic(fmt.Errorf("counter: %w", err))
	}
}

// Add adds delta to the counter, waiting for the lock until ctx ends.
func (c *Counter) Add(ctx context.Context, delta int64) error {
	return c.v.With(ctx, func(v *int64) error {
		*v += delta

		return nil
	})
}

// Update runs fn inside the critical section. The new value is committed
// only if fn returns nil; on error or panic the counter keeps its old value
// and the lock is released.
func (c *Counter) Update(ctx context.Context, fn func(v *int64) error) error {
	return c.v.Update(ctx, fn)
}

// Acquire returns exclusive access to the counter. See [guarded.Value.Acquire].
func (c *Counter) Acquire(ctx context.Context) (*guarded.Guard[int64], error) {
	return c.v.Acquire(ctx)
}

// Read returns a copy of the current value.
func (c *Counter) Read(ctx context.Context) (int64, error) {
	return c.v.Load(ctx)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	n, err := c.Read(context.Background())
	if err != nil {
		panic(fmt.Errorf("counter: %w", err))
	}

	return n
}
