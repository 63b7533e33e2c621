package counter

import (
	"sync/atomic"
)

// AtomicCounter will increment a number safely in concurrent environment
// without a lock. The zero value is ready to use.
type AtomicCounter struct {
	value atomic.Int64
}

// Inc increments the counter atomically.
func (c *AtomicCounter) Inc() {
	c.value.Add(1)
}

// Dec decrements the counter atomically.
func (c *AtomicCounter) Dec() {
	c.value.Add(-1)
}

// Value returns the current count atomically.
func (c *AtomicCounter) Value() int64 {
	return c.value.Load()
}
