// Package monitor observes a running join set.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/quii/guardedcounter/sync/joinset"
)

// DefaultInterval is the check interval used until [Monitor.SetInterval] is called.
const DefaultInterval = time.Second

// Monitor hands task events to ProcessNotification, in the order they were
// received, and runs a check function on every tick of its interval.
type Monitor struct {
	events    chan joinset.Event
	checkFunc func(context.Context)
	ctx       context.Context
	cancel    context.CancelFunc
	checks    sync.WaitGroup
	done      chan struct{}

	mu     sync.RWMutex
	closed bool

	tickMu   sync.Mutex
	ticker   *time.Ticker
	interval time.Duration

	// ProcessNotification is called for every event. It must be set before Run.
	ProcessNotification func(joinset.Event)
}

// New creates a [Monitor] whose intake buffers up to size events.
func New(size int) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		events:              make(chan joinset.Event, size),
		interval:            DefaultInterval,
		ctx:                 ctx,
		cancel:              cancel,
		done:                make(chan struct{}),
		ProcessNotification: func(joinset.Event) {},
	}
}

// SetCheckFunc sets the function run on every tick.
func (m *Monitor) SetCheckFunc(fn func(context.Context)) {
	m.checkFunc = fn
}

// SetInterval sets the check interval.
func (m *Monitor) SetInterval(interval time.Duration) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	m.interval = interval
	if m.ticker != nil {
		m.ticker.Reset(interval)
	}
}

// Notify queues ev for processing. It blocks while the intake is full, and
// drops ev if the monitor is closed or stopped.
func (m *Monitor) Notify(ev joinset.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

// Run processes events and ticks until the intake is closed or the monitor
// is stopped.
func (m *Monitor) Run() {
	defer close(m.done)

	m.tickMu.Lock()
	ticker := time.NewTicker(m.interval)
	m.ticker = ticker
	m.tickMu.Unlock()

	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-m.events:
			if !ok {
				return
			}
			m.ProcessNotification(ev)

		case <-ticker.C:
			if m.checkFunc != nil {
				m.checks.Add(1)
				go func() {
					defer m.checks.Done()
					m.checkFunc(m.ctx)
				}()
			}

		case <-m.ctx.Done():
			return
		}
	}
}

// Close stops intake, waits for Run to process every queued event, then
// waits for in-flight checks. Run must have been started.
func (m *Monitor) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	m.mu.Unlock()

	<-m.done
	m.cancel()
	m.checks.Wait()
}

// Stop cancels the monitor without draining queued events.
func (m *Monitor) Stop() {
	m.cancel()
}
