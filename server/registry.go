package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/quii/guardedcounter/config"
	"github.com/quii/guardedcounter/service"
	"github.com/quii/guardedcounter/sink"
)

// ErrRunNotFound indicates no run is registered under the given ID, either
// because it never existed or because it expired.
var ErrRunNotFound = errors.New("run not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type run struct {
	id          uuid.UUID
	cfg         config.Run
	broadcaster *sink.Broadcaster
	done        chan struct{}

	mu      sync.Mutex
	summary service.Summary
	err     error
}

func (r *run) finish(summary service.Summary, err error) {
	r.mu.Lock()
	r.summary = summary
	r.err = err
	r.mu.Unlock()

	r.broadcaster.Close()
	close(r.done)
}

// snapshot returns the run's status, and its summary and error once it has
// finished.
func (r *run) snapshot() (Status, service.Summary, error) {
	select {
	case <-r.done:
	default:
		return StatusRunning, service.Summary{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return StatusFailed, r.summary, r.err
	}

	return StatusSucceeded, r.summary, nil
}

// registry holds runs by ID. Running runs never expire; finished runs are
// kept for the registry's TTL.
type registry struct {
	runs *cache.Cache
}

func newRegistry(ttl time.Duration, log *slog.Logger) *registry {
	c := cache.New(ttl, ttl)
	c.OnEvicted(func(id string, _ any) {
		log.Debug("run expired", slog.String("run", id))
	})

	return &registry{runs: c}
}

func (g *registry) add(r *run) {
	g.runs.Set(r.id.String(), r, cache.NoExpiration)
}

// expire starts the TTL of a finished run.
func (g *registry) expire(r *run) {
	g.runs.Set(r.id.String(), r, cache.DefaultExpiration)
}

func (g *registry) get(id uuid.UUID) (*run, error) {
	v, ok := g.runs.Get(id.String())
	if !ok {
		return nil, ErrRunNotFound
	}

	return v.(*run), nil
}

func (g *registry) count() int {
	return g.runs.ItemCount()
}
