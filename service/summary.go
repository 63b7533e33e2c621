package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/quii/guardedcounter/sync/joinset"
)

// Summary is the outcome of a joined run.
type Summary struct {
	ID          uuid.UUID      `json:"id"`
	Initial     int64          `json:"initial"`
	Final       int64          `json:"final"`
	Started     time.Time      `json:"started"`
	Duration    time.Duration  `json:"duration"`
	Spawned     int            `json:"spawned"`
	Completed   int            `json:"completed"`
	Failed      int            `json:"failed"`
	Workers     []WorkerResult `json:"workers"`
	Trustworthy bool           `json:"trustworthy"`
}

// WorkerResult is the terminal state of one worker.
type WorkerResult struct {
	ID    int           `json:"id"`
	State joinset.State `json:"state"`
	Error string        `json:"error,omitempty"`
}

func workerResult(r joinset.Result) WorkerResult {
	out := WorkerResult{ID: r.ID, State: r.State}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}

	return out
}
