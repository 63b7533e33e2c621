package joinset

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a [Task].
type State string

const (
	StateSpawned        State = "SPAWNED"
	StateWaitingForLock State = "WAITING_FOR_LOCK"
	StateHoldingLock    State = "HOLDING_LOCK"
	StateCompleted      State = "COMPLETED"
	StateFailed         State = "FAILED"
)

// IsTerminal reports whether the state is terminal (finished).
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to State) bool {
	if to == StateFailed {
		return !from.IsTerminal()
	}

	switch from {
	case StateSpawned:
		return to == StateWaitingForLock || to == StateCompleted
	case StateWaitingForLock:
		return to == StateHoldingLock
	case StateHoldingLock:
		return to == StateCompleted
	default:
		return false
	}
}

// Event records a single state transition of a task.
type Event struct {
	TaskID int
	From   State
	To     State
	// Err is set when To is [StateFailed].
	Err error
	At  time.Time
}

func (e Event) String() string {
	if e.From == "" {
		return fmt.Sprintf("worker %d: %s", e.TaskID, e.To)
	}

	if e.Err != nil {
		return fmt.Sprintf("worker %d: %s -> %s: %v", e.TaskID, e.From, e.To, e.Err)
	}

	return fmt.Sprintf("worker %d: %s -> %s", e.TaskID, e.From, e.To)
}
