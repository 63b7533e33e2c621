package joinset

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition indicates a task was moved to a state its current
// state does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrAbnormalExit indicates a task's goroutine exited without its function
// returning or panicking, as happens with [runtime.Goexit].
var ErrAbnormalExit = errors.New("worker exited abnormally")

// ErrJoinInterrupted indicates a join ended because its context did, before
// the task was terminal.
var ErrJoinInterrupted = errors.New("join interrupted")

// TaskError is the failure of a single task as reported by [JoinSet.JoinAll].
type TaskError struct {
	TaskID int
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// PanicError is a panic recovered from a task's goroutine.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}

	return nil
}
