// Package joinset spawns worker goroutines and joins them.
//
// A [JoinSet] owns an ordered sequence of [Task] handles. Each task runs in
// its own goroutine and moves through the states
//
//	SPAWNED -> WAITING_FOR_LOCK -> HOLDING_LOCK -> COMPLETED
//
// or ends in FAILED if its function returns an error or panics. Panics are
// recovered in the task's goroutine and reported as a [*PanicError] so that a
// failing worker is observable to whoever joins it instead of crashing the
// process.
//
// [JoinSet.JoinAll] waits on every handle, in spawn order, and only returns
// once each one is terminal.
package joinset
