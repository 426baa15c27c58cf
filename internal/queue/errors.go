package queue

import "errors"

var (
	// ErrNotCancellable means the execution has already been admitted;
	// only queued executions can be cancelled.
	ErrNotCancellable = errors.New("execution is not cancellable")

	// ErrUnknownExecution means no execution with that id is tracked.
	ErrUnknownExecution = errors.New("unknown execution")

	// ErrQuotaExceeded means the project has used its daily run quota.
	ErrQuotaExceeded = errors.New("daily run quota exceeded")

	// ErrQueueFull means the pending queue is at capacity.
	ErrQueueFull = errors.New("queue is full")
)
