package runner

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout            = errors.New("tool execution timed out")
	ErrBackendUnavailable = errors.New("execution backend unavailable")
	ErrNoImage            = errors.New("tool has no container image")
	ErrBinaryNotFound     = errors.New("tool binary not found on host")
)

// RunError wraps backend errors with invocation context.
type RunError struct {
	RunID string
	Tool  string
	Op    string
	Err   error
}

func (e *RunError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("run %s (%s): %s: %s", e.RunID, e.Tool, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Tool, e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the error is an execution timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
