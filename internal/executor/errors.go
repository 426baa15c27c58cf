package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrTierRestricted is the only failure surfaced as an outright
	// rejection: the plan/credential gate failed before any work started.
	ErrTierRestricted = errors.New("tool requires upgrade or own credential")

	// ErrUnknownTool means the request named a tool the registry doesn't have.
	ErrUnknownTool = errors.New("unknown tool")
)

// ExecutionError wraps errors with execution context.
type ExecutionError struct {
	RunID string
	Op    string
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("execution %s: %s: %s", e.RunID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTierRestricted reports whether the error is a tier gate rejection.
func IsTierRestricted(err error) bool {
	return errors.Is(err, ErrTierRestricted)
}
