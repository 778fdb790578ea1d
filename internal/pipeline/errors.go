package pipeline

import (
	"errors"
	"fmt"
)

var ErrEmptyQuestion = errors.New("question must not be empty")

// UnsafeQueryError rejects generated SQL that failed safety validation.
// The reason is safe to show to callers.
type UnsafeQueryError struct {
	Reason string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("generated SQL rejected: %s", e.Reason)
}

// TimeoutError marks a stage that exceeded its deadline.
type TimeoutError struct {
	Stage Stage
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out", e.Stage)
}

// UnavailableError marks a dependency failure (catalog, generation backend)
// that prevented the stage from running.
type UnavailableError struct {
	Stage Stage
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("stage %s unavailable: %v", e.Stage, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ExecutionError wraps a database error while running validated SQL.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
