package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrGraphNotFound indicates a graph was not found by the given identifier.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrGraphAlreadyExists indicates a graph with the same identifier already exists.
	ErrGraphAlreadyExists = errors.New("graph already exists")

	// ErrInvalidGraphStatus indicates an invalid graph status was provided.
	ErrInvalidGraphStatus = errors.New("invalid graph status")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")
)

// GraphError wraps graph-related errors with additional context.
type GraphError struct {
	Op      string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	GraphID string
	Err     error
	Message string
}

func (e *GraphError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for graph %s: %s (%v)", e.Op, e.GraphID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for graph %s: %v", e.Op, e.GraphID, e.Err)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

func (e *GraphError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewGraphError creates a new graph error with context.
func NewGraphError(op, graphID string, err error) *GraphError {
	return &GraphError{
		Op:      op,
		GraphID: graphID,
		Err:     err,
	}
}

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsGraphNotFound checks if an error indicates a graph was not found.
func IsGraphNotFound(err error) bool {
	return errors.Is(err, ErrGraphNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
