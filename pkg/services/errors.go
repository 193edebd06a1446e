// Package services provides the application layer between the HTTP surface
// and the engine: request validation, graph lifecycle rules, and run
// admission.
package services

import (
	"errors"
	"fmt"

	"github.com/genflow/genflow/pkg/persistence"
)

// Client errors (4xx responses).
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrEmptyOwner       = errors.New("owner cannot be empty")

	// Publish validation (400 Bad Request).
	ErrGraphNil          = errors.New("graph cannot be nil")
	ErrGraphNameRequired = errors.New("graph name is required")
	ErrNodesRequired     = errors.New("graph must have at least one node")
	ErrInvalidEdgeData   = errors.New("invalid edge data")

	// Conflicts (409).
	ErrCannotModifyPublished = errors.New("cannot modify a published graph")
	ErrAlreadyPublished      = errors.New("graph is already published")

	// Run admission (409/422).
	ErrGraphNotPublished = errors.New("graph is not published")
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrRunnerUnavailable is returned when a stop or resume is requested
	// against a deployment with no attached orchestrator.
	ErrRunnerUnavailable = errors.New("no execution runner attached")
)

// Re-exported so callers need not import persistence for the common cases.
var (
	ErrGraphNotFound     = persistence.ErrGraphNotFound
	ErrExecutionNotFound = persistence.ErrExecutionNotFound
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError reports whether err should surface as HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyOwner) ||
		errors.Is(err, ErrGraphNil) ||
		errors.Is(err, ErrGraphNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrInvalidEdgeData) ||
		errors.Is(err, ErrUnknownTargetNode)
}

// IsConflictError reports whether err should surface as HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyPublished) ||
		errors.Is(err, ErrAlreadyPublished) ||
		errors.Is(err, ErrGraphNotPublished)
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
