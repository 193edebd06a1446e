package execution

import (
	"errors"
	"fmt"
)

// ValidationError reports a problem detected before any work is dispatched:
// a cyclic graph, an unknown capability, a malformed config. Never retried.
type ValidationError struct {
	GraphID string
	Reason  string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graph %s failed validation: %s: %v", e.GraphID, e.Reason, e.Err)
	}

	return fmt.Sprintf("graph %s failed validation: %s", e.GraphID, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ProviderError reports that a provider rejected or failed a unit of work.
// The job queue retries these per its policy before dead-lettering.
type ProviderError struct {
	NodeID     string
	Capability string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed for node %s: %v", e.Capability, e.NodeID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// TimeoutError means the completion poller gave up waiting, not that the
// provider rejected the work. Kept distinct so operators can tell a hung
// provider from a failing one.
type TimeoutError struct {
	NodeID   string
	Attempts int
	LastSeen string
}

func (e *TimeoutError) Error() string {
	if e.LastSeen != "" {
		return fmt.Sprintf("node %s timed out after %d status checks (last: %s)", e.NodeID, e.Attempts, e.LastSeen)
	}

	return fmt.Sprintf("node %s timed out after %d status checks", e.NodeID, e.Attempts)
}

// OrchestrationError reports an internal invariant violation. The execution
// is marked failed; this is a bug signal, not a provider condition.
type OrchestrationError struct {
	ExecutionID string
	Reason      string
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("execution %s: %s", e.ExecutionID, e.Reason)
}

// Sentinel errors for orchestrator operations.
var (
	// ErrExecutionNotActive is returned for operations that need a live run.
	ErrExecutionNotActive = errors.New("execution is not active")

	// ErrExecutionNotResumable is returned when resume is requested for an
	// execution that is not in the failed state.
	ErrExecutionNotResumable = errors.New("execution is not in a resumable state")

	// ErrGraphNotExecutable is returned when the graph is missing or not
	// published.
	ErrGraphNotExecutable = errors.New("graph is not executable")
)
