// Package provider defines the boundary interface to external, asynchronous
// generation and delivery capabilities.
package provider

import "context"

// Status is the canonical provider status vocabulary. Adapters map whatever
// their backend reports onto these values.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// IsTerminal reports whether the provider will emit no further updates.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Handle identifies a submitted unit of work on the provider side.
type Handle struct {
	ID         string         `json:"id"`
	Capability string         `json:"capability"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SubmitRequest carries everything an adapter needs to start one unit of
// work: the node's opaque configuration plus the gathered outputs of its
// dependencies, keyed by input port name.
type SubmitRequest struct {
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Config      map[string]any `json:"config"`
	Inputs      map[string]any `json:"inputs"`
}

// StatusUpdate is one observation of a submitted unit of work.
type StatusUpdate struct {
	Status   Status         `json:"status"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Progress int            `json:"progress"` // 0-100
}

// Adapter is the uniform submit/poll/cancel contract for one external
// capability. The engine depends only on this interface; new node types are
// new adapters, never new engine branches.
type Adapter interface {
	// Capability returns the capability tag this adapter serves.
	Capability() string

	// Submit starts one unit of work. The returned handle is used for all
	// later status checks and cancellation. Submit returning does not mean
	// the work is complete.
	Submit(ctx context.Context, req SubmitRequest) (Handle, error)

	// CheckStatus reports the current state of previously submitted work.
	CheckStatus(ctx context.Context, handle Handle) (StatusUpdate, error)

	// Cancel requests the provider abandon the work, where supported.
	Cancel(ctx context.Context, handle Handle) error
}

// Factory creates adapter instances and describes the capability's
// configuration schema.
type Factory interface {
	// Create builds an adapter from capability-level configuration.
	Create(ctx context.Context, config map[string]any) (Adapter, error)

	// Capability returns the capability tag served by created adapters.
	Capability() string

	// Name returns the human-readable name for this capability.
	Name() string

	// Description returns a description of what this capability does.
	Description() string

	// Schema returns the JSON schema for node configs using this capability.
	Schema() map[string]any
}
