package models

import "time"

// NodeKind represents the broad role a node plays in a graph.
type NodeKind string

const (
	NodeKindInput     NodeKind = "input"     // Static or user-supplied values (prompts, seeds)
	NodeKindGenerator NodeKind = "generator" // Asynchronous AI prediction (image, video, text)
	NodeKindTransform NodeKind = "transform" // Post-processing of upstream outputs
	NodeKindDelivery  NodeKind = "delivery"  // Pushes a finished artifact to a target
)

// Built-in capability tags. A capability names the provider adapter that
// serves a node and the job-queue lane its work is dispatched on.
const (
	CapabilityImageGenerate   = "image.generate"
	CapabilityVideoGenerate   = "video.generate"
	CapabilityTextGenerate    = "text.generate"
	CapabilityTransform       = "transform"
	CapabilityStaticInput     = "input.static"
	CapabilityWebhookDelivery = "delivery.webhook"
)

// Node represents a single step in a graph. Config is opaque to the engine
// and interpreted only by the provider adapter registered for Capability.
type Node struct {
	ID         string         `json:"id"         validate:"required"`
	Kind       NodeKind       `json:"kind"       validate:"required"`
	Capability string         `json:"capability" validate:"required"`
	Config     map[string]any `json:"config"`
	Name       string         `json:"name"       validate:"required,min=1"`
	Enabled    bool           `json:"enabled"`
	PositionX  int            `json:"position_x"`
	PositionY  int            `json:"position_y"`
}

// IsGenerator reports whether the node submits asynchronous provider work.
func (n *Node) IsGenerator() bool {
	return n.Kind == NodeKindGenerator
}

// NodeResultStatus defines the possible states of a node within one execution.
type NodeResultStatus string

const (
	NodeStatusIdle       NodeResultStatus = "idle"
	NodeStatusProcessing NodeResultStatus = "processing"
	NodeStatusComplete   NodeResultStatus = "complete"
	NodeStatusError      NodeResultStatus = "error"
)

// IsTerminal reports whether no further transition is expected for the node.
func (s NodeResultStatus) IsTerminal() bool {
	return s == NodeStatusComplete || s == NodeStatusError
}

// NodeResult is the per-node outcome within one execution. Upserted as work
// progresses; transitions are monotonic except for the reset performed by
// resume on the last failed node.
type NodeResult struct {
	NodeID string           `json:"node_id"`
	Status NodeResultStatus `json:"status"`
	Output map[string]any   `json:"output,omitempty"`
	Error  string           `json:"error,omitempty"`
	Cost   float64          `json:"cost,omitempty"`

	// DebugPayload holds the request that would have been submitted to the
	// provider when the execution runs in debug mode.
	DebugPayload map[string]any `json:"debug_payload,omitempty"`

	// Propagated records that this node's completion has already triggered
	// downstream dispatch. Persisted so a replayed completion event cannot
	// double-dispatch dependents, even across process restarts.
	Propagated bool `json:"propagated"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
