// Package web provides the HTTP surface: graph management, run requests,
// execution queries, and the status stream.
package web

import "github.com/genflow/genflow/pkg/models"

// CreateGraphRequest is the request body for creating a graph.
type CreateGraphRequest struct {
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Nodes       []*models.Node `json:"nodes"`
	Edges       []*models.Edge `json:"edges"`
	Variables   map[string]any `json:"variables,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Owner       string         `json:"owner"       validate:"required"`
}

// UpdateGraphRequest is the request body for updating a draft graph. All
// fields are optional to support partial updates.
type UpdateGraphRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Nodes       []*models.Node `json:"nodes,omitempty"`
	Edges       []*models.Edge `json:"edges,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StartExecutionRequest is the request body for requesting a run.
type StartExecutionRequest struct {
	GraphID   string         `json:"graph_id"   validate:"required"`
	NodeIDs   []string       `json:"node_ids,omitempty"`
	Debug     bool           `json:"debug"`
	Variables map[string]any `json:"variables,omitempty"`
	Initiator string         `json:"initiator,omitempty"`
}

// StopExecutionRequest is the optional request body for stopping a run.
type StopExecutionRequest struct {
	Reason    string `json:"reason,omitempty"`
	StoppedBy string `json:"stopped_by,omitempty"`
}

// ResumeExecutionRequest is the optional request body for resuming a run.
type ResumeExecutionRequest struct {
	ResumedBy string `json:"resumed_by,omitempty"`
}
