package models

import "time"

// JobStatus defines the lifecycle states of a submitted unit of provider work.
type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"

	// JobStatusTimeout is synthesized when polling gives up before the
	// provider reports a terminal state. Kept distinct from failed so
	// operators can tell "the provider said no" from "we stopped waiting".
	JobStatusTimeout JobStatus = "timeout"
)

// IsTerminal reports whether the job will receive no further updates.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled, JobStatusTimeout:
		return true
	default:
		return false
	}
}

// Job is a live, outstanding unit of work submitted to an external provider
// on behalf of one node. Within one node, status transitions are monotonic:
// starting -> processing -> terminal.
type Job struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	Capability  string    `json:"capability"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"` // 0-100

	// Attempt is 1-based; the handler sees it so the last attempt can be
	// treated differently.
	Attempt int `json:"attempt"`

	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`

	// ProviderHandle is the provider-side identifier used for status checks
	// and cancellation.
	ProviderHandle string `json:"provider_handle,omitempty"`

	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
}
