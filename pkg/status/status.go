// Package status implements the execution status channel: push updates
// fanned out to subscribers, backed by pull reconciliation against the
// persisted execution record.
package status

import (
	"time"

	"github.com/genflow/genflow/pkg/models"
)

// Snapshot is one observer-facing view of an execution. It is always a copy;
// consumers can hold or mutate it freely.
type Snapshot struct {
	ExecutionID string                        `json:"execution_id"`
	GraphID     string                        `json:"graph_id"`
	Status      models.ExecutionStatus        `json:"status"`
	NodeResults map[string]*models.NodeResult `json:"node_results,omitempty"`
	Jobs        map[string]*models.Job        `json:"jobs,omitempty"`
	Error       string                        `json:"error,omitempty"`
	UpdatedAt   time.Time                     `json:"updated_at"`
}

// FromExecution builds a snapshot from a deep copy of the execution, so
// later orchestrator mutations cannot leak into delivered snapshots.
func FromExecution(execution *models.Execution) Snapshot {
	clone := execution.Clone()

	return Snapshot{
		ExecutionID: clone.ID,
		GraphID:     clone.GraphID,
		Status:      clone.Status,
		NodeResults: clone.NodeResults,
		Jobs:        clone.Jobs,
		Error:       clone.ErrorMessage,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Progress summarizes how far the execution has come: completed nodes over
// nodes with any recorded result.
func (s Snapshot) Progress() (completed, total int) {
	for _, result := range s.NodeResults {
		total++

		if result.Status == models.NodeStatusComplete {
			completed++
		}
	}

	return completed, total
}
