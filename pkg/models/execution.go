package models

import "time"

// ExecutionStatus defines the lifecycle states of one run of a graph.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the execution can no longer change state.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// Execution is one run of a graph. It is the single source of truth for the
// run: the orchestrator must be able to reconstruct its in-memory view
// entirely from this record, and it is the record observers reconcile
// against when the push channel drops.
type Execution struct {
	ID      string          `json:"id"`
	GraphID string          `json:"graph_id" validate:"required"`
	Status  ExecutionStatus `json:"status"`

	// TargetNodes restricts a partial run to a subset of node ids. Empty
	// means the whole graph is in scope.
	TargetNodes []string `json:"target_nodes,omitempty"`

	// Debug short-circuits generator nodes: they complete with a synthetic
	// output and record the payload that would have been submitted.
	Debug bool `json:"debug"`

	NodeResults map[string]*NodeResult `json:"node_results"`

	// Jobs holds the live, outstanding provider work keyed by job id. A
	// node has at most one live job at any instant; terminal jobs are
	// removed once the orchestrator has consumed them.
	Jobs map[string]*Job `json:"jobs"`

	LastFailedNodeID string         `json:"last_failed_node_id,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	Variables        map[string]any `json:"variables,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewExecution creates a pending execution for the given graph with empty
// result and job sets.
func NewExecution(id, graphID string) *Execution {
	return &Execution{
		ID:          id,
		GraphID:     graphID,
		Status:      ExecutionStatusPending,
		NodeResults: make(map[string]*NodeResult),
		Jobs:        make(map[string]*Job),
		CreatedAt:   time.Now().UTC(),
	}
}

// Result returns the node result for nodeID, creating an idle one if absent.
func (e *Execution) Result(nodeID string) *NodeResult {
	if e.NodeResults == nil {
		e.NodeResults = make(map[string]*NodeResult)
	}

	result, ok := e.NodeResults[nodeID]
	if !ok {
		result = &NodeResult{NodeID: nodeID, Status: NodeStatusIdle}
		e.NodeResults[nodeID] = result
	}

	return result
}

// LiveJobForNode returns the outstanding job owned by nodeID, or nil.
func (e *Execution) LiveJobForNode(nodeID string) *Job {
	for _, job := range e.Jobs {
		if job.NodeID == nodeID && !job.Status.IsTerminal() {
			return job
		}
	}

	return nil
}

// Clone returns a deep copy of the execution. Components that communicate
// through the record receive copies, never a shared mutable reference.
func (e *Execution) Clone() *Execution {
	clone := *e

	clone.TargetNodes = append([]string(nil), e.TargetNodes...)
	clone.Variables = cloneValueMap(e.Variables)
	clone.Metadata = cloneValueMap(e.Metadata)

	clone.NodeResults = make(map[string]*NodeResult, len(e.NodeResults))
	for id, result := range e.NodeResults {
		r := *result
		r.Output = cloneValueMap(result.Output)
		r.DebugPayload = cloneValueMap(result.DebugPayload)
		clone.NodeResults[id] = &r
	}

	clone.Jobs = make(map[string]*Job, len(e.Jobs))
	for id, job := range e.Jobs {
		j := *job
		j.Output = cloneValueMap(job.Output)
		clone.Jobs[id] = &j
	}

	return &clone
}

// cloneValueMap deep-copies a JSON-shaped map so nested values are never
// shared between a clone and the live record.
func cloneValueMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = cloneValue(value)
	}

	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneValueMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return value
	}
}
