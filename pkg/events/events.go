// Package events defines event types and structures for execution lifecycle
// notifications.
package events

import (
	"time"

	"github.com/genflow/genflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "genflow.events"                          // Execution lifecycle and job events
const ExecutionStatusTopic = "genflow.execution.status" // Status snapshots pushed to subscribers

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionRequestedEvent EventType = "execution.requested"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionResumedEvent   EventType = "execution.resumed"

	// Per-node events.
	NodeDispatchedEvent EventType = "node.dispatched"
	NodeCompletedEvent  EventType = "node.completed"
	NodeFailedEvent     EventType = "node.failed"

	// Job-level events.
	JobProgressEvent EventType = "job.progress"
	JobStalledEvent  EventType = "job.stalled"

	// Status channel events.
	StatusSnapshotEvent EventType = "status.snapshot"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	GraphID   string         `json:"graph_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, graphID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		GraphID:   graphID,
		Metadata:  make(map[string]any),
	}
}

// ExecutionRequested asks a worker to run a graph. TargetNodes narrows the
// run to the named nodes plus their ancestors; empty means the whole graph.
type ExecutionRequested struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	TargetNodes []string       `json:"target_nodes,omitempty"`
	Debug       bool           `json:"debug"`
	Variables   map[string]any `json:"variables,omitempty"`
	Initiator   string         `json:"initiator"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	GraphName   string         `json:"graph_name"`
	NodeCount   int            `json:"node_count"`
	Variables   map[string]any `json:"variables,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string         `json:"execution_id"`
	DurationMs    int64          `json:"duration_ms"`
	NodesExecuted int            `json:"nodes_executed"`
	TotalCost     float64        `json:"total_cost"`
	FinalOutputs  map[string]any `json:"final_outputs,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID    string         `json:"execution_id"`
	DurationMs     int64          `json:"duration_ms"`
	FailedNodeID   string         `json:"failed_node_id"`
	Error          string         `json:"error"`
	NodesExecuted  int            `json:"nodes_executed"`
	PartialResults map[string]any `json:"partial_results,omitempty"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	Reason        string `json:"reason"`
	CancelledBy   string `json:"cancelled_by"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// ExecutionResumed restarts a failed execution from its first failed node,
// reusing the completed results already recorded.
type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	FromNodeID  string `json:"from_node_id"`
	ResumedBy   string `json:"resumed_by"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

// Per-node events

type NodeDispatched struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Capability  string `json:"capability"`
	JobID       string `json:"job_id"`
	Attempt     int    `json:"attempt"`
}

func (e NodeDispatched) GetType() EventType {
	return NodeDispatchedEvent
}

type NodeCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Output      map[string]any `json:"output,omitempty"`
	Cost        float64        `json:"cost"`
	DurationMs  int64          `json:"duration_ms"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
	Attempts    int    `json:"attempts"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

// Job-level events

type JobProgress struct {
	BaseEvent

	ExecutionID string           `json:"execution_id"`
	NodeID      string           `json:"node_id"`
	JobID       string           `json:"job_id"`
	Status      models.JobStatus `json:"status"`
	Progress    int              `json:"progress"`
}

func (e JobProgress) GetType() EventType {
	return JobProgressEvent
}

// JobStalled signals a job whose heartbeat went silent past the stall
// window. It is advisory; the job keeps running.
type JobStalled struct {
	BaseEvent

	ExecutionID   string    `json:"execution_id"`
	NodeID        string    `json:"node_id"`
	JobID         string    `json:"job_id"`
	Capability    string    `json:"capability"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

func (e JobStalled) GetType() EventType {
	return JobStalledEvent
}

// StatusSnapshot carries the full current state of one execution for the
// status channel. Pull reconciliation compares against these.
type StatusSnapshot struct {
	BaseEvent

	ExecutionID string                        `json:"execution_id"`
	Status      models.ExecutionStatus        `json:"status"`
	NodeResults map[string]*models.NodeResult `json:"node_results,omitempty"`
	Jobs        map[string]*models.Job        `json:"jobs,omitempty"`
	Error       string                        `json:"error,omitempty"`
	UpdatedAt   time.Time                     `json:"updated_at"`
}

func (e StatusSnapshot) GetType() EventType {
	return StatusSnapshotEvent
}
