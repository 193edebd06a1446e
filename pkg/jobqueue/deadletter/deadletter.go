// Package deadletter provides the durable record of jobs that exhausted
// their retries. Entries are queryable for operator remediation and are
// never silently discarded.
package deadletter

import (
	"context"
	"time"
)

// Entry describes one dead-lettered job.
type Entry struct {
	JobID       string    `json:"job_id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	Capability  string    `json:"capability"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	FailedAt    time.Time `json:"failed_at"`
}

// Store persists dead-letter entries.
type Store interface {
	Add(ctx context.Context, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}
