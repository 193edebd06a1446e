package execution

import (
	"sync"

	"github.com/genflow/genflow/pkg/models"
)

// updateMailbox buffers job transitions from the queue without ever blocking
// the sender. Queue submissions can happen while a run's mutex is held, and
// the consumer needs that same mutex to apply an update, so the bridge
// between them must not wait on the consumer.
type updateMailbox struct {
	mu      sync.Mutex
	pending []models.Job

	wake chan struct{}
}

func newUpdateMailbox() *updateMailbox {
	return &updateMailbox{wake: make(chan struct{}, 1)}
}

func (m *updateMailbox) put(job models.Job) {
	m.mu.Lock()
	m.pending = append(m.pending, job)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// take drains every pending update in arrival order.
func (m *updateMailbox) take() []models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	taken := m.pending
	m.pending = nil

	return taken
}
