package status

import (
	"context"
	"log/slog"
	"sync"

	"github.com/genflow/genflow/pkg/eventbus"
	"github.com/genflow/genflow/pkg/events"
	"github.com/genflow/genflow/pkg/models"
)

const subscriberBuffer = 32

// Broadcaster pushes execution snapshots to in-process subscribers and onto
// the event bus for remote observers. Delivery is best effort: a slow
// subscriber loses intermediate snapshots, never blocks the orchestrator.
// The reconciler backfills anything missed from the persisted record.
type Broadcaster struct {
	bus    eventbus.EventPublisher
	logger *slog.Logger

	mu          sync.Mutex
	nextToken   int
	subscribers map[string]map[int]chan Snapshot
}

func NewBroadcaster(bus eventbus.EventPublisher, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		bus:         bus,
		logger:      logger.With("module", "status"),
		subscribers: make(map[string]map[int]chan Snapshot),
	}
}

// Subscribe registers for snapshots of one execution. The returned cancel
// function closes the channel and drops the subscription.
func (b *Broadcaster) Subscribe(executionID string) (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextToken++
	token := b.nextToken

	if b.subscribers[executionID] == nil {
		b.subscribers[executionID] = make(map[int]chan Snapshot)
	}

	ch := make(chan Snapshot, subscriberBuffer)
	b.subscribers[executionID][token] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if subs, ok := b.subscribers[executionID]; ok {
			if sub, ok := subs[token]; ok {
				delete(subs, token)
				close(sub)
			}

			if len(subs) == 0 {
				delete(b.subscribers, executionID)
			}
		}
	}

	return ch, cancel
}

// Publish fans a snapshot of the execution out to local subscribers and the
// event bus.
func (b *Broadcaster) Publish(ctx context.Context, execution *models.Execution) {
	snapshot := FromExecution(execution)

	b.deliver(snapshot)

	if b.bus == nil {
		return
	}

	event := events.StatusSnapshot{
		BaseEvent:   events.NewBaseEvent(events.StatusSnapshotEvent, execution.GraphID),
		ExecutionID: snapshot.ExecutionID,
		Status:      snapshot.Status,
		NodeResults: snapshot.NodeResults,
		Jobs:        snapshot.Jobs,
		Error:       snapshot.Error,
		UpdatedAt:   snapshot.UpdatedAt,
	}

	if err := b.bus.Publish(ctx, snapshot.ExecutionID, event); err != nil {
		b.logger.WarnContext(ctx, "Failed to publish status snapshot",
			"execution_id", snapshot.ExecutionID, "error", err)
	}
}

// PublishSnapshot delivers an already built snapshot to local subscribers.
// Used by the reconciler, which constructs snapshots from storage.
func (b *Broadcaster) PublishSnapshot(snapshot Snapshot) {
	b.deliver(snapshot)
}

func (b *Broadcaster) deliver(snapshot Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers[snapshot.ExecutionID] {
		select {
		case sub <- snapshot:
		default:
			// Subscriber is lagging; it reconciles from storage later.
		}
	}
}

// SubscriberCount reports the live subscriptions for an execution.
func (b *Broadcaster) SubscriberCount(executionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subscribers[executionID])
}
