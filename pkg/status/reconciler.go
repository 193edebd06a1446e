package status

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/genflow/genflow/pkg/persistence"
)

const defaultReconcileInterval = 5 * time.Second

// Reconciler periodically reads tracked executions from storage and
// republishes their state. Push delivery is lossy; the persisted execution
// is authoritative, so observers converge on it even when push updates were
// dropped.
type Reconciler struct {
	repo        persistence.ExecutionRepository
	broadcaster *Broadcaster
	interval    time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	tracked  map[string]struct{}
	lastSeen map[string][32]byte
}

func NewReconciler(repo persistence.ExecutionRepository, broadcaster *Broadcaster, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}

	return &Reconciler{
		repo:        repo,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      logger.With("module", "status_reconciler"),
		tracked:     make(map[string]struct{}),
		lastSeen:    make(map[string][32]byte),
	}
}

// Track adds an execution to the reconcile set.
func (r *Reconciler) Track(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracked[executionID] = struct{}{}
}

// Untrack drops an execution from the reconcile set.
func (r *Reconciler) Untrack(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tracked, executionID)
	delete(r.lastSeen, executionID)
}

// Run reconciles on the configured interval until the context ends.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileAll(ctx)
		}
	}
}

// ReconcileAll runs one reconcile pass over every tracked execution.
// Exported so callers can force a pass, e.g. right after a subscriber
// attaches.
func (r *Reconciler) ReconcileAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.tracked))

	for id := range r.tracked {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.reconcile(ctx, id)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, executionID string) {
	execution, err := r.repo.GetByID(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			r.Untrack(executionID)

			return
		}

		r.logger.WarnContext(ctx, "Failed to load execution for reconciliation",
			"execution_id", executionID, "error", err)

		return
	}

	snapshot := FromExecution(execution)

	digest, err := fingerprint(snapshot)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to fingerprint snapshot",
			"execution_id", executionID, "error", err)

		return
	}

	r.mu.Lock()
	unchanged := r.lastSeen[executionID] == digest
	r.lastSeen[executionID] = digest
	terminal := execution.Status.IsTerminal()
	r.mu.Unlock()

	if unchanged {
		if terminal {
			// Terminal state has been delivered at least once; stop polling.
			r.Untrack(executionID)
		}

		return
	}

	r.broadcaster.PublishSnapshot(snapshot)
}

// Reconcile merges an observer's local view with the authoritative record.
// Node results and jobs are replaced wholesale, so stale local errors cannot
// survive a reconciliation pass.
func Reconcile(local, authoritative Snapshot) Snapshot {
	merged := authoritative

	if merged.ExecutionID == "" {
		merged.ExecutionID = local.ExecutionID
	}

	if merged.GraphID == "" {
		merged.GraphID = local.GraphID
	}

	return merged
}

// fingerprint hashes the state-bearing fields of a snapshot. UpdatedAt is
// excluded so rebuilding an identical snapshot does not count as a change.
func fingerprint(snapshot Snapshot) ([32]byte, error) {
	snapshot.UpdatedAt = time.Time{}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return [32]byte{}, err
	}

	return sha256.Sum256(payload), nil
}
