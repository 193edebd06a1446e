package status_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/persistence/file"
	"github.com/genflow/genflow/pkg/status"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func runningExecution(id string) *models.Execution {
	execution := models.NewExecution(id, "g-1")
	execution.Status = models.ExecutionStatusRunning

	result := execution.Result("image")
	result.Status = models.NodeStatusProcessing

	return execution
}

func TestSnapshotIsDetachedFromExecution(t *testing.T) {
	execution := runningExecution("exec-1")

	snapshot := status.FromExecution(execution)

	execution.Status = models.ExecutionStatusFailed
	execution.Result("image").Status = models.NodeStatusError

	assert.Equal(t, models.ExecutionStatusRunning, snapshot.Status)
	assert.Equal(t, models.NodeStatusProcessing, snapshot.NodeResults["image"].Status)
}

func TestSnapshotProgress(t *testing.T) {
	execution := runningExecution("exec-1")
	execution.Result("image").Status = models.NodeStatusComplete
	execution.Result("video").Status = models.NodeStatusProcessing
	execution.Result("deliver")

	completed, total := status.FromExecution(execution).Progress()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 3, total)
}

func TestBroadcasterDeliversToSubscribers(t *testing.T) {
	b := status.NewBroadcaster(nil, discardLogger())

	ch, cancel := b.Subscribe("exec-1")
	defer cancel()

	other, cancelOther := b.Subscribe("exec-2")
	defer cancelOther()

	b.Publish(context.Background(), runningExecution("exec-1"))

	select {
	case snapshot := <-ch:
		assert.Equal(t, "exec-1", snapshot.ExecutionID)
		assert.Equal(t, models.ExecutionStatusRunning, snapshot.Status)
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot")
	}

	select {
	case <-other:
		t.Fatal("subscriber for another execution must not receive the snapshot")
	default:
	}
}

func TestBroadcasterCancelStopsDelivery(t *testing.T) {
	b := status.NewBroadcaster(nil, discardLogger())

	ch, cancel := b.Subscribe("exec-1")
	require.Equal(t, 1, b.SubscriberCount("exec-1"))

	cancel()
	assert.Equal(t, 0, b.SubscriberCount("exec-1"))

	// Channel is closed after cancel.
	_, open := <-ch
	assert.False(t, open)

	// Publishing afterwards must not panic.
	b.Publish(context.Background(), runningExecution("exec-1"))
}

func TestBroadcasterDropsWhenSubscriberLags(t *testing.T) {
	b := status.NewBroadcaster(nil, discardLogger())

	_, cancel := b.Subscribe("exec-1")
	defer cancel()

	// Far beyond the buffer; delivery must never block.
	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := 0; i < 500; i++ {
			b.Publish(context.Background(), runningExecution("exec-1"))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a lagging subscriber")
	}
}

func TestReconcilerConvergesOnStoredState(t *testing.T) {
	ctx := context.Background()
	repo := file.NewPersistence(t.TempDir()).ExecutionRepository()

	execution := runningExecution("exec-1")
	require.NoError(t, repo.Save(ctx, execution))

	b := status.NewBroadcaster(nil, discardLogger())
	r := status.NewReconciler(repo, b, time.Hour, discardLogger())

	ch, cancel := b.Subscribe("exec-1")
	defer cancel()

	r.Track("exec-1")
	r.ReconcileAll(ctx)

	select {
	case snapshot := <-ch:
		assert.Equal(t, models.ExecutionStatusRunning, snapshot.Status)
	case <-time.After(time.Second):
		t.Fatal("expected initial snapshot from reconciliation")
	}

	// Nothing changed: a second pass stays quiet.
	r.ReconcileAll(ctx)

	select {
	case <-ch:
		t.Fatal("unchanged state must not be republished")
	default:
	}

	// The store moves on while push updates were lost entirely. The
	// reconciler surfaces the stored truth.
	execution.Status = models.ExecutionStatusCompleted
	execution.Result("image").Status = models.NodeStatusComplete
	require.NoError(t, repo.Save(ctx, execution))

	r.ReconcileAll(ctx)

	select {
	case snapshot := <-ch:
		assert.Equal(t, models.ExecutionStatusCompleted, snapshot.Status)
		assert.Equal(t, models.NodeStatusComplete, snapshot.NodeResults["image"].Status)
	case <-time.After(time.Second):
		t.Fatal("expected reconciled snapshot after store change")
	}
}

func TestReconcilerUntracksDeliveredTerminalExecutions(t *testing.T) {
	ctx := context.Background()
	repo := file.NewPersistence(t.TempDir()).ExecutionRepository()

	execution := runningExecution("exec-1")
	execution.Status = models.ExecutionStatusCompleted
	require.NoError(t, repo.Save(ctx, execution))

	b := status.NewBroadcaster(nil, discardLogger())
	r := status.NewReconciler(repo, b, time.Hour, discardLogger())

	ch, cancel := b.Subscribe("exec-1")
	defer cancel()

	r.Track("exec-1")

	// First pass delivers the terminal snapshot, second pass notices it is
	// unchanged and drops tracking.
	r.ReconcileAll(ctx)
	<-ch
	r.ReconcileAll(ctx)

	execution.ErrorMessage = "should never be seen"
	require.NoError(t, repo.Save(ctx, execution))

	r.ReconcileAll(ctx)

	select {
	case <-ch:
		t.Fatal("untracked execution must not be reconciled")
	default:
	}
}

func TestReconcilerUntracksMissingExecutions(t *testing.T) {
	ctx := context.Background()
	repo := file.NewPersistence(t.TempDir()).ExecutionRepository()

	b := status.NewBroadcaster(nil, discardLogger())
	r := status.NewReconciler(repo, b, time.Hour, discardLogger())

	r.Track("ghost")
	r.ReconcileAll(ctx)
	// No panic, no snapshot; the ghost is forgotten.
}

func TestReconcileReplacesLocalViewWholesale(t *testing.T) {
	local := status.Snapshot{
		ExecutionID: "exec-1",
		GraphID:     "g-1",
		Status:      models.ExecutionStatusRunning,
		NodeResults: map[string]*models.NodeResult{
			"image": {NodeID: "image", Status: models.NodeStatusError, Error: "stale push delta"},
		},
	}

	authoritative := status.Snapshot{
		ExecutionID: "exec-1",
		GraphID:     "g-1",
		Status:      models.ExecutionStatusCompleted,
		NodeResults: map[string]*models.NodeResult{
			"image": {NodeID: "image", Status: models.NodeStatusComplete},
		},
	}

	merged := status.Reconcile(local, authoritative)

	assert.Equal(t, models.ExecutionStatusCompleted, merged.Status)
	assert.Equal(t, models.NodeStatusComplete, merged.NodeResults["image"].Status)
	assert.Empty(t, merged.NodeResults["image"].Error)
}

func TestReconcileBackfillsIdentityFromLocal(t *testing.T) {
	local := status.Snapshot{ExecutionID: "exec-1", GraphID: "g-1"}
	authoritative := status.Snapshot{Status: models.ExecutionStatusRunning}

	merged := status.Reconcile(local, authoritative)

	assert.Equal(t, "exec-1", merged.ExecutionID)
	assert.Equal(t, "g-1", merged.GraphID)
}
