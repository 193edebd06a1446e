package execution

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflow/genflow/pkg/jobqueue"
	"github.com/genflow/genflow/pkg/jobqueue/deadletter"
	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/persistence/file"
	"github.com/genflow/genflow/pkg/provider"
	"github.com/genflow/genflow/pkg/providers/static"
	"github.com/genflow/genflow/pkg/registry"
	"github.com/genflow/genflow/pkg/status"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stallFactory counts provider submissions and never finishes, so tests can
// observe dispatch behavior while a node's work stays outstanding.
type stallFactory struct {
	capability string

	mu      sync.Mutex
	submits int
}

func (f *stallFactory) Create(_ context.Context, _ map[string]any) (provider.Adapter, error) {
	return &stallAdapter{factory: f}, nil
}

func (f *stallFactory) Capability() string  { return f.capability }
func (f *stallFactory) Name() string        { return "Stall" }
func (f *stallFactory) Description() string { return "Counts submissions, never finishes" }

func (f *stallFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (f *stallFactory) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.submits
}

type stallAdapter struct {
	factory *stallFactory
}

func (a *stallAdapter) Capability() string { return a.factory.capability }

func (a *stallAdapter) Submit(_ context.Context, _ provider.SubmitRequest) (provider.Handle, error) {
	a.factory.mu.Lock()
	a.factory.submits++
	a.factory.mu.Unlock()

	return provider.Handle{ID: uuid.New().String(), Capability: a.factory.capability}, nil
}

func (a *stallAdapter) CheckStatus(ctx context.Context, _ provider.Handle) (provider.StatusUpdate, error) {
	if ctx.Err() != nil {
		return provider.StatusUpdate{}, ctx.Err()
	}

	return provider.StatusUpdate{Status: provider.StatusProcessing, Progress: 10}, nil
}

func (a *stallAdapter) Cancel(_ context.Context, _ provider.Handle) error { return nil }

// startStalledRun starts prompt -> render where render never finishes, and
// waits until render's provider work is outstanding.
func startStalledRun(t *testing.T) (*Orchestrator, *stallFactory, string) {
	t.Helper()

	logger := discardLogger()

	stall := &stallFactory{capability: models.CapabilityImageGenerate}

	reg := registry.NewRegistry(logger)
	reg.RegisterProvider(static.NewInputFactory())
	reg.RegisterProvider(stall)

	queue := jobqueue.NewQueue(jobqueue.Config{
		DefaultLimit: 4,
		Retry:        jobqueue.RetryPolicy{MaxAttempts: 1},
	}, deadletter.NewMemoryStore(), logger)

	store := file.NewPersistence(t.TempDir())

	o := NewOrchestrator(Config{
		Logger:       logger,
		Registry:     reg,
		Queue:        queue,
		Persistence:  store,
		Broadcaster:  status.NewBroadcaster(nil, logger),
		WorkerID:     "worker-test",
		PollInterval: time.Millisecond,
	})

	t.Cleanup(func() {
		o.Close()
		queue.Stop()
	})

	now := time.Now().UTC()
	g := &models.Graph{
		ID:     uuid.New().String(),
		Name:   "stalled render",
		Status: models.GraphStatusPublished,
		Nodes: []*models.Node{
			{ID: "prompt", Kind: models.NodeKindInput, Capability: models.CapabilityStaticInput, Name: "Prompt", Enabled: true, Config: map[string]any{"value": "a lighthouse"}},
			{ID: "render", Kind: models.NodeKindGenerator, Capability: models.CapabilityImageGenerate, Name: "Render", Enabled: true, Config: map[string]any{}},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourcePort: "prompt:out", TargetPort: "render:prompt"},
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
	}
	require.NoError(t, store.GraphRepository().Save(context.Background(), g))

	started, err := o.Start(context.Background(), g.ID, StartOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return stall.submitted() == 1
	}, 5*time.Second, 5*time.Millisecond, "render never reached the provider")

	return o, stall, started.ID
}

func TestTickWithoutStateChangeDispatchesNothing(t *testing.T) {
	o, stall, executionID := startStalledRun(t)

	o.mu.Lock()
	r := o.runs[executionID]
	o.mu.Unlock()
	require.NotNil(t, r)

	r.mu.Lock()
	o.tick(r)
	o.tick(r)
	r.mu.Unlock()

	// Give the queue a beat to surface any extra dispatch.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, stall.submitted(), "repeated ticks must not re-dispatch outstanding nodes")

	r.mu.Lock()
	live := r.execution.LiveJobForNode("render")
	r.mu.Unlock()
	require.NotNil(t, live)
}

func TestReplayedTerminalUpdateIsAppliedOnce(t *testing.T) {
	o, stall, executionID := startStalledRun(t)

	o.mu.Lock()
	r := o.runs[executionID]
	o.mu.Unlock()
	require.NotNil(t, r)

	// Prompt's job already terminated and was folded into its result.
	r.mu.Lock()

	var promptJobID string
	for id := range r.consumed {
		promptJobID = id
	}

	promptOutput := r.execution.NodeResults["prompt"].Output
	r.mu.Unlock()
	require.NotEmpty(t, promptJobID)

	o.applyJobUpdate(models.Job{
		ID:          promptJobID,
		ExecutionID: executionID,
		NodeID:      "prompt",
		Capability:  models.CapabilityStaticInput,
		Status:      models.JobStatusSucceeded,
		Output:      map[string]any{"value": "replayed"},
	})

	time.Sleep(50 * time.Millisecond)

	r.mu.Lock()
	assert.Equal(t, promptOutput, r.execution.NodeResults["prompt"].Output,
		"a replayed terminal update must not rewrite the folded result")
	r.mu.Unlock()

	assert.Equal(t, 1, stall.submitted(), "a replayed terminal update must not trigger a new dispatch")
}

var _ provider.Factory = (*stallFactory)(nil)
