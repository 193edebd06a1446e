package execution_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflow/genflow/pkg/execution"
	"github.com/genflow/genflow/pkg/jobqueue"
	"github.com/genflow/genflow/pkg/jobqueue/deadletter"
	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/persistence"
	"github.com/genflow/genflow/pkg/persistence/file"
	"github.com/genflow/genflow/pkg/provider"
	"github.com/genflow/genflow/pkg/providers/static"
	"github.com/genflow/genflow/pkg/registry"
	"github.com/genflow/genflow/pkg/status"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	orchestrator *execution.Orchestrator
	persistence  persistence.Persistence
	queue        *jobqueue.Queue
	registry     *registry.Registry
	broadcaster  *status.Broadcaster
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := testLogger()

	reg := registry.NewRegistry(logger)
	reg.RegisterProvider(static.NewInputFactory())
	reg.RegisterProvider(static.NewFactory(models.CapabilityImageGenerate))
	reg.RegisterProvider(static.NewFactory(models.CapabilityTextGenerate))
	reg.RegisterProvider(static.NewFactory(models.CapabilityTransform))
	reg.RegisterProvider(static.NewFactory(models.CapabilityWebhookDelivery))

	queue := jobqueue.NewQueue(jobqueue.Config{
		DefaultLimit: 4,
		Retry:        jobqueue.RetryPolicy{MaxAttempts: 1},
	}, deadletter.NewMemoryStore(), logger)

	store := file.NewPersistence(t.TempDir())
	broadcaster := status.NewBroadcaster(nil, logger)

	orchestrator := execution.NewOrchestrator(execution.Config{
		Logger:          logger,
		Registry:        reg,
		Queue:           queue,
		Persistence:     store,
		Broadcaster:     broadcaster,
		WorkerID:        "worker-test",
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 2000,
	})

	t.Cleanup(func() {
		orchestrator.Close()
		queue.Stop()
	})

	return &harness{
		orchestrator: orchestrator,
		persistence:  store,
		queue:        queue,
		registry:     reg,
		broadcaster:  broadcaster,
	}
}

// diamondGraph is prompt -> (render, caption) -> merge.
func diamondGraph() *models.Graph {
	now := time.Now().UTC()

	return &models.Graph{
		ID:     uuid.New().String(),
		Name:   "diamond pipeline",
		Status: models.GraphStatusPublished,
		Nodes: []*models.Node{
			{ID: "prompt", Kind: models.NodeKindInput, Capability: models.CapabilityStaticInput, Name: "Prompt", Enabled: true, Config: map[string]any{"value": "a lighthouse at dusk"}},
			{ID: "render", Kind: models.NodeKindGenerator, Capability: models.CapabilityImageGenerate, Name: "Render", Enabled: true, Config: map[string]any{}},
			{ID: "caption", Kind: models.NodeKindGenerator, Capability: models.CapabilityTextGenerate, Name: "Caption", Enabled: true, Config: map[string]any{}},
			{ID: "merge", Kind: models.NodeKindTransform, Capability: models.CapabilityTransform, Name: "Merge", Enabled: true, Config: map[string]any{}},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourcePort: "prompt:out", TargetPort: "render:prompt"},
			{ID: "e2", SourcePort: "prompt:out", TargetPort: "caption:prompt"},
			{ID: "e3", SourcePort: "render:out", TargetPort: "merge:image"},
			{ID: "e4", SourcePort: "caption:out", TargetPort: "merge:text"},
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
	}
}

func saveGraph(t *testing.T, h *harness, g *models.Graph) {
	t.Helper()
	require.NoError(t, h.persistence.GraphRepository().Save(context.Background(), g))
}

func waitForTerminal(t *testing.T, h *harness, executionID string) *models.Execution {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		current, err := h.orchestrator.Execution(context.Background(), executionID)
		require.NoError(t, err)

		if current.Status.IsTerminal() {
			return current
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("execution %s never reached a terminal state", executionID)

	return nil
}

func TestOrchestratorRunsGraphToCompletion(t *testing.T) {
	h := newHarness(t)
	g := diamondGraph()
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, started.Status)
	require.NotNil(t, started.StartedAt)

	final := waitForTerminal(t, h, started.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.Empty(t, final.Jobs)

	for _, nodeID := range []string{"prompt", "render", "caption", "merge"} {
		result := final.NodeResults[nodeID]
		require.NotNil(t, result, "missing result for %s", nodeID)
		assert.Equal(t, models.NodeStatusComplete, result.Status)
		assert.True(t, result.Propagated)
	}

	// Dependency outputs arrive keyed by the input port name.
	merge := final.NodeResults["merge"]
	assert.Contains(t, merge.Output, "image")
	assert.Contains(t, merge.Output, "text")

	stored, err := h.persistence.ExecutionRepository().GetByID(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
}

func TestOrchestratorScopesRunToTargetAncestors(t *testing.T) {
	h := newHarness(t)
	g := diamondGraph()
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{
		TargetNodes: []string{"render"},
	})
	require.NoError(t, err)

	final := waitForTerminal(t, h, started.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)

	assert.Equal(t, models.NodeStatusComplete, final.NodeResults["prompt"].Status)
	assert.Equal(t, models.NodeStatusComplete, final.NodeResults["render"].Status)
	assert.NotContains(t, final.NodeResults, "caption")
	assert.NotContains(t, final.NodeResults, "merge")
}

func TestOrchestratorRejectsUnknownTargetNode(t *testing.T) {
	h := newHarness(t)
	g := diamondGraph()
	saveGraph(t, h, g)

	_, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{
		TargetNodes: []string{"nope"},
	})

	var validationErr *execution.ValidationError

	require.ErrorAs(t, err, &validationErr)
}

func TestOrchestratorRejectsUnpublishedGraph(t *testing.T) {
	h := newHarness(t)
	g := diamondGraph()
	g.Status = models.GraphStatusDraft
	g.PublishedAt = nil
	saveGraph(t, h, g)

	_, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
	require.ErrorIs(t, err, execution.ErrGraphNotExecutable)
}

func TestOrchestratorFailedBranchDoesNotStopIndependentWork(t *testing.T) {
	h := newHarness(t)
	g := diamondGraph()
	g.NodeByID("caption").Config["fail_with"] = "model unavailable"
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
	require.NoError(t, err)

	final := waitForTerminal(t, h, started.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Equal(t, "caption", final.LastFailedNodeID)
	assert.Contains(t, final.ErrorMessage, "model unavailable")

	// The independent branch ran to completion before the run was declared
	// failed; only the blocked dependent stays idle.
	assert.Equal(t, models.NodeStatusComplete, final.NodeResults["render"].Status)
	assert.Equal(t, models.NodeStatusError, final.NodeResults["caption"].Status)
	assert.Equal(t, models.NodeStatusIdle, final.NodeResults["merge"].Status)
}

func TestOrchestratorResumePreservesCompletedResults(t *testing.T) {
	h := newHarness(t)
	g := diamondGraph()
	g.NodeByID("caption").Config["fail_with"] = "model unavailable"
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
	require.NoError(t, err)

	failed := waitForTerminal(t, h, started.ID)
	require.Equal(t, models.ExecutionStatusFailed, failed.Status)

	renderFinishedAt := failed.NodeResults["render"].FinishedAt
	require.NotNil(t, renderFinishedAt)

	// Operator fixes the graph, then resumes.
	delete(g.NodeByID("caption").Config, "fail_with")
	saveGraph(t, h, g)

	resumed, err := h.orchestrator.Resume(context.Background(), started.ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, resumed.Status)
	assert.Equal(t, models.NodeStatusIdle, resumed.NodeResults["caption"].Status)

	final := waitForTerminal(t, h, started.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Empty(t, final.LastFailedNodeID)

	// Completed work is reused, not re-executed.
	require.NotNil(t, final.NodeResults["render"].FinishedAt)
	assert.Equal(t, renderFinishedAt.UnixNano(), final.NodeResults["render"].FinishedAt.UnixNano())
	assert.Equal(t, models.NodeStatusComplete, final.NodeResults["merge"].Status)
}

func TestOrchestratorResumeRequiresFailedExecution(t *testing.T) {
	h := newHarness(t)
	g := diamondGraph()
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
	require.NoError(t, err)

	waitForTerminal(t, h, started.ID)

	_, err = h.orchestrator.Resume(context.Background(), started.ID, "operator")
	require.ErrorIs(t, err, execution.ErrExecutionNotResumable)
}

func TestOrchestratorDebugShortCircuitsGenerators(t *testing.T) {
	h := newHarness(t)
	g := diamondGraph()
	g.Status = models.GraphStatusDraft
	g.PublishedAt = nil
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{Debug: true})
	require.NoError(t, err)
	assert.True(t, started.Debug)

	final := waitForTerminal(t, h, started.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)

	render := final.NodeResults["render"]
	assert.Equal(t, models.NodeStatusComplete, render.Status)
	assert.Equal(t, true, render.Output["debug"])
	require.NotNil(t, render.DebugPayload)
	assert.Equal(t, started.ID, render.DebugPayload["execution_id"])
	assert.Equal(t, "render", render.DebugPayload["node_id"])

	// Non-generator nodes still run for real in debug mode.
	assert.Nil(t, final.NodeResults["prompt"].DebugPayload)
	assert.NotContains(t, final.NodeResults["prompt"].Output, "debug")
}

func TestOrchestratorDisabledNodeCompletesWithEmptyOutput(t *testing.T) {
	h := newHarness(t)
	g := diamondGraph()
	g.NodeByID("caption").Enabled = false
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
	require.NoError(t, err)

	final := waitForTerminal(t, h, started.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)

	caption := final.NodeResults["caption"]
	assert.Equal(t, models.NodeStatusComplete, caption.Status)
	assert.Empty(t, caption.Output)
	assert.Equal(t, models.NodeStatusComplete, final.NodeResults["merge"].Status)
}

func TestOrchestratorCancelStopsLiveWork(t *testing.T) {
	h := newHarness(t)

	hanging := newHangingFactory(models.CapabilityVideoGenerate)
	h.registry.RegisterProvider(hanging)

	now := time.Now().UTC()
	g := &models.Graph{
		ID:     uuid.New().String(),
		Name:   "long running render",
		Status: models.GraphStatusPublished,
		Nodes: []*models.Node{
			{ID: "clip", Kind: models.NodeKindGenerator, Capability: models.CapabilityVideoGenerate, Name: "Clip", Enabled: true, Config: map[string]any{}},
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
	}
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hanging.submitted() > 0
	}, 5*time.Second, 5*time.Millisecond, "provider work never started")

	require.NoError(t, h.orchestrator.Cancel(context.Background(), started.ID, "operator abort", "operator"))

	final := waitForTerminal(t, h, started.ID)
	assert.Equal(t, models.ExecutionStatusCancelled, final.Status)
	assert.Equal(t, "operator abort", final.ErrorMessage)
	require.NotNil(t, final.CompletedAt)

	assert.Eventually(t, func() bool {
		return hanging.cancelled() > 0
	}, time.Second, 5*time.Millisecond, "provider never saw the cancel")

	// A second cancel finds nothing active.
	err = h.orchestrator.Cancel(context.Background(), started.ID, "again", "operator")
	require.ErrorIs(t, err, execution.ErrExecutionNotActive)
}

func TestOrchestratorStatusSubscribersSeeTerminalSnapshot(t *testing.T) {
	h := newHarness(t)

	hanging := newHangingFactory(models.CapabilityVideoGenerate)
	h.registry.RegisterProvider(hanging)

	now := time.Now().UTC()
	g := &models.Graph{
		ID:     uuid.New().String(),
		Name:   "watched render",
		Status: models.GraphStatusPublished,
		Nodes: []*models.Node{
			{ID: "clip", Kind: models.NodeKindGenerator, Capability: models.CapabilityVideoGenerate, Name: "Clip", Enabled: true, Config: map[string]any{}},
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
	}
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
	require.NoError(t, err)

	// The hanging node keeps the run alive, so this subscription is in
	// place before any terminal snapshot can be published.
	updates, cancel := h.broadcaster.Subscribe(started.ID)
	defer cancel()

	require.NoError(t, h.orchestrator.Cancel(context.Background(), started.ID, "done watching", "operator"))

	deadline := time.After(5 * time.Second)

	for {
		select {
		case snapshot := <-updates:
			if snapshot.Status == models.ExecutionStatusCancelled {
				assert.Equal(t, started.ID, snapshot.ExecutionID)
				assert.Equal(t, "done watching", snapshot.Error)

				return
			}
		case <-deadline:
			t.Fatal("no terminal snapshot observed")
		}
	}
}

func TestOrchestratorStartReturnsOnWideFanOut(t *testing.T) {
	logger := testLogger()

	reg := registry.NewRegistry(logger)
	reg.RegisterProvider(static.NewInputFactory())

	queue := jobqueue.NewQueue(jobqueue.Config{
		Capabilities: map[string]int{models.CapabilityStaticInput: 8},
		Retry:        jobqueue.RetryPolicy{MaxAttempts: 1},
		QueueDepth:   4096,
	}, deadletter.NewMemoryStore(), logger)

	store := file.NewPersistence(t.TempDir())

	orchestrator := execution.NewOrchestrator(execution.Config{
		Logger:       logger,
		Registry:     reg,
		Queue:        queue,
		Persistence:  store,
		Broadcaster:  status.NewBroadcaster(nil, logger),
		WorkerID:     "worker-test",
		PollInterval: time.Millisecond,
	})

	t.Cleanup(func() {
		orchestrator.Close()
		queue.Stop()
	})

	// Wide enough that the dispatch loop emits far more job updates than any
	// fixed buffer would hold before Start returns.
	const width = 1100

	now := time.Now().UTC()
	g := &models.Graph{
		ID:          uuid.New().String(),
		Name:        "wide fan-out",
		Status:      models.GraphStatusPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
	}

	for i := 0; i < width; i++ {
		g.Nodes = append(g.Nodes, &models.Node{
			ID:         fmt.Sprintf("input-%04d", i),
			Kind:       models.NodeKindInput,
			Capability: models.CapabilityStaticInput,
			Name:       "Input",
			Enabled:    true,
			Config:     map[string]any{"value": fmt.Sprintf("seed-%d", i)},
		})
	}

	require.NoError(t, store.GraphRepository().Save(context.Background(), g))

	started := make(chan *models.Execution, 1)
	failed := make(chan error, 1)

	go func() {
		current, err := orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
		if err != nil {
			failed <- err

			return
		}

		started <- current
	}()

	var executionID string

	select {
	case current := <-started:
		executionID = current.ID
	case err := <-failed:
		t.Fatalf("start failed: %v", err)
	case <-time.After(30 * time.Second):
		t.Fatal("Start did not return; wide dispatch wedged the update loop")
	}

	deadline := time.Now().Add(60 * time.Second)

	for {
		current, err := orchestrator.Execution(context.Background(), executionID)
		require.NoError(t, err)

		if current.Status.IsTerminal() {
			assert.Equal(t, models.ExecutionStatusCompleted, current.Status)
			assert.Empty(t, current.Jobs)

			return
		}

		if time.Now().After(deadline) {
			t.Fatalf("execution stuck in %s", current.Status)
		}

		time.Sleep(20 * time.Millisecond)
	}
}

func TestOrchestratorResumeRetriesEveryFailedBranch(t *testing.T) {
	h := newHarness(t)

	now := time.Now().UTC()
	g := &models.Graph{
		ID:     uuid.New().String(),
		Name:   "parallel inputs",
		Status: models.GraphStatusPublished,
		Nodes: []*models.Node{
			{ID: "a", Kind: models.NodeKindInput, Capability: models.CapabilityStaticInput, Name: "A", Enabled: true, Config: map[string]any{"value": "fresh-a"}},
			{ID: "b", Kind: models.NodeKindInput, Capability: models.CapabilityStaticInput, Name: "B", Enabled: true, Config: map[string]any{"value": "fresh-b"}},
			{ID: "c", Kind: models.NodeKindInput, Capability: models.CapabilityStaticInput, Name: "C", Enabled: true, Config: map[string]any{"value": "fresh-c"}},
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
	}
	saveGraph(t, h, g)

	// A previous run left two failed branches and one finished one behind.
	record := models.NewExecution(uuid.New().String(), g.ID)
	record.Status = models.ExecutionStatusFailed
	record.StartedAt = &now
	record.CompletedAt = &now
	record.LastFailedNodeID = "c"
	record.ErrorMessage = "provider quota exhausted"
	record.NodeResults = map[string]*models.NodeResult{
		"a": {NodeID: "a", Status: models.NodeStatusComplete, Output: map[string]any{"value": "preserved-a"}, Propagated: true, StartedAt: &now, FinishedAt: &now},
		"b": {NodeID: "b", Status: models.NodeStatusError, Error: "provider quota exhausted"},
		"c": {NodeID: "c", Status: models.NodeStatusError, Error: "provider quota exhausted"},
	}
	require.NoError(t, h.persistence.ExecutionRepository().Save(context.Background(), record))

	resumed, err := h.orchestrator.Resume(context.Background(), record.ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, resumed.Status)

	final := waitForTerminal(t, h, record.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)

	// Every failed branch ran again, not only the recorded last failure.
	assert.Equal(t, models.NodeStatusComplete, final.NodeResults["b"].Status)
	assert.Equal(t, "fresh-b", final.NodeResults["b"].Output["value"])
	assert.Equal(t, models.NodeStatusComplete, final.NodeResults["c"].Status)
	assert.Equal(t, "fresh-c", final.NodeResults["c"].Output["value"])

	// Completed work is reused verbatim.
	assert.Equal(t, "preserved-a", final.NodeResults["a"].Output["value"])
}

func TestOrchestratorTracksAtMostOneLiveJobPerNode(t *testing.T) {
	h := newHarness(t)

	hanging := newHangingFactory(models.CapabilityVideoGenerate)
	h.registry.RegisterProvider(hanging)

	now := time.Now().UTC()
	g := &models.Graph{
		ID:     uuid.New().String(),
		Name:   "parallel clips",
		Status: models.GraphStatusPublished,
		Nodes: []*models.Node{
			{ID: "clip-1", Kind: models.NodeKindGenerator, Capability: models.CapabilityVideoGenerate, Name: "Clip 1", Enabled: true, Config: map[string]any{}},
			{ID: "clip-2", Kind: models.NodeKindGenerator, Capability: models.CapabilityVideoGenerate, Name: "Clip 2", Enabled: true, Config: map[string]any{}},
			{ID: "clip-3", Kind: models.NodeKindGenerator, Capability: models.CapabilityVideoGenerate, Name: "Clip 3", Enabled: true, Config: map[string]any{}},
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
	}
	saveGraph(t, h, g)

	started, err := h.orchestrator.Start(context.Background(), g.ID, execution.StartOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hanging.submitted() == 3
	}, 5*time.Second, 5*time.Millisecond, "provider work never started")

	// Sample the live view while all three nodes have outstanding work.
	for i := 0; i < 20; i++ {
		current, err := h.orchestrator.Execution(context.Background(), started.ID)
		require.NoError(t, err)

		perNode := make(map[string]int)

		for _, job := range current.Jobs {
			if !job.Status.IsTerminal() {
				perNode[job.NodeID]++
			}
		}

		for nodeID, live := range perNode {
			require.LessOrEqual(t, live, 1, "node %s has %d live jobs", nodeID, live)
		}

		time.Sleep(2 * time.Millisecond)
	}

	require.NoError(t, h.orchestrator.Cancel(context.Background(), started.ID, "done sampling", "operator"))
}

// hangingFactory serves an adapter that reports processing forever, for
// cancellation tests.
type hangingFactory struct {
	capability string

	mu      sync.Mutex
	submits int
	cancels int
}

func newHangingFactory(capability string) *hangingFactory {
	return &hangingFactory{capability: capability}
}

func (f *hangingFactory) Create(_ context.Context, _ map[string]any) (provider.Adapter, error) {
	return &hangingAdapter{factory: f}, nil
}

func (f *hangingFactory) Capability() string  { return f.capability }
func (f *hangingFactory) Name() string        { return "Hanging" }
func (f *hangingFactory) Description() string { return "Never finishes" }

func (f *hangingFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (f *hangingFactory) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.submits
}

func (f *hangingFactory) cancelled() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.cancels
}

type hangingAdapter struct {
	factory *hangingFactory
}

func (a *hangingAdapter) Capability() string { return a.factory.capability }

func (a *hangingAdapter) Submit(_ context.Context, _ provider.SubmitRequest) (provider.Handle, error) {
	a.factory.mu.Lock()
	a.factory.submits++
	a.factory.mu.Unlock()

	return provider.Handle{ID: uuid.New().String(), Capability: a.factory.capability}, nil
}

func (a *hangingAdapter) CheckStatus(ctx context.Context, _ provider.Handle) (provider.StatusUpdate, error) {
	if ctx.Err() != nil {
		return provider.StatusUpdate{}, ctx.Err()
	}

	return provider.StatusUpdate{Status: provider.StatusProcessing, Progress: 10}, nil
}

func (a *hangingAdapter) Cancel(_ context.Context, _ provider.Handle) error {
	a.factory.mu.Lock()
	a.factory.cancels++
	a.factory.mu.Unlock()

	return nil
}

var _ provider.Factory = (*hangingFactory)(nil)
