// Package execution implements the orchestrator that drives one graph run
// from dispatch through completion, resume, and cancellation.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/genflow/genflow/pkg/eventbus"
	"github.com/genflow/genflow/pkg/events"
	"github.com/genflow/genflow/pkg/graph"
	"github.com/genflow/genflow/pkg/jobqueue"
	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/otelhelper"
	"github.com/genflow/genflow/pkg/persistence"
	"github.com/genflow/genflow/pkg/poller"
	"github.com/genflow/genflow/pkg/provider"
	"github.com/genflow/genflow/pkg/registry"
	"github.com/genflow/genflow/pkg/status"
)

// Config wires the orchestrator's collaborators.
type Config struct {
	Logger      *slog.Logger
	Registry    *registry.Registry
	Queue       *jobqueue.Queue
	Persistence persistence.Persistence
	Broadcaster *status.Broadcaster

	// Bus is optional; without it lifecycle events stay local.
	Bus eventbus.EventPublisher

	// Tracer is optional.
	Tracer trace.Tracer

	WorkerID string

	// PollInterval and PollMaxAttempts tune the completion poller for
	// generator jobs.
	PollInterval    time.Duration
	PollMaxAttempts int
}

// StartOptions parameterizes one run.
type StartOptions struct {
	// ExecutionID reuses an identity already handed out, e.g. by the run
	// admission endpoint. Empty means a fresh id.
	ExecutionID string

	// TargetNodes restricts the run to the named nodes plus their
	// ancestors. Empty means the whole graph.
	TargetNodes []string

	// Debug short-circuits generator nodes with synthetic outputs.
	Debug bool

	Variables map[string]any
	Metadata  map[string]any
}

// run is the in-memory working state for one active execution. All access
// goes through its mutex; the persisted execution record stays the source
// of truth and is written after every mutation.
type run struct {
	mu sync.Mutex

	execution *models.Execution
	graph     *models.Graph
	scope     map[string]struct{}
	order     []string

	ctx    context.Context
	cancel context.CancelFunc

	// handles maps live job ids to their provider-side identity so cancel
	// can reach the provider.
	handles map[string]runHandle

	// consumed guards against replayed terminal updates for jobs already
	// folded into node results.
	consumed map[string]struct{}
}

type runHandle struct {
	adapter provider.Adapter
	handle  provider.Handle
}

// Orchestrator owns the per-execution state machines. One instance serves
// many concurrent executions; each execution's transitions are serialized
// through a single update loop.
type Orchestrator struct {
	logger      *slog.Logger
	registry    *registry.Registry
	queue       *jobqueue.Queue
	graphs      persistence.GraphRepository
	executions  persistence.ExecutionRepository
	broadcaster *status.Broadcaster
	bus         eventbus.EventPublisher
	tracer      trace.Tracer
	workerID    string

	pollInterval    time.Duration
	pollMaxAttempts int

	mu   sync.Mutex
	runs map[string]*run

	updates *updateMailbox
	done    chan struct{}
	closing sync.Once
}

func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		logger:          cfg.Logger.With("module", "execution"),
		registry:        cfg.Registry,
		queue:           cfg.Queue,
		graphs:          cfg.Persistence.GraphRepository(),
		executions:      cfg.Persistence.ExecutionRepository(),
		broadcaster:     cfg.Broadcaster,
		bus:             cfg.Bus,
		tracer:          cfg.Tracer,
		workerID:        cfg.WorkerID,
		pollInterval:    cfg.PollInterval,
		pollMaxAttempts: cfg.PollMaxAttempts,
		runs:            make(map[string]*run),
		updates:         newUpdateMailbox(),
		done:            make(chan struct{}),
	}

	o.queue.OnUpdate(o.updates.put)

	go o.consumeUpdates()

	return o
}

// Close stops the update loop. Outstanding jobs are abandoned; call
// Queue.Stop separately for a full shutdown.
func (o *Orchestrator) Close() {
	o.closing.Do(func() { close(o.done) })
}

func (o *Orchestrator) consumeUpdates() {
	for {
		select {
		case <-o.done:
			return
		case <-o.updates.wake:
			for _, job := range o.updates.take() {
				o.applyJobUpdate(job)
			}
		}
	}
}

// Start validates the graph, scopes the run, persists the new execution,
// and dispatches every node whose dependencies are already satisfied.
func (o *Orchestrator) Start(ctx context.Context, graphID string, opts StartOptions) (*models.Execution, error) {
	if o.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, o.tracer, "execution.start",
			attribute.String(otelhelper.GraphIDKey, graphID))
		defer span.End()
	}

	g, err := o.graphs.GetByID(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph %s: %w", graphID, err)
	}

	if g == nil {
		return nil, &ValidationError{GraphID: graphID, Reason: "graph not found", Err: ErrGraphNotExecutable}
	}

	if g.Status != models.GraphStatusPublished && !opts.Debug {
		return nil, &ValidationError{GraphID: graphID, Reason: "graph is not published", Err: ErrGraphNotExecutable}
	}

	if err := graph.Validate(g); err != nil {
		return nil, &ValidationError{GraphID: graphID, Reason: "invalid graph", Err: err}
	}

	if err := o.registry.ValidateGraphConfigs(g); err != nil {
		return nil, &ValidationError{GraphID: graphID, Reason: "invalid node config", Err: err}
	}

	scope, err := resolveScope(g, opts.TargetNodes)
	if err != nil {
		return nil, err
	}

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.New().String()
	}

	execution := models.NewExecution(executionID, graphID)
	execution.TargetNodes = opts.TargetNodes
	execution.Debug = opts.Debug
	execution.Variables = opts.Variables
	execution.Metadata = opts.Metadata
	execution.Status = models.ExecutionStatusRunning

	now := time.Now().UTC()
	execution.StartedAt = &now

	for nodeID := range scope {
		execution.Result(nodeID)
	}

	r, err := o.register(execution, g, scope)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := o.persist(ctx, r); err != nil {
		o.unregister(execution.ID)

		return nil, err
	}

	o.logger.InfoContext(ctx, "Execution started",
		"execution_id", execution.ID,
		"graph_id", graphID,
		"nodes_in_scope", len(scope),
		"debug", opts.Debug,
	)

	o.publishEvent(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:   o.baseEvent(events.ExecutionStartedEvent, graphID),
		ExecutionID: execution.ID,
		GraphName:   g.Name,
		NodeCount:   len(scope),
		Variables:   opts.Variables,
	})

	o.tick(r)
	o.evaluate(context.WithoutCancel(ctx), r)

	return execution.Clone(), nil
}

// Resume restarts a failed execution: only the failed node is reset, every
// completed result is preserved.
func (o *Orchestrator) Resume(ctx context.Context, executionID, resumedBy string) (*models.Execution, error) {
	execution, err := o.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusFailed {
		return nil, fmt.Errorf("%w: execution %s is %s", ErrExecutionNotResumable, executionID, execution.Status)
	}

	g, err := o.graphs.GetByID(ctx, execution.GraphID)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph %s: %w", execution.GraphID, err)
	}

	if g == nil {
		return nil, &ValidationError{GraphID: execution.GraphID, Reason: "graph not found", Err: ErrGraphNotExecutable}
	}

	scope, err := resolveScope(g, execution.TargetNodes)
	if err != nil {
		return nil, err
	}

	// Reset every errored node so the whole failed frontier is retried;
	// completed results stay untouched.
	fromNodeID := execution.LastFailedNodeID

	for nodeID, result := range execution.NodeResults {
		if result.Status == models.NodeStatusError {
			execution.NodeResults[nodeID] = &models.NodeResult{
				NodeID: nodeID,
				Status: models.NodeStatusIdle,
			}
		}
	}

	execution.Status = models.ExecutionStatusRunning
	execution.ErrorMessage = ""
	execution.LastFailedNodeID = ""
	execution.CompletedAt = nil

	// Jobs recorded by a previous process are not live here; processing
	// nodes with no job would otherwise stall forever.
	execution.Jobs = make(map[string]*models.Job)

	for nodeID, result := range execution.NodeResults {
		if result.Status == models.NodeStatusProcessing {
			execution.NodeResults[nodeID] = &models.NodeResult{
				NodeID: nodeID,
				Status: models.NodeStatusIdle,
			}
		}
	}

	r, err := o.register(execution, g, scope)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := o.persist(ctx, r); err != nil {
		o.unregister(execution.ID)

		return nil, err
	}

	o.logger.InfoContext(ctx, "Execution resumed",
		"execution_id", executionID,
		"from_node_id", fromNodeID,
		"resumed_by", resumedBy,
	)

	o.publishEvent(ctx, executionID, events.ExecutionResumed{
		BaseEvent:   o.baseEvent(events.ExecutionResumedEvent, execution.GraphID),
		ExecutionID: executionID,
		FromNodeID:  fromNodeID,
		ResumedBy:   resumedBy,
	})

	o.tick(r)
	o.evaluate(context.WithoutCancel(ctx), r)

	return execution.Clone(), nil
}

// Cancel stops an active execution: outstanding provider work is cancelled
// through the adapters and the run is marked cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, executionID, reason, cancelledBy string) error {
	o.mu.Lock()
	r, ok := o.runs[executionID]
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.execution.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	for jobID, rh := range r.handles {
		if err := rh.adapter.Cancel(ctx, rh.handle); err != nil {
			o.logger.WarnContext(ctx, "Provider cancel failed",
				"execution_id", executionID, "job_id", jobID, "error", err)
		}
	}

	// Stop the poll/submit goroutines; the queue marks their jobs canceled.
	r.cancel()

	// The record should not carry jobs that will never transition again.
	r.execution.Jobs = make(map[string]*models.Job)

	r.execution.Status = models.ExecutionStatusCancelled
	if reason != "" {
		r.execution.ErrorMessage = reason
	}

	now := time.Now().UTC()
	r.execution.CompletedAt = &now

	if err := o.persist(ctx, r); err != nil {
		return err
	}

	o.logger.InfoContext(ctx, "Execution cancelled",
		"execution_id", executionID, "reason", reason)

	o.publishEvent(ctx, executionID, events.ExecutionCancelled{
		BaseEvent:     o.baseEvent(events.ExecutionCancelledEvent, r.execution.GraphID),
		ExecutionID:   executionID,
		DurationMs:    durationMs(r.execution),
		Reason:        reason,
		CancelledBy:   cancelledBy,
		NodesExecuted: completedNodes(r.execution),
	})

	o.unregister(executionID)

	return nil
}

// Execution returns a copy of the current state for executionID, preferring
// the live run over storage.
func (o *Orchestrator) Execution(ctx context.Context, executionID string) (*models.Execution, error) {
	o.mu.Lock()
	r, ok := o.runs[executionID]
	o.mu.Unlock()

	if ok {
		r.mu.Lock()
		defer r.mu.Unlock()

		return r.execution.Clone(), nil
	}

	return o.executions.GetByID(ctx, executionID)
}

func (o *Orchestrator) register(execution *models.Execution, g *models.Graph, scope map[string]struct{}) (*run, error) {
	order, err := graph.TopologicalOrder(g)
	if err != nil {
		return nil, &ValidationError{GraphID: g.ID, Reason: "invalid graph", Err: err}
	}

	scopedOrder := make([]string, 0, len(scope))

	for _, nodeID := range order {
		if _, ok := scope[nodeID]; ok {
			scopedOrder = append(scopedOrder, nodeID)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &run{
		execution: execution,
		graph:     g,
		scope:     scope,
		order:     scopedOrder,
		ctx:       ctx,
		cancel:    cancel,
		handles:   make(map[string]runHandle),
		consumed:  make(map[string]struct{}),
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.runs[execution.ID]; exists {
		cancel()

		return nil, &OrchestrationError{ExecutionID: execution.ID, Reason: "execution is already active"}
	}

	o.runs[execution.ID] = r

	return r, nil
}

func (o *Orchestrator) unregister(executionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if r, ok := o.runs[executionID]; ok {
		r.cancel()
		delete(o.runs, executionID)
	}
}

// tick dispatches every idle node whose dependencies are complete. Caller
// holds r.mu. Ticks are idempotent: dispatched nodes move to processing and
// are skipped by later ticks.
func (o *Orchestrator) tick(r *run) {
	for _, nodeID := range r.order {
		result := r.execution.Result(nodeID)
		if result.Status != models.NodeStatusIdle {
			continue
		}

		if !o.dependenciesComplete(r, nodeID) {
			continue
		}

		if r.execution.LiveJobForNode(nodeID) != nil {
			continue
		}

		o.dispatch(r, nodeID)
	}
}

func (o *Orchestrator) dependenciesComplete(r *run, nodeID string) bool {
	for dep := range graph.DependenciesOf(r.graph, nodeID) {
		if r.execution.Result(dep).Status != models.NodeStatusComplete {
			return false
		}
	}

	return true
}

// dispatch starts work for one ready node. Caller holds r.mu.
func (o *Orchestrator) dispatch(r *run, nodeID string) {
	node := r.graph.NodeByID(nodeID)
	if node == nil {
		o.failNode(r, nodeID, (&OrchestrationError{
			ExecutionID: r.execution.ID,
			Reason:      fmt.Sprintf("node %s is in scope but missing from the graph", nodeID),
		}).Error())

		return
	}

	result := r.execution.Result(nodeID)
	inputs := o.gatherInputs(r, nodeID)

	// Disabled nodes complete immediately so dependents are not blocked.
	if !node.Enabled {
		o.completeNode(r, nodeID, map[string]any{}, 0)

		return
	}

	// Debug short-circuit: record what would have been submitted, skip the
	// provider entirely.
	if r.execution.Debug && node.IsGenerator() {
		result.DebugPayload = map[string]any{
			"execution_id": r.execution.ID,
			"node_id":      nodeID,
			"config":       node.Config,
			"inputs":       inputs,
		}

		o.completeNode(r, nodeID, map[string]any{"debug": true, "capability": node.Capability}, 0)

		return
	}

	adapter, err := o.registry.CreateAdapter(r.ctx, node.Capability, nil)
	if err != nil {
		o.failNode(r, nodeID, (&ValidationError{
			GraphID: r.graph.ID,
			Reason:  fmt.Sprintf("node %s has no usable provider", nodeID),
			Err:     err,
		}).Error())

		return
	}

	request := provider.SubmitRequest{
		ExecutionID: r.execution.ID,
		NodeID:      nodeID,
		Config:      node.Config,
		Inputs:      inputs,
	}

	handler := o.jobHandler(r, node, adapter, request)

	job, err := o.queue.Submit(r.ctx, node.Capability, r.execution.ID, nodeID, handler)
	if err != nil {
		o.failNode(r, nodeID, fmt.Sprintf("failed to enqueue node %s: %v", nodeID, err))

		return
	}

	now := time.Now().UTC()
	result.Status = models.NodeStatusProcessing
	result.StartedAt = &now

	snapshot := job
	r.execution.Jobs[job.ID] = &snapshot

	o.logger.Info("Node dispatched",
		"execution_id", r.execution.ID,
		"node_id", nodeID,
		"capability", node.Capability,
		"job_id", job.ID,
	)

	o.publishEvent(r.ctx, r.execution.ID, events.NodeDispatched{
		BaseEvent:   o.baseEvent(events.NodeDispatchedEvent, r.graph.ID),
		ExecutionID: r.execution.ID,
		NodeID:      nodeID,
		Capability:  node.Capability,
		JobID:       job.ID,
		Attempt:     job.Attempt,
	})
}

// jobHandler builds the queue handler that submits to the provider and
// polls it to a terminal state.
func (o *Orchestrator) jobHandler(r *run, node *models.Node, adapter provider.Adapter, request provider.SubmitRequest) jobqueue.Handler {
	return func(ctx context.Context, job models.Job, attempt int, lastAttempt bool) (map[string]any, error) {
		handle, err := adapter.Submit(ctx, request)
		if err != nil {
			return nil, &ProviderError{NodeID: node.ID, Capability: node.Capability, Err: err}
		}

		r.mu.Lock()
		r.handles[job.ID] = runHandle{adapter: adapter, handle: handle}

		if tracked, ok := r.execution.Jobs[job.ID]; ok {
			tracked.ProviderHandle = handle.ID
		}
		r.mu.Unlock()

		defer func() {
			r.mu.Lock()
			delete(r.handles, job.ID)
			r.mu.Unlock()
		}()

		terminal, err := poller.PollUntilTerminal(ctx, func(ctx context.Context) (provider.StatusUpdate, error) {
			return adapter.CheckStatus(ctx, handle)
		}, poller.Options{
			Interval:    o.pollInterval,
			MaxAttempts: o.pollMaxAttempts,
			OnProgress: func(update provider.StatusUpdate) {
				_ = o.queue.UpdateStatus(job.ID, models.JobStatusProcessing, update.Progress, update.Error)
			},
			OnHeartbeat: func() {
				_ = o.queue.Heartbeat(job.ID)
			},
		})
		if err != nil {
			// Context ended mid-poll; the queue records the cancellation.
			return nil, err
		}

		switch terminal.Outcome {
		case poller.OutcomeSucceeded:
			return terminal.Output, nil
		case poller.OutcomeCanceled:
			return nil, context.Canceled
		case poller.OutcomeTimeout:
			return nil, &TimeoutError{NodeID: node.ID, Attempts: terminal.Attempts, LastSeen: terminal.Error}
		default:
			return nil, &ProviderError{
				NodeID:     node.ID,
				Capability: node.Capability,
				Err:        errors.New(terminal.Error),
			}
		}
	}
}

// gatherInputs collects completed dependency outputs keyed by this node's
// input port names. Caller holds r.mu.
func (o *Orchestrator) gatherInputs(r *run, nodeID string) map[string]any {
	inputs := make(map[string]any)

	for _, edge := range r.graph.Edges {
		if edge.TargetNode() != nodeID {
			continue
		}

		_, portName, ok := models.ParsePortID(edge.TargetPort)
		if !ok {
			continue
		}

		source := edge.SourceNode()
		if result, exists := r.execution.NodeResults[source]; exists && result.Status == models.NodeStatusComplete {
			inputs[portName] = result.Output
		}
	}

	return inputs
}

// applyJobUpdate folds one queue-side job transition into the owning run.
// Runs on the single update loop goroutine.
func (o *Orchestrator) applyJobUpdate(job models.Job) {
	o.mu.Lock()
	r, ok := o.runs[job.ExecutionID]
	o.mu.Unlock()

	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, done := r.consumed[job.ID]; done {
		return
	}

	if r.execution.Status.IsTerminal() {
		return
	}

	ctx := context.Background()

	if !job.Status.IsTerminal() {
		// The starting notification can trail the worker's first processing
		// update; keep whichever view is newer.
		if tracked, ok := r.execution.Jobs[job.ID]; ok && tracked.UpdatedAt.After(job.UpdatedAt) {
			return
		}

		snapshot := job
		r.execution.Jobs[job.ID] = &snapshot

		if job.Status == models.JobStatusProcessing {
			o.publishEvent(ctx, r.execution.ID, events.JobProgress{
				BaseEvent:   o.baseEvent(events.JobProgressEvent, r.graph.ID),
				ExecutionID: r.execution.ID,
				NodeID:      job.NodeID,
				JobID:       job.ID,
				Status:      job.Status,
				Progress:    job.Progress,
			})
		}

		o.broadcaster.Publish(ctx, r.execution)

		return
	}

	// Terminal: fold into the node result and drop the job.
	r.consumed[job.ID] = struct{}{}
	delete(r.execution.Jobs, job.ID)
	o.queue.Forget(job.ID)

	switch job.Status {
	case models.JobStatusSucceeded:
		cost := 0.0
		if c, ok := job.Output["cost"].(float64); ok {
			cost = c
		}

		o.completeNode(r, job.NodeID, job.Output, cost)
	case models.JobStatusCanceled:
		// Cancellation is driven by Cancel(); nothing more to record here.
	default:
		o.failNode(r, job.NodeID, job.Error)
	}

	o.evaluate(ctx, r)
}

// completeNode marks a node complete and propagates to dependents exactly
// once. Caller holds r.mu.
func (o *Orchestrator) completeNode(r *run, nodeID string, output map[string]any, cost float64) {
	result := r.execution.Result(nodeID)

	now := time.Now().UTC()
	result.Status = models.NodeStatusComplete
	result.Output = output
	result.Error = ""
	result.Cost = cost
	result.FinishedAt = &now

	if result.StartedAt == nil {
		result.StartedAt = &now
	}

	o.publishEvent(r.ctx, r.execution.ID, events.NodeCompleted{
		BaseEvent:   o.baseEvent(events.NodeCompletedEvent, r.graph.ID),
		ExecutionID: r.execution.ID,
		NodeID:      nodeID,
		Output:      output,
		Cost:        cost,
		DurationMs:  resultDurationMs(result),
	})

	if result.Propagated {
		return
	}

	result.Propagated = true

	o.tick(r)
}

// failNode records a node failure. Caller holds r.mu.
func (o *Orchestrator) failNode(r *run, nodeID, errorMessage string) {
	result := r.execution.Result(nodeID)

	now := time.Now().UTC()
	result.Status = models.NodeStatusError
	result.Error = errorMessage
	result.FinishedAt = &now

	if result.StartedAt == nil {
		result.StartedAt = &now
	}

	r.execution.LastFailedNodeID = nodeID

	o.logger.Error("Node failed",
		"execution_id", r.execution.ID,
		"node_id", nodeID,
		"error", errorMessage,
	)

	o.publishEvent(r.ctx, r.execution.ID, events.NodeFailed{
		BaseEvent:   o.baseEvent(events.NodeFailedEvent, r.graph.ID),
		ExecutionID: r.execution.ID,
		NodeID:      nodeID,
		Error:       errorMessage,
		DurationMs:  resultDurationMs(result),
	})
}

// evaluate applies the completion and failure policies, persists, and
// broadcasts. Caller holds r.mu.
func (o *Orchestrator) evaluate(ctx context.Context, r *run) {
	if r.execution.Status.IsTerminal() {
		return
	}

	var completed, failed, processing int

	for _, nodeID := range r.order {
		switch r.execution.Result(nodeID).Status {
		case models.NodeStatusComplete:
			completed++
		case models.NodeStatusError:
			failed++
		case models.NodeStatusProcessing:
			processing++
		}
	}

	switch {
	case completed == len(r.order):
		o.finishCompleted(ctx, r, completed)
	case failed > 0 && processing == 0 && !o.anythingDispatchable(r):
		// Independent branches already ran as far as they could; now the
		// run is stuck and the recorded failure wins.
		o.finishFailed(ctx, r, completed)
	default:
		if err := o.persist(ctx, r); err != nil {
			o.logger.ErrorContext(ctx, "Failed to persist execution",
				"execution_id", r.execution.ID, "error", err)
		}
	}
}

// anythingDispatchable reports whether some idle node could still start.
// Caller holds r.mu.
func (o *Orchestrator) anythingDispatchable(r *run) bool {
	for _, nodeID := range r.order {
		if r.execution.Result(nodeID).Status != models.NodeStatusIdle {
			continue
		}

		if o.dependenciesComplete(r, nodeID) {
			return true
		}
	}

	return false
}

func (o *Orchestrator) finishCompleted(ctx context.Context, r *run, completed int) {
	now := time.Now().UTC()
	r.execution.Status = models.ExecutionStatusCompleted
	r.execution.CompletedAt = &now

	if err := o.persist(ctx, r); err != nil {
		o.logger.ErrorContext(ctx, "Failed to persist completed execution",
			"execution_id", r.execution.ID, "error", err)
	}

	totalCost := 0.0
	finalOutputs := make(map[string]any)

	for nodeID, result := range r.execution.NodeResults {
		totalCost += result.Cost

		if len(graph.DependentsOf(r.graph, nodeID)) == 0 && result.Output != nil {
			finalOutputs[nodeID] = result.Output
		}
	}

	o.logger.InfoContext(ctx, "Execution completed",
		"execution_id", r.execution.ID,
		"nodes_executed", completed,
		"duration_ms", durationMs(r.execution),
	)

	o.publishEvent(ctx, r.execution.ID, events.ExecutionCompleted{
		BaseEvent:     o.baseEvent(events.ExecutionCompletedEvent, r.graph.ID),
		ExecutionID:   r.execution.ID,
		DurationMs:    durationMs(r.execution),
		NodesExecuted: completed,
		TotalCost:     totalCost,
		FinalOutputs:  finalOutputs,
	})

	o.unregister(r.execution.ID)
}

func (o *Orchestrator) finishFailed(ctx context.Context, r *run, completed int) {
	now := time.Now().UTC()
	r.execution.Status = models.ExecutionStatusFailed
	r.execution.CompletedAt = &now

	if failedResult, ok := r.execution.NodeResults[r.execution.LastFailedNodeID]; ok {
		r.execution.ErrorMessage = failedResult.Error
	}

	if err := o.persist(ctx, r); err != nil {
		o.logger.ErrorContext(ctx, "Failed to persist failed execution",
			"execution_id", r.execution.ID, "error", err)
	}

	partial := make(map[string]any)

	for nodeID, result := range r.execution.NodeResults {
		if result.Status == models.NodeStatusComplete && result.Output != nil {
			partial[nodeID] = result.Output
		}
	}

	o.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", r.execution.ID,
		"failed_node_id", r.execution.LastFailedNodeID,
		"error", r.execution.ErrorMessage,
	)

	o.publishEvent(ctx, r.execution.ID, events.ExecutionFailed{
		BaseEvent:      o.baseEvent(events.ExecutionFailedEvent, r.graph.ID),
		ExecutionID:    r.execution.ID,
		DurationMs:     durationMs(r.execution),
		FailedNodeID:   r.execution.LastFailedNodeID,
		Error:          r.execution.ErrorMessage,
		NodesExecuted:  completed,
		PartialResults: partial,
	})

	o.unregister(r.execution.ID)
}

// persist writes the execution record and pushes a status snapshot. Caller
// holds r.mu.
func (o *Orchestrator) persist(ctx context.Context, r *run) error {
	if err := o.executions.Save(ctx, r.execution); err != nil {
		return fmt.Errorf("failed to save execution %s: %w", r.execution.ID, err)
	}

	o.broadcaster.Publish(ctx, r.execution)

	return nil
}

func (o *Orchestrator) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	if o.bus == nil {
		return
	}

	if err := o.bus.Publish(ctx, key, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}

func (o *Orchestrator) baseEvent(eventType events.EventType, graphID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, graphID)
	base.WorkerID = o.workerID

	return base
}

func resolveScope(g *models.Graph, targetNodes []string) (map[string]struct{}, error) {
	if len(targetNodes) == 0 {
		scope := make(map[string]struct{}, len(g.Nodes))
		for _, node := range g.Nodes {
			scope[node.ID] = struct{}{}
		}

		return scope, nil
	}

	for _, nodeID := range targetNodes {
		if g.NodeByID(nodeID) == nil {
			return nil, &ValidationError{
				GraphID: g.ID,
				Reason:  fmt.Sprintf("target node %q does not exist", nodeID),
			}
		}
	}

	return graph.Ancestors(g, targetNodes), nil
}

func durationMs(execution *models.Execution) int64 {
	if execution.StartedAt == nil || execution.CompletedAt == nil {
		return 0
	}

	return execution.CompletedAt.Sub(*execution.StartedAt).Milliseconds()
}

func resultDurationMs(result *models.NodeResult) int64 {
	if result.StartedAt == nil || result.FinishedAt == nil {
		return 0
	}

	return result.FinishedAt.Sub(*result.StartedAt).Milliseconds()
}

func completedNodes(execution *models.Execution) int {
	count := 0

	for _, result := range execution.NodeResults {
		if result.Status == models.NodeStatusComplete {
			count++
		}
	}

	return count
}
