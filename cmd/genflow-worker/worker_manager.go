package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genflow/genflow/pkg/eventbus"
	"github.com/genflow/genflow/pkg/events"
	"github.com/genflow/genflow/pkg/execution"
	"github.com/genflow/genflow/pkg/jobqueue"
	"github.com/genflow/genflow/pkg/jobqueue/deadletter"
	"github.com/genflow/genflow/pkg/models"
	"github.com/genflow/genflow/pkg/persistence"
	"github.com/genflow/genflow/pkg/registry"
	"github.com/genflow/genflow/pkg/status"
)

// Generation providers are the expensive lanes; transforms and deliveries
// are cheap and get wider limits.
var capabilityLimits = map[string]int{
	models.CapabilityImageGenerate: 4,
	models.CapabilityVideoGenerate: 2,
	models.CapabilityTextGenerate:  8,
	models.CapabilityTransform:     16,
	models.CapabilityStaticInput:   16,
}

const stallWindow = 2 * time.Minute

type WorkerConfig struct {
	ID           string
	Persistence  persistence.Persistence
	EventBus     eventbus.EventBus
	Registry     *registry.Registry
	DeadLetter   deadletter.Store
	PollInterval time.Duration
	Logger       *slog.Logger
}

// WorkerManager wires the queue, orchestrator, and status channel together
// and runs executions requested over the event bus.
type WorkerManager struct {
	id         string
	logger     *slog.Logger
	eventBus   eventbus.EventBus
	executions persistence.ExecutionRepository

	queue        *jobqueue.Queue
	sweeper      *jobqueue.Sweeper
	orchestrator *execution.Orchestrator
	reconciler   *status.Reconciler
}

func NewWorkerManager(cfg WorkerConfig) *WorkerManager {
	logger := cfg.Logger.With("module", "genflow-worker")

	queue := jobqueue.NewQueue(jobqueue.Config{
		Capabilities: capabilityLimits,
	}, cfg.DeadLetter, logger)

	broadcaster := status.NewBroadcaster(cfg.EventBus, logger)
	reconciler := status.NewReconciler(cfg.Persistence.ExecutionRepository(), broadcaster, 0, logger)

	orchestrator := execution.NewOrchestrator(execution.Config{
		Logger:       logger,
		Registry:     cfg.Registry,
		Queue:        queue,
		Persistence:  cfg.Persistence,
		Broadcaster:  broadcaster,
		Bus:          cfg.EventBus,
		WorkerID:     cfg.ID,
		PollInterval: cfg.PollInterval,
	})

	w := &WorkerManager{
		id:           cfg.ID,
		logger:       logger,
		eventBus:     cfg.EventBus,
		executions:   cfg.Persistence.ExecutionRepository(),
		queue:        queue,
		orchestrator: orchestrator,
		reconciler:   reconciler,
	}

	w.sweeper = jobqueue.NewSweeper(queue, stallWindow, w.publishStalled, logger)

	return w
}

// Runner exposes the orchestrator for deployments that colocate the API
// with the worker, so stop and resume skip the bus round trip.
func (w *WorkerManager) Runner() *execution.Orchestrator {
	return w.orchestrator
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	reconcileCtx, stopReconciler := context.WithCancel(ctx)
	defer stopReconciler()

	go w.reconciler.Run(reconcileCtx)

	err = w.sweeper.Start("")
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	w.sweeper.Stop()
	w.orchestrator.Close()
	w.queue.Stop()

	return nil
}

func (w *WorkerManager) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	logger := w.logger.With(
		"execution_id", requested.ExecutionID,
		"graph_id", requested.GraphID,
		"event_id", requested.ID,
	)
	logger.InfoContext(ctx, "Processing execution request")

	w.reconciler.Track(requested.ExecutionID)

	_, err := w.orchestrator.Start(ctx, requested.GraphID, execution.StartOptions{
		ExecutionID: requested.ExecutionID,
		TargetNodes: requested.TargetNodes,
		Debug:       requested.Debug,
		Variables:   requested.Variables,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start execution", "error", err)
		w.markRequestFailed(ctx, requested.ExecutionID, err)
	}

	// Admission failures are not retryable; the record carries the error.
	return nil
}

// markRequestFailed settles the pending record the API wrote when the run
// was admitted, so observers are not left polling a run that never started.
func (w *WorkerManager) markRequestFailed(ctx context.Context, executionID string, cause error) {
	record, err := w.executions.GetByID(ctx, executionID)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to load execution for failure record",
			"execution_id", executionID, "error", err)

		return
	}

	if record.Status.IsTerminal() {
		return
	}

	now := time.Now().UTC()
	record.Status = models.ExecutionStatusFailed
	record.ErrorMessage = cause.Error()
	record.CompletedAt = &now

	err = w.executions.Save(ctx, record)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to persist execution failure",
			"execution_id", executionID, "error", err)
	}
}

func (w *WorkerManager) publishStalled(job models.Job) {
	ctx := context.Background()

	graphID := ""

	record, err := w.executions.GetByID(ctx, job.ExecutionID)
	if err == nil {
		graphID = record.GraphID
	}

	lastSeen := job.UpdatedAt
	if job.LastHeartbeatAt != nil {
		lastSeen = *job.LastHeartbeatAt
	}

	stalled := events.JobStalled{
		BaseEvent:     events.NewBaseEvent(events.JobStalledEvent, graphID),
		ExecutionID:   job.ExecutionID,
		NodeID:        job.NodeID,
		JobID:         job.ID,
		Capability:    job.Capability,
		LastHeartbeat: lastSeen,
	}
	stalled.WorkerID = w.id

	err = w.eventBus.Publish(ctx, job.ExecutionID, stalled)
	if err != nil {
		w.logger.Error("Failed to publish job stalled event",
			"job_id", job.ID, "error", err)
	}
}
