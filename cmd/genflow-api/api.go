// Package main provides the GenFlow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/genflow/genflow/pkg/eventbus"
	"github.com/genflow/genflow/pkg/events"
	"github.com/genflow/genflow/pkg/jobqueue/deadletter"
	"github.com/genflow/genflow/pkg/persistence"
	"github.com/genflow/genflow/pkg/registry"
	"github.com/genflow/genflow/pkg/services"
	"github.com/genflow/genflow/pkg/status"
	"github.com/genflow/genflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	deadLetter  deadletter.Store
	runner      services.Runner
	validate    *validator.Validate
	broadcaster *status.Broadcaster
	reconciler  *status.Reconciler
}

// NewAPI assembles the HTTP surface. runner is nil in split deployments;
// stop and resume then answer 503 and the caller retries against a worker.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	deadLetter deadletter.Store,
	runner services.Runner,
) *API {
	// The local broadcaster fans out to SSE subscribers only; snapshots
	// published by workers arrive through the bus relay.
	broadcaster := status.NewBroadcaster(nil, logger)
	reconciler := status.NewReconciler(persistence.ExecutionRepository(), broadcaster, 0, logger)

	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		deadLetter:  deadLetter,
		runner:      runner,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		broadcaster: broadcaster,
		reconciler:  reconciler,
	}
}

func (a *API) App() *fiber.App {
	graphService := services.NewGraphService(a.persistence)
	executionService := services.NewExecutionService(a.persistence, a.eventBus, a.runner, a.logger)

	handlers := web.NewAPIHandlers(graphService, executionService, a.broadcaster, a.deadLetter, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("GenFlow API")
	})

	g := app.Group("/graphs")
	g.Get("/", handlers.GetGraphs)
	g.Post("/", handlers.CreateGraph)
	g.Get("/:id", handlers.GetGraph)
	g.Patch("/:id", handlers.UpdateGraph)
	g.Delete("/:id", handlers.DeleteGraph)
	g.Post("/:id/publish", handlers.PublishGraph)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Post("/", handlers.CreateExecution)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/stop", handlers.StopExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Get("/:id/stream", handlers.StreamExecution)

	app.Get("/deadletter", handlers.GetDeadLetter)
	app.Get("/health", handlers.HealthCheck)

	return app
}

// Start subscribes to worker status snapshots and serves HTTP until the
// listener fails or the process is signalled.
func (a *API) Start(ctx context.Context, port int) error {
	err := a.eventBus.Handle(events.StatusSnapshotEvent, a.relaySnapshot)
	if err != nil {
		return err
	}

	err = a.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	go a.reconciler.Run(ctx)

	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

// relaySnapshot feeds worker-published snapshots into the local broadcaster
// so SSE subscribers on this process see pushes from remote workers. The
// reconciler keeps polling storage until the terminal snapshot lands.
func (a *API) relaySnapshot(ctx context.Context, event any) error {
	snapshot, ok := event.(*events.StatusSnapshot)
	if !ok {
		a.logger.ErrorContext(ctx, "Invalid event type for StatusSnapshot")

		return nil
	}

	a.broadcaster.PublishSnapshot(status.Snapshot{
		ExecutionID: snapshot.ExecutionID,
		GraphID:     snapshot.GraphID,
		Status:      snapshot.Status,
		NodeResults: snapshot.NodeResults,
		Jobs:        snapshot.Jobs,
		Error:       snapshot.Error,
		UpdatedAt:   snapshot.UpdatedAt,
	})

	if snapshot.Status.IsTerminal() {
		a.reconciler.Untrack(snapshot.ExecutionID)
	} else {
		a.reconciler.Track(snapshot.ExecutionID)
	}

	return nil
}
