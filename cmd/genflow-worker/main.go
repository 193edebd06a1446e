package main

import (
	"context"
	"os"
	"time"

	"github.com/genflow/genflow/pkg/cmd"
	"github.com/genflow/genflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmdRoot := &cli.Command{
		Name:                  "genflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to execute generation graphs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "deadletter-url",
				Usage:   "Dead-letter store URL (redis://host:port, empty for in-memory)",
				Value:   "",
				Sources: cli.EnvVars("DEADLETTER_URL"),
			},
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing provider plugins",
				Value:    "./plugins",
				Required: false,
				Sources:  cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Completion poll interval for generator jobs",
				Value:   3 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("genflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing GenFlow Worker")

			registry := cmd.NewRegistry(ctx, logger, command.String("plugins-path"))

			eventBus := cmd.NewEventBus(command.String("event-bus"), "genflow-worker", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			deadLetter := cmd.NewDeadLetter(ctx, logger, command.String("deadletter-url"))

			worker := NewWorkerManager(WorkerConfig{
				ID:           workerID,
				Persistence:  persistence,
				EventBus:     eventBus,
				Registry:     registry,
				DeadLetter:   deadLetter,
				PollInterval: command.Duration("poll-interval"),
				Logger:       logger,
			})

			err := worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	err := cmdRoot.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
