package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/promptline/promptline/pkg/cmd"
	"github.com/promptline/promptline/pkg/knowledge"
	"github.com/promptline/promptline/pkg/log"
	"github.com/promptline/promptline/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "promptline-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute prompt chain runs",
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
				Name:    "generation-provider",
				Usage:   "Generation provider (openai)",
				Value:   "openai",
				Sources: cli.EnvVars("GENERATION_PROVIDER"),
			},
			&cli.StringFlag{
				Name:     "generation-api-key",
				Usage:    "API key for the generation provider",
				Required: true,
				Sources:  cli.EnvVars("GENERATION_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "knowledge-redis-url",
				Usage:   "Redis URL for knowledge retrieval (optional)",
				Value:   "",
				Sources: cli.EnvVars("KNOWLEDGE_REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces via OTLP (configured through OTEL_* env vars)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger := log.WithModule("promptline-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Promptline Worker")

			if command.Bool("tracing") {
				_, err := otelhelper.NewTracer(ctx, "promptline-worker")
				if err != nil {
					return err
				}
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
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

			generator := cmd.NewGenerationClient(
				command.String("generation-provider"),
				command.String("generation-api-key"),
				logger,
			)

			var retriever knowledge.Retriever

			if redisURL := command.String("knowledge-redis-url"); redisURL != "" {
				redisRetriever, err := knowledge.NewRedisRetriever(redisURL, logger)
				if err != nil {
					return err
				}

				defer func() {
					if err := redisRetriever.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close retriever", "error", err)
					}
				}()

				retriever = redisRetriever
			}

			worker := NewWorker(
				workerID,
				persistence,
				eventBus,
				generator,
				retriever,
				logger,
			)

			err := worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
