// Package main provides the Promptline API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/promptline/promptline/pkg/eventbus"
	"github.com/promptline/promptline/pkg/persistence"
	"github.com/promptline/promptline/pkg/services"
	"github.com/promptline/promptline/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	authSecret  []byte
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	authSecret []byte,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		authSecret:  authSecret,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	chainService := services.NewChain(a.persistence)
	runService := services.NewRun(a.persistence, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(chainService, runService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Promptline API")
	})

	chains := app.Group("/chains")
	chains.Get("/", handlers.GetChains)
	chains.Post("/", handlers.CreateChain)
	chains.Get("/:id", handlers.GetChain)
	chains.Put("/:id", handlers.UpdateChain)
	chains.Delete("/:id", handlers.DeleteChain)
	chains.Get("/:id/runs", handlers.GetChainRuns)
	chains.Post("/:id/runs", handlers.TriggerRun, web.NewBearerAuth(a.authSecret))

	runs := app.Group("/runs")
	runs.Get("/:id", handlers.GetRun)
	runs.Get("/:id/steps", handlers.GetRunSteps)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
