package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/services"
	"github.com/dukex/journey/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	starter     services.RunStarter
	gatherer    prometheus.Gatherer
	validate    *validator.Validate

	service *services.Journey
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	starter services.RunStarter,
	gatherer prometheus.Gatherer,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		starter:     starter,
		gatherer:    gatherer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		service:     services.NewJourney(persistence, starter, logger.With("module", "journey-service")),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.service, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			_, ok := a.service.HealthCheck(c.Context())

			return ok
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Journey API")
	})

	app.Get("/metrics", web.MetricsHandler(a.gatherer))

	handlers.Register(app)

	return app
}

// Start serves the API until ctx is done, then waits for triggered runs to
// finish their initial step loop.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "Journey API listening", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	err := app.ShutdownWithContext(context.WithoutCancel(ctx))
	a.service.Wait()

	return err
}
