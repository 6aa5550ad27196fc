// Package main provides the journey API server with its embedded execution engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/journey/pkg/cmd"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/metrics"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "journey-api",
		Usage:                 "Create journeys and run them",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (file://, postgres://, redis://, badger://, memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "lock-url",
				Usage:   "Per-run lock backend (memory://, redis://)",
				Value:   "memory://",
				Sources: cli.EnvVars("LOCK_URL"),
			},
			&cli.StringFlag{
				Name:    "recovery-schedule",
				Usage:   "Cron schedule of the periodic recovery sweep, empty to sweep only at startup",
				Value:   "",
				Sources: cli.EnvVars("RECOVERY_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "max-steps",
				Usage:   "Nodes a run may step through without suspending before it is failed",
				Value:   10000,
				Sources: cli.EnvVars("MAX_STEPS"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("journey-api")
	logger.InfoContext(ctx, "Initializing Journey API")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, "journey-api", command.Bool("otel-enabled"))
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
		}
	}()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	locker, closeLocker, err := cmd.NewLocker(command.String("lock-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := closeLocker(); err != nil {
			logger.ErrorContext(ctx, "Failed to close lock backend", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engineMetrics, err := metrics.New(registry)
	if err != nil {
		return err
	}

	coordinator := journey.NewCoordinator(persistence,
		journey.WithLocker(locker),
		journey.WithPublisher(eventBus),
		journey.WithMetrics(engineMetrics),
		journey.WithTracer(tracer),
		journey.WithLogger(log.WithModule("journey-engine")),
		journey.WithMaxSteps(command.Int("max-steps")),
	)
	defer coordinator.Stop()

	err = NewDispatcher(eventBus, logger).Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	if _, err := coordinator.Recover(ctx); err != nil {
		logger.ErrorContext(ctx, "Startup recovery failed", "error", err)
	}

	if schedule := command.String("recovery-schedule"); schedule != "" {
		sweeper, err := coordinator.ScheduleRecovery(ctx, schedule)
		if err != nil {
			return err
		}

		defer sweeper.Stop()
	}

	api := NewAPI(logger, persistence, coordinator, registry)

	return api.Start(ctx, command.Int("port"))
}
