package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/journey/pkg/channels/gochannel"
	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/dukex/journey/pkg/services"
	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

const pollInterval = 10 * time.Millisecond

var ErrRunTimeout = errors.New("run did not finish in time")

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Run a journey in process against an in-memory store and print the final run",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "context",
				Usage: "Run context as a JSON object",
				Value: "{}",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the run to complete or fail",
				Value: time.Minute,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			out := command.Root().Writer

			definition, err := loadJourney(command.Args().First())
			if err != nil {
				return err
			}

			var runContext map[string]any

			err = json.Unmarshal([]byte(command.String("context")), &runContext)
			if err != nil {
				return fmt.Errorf("invalid --context: %w", err)
			}

			ctx, cancel := context.WithTimeout(ctx, command.Duration("timeout"))
			defer cancel()

			run, err := runJourney(ctx, out, definition, runContext)
			if err != nil {
				return err
			}

			encoded, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(out, string(encoded))

			return nil
		},
	}
}

// runJourney executes definition to a terminal status, printing every message
// the run emits.
func runJourney(ctx context.Context, out io.Writer, definition *models.Journey, runContext map[string]any) (*models.Run, error) {
	logger := log.WithModule("journey-runner")
	store := memory.NewPersistence()

	pubSub := gochannel.NewPubSub(watermill.NewSlogLogger(logger))
	bus := eventbus.NewWatermillEventBus(pubSub, pubSub)

	defer func() {
		if err := bus.Close(); err != nil {
			logger.WarnContext(ctx, "failed to close event bus", "error", err)
		}
	}()

	printed := make(chan struct{}, 1)

	err := bus.Handle(events.MessageSentEvent, func(_ context.Context, event any) error {
		if sent, ok := event.(*events.MessageSent); ok {
			_, _ = fmt.Fprintf(out, "[MESSAGE] %s: %s\n", sent.NodeID, sent.Message)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	err = bus.Handle(events.RunCompletedEvent, signalDone(printed))
	if err != nil {
		return nil, err
	}

	err = bus.Handle(events.RunFailedEvent, signalDone(printed))
	if err != nil {
		return nil, err
	}

	err = bus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	coordinator := journey.NewCoordinator(store, journey.WithPublisher(bus), journey.WithLogger(logger))
	defer coordinator.Stop()

	service := services.NewJourney(store, coordinator, logger)

	created, err := service.Create(ctx, definition)
	if err != nil {
		return nil, err
	}

	run, err := service.Trigger(ctx, created.ID, runContext)
	if err != nil {
		return nil, err
	}

	service.Wait()

	final, err := waitForTerminal(ctx, store, run.ID)
	if err != nil {
		return nil, err
	}

	// Messages are printed by the subscriber; the terminal event is the
	// last one it sees for the run.
	select {
	case <-printed:
	case <-ctx.Done():
	}

	return final, nil
}

func signalDone(done chan<- struct{}) eventbus.EventHandler {
	return func(context.Context, any) error {
		select {
		case done <- struct{}{}:
		default:
		}

		return nil
	}
}

func waitForTerminal(ctx context.Context, store *memory.Persistence, runID string) (*models.Run, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		run, err := store.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}

		if run.Status.IsTerminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: run %s is still %s", ErrRunTimeout, runID, run.Status)
		case <-ticker.C:
		}
	}
}
