package main

import (
	"context"
	"log/slog"

	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
)

// Dispatcher delivers the messages emitted by runs. Delivery is a structured
// log line per message; other lifecycle events are logged at debug level.
type Dispatcher struct {
	eventBus eventbus.EventBus
	logger   *slog.Logger
}

func NewDispatcher(eventBus eventbus.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		logger:   logger.With("module", "journey-dispatcher"),
	}
}

// Start registers the handlers and subscribes until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	err := d.eventBus.Handle(events.MessageSentEvent, d.handleMessageSent)
	if err != nil {
		return err
	}

	for _, eventType := range []events.EventType{
		events.RunStartedEvent,
		events.RunSuspendedEvent,
		events.RunResumedEvent,
		events.RunCompletedEvent,
		events.RunFailedEvent,
	} {
		err = d.eventBus.Handle(eventType, d.handleLifecycle)
		if err != nil {
			return err
		}
	}

	return d.eventBus.Subscribe(ctx)
}

func (d *Dispatcher) handleMessageSent(ctx context.Context, event any) error {
	sent, ok := event.(*events.MessageSent)
	if !ok {
		return nil
	}

	d.logger.InfoContext(ctx, "message delivered",
		"journey_id", sent.JourneyID,
		"run_id", sent.RunID,
		"node_id", sent.NodeID,
		"message", sent.Message,
	)

	return nil
}

func (d *Dispatcher) handleLifecycle(ctx context.Context, event any) error {
	typed, ok := event.(eventbus.Event)
	if !ok {
		return nil
	}

	d.logger.DebugContext(ctx, "run event", "event_type", typed.GetType())

	return nil
}
