// Package journey is the execution engine: it drives runs through their
// journey graph, persisting every position before acting on it.
package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/lock"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/metrics"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultLockTTL  = 30 * time.Second
	defaultMaxSteps = 10000
	lockKeyPrefix   = "run:"
)

// Store is the part of persistence.Persistence the engine depends on.
type Store interface {
	GetRun(ctx context.Context, id string) (*models.Run, error)
	GetJourney(ctx context.Context, id string) (*models.Journey, error)
	UpdateRunStatusAndNode(ctx context.Context, id string, status models.RunStatus, nodeID *string) error
	RunsByStatus(ctx context.Context, status models.RunStatus) ([]*models.Run, error)
}

// Coordinator drives runs from their start node to a terminal status.
//
// Every step of a run happens under that run's lock, so a run is never
// stepped by two callers at once. Within a step the new position is persisted
// before the coordinator loops or hands the run to the scheduler.
type Coordinator struct {
	store     Store
	scheduler *Scheduler
	locker    lock.Locker
	publisher eventbus.EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	lockTTL   time.Duration
	maxSteps  int
}

type Option func(*Coordinator)

// WithLocker replaces the in-process per-run lock.
func WithLocker(locker lock.Locker) Option {
	return func(c *Coordinator) {
		c.locker = locker
	}
}

// WithPublisher publishes run lifecycle and message events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(c *Coordinator) {
		c.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithLockTTL bounds how long a distributed run lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.lockTTL = ttl
	}
}

// WithMaxSteps bounds the nodes one invocation may step through without suspending.
func WithMaxSteps(steps int) Option {
	return func(c *Coordinator) {
		c.maxSteps = steps
	}
}

// NewCoordinator creates a coordinator over store.
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		locker:   lock.NewKeyedLocker(),
		tracer:   otel.Tracer("journey"),
		logger:   log.WithModule("journey"),
		lockTTL:  defaultLockTTL,
		maxSteps: defaultMaxSteps,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.scheduler = NewScheduler(c.onTimer, WithPendingObserver(c.metrics.SetPendingTimers))

	return c
}

// Scheduler exposes the delay scheduler for introspection.
func (c *Coordinator) Scheduler() *Scheduler {
	return c.scheduler
}

// Start seeds the run at its journey's start node when it has no position yet
// and steps it until it suspends or reaches a terminal status. Execution
// errors fail the run and are not returned; only a missing run or a store
// failure while recording the outcome is.
func (c *Coordinator) Start(ctx context.Context, runID string) error {
	return c.withRunLock(ctx, runID, func(ctx context.Context) error {
		return c.step(ctx, runID)
	})
}

// Resume re-enters the step loop for a run. Resuming a completed or failed
// run does nothing.
func (c *Coordinator) Resume(ctx context.Context, runID string) error {
	return c.Start(ctx, runID)
}

// Cancel stops the run's pending delay timer. The run stays in_progress.
func (c *Coordinator) Cancel(runID string) bool {
	cancelled := c.scheduler.Cancel(runID)
	if cancelled {
		c.logger.Info("delay timer cancelled", "run_id", runID)
	}

	return cancelled
}

// Stop cancels all pending timers. Suspended runs are picked up again by
// Recover on the next start.
func (c *Coordinator) Stop() {
	c.scheduler.Stop()
}

func (c *Coordinator) withRunLock(ctx context.Context, runID string, fn func(context.Context) error) error {
	unlock, err := c.locker.Lock(ctx, lockKeyPrefix+runID, c.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to lock run %s: %w", runID, err)
	}

	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			c.logger.WarnContext(ctx, "failed to unlock run", "run_id", runID, "error", err)
		}
	}()

	return fn(ctx)
}

// step is the single step loop. Each iteration reloads the run, so a
// resumption never trusts a snapshot taken before it suspended.
func (c *Coordinator) step(ctx context.Context, runID string) error {
	var journey *models.Journey

	for steps := 0; ; steps++ {
		run, err := c.store.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load run %s: %w", runID, err)
		}

		if run.Status.IsTerminal() {
			return nil
		}

		if journey == nil {
			journey, err = c.store.GetJourney(ctx, run.JourneyID)
			if err != nil {
				return c.fail(ctx, run, run.CurrentNodeID, missingJourney(run.JourneyID, err))
			}
		}

		if run.CurrentNodeID == nil {
			err = c.seed(ctx, run, journey)
			if err != nil {
				return err
			}

			continue
		}

		if steps > c.maxSteps {
			return c.fail(ctx, run, run.CurrentNodeID, fmt.Errorf("%w: %d nodes without suspending", ErrStepLimitExceeded, c.maxSteps))
		}

		node, ok := journey.Node(*run.CurrentNodeID)
		if !ok {
			return c.fail(ctx, run, run.CurrentNodeID, missingNode(journey.ID, *run.CurrentNodeID))
		}

		proceed, err := c.execute(ctx, journey, run, node)
		if err != nil || !proceed {
			return err
		}
	}
}

// seed positions a fresh run on the journey's start node.
func (c *Coordinator) seed(ctx context.Context, run *models.Run, journey *models.Journey) error {
	start := journey.StartNodeID

	if !journey.HasNode(start) {
		return c.fail(ctx, run, &start, missingNode(journey.ID, start))
	}

	err := c.persist(ctx, run, models.RunStatusInProgress, &start)
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "run started", "run_id", run.ID, "journey_id", journey.ID, "node_id", start)
	c.publish(ctx, run.ID, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, journey.ID, run.ID),
		StartNodeID: start,
	})

	return nil
}

// execute interprets one node and records its outcome. It reports whether
// the loop should continue with the run's new position.
func (c *Coordinator) execute(ctx context.Context, journey *models.Journey, run *models.Run, node models.Node) (bool, error) {
	nodeID := node.NodeID()

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "journey.step",
		attribute.String(otelhelper.JourneyIDKey, journey.ID),
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type())),
	)
	defer span.End()

	started := time.Now()
	transition, err := interpretSafely(node, run.Context)

	c.metrics.StepExecuted(string(node.Type()), time.Since(started).Seconds())

	if err != nil {
		otelhelper.SetError(span, err)

		return false, c.fail(ctx, run, &nodeID, err)
	}

	if transition.Message != nil {
		c.emitMessage(ctx, journey, run, nodeID, *transition.Message)
	}

	logger := c.logger.With("run_id", run.ID, "node_id", nodeID, "transition", transition.Kind.String())

	switch transition.Kind {
	case Advance:
		if !journey.HasNode(*transition.NextNodeID) {
			return false, c.fail(ctx, run, &nodeID, missingNode(journey.ID, *transition.NextNodeID))
		}

		logger.DebugContext(ctx, "advancing", "next_node_id", *transition.NextNodeID)

		return true, c.persist(ctx, run, models.RunStatusInProgress, transition.NextNodeID)
	case Complete:
		return false, c.complete(ctx, journey.ID, run)
	case Suspend:
		err = c.persist(ctx, run, models.RunStatusInProgress, &nodeID)
		if err != nil {
			return false, err
		}

		c.suspend(ctx, journey.ID, run.ID, nodeID, transition)

		return false, nil
	default:
		return false, c.fail(ctx, run, &nodeID, fmt.Errorf("unexpected transition %s", transition.Kind))
	}
}

func (c *Coordinator) suspend(ctx context.Context, journeyID, runID, nodeID string, transition Transition) {
	err := c.scheduler.Schedule(runID, nodeID, transition.Delay, transition.NextNodeID)
	if err != nil {
		// The run stays suspended on the delay node and is re-armed by Recover.
		c.logger.WarnContext(ctx, "delay not scheduled", "run_id", runID, "node_id", nodeID, "error", err)

		return
	}

	c.logger.InfoContext(ctx, "run suspended", "run_id", runID, "node_id", nodeID, "delay", transition.Delay)
	c.publish(ctx, runID, events.RunSuspended{
		BaseEvent:    events.NewBaseEvent(events.RunSuspendedEvent, journeyID, runID),
		NodeID:       nodeID,
		DelaySeconds: transition.Delay.Seconds(),
		ResumeAt:     time.Now().Add(transition.Delay).UTC(),
	})
}

// onTimer resumes a run whose delay elapsed. It runs on the timer goroutine,
// so failures are logged rather than returned.
func (c *Coordinator) onTimer(runID, delayNodeID string, next *string) {
	ctx := context.Background()

	err := c.withRunLock(ctx, runID, func(ctx context.Context) error {
		return c.wake(ctx, runID, delayNodeID, next)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to resume run after delay", "run_id", runID, "error", err)
	}
}

func (c *Coordinator) wake(ctx context.Context, runID, delayNodeID string, next *string) error {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	if run.Status.IsTerminal() {
		return nil
	}

	if run.CurrentNodeID == nil || *run.CurrentNodeID != delayNodeID {
		c.logger.WarnContext(ctx, "stale delay timer ignored", "run_id", runID, "node_id", delayNodeID)

		return nil
	}

	journey, err := c.store.GetJourney(ctx, run.JourneyID)
	if err != nil {
		return c.fail(ctx, run, run.CurrentNodeID, missingJourney(run.JourneyID, err))
	}

	c.logger.InfoContext(ctx, "run resumed", "run_id", runID, "node_id", delayNodeID)
	c.publish(ctx, runID, events.RunResumed{
		BaseEvent:  events.NewBaseEvent(events.RunResumedEvent, journey.ID, runID),
		NextNodeID: next,
	})

	if next == nil {
		return c.complete(ctx, journey.ID, run)
	}

	if !journey.HasNode(*next) {
		return c.fail(ctx, run, run.CurrentNodeID, missingNode(journey.ID, *next))
	}

	err = c.persist(ctx, run, models.RunStatusInProgress, next)
	if err != nil {
		return err
	}

	return c.step(ctx, runID)
}

func (c *Coordinator) complete(ctx context.Context, journeyID string, run *models.Run) error {
	err := c.persist(ctx, run, models.RunStatusCompleted, nil)
	if err != nil {
		return err
	}

	c.metrics.RunFinished(string(models.RunStatusCompleted))
	c.logger.InfoContext(ctx, "run completed", "run_id", run.ID, "journey_id", journeyID)
	c.publish(ctx, run.ID, events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, journeyID, run.ID),
	})

	return nil
}

// fail marks the run failed on nodeID. The cause is recorded, not returned:
// only a failure to write the failed status reaches the caller.
func (c *Coordinator) fail(ctx context.Context, run *models.Run, nodeID *string, cause error) error {
	c.logger.ErrorContext(ctx, "run failed", "run_id", run.ID, "journey_id", run.JourneyID, "node_id", nodeIDValue(nodeID), "error", cause)

	err := c.store.UpdateRunStatusAndNode(ctx, run.ID, models.RunStatusFailed, nodeID)
	if err != nil {
		return fmt.Errorf("failed to mark run %s failed: %w", run.ID, errors.Join(err, cause))
	}

	c.metrics.RunFinished(string(models.RunStatusFailed))
	c.publish(ctx, run.ID, events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, run.JourneyID, run.ID),
		NodeID:    nodeID,
		Error:     cause.Error(),
	})

	return nil
}

// persist writes the run position. When the write fails the run is marked
// failed if the store still accepts that, and the write error is returned.
func (c *Coordinator) persist(ctx context.Context, run *models.Run, status models.RunStatus, nodeID *string) error {
	err := c.store.UpdateRunStatusAndNode(ctx, run.ID, status, nodeID)
	if err == nil {
		return nil
	}

	if persistence.IsRunNotFound(err) {
		return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
	}

	failErr := c.store.UpdateRunStatusAndNode(ctx, run.ID, models.RunStatusFailed, run.CurrentNodeID)
	if failErr == nil {
		c.metrics.RunFinished(string(models.RunStatusFailed))
	}

	c.logger.ErrorContext(ctx, "failed to persist run", "run_id", run.ID, "status", status, "error", err)

	return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
}

func (c *Coordinator) emitMessage(ctx context.Context, journey *models.Journey, run *models.Run, nodeID, message string) {
	c.logger.InfoContext(ctx, "message", "run_id", run.ID, "node_id", nodeID, "message", message)
	c.publish(ctx, run.ID, events.MessageSent{
		BaseEvent: events.NewBaseEvent(events.MessageSentEvent, journey.ID, run.ID),
		NodeID:    nodeID,
		Message:   message,
	})
}

func (c *Coordinator) publish(ctx context.Context, runID string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	err := c.publisher.Publish(ctx, runID, event)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to publish event", "run_id", runID, "event_type", event.GetType(), "error", err)
	}
}

func interpretSafely(node models.Node, runContext map[string]any) (transition Transition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanicked, r)
		}
	}()

	return Interpret(node, runContext)
}

func nodeIDValue(nodeID *string) string {
	if nodeID == nil {
		return ""
	}

	return *nodeID
}
