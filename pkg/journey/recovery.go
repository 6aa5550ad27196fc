package journey

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/robfig/cron/v3"
)

// RecoveryReport summarises one recovery sweep.
type RecoveryReport struct {
	Scanned int
	Rearmed int
	Resumed int
	Skipped int
	Errors  int
}

// Recover re-arms the timers of suspended runs and resumes any other run left
// in_progress, typically after a restart. A delay's deadline is its run's
// updated_at plus the delay, so time spent down counts towards the wait.
// Runs that already hold a live timer are skipped.
func (c *Coordinator) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	runs, err := c.store.RunsByStatus(ctx, models.RunStatusInProgress)
	if err != nil {
		return report, fmt.Errorf("failed to list in-progress runs: %w", err)
	}

	for _, run := range runs {
		report.Scanned++

		outcome, err := c.recoverRun(ctx, run.ID)
		if err != nil {
			report.Errors++
			c.logger.ErrorContext(ctx, "failed to recover run", "run_id", run.ID, "error", err)

			continue
		}

		switch outcome {
		case recoveryRearmed:
			report.Rearmed++
		case recoveryResumed:
			report.Resumed++
		case recoverySkipped:
			report.Skipped++
		}
	}

	c.logger.InfoContext(ctx, "recovery sweep finished",
		"scanned", report.Scanned,
		"rearmed", report.Rearmed,
		"resumed", report.Resumed,
		"skipped", report.Skipped,
		"errors", report.Errors,
	)

	return report, nil
}

type recoveryOutcome int

const (
	recoverySkipped recoveryOutcome = iota
	recoveryRearmed
	recoveryResumed
)

func (c *Coordinator) recoverRun(ctx context.Context, runID string) (recoveryOutcome, error) {
	outcome := recoverySkipped

	err := c.withRunLock(ctx, runID, func(ctx context.Context) error {
		if c.scheduler.Has(runID) {
			return nil
		}

		run, err := c.store.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load run %s: %w", runID, err)
		}

		if run.Status.IsTerminal() {
			return nil
		}

		if run.CurrentNodeID != nil {
			delay, ok := c.suspendedOn(ctx, run)
			if ok {
				outcome = recoveryRearmed

				return c.rearm(ctx, run, delay)
			}
		}

		outcome = recoveryResumed

		return c.step(ctx, runID)
	})

	return outcome, err
}

// suspendedOn returns the delay node the run is waiting on, if any. Lookup
// failures are left for the step loop to turn into a failed run.
func (c *Coordinator) suspendedOn(ctx context.Context, run *models.Run) (*models.DelayNode, bool) {
	journey, err := c.store.GetJourney(ctx, run.JourneyID)
	if err != nil {
		return nil, false
	}

	node, ok := journey.Node(*run.CurrentNodeID)
	if !ok {
		return nil, false
	}

	delay, ok := node.(*models.DelayNode)

	return delay, ok
}

func (c *Coordinator) rearm(ctx context.Context, run *models.Run, delay *models.DelayNode) error {
	deadline := run.UpdatedAt.Add(delayDuration(delay.DelaySeconds))

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}

	err := c.scheduler.Schedule(run.ID, delay.ID, remaining, delay.NextNodeID)
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "delay re-armed", "run_id", run.ID, "node_id", delay.ID, "remaining", remaining)

	return nil
}

// ScheduleRecovery runs Recover on a standard five-field cron spec until the
// returned cron is stopped.
func (c *Coordinator) ScheduleRecovery(ctx context.Context, spec string) (*cron.Cron, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid recovery schedule %q: %w", spec, err)
	}

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := scheduler.AddFunc(spec, func() {
		if _, err := c.Recover(ctx); err != nil {
			c.logger.ErrorContext(ctx, "scheduled recovery failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule recovery: %w", err)
	}

	scheduler.Start()

	return scheduler, nil
}
