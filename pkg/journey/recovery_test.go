package journey_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/mocks"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func delayJourney(f *fixture, t *testing.T, seconds float64) *models.Journey {
	t.Helper()

	return f.saveJourney(t, "d1",
		&models.DelayNode{ID: "d1", DelaySeconds: seconds, NextNodeID: models.StringPtr("m1")},
		&models.MessageNode{ID: "m1", Message: "resumed"},
	)
}

func TestRecover(t *testing.T) {
	t.Parallel()

	t.Run("elapsed delay resumes immediately", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		j := delayJourney(f, t, 0.01)
		runID := f.createRun(t, j.ID, nil)
		require.NoError(t, f.store.UpdateRunStatusAndNode(context.Background(), runID, models.RunStatusInProgress, models.StringPtr("d1")))

		time.Sleep(20 * time.Millisecond)

		report, err := f.coordinator.Recover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, journey.RecoveryReport{Scanned: 1, Rearmed: 1}, report)

		f.eventuallyStatus(t, runID, models.RunStatusCompleted)
		assert.Equal(t, []string{"m1:resumed"}, f.publisher.messages())
	})

	t.Run("future deadline is re-armed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		j := delayJourney(f, t, 3600)
		runID := f.createRun(t, j.ID, nil)
		require.NoError(t, f.store.UpdateRunStatusAndNode(context.Background(), runID, models.RunStatusInProgress, models.StringPtr("d1")))

		report, err := f.coordinator.Recover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Rearmed)

		deadline, ok := f.coordinator.Scheduler().Deadline(runID)
		require.True(t, ok)

		expected := f.run(t, runID).UpdatedAt.Add(time.Hour)
		assert.WithinDuration(t, expected, deadline, time.Second)
		assert.Equal(t, models.RunStatusInProgress, f.run(t, runID).Status)
	})

	t.Run("unseeded run is started", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		j := f.saveJourney(t, "m1", &models.MessageNode{ID: "m1", Message: "hello"})
		runID := f.createRun(t, j.ID, nil)

		report, err := f.coordinator.Recover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, journey.RecoveryReport{Scanned: 1, Resumed: 1}, report)
		assert.Equal(t, models.RunStatusCompleted, f.run(t, runID).Status)
	})

	t.Run("run with live timer is skipped", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		j := delayJourney(f, t, 3600)
		runID := f.createRun(t, j.ID, nil)
		require.NoError(t, f.coordinator.Start(context.Background(), runID))

		report, err := f.coordinator.Recover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, journey.RecoveryReport{Scanned: 1, Skipped: 1}, report)
		assert.Equal(t, 1, f.coordinator.Scheduler().Pending())
	})

	t.Run("terminal runs are not scanned", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		j := f.saveJourney(t, "m1", &models.MessageNode{ID: "m1", Message: "hello"})
		runID := f.createRun(t, j.ID, nil)
		require.NoError(t, f.coordinator.Start(context.Background(), runID))

		report, err := f.coordinator.Recover(context.Background())
		require.NoError(t, err)
		assert.Zero(t, report.Scanned)
	})
}

func TestScheduleRecovery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.coordinator.ScheduleRecovery(context.Background(), "not a schedule")
	require.Error(t, err)

	scheduler, err := f.coordinator.ScheduleRecovery(context.Background(), "*/5 * * * *")
	require.NoError(t, err)

	assert.Len(t, scheduler.Entries(), 1)
	<-scheduler.Stop().Done()
}

func TestRecover_ListFailure(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("RunsByStatus", mock.Anything, models.RunStatusInProgress).Return(nil, errors.New("connection reset"))

	coordinator := journey.NewCoordinator(store, journey.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(coordinator.Stop)

	_, err := coordinator.Recover(context.Background())
	require.ErrorContains(t, err, "connection reset")
	store.AssertExpectations(t)
}

func TestRecover_CountsRunErrors(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("RunsByStatus", mock.Anything, models.RunStatusInProgress).
		Return([]*models.Run{testutil.CreateTestRun("j", nil, testutil.WithCurrentNode("m1"))}, nil)
	store.On("GetRun", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	coordinator := journey.NewCoordinator(store, journey.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(coordinator.Stop)

	report, err := coordinator.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, journey.RecoveryReport{Scanned: 1, Errors: 1}, report)
}
