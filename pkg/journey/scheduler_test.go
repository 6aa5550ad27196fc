package journey_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fired struct {
	runID       string
	delayNodeID string
	next        *string
}

type fireRecorder struct {
	mu    sync.Mutex
	fires []fired
}

func (r *fireRecorder) fire(runID, delayNodeID string, next *string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fires = append(r.fires, fired{runID: runID, delayNodeID: delayNodeID, next: next})
}

func (r *fireRecorder) all() []fired {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]fired(nil), r.fires...)
}

func TestScheduler_Fires(t *testing.T) {
	t.Parallel()

	recorder := &fireRecorder{}
	scheduler := journey.NewScheduler(recorder.fire)

	require.NoError(t, scheduler.Schedule("run-1", "d1", 5*time.Millisecond, models.StringPtr("m1")))
	assert.True(t, scheduler.Has("run-1"))
	assert.Equal(t, 1, scheduler.Pending())

	deadline, ok := scheduler.Deadline("run-1")
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Millisecond), deadline, 50*time.Millisecond)

	require.Eventually(t, func() bool { return len(recorder.all()) == 1 }, time.Second, time.Millisecond)

	fire := recorder.all()[0]
	assert.Equal(t, "run-1", fire.runID)
	assert.Equal(t, "d1", fire.delayNodeID)
	assert.Equal(t, "m1", *fire.next)
	assert.False(t, scheduler.Has("run-1"))
	assert.Equal(t, 0, scheduler.Pending())
	assert.False(t, scheduler.Cancel("run-1"), "cancel after fire is a no-op")
}

func TestScheduler_RescheduleReplacesTimer(t *testing.T) {
	t.Parallel()

	recorder := &fireRecorder{}
	scheduler := journey.NewScheduler(recorder.fire)

	require.NoError(t, scheduler.Schedule("run-1", "d1", time.Hour, models.StringPtr("stale")))
	require.NoError(t, scheduler.Schedule("run-1", "d2", time.Millisecond, nil))
	assert.Equal(t, 1, scheduler.Pending())

	require.Eventually(t, func() bool { return len(recorder.all()) == 1 }, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	fires := recorder.all()
	require.Len(t, fires, 1)
	assert.Equal(t, "d2", fires[0].delayNodeID)
	assert.Nil(t, fires[0].next)
}

func TestScheduler_ZeroDelay(t *testing.T) {
	t.Parallel()

	recorder := &fireRecorder{}
	scheduler := journey.NewScheduler(recorder.fire)

	require.NoError(t, scheduler.Schedule("run-1", "d1", 0, nil))
	require.Eventually(t, func() bool { return len(recorder.all()) == 1 }, time.Second, time.Millisecond)
}

func TestScheduler_Cancel(t *testing.T) {
	t.Parallel()

	recorder := &fireRecorder{}
	scheduler := journey.NewScheduler(recorder.fire)

	require.NoError(t, scheduler.Schedule("run-1", "d1", 20*time.Millisecond, nil))
	assert.True(t, scheduler.Cancel("run-1"))
	assert.False(t, scheduler.Has("run-1"))

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, recorder.all())
}

func TestScheduler_Stop(t *testing.T) {
	t.Parallel()

	recorder := &fireRecorder{}

	var observed atomic.Int64

	scheduler := journey.NewScheduler(recorder.fire, journey.WithPendingObserver(func(pending int) {
		observed.Store(int64(pending))
	}))

	require.NoError(t, scheduler.Schedule("run-1", "d1", 20*time.Millisecond, nil))
	require.NoError(t, scheduler.Schedule("run-2", "d1", 20*time.Millisecond, nil))
	assert.Equal(t, int64(2), observed.Load())

	scheduler.Stop()
	assert.Equal(t, 0, scheduler.Pending())
	assert.Equal(t, int64(0), observed.Load())

	err := scheduler.Schedule("run-3", "d1", 0, nil)
	require.ErrorIs(t, err, journey.ErrSchedulerStopped)

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, recorder.all())
}

func TestScheduler_IndependentRuns(t *testing.T) {
	t.Parallel()

	recorder := &fireRecorder{}
	scheduler := journey.NewScheduler(recorder.fire)

	for _, runID := range []string{"a", "b", "c"} {
		require.NoError(t, scheduler.Schedule(runID, "d1", time.Millisecond, nil))
	}

	require.Eventually(t, func() bool { return len(recorder.all()) == 3 }, time.Second, time.Millisecond)
}
