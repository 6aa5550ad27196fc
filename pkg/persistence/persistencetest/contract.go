// Package persistencetest holds the behavioural contract every persistence backend must satisfy.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJourney builds a three node journey covering every node variant.
func NewJourney(createdAt time.Time) *models.Journey {
	return &models.Journey{
		ID:          uuid.NewString(),
		Name:        "post-op follow up",
		StartNodeID: "check-age",
		CreatedAt:   createdAt,
		Nodes: models.NodeList{
			&models.ConditionalNode{
				ID:          "check-age",
				Condition:   models.Condition{Field: "patient.age", Operator: ">", Value: 65.0},
				TrueNodeID:  models.StringPtr("wait"),
				FalseNodeID: nil,
			},
			&models.DelayNode{ID: "wait", DelaySeconds: 1.5, NextNodeID: models.StringPtr("remind")},
			&models.MessageNode{ID: "remind", Message: "Time for your check-up"},
		},
	}
}

// NewRun builds an in-progress run of journeyID with a nested context.
func NewRun(journeyID string, createdAt time.Time) *models.Run {
	return &models.Run{
		ID:        uuid.NewString(),
		JourneyID: journeyID,
		Status:    models.RunStatusInProgress,
		Context: map[string]any{
			"language":  "en",
			"patient":   map[string]any{"age": 70.0, "name": "Ada"},
			"allergies": []any{"latex"},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// RunPersistenceContract runs the shared suite against a fresh, empty store.
func RunPersistenceContract(t *testing.T, store persistence.Persistence) {
	t.Helper()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	t.Run("Save and get journey", func(t *testing.T) {
		journey := NewJourney(base)
		require.NoError(t, store.SaveJourney(ctx, journey))

		loaded, err := store.GetJourney(ctx, journey.ID)
		require.NoError(t, err)
		assert.Equal(t, journey.ID, loaded.ID)
		assert.Equal(t, journey.Name, loaded.Name)
		assert.Equal(t, journey.StartNodeID, loaded.StartNodeID)
		assert.WithinDuration(t, base, loaded.CreatedAt, time.Millisecond)
		require.Len(t, loaded.Nodes, 3)

		node, ok := loaded.Node("check-age")
		require.True(t, ok)

		conditional, ok := node.(*models.ConditionalNode)
		require.True(t, ok)
		assert.Equal(t, "patient.age", conditional.Condition.Field)
		assert.InDelta(t, 65.0, conditional.Condition.Value, 0)
		assert.Equal(t, "wait", *conditional.TrueNodeID)
		assert.Nil(t, conditional.FalseNodeID)

		node, ok = loaded.Node("wait")
		require.True(t, ok)

		delay, ok := node.(*models.DelayNode)
		require.True(t, ok)
		assert.InDelta(t, 1.5, delay.DelaySeconds, 0)
	})

	t.Run("Save journey twice", func(t *testing.T) {
		journey := NewJourney(base)
		require.NoError(t, store.SaveJourney(ctx, journey))

		err := store.SaveJourney(ctx, journey)
		assert.ErrorIs(t, err, persistence.ErrJourneyAlreadyExists)
	})

	t.Run("Get missing journey", func(t *testing.T) {
		_, err := store.GetJourney(ctx, uuid.NewString())
		assert.ErrorIs(t, err, persistence.ErrJourneyNotFound)
	})

	t.Run("List journeys newest first", func(t *testing.T) {
		older := NewJourney(base.Add(time.Minute))
		newer := NewJourney(base.Add(2 * time.Minute))

		require.NoError(t, store.SaveJourney(ctx, older))
		require.NoError(t, store.SaveJourney(ctx, newer))

		journeys, err := store.Journeys(ctx)
		require.NoError(t, err)

		positions := map[string]int{}
		for i, journey := range journeys {
			positions[journey.ID] = i
		}

		require.Contains(t, positions, older.ID)
		require.Contains(t, positions, newer.ID)
		assert.Less(t, positions[newer.ID], positions[older.ID])
	})

	t.Run("Create and get run", func(t *testing.T) {
		run := NewRun(uuid.NewString(), base)
		require.NoError(t, store.CreateRun(ctx, run))

		loaded, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.JourneyID, loaded.JourneyID)
		assert.Equal(t, models.RunStatusInProgress, loaded.Status)
		assert.Nil(t, loaded.CurrentNodeID)
		assert.Equal(t, run.Context, loaded.Context)
		assert.WithinDuration(t, base, loaded.CreatedAt, time.Millisecond)
		assert.WithinDuration(t, base, loaded.UpdatedAt, time.Millisecond)
	})

	t.Run("Create run twice", func(t *testing.T) {
		run := NewRun(uuid.NewString(), base)
		require.NoError(t, store.CreateRun(ctx, run))

		err := store.CreateRun(ctx, run)
		assert.ErrorIs(t, err, persistence.ErrRunAlreadyExists)
	})

	t.Run("Get missing run", func(t *testing.T) {
		_, err := store.GetRun(ctx, uuid.NewString())
		assert.ErrorIs(t, err, persistence.ErrRunNotFound)
	})

	t.Run("Update run status and node", func(t *testing.T) {
		run := NewRun(uuid.NewString(), base)
		require.NoError(t, store.CreateRun(ctx, run))

		require.NoError(t, store.UpdateRunStatusAndNode(ctx, run.ID, models.RunStatusInProgress, models.StringPtr("wait")))

		loaded, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded.CurrentNodeID)
		assert.Equal(t, "wait", *loaded.CurrentNodeID)
		assert.Equal(t, models.RunStatusInProgress, loaded.Status)
		assert.True(t, loaded.UpdatedAt.After(base), "updated_at must move forward")
		assert.Equal(t, run.Context, loaded.Context)

		require.NoError(t, store.UpdateRunStatusAndNode(ctx, run.ID, models.RunStatusCompleted, nil))

		loaded, err = store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Nil(t, loaded.CurrentNodeID)
		assert.Equal(t, models.RunStatusCompleted, loaded.Status)
	})

	t.Run("Update missing run", func(t *testing.T) {
		err := store.UpdateRunStatusAndNode(ctx, uuid.NewString(), models.RunStatusFailed, nil)
		assert.ErrorIs(t, err, persistence.ErrRunNotFound)
	})

	t.Run("Runs by journey and status", func(t *testing.T) {
		journeyID := uuid.NewString()
		first := NewRun(journeyID, base.Add(time.Minute))
		second := NewRun(journeyID, base.Add(2*time.Minute))
		other := NewRun(uuid.NewString(), base)

		for _, run := range []*models.Run{second, first, other} {
			require.NoError(t, store.CreateRun(ctx, run))
		}

		runs, err := store.RunsByJourney(ctx, journeyID)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, first.ID, runs[0].ID)
		assert.Equal(t, second.ID, runs[1].ID)

		require.NoError(t, store.UpdateRunStatusAndNode(ctx, first.ID, models.RunStatusFailed, models.StringPtr("remind")))

		failed, err := store.RunsByStatus(ctx, models.RunStatusFailed)
		require.NoError(t, err)
		assert.Contains(t, runIDs(failed), first.ID)
		assert.NotContains(t, runIDs(failed), second.ID)

		inProgress, err := store.RunsByStatus(ctx, models.RunStatusInProgress)
		require.NoError(t, err)
		assert.Contains(t, runIDs(inProgress), second.ID)
		assert.Contains(t, runIDs(inProgress), other.ID)
		assert.NotContains(t, runIDs(inProgress), first.ID)
	})

	t.Run("Runs of unknown journey", func(t *testing.T) {
		runs, err := store.RunsByJourney(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("Health check", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}

func runIDs(runs []*models.Run) []string {
	ids := make([]string, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
	}

	return ids
}
