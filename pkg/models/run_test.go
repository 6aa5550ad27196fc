package models_test

import (
	"testing"

	"github.com/dukex/journey/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestRunStatus(t *testing.T) {
	t.Parallel()

	assert.False(t, models.RunStatusInProgress.IsTerminal())
	assert.True(t, models.RunStatusCompleted.IsTerminal())
	assert.True(t, models.RunStatusFailed.IsTerminal())
	assert.True(t, models.RunStatusFailed.Valid())
	assert.False(t, models.RunStatus("cancelled").Valid())
}

func TestRun_CloneIsDeep(t *testing.T) {
	t.Parallel()

	run := &models.Run{
		ID:            "run-1",
		Context:       map[string]any{"patient": map[string]any{"age": 70}, "tags": []any{"a"}},
		Status:        models.RunStatusInProgress,
		CurrentNodeID: models.StringPtr("m1"),
	}

	clone := run.Clone()
	clone.Context["patient"].(map[string]any)["age"] = 10
	clone.Context["tags"].([]any)[0] = "b"
	*clone.CurrentNodeID = "m2"

	assert.Equal(t, 70, run.Context["patient"].(map[string]any)["age"])
	assert.Equal(t, "a", run.Context["tags"].([]any)[0])
	assert.Equal(t, "m1", *run.CurrentNodeID)
}
