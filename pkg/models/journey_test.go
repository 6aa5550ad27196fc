package models_test

import (
	"encoding/json"
	"testing"

	"github.com/dukex/journey/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJourney() *models.Journey {
	return &models.Journey{
		ID:          "journey-1",
		Name:        "Post-op follow up",
		StartNodeID: "check_age",
		Nodes: models.NodeList{
			&models.ConditionalNode{
				ID:          "check_age",
				Condition:   models.Condition{Field: "patient.age", Operator: ">", Value: 65.0},
				TrueNodeID:  models.StringPtr("senior"),
				FalseNodeID: models.StringPtr("general"),
			},
			&models.MessageNode{ID: "senior", Message: "We will call you tomorrow", NextNodeID: models.StringPtr("wait")},
			&models.DelayNode{ID: "wait", DelaySeconds: 86400},
			&models.MessageNode{ID: "general", Message: "Remember your exercises"},
		},
	}
}

func TestJourney_JSONKeepsNodeVariants(t *testing.T) {
	t.Parallel()

	journey := sampleJourney()

	data, err := json.Marshal(journey)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"CONDITIONAL"`)
	assert.Contains(t, string(data), `"type":"DELAY"`)

	var decoded models.Journey
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Nodes, 4)

	cond, ok := decoded.Nodes[0].(*models.ConditionalNode)
	require.True(t, ok)
	assert.Equal(t, "patient.age", cond.Condition.Field)
	assert.Equal(t, "senior", *cond.TrueNodeID)

	delay, ok := decoded.Nodes[2].(*models.DelayNode)
	require.True(t, ok)
	assert.InDelta(t, 86400, delay.DelaySeconds, 0)
	assert.Nil(t, delay.NextNodeID)
}

func TestJourney_Node(t *testing.T) {
	t.Parallel()

	journey := sampleJourney()

	node, ok := journey.Node("wait")
	require.True(t, ok)
	assert.Equal(t, models.NodeTypeDelay, node.Type())

	assert.False(t, journey.HasNode("missing"))
}

func TestDecodeNode(t *testing.T) {
	t.Parallel()

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		_, err := models.DecodeNode(map[string]any{"id": "x", "type": "WEBHOOK"})
		assert.ErrorIs(t, err, models.ErrUnknownNodeType)
	})

	t.Run("legacy branch names", func(t *testing.T) {
		t.Parallel()

		node, err := models.DecodeNode(map[string]any{
			"id":                    "c1",
			"type":                  "CONDITIONAL",
			"condition":             map[string]any{"field": "age", "operator": ">=", "value": 18},
			"on_true_next_node_id":  "adult",
			"on_false_next_node_id": nil,
		})
		require.NoError(t, err)

		cond := node.(*models.ConditionalNode)
		assert.Equal(t, "adult", *cond.TrueNodeID)
		assert.Nil(t, cond.FalseNodeID)
		assert.Equal(t, 18, cond.Condition.Value)
	})

	t.Run("empty reference is treated as null", func(t *testing.T) {
		t.Parallel()

		node, err := models.DecodeNode(map[string]any{"id": "m1", "type": "MESSAGE", "message": "hi", "next_node_id": ""})
		require.NoError(t, err)
		assert.Nil(t, node.(*models.MessageNode).NextNodeID)
	})

	t.Run("wrong field type", func(t *testing.T) {
		t.Parallel()

		_, err := models.DecodeNode(map[string]any{"id": "d1", "type": "DELAY", "delay_seconds": "soon"})
		assert.ErrorIs(t, err, models.ErrInvalidNode)
	})
}

func TestSuccessors(t *testing.T) {
	t.Parallel()

	journey := sampleJourney()

	assert.ElementsMatch(t, []string{"senior", "general"}, models.Successors(journey.Nodes[0]))
	assert.Equal(t, []string{"wait"}, models.Successors(journey.Nodes[1]))
	assert.Empty(t, models.Successors(journey.Nodes[2]))
}
