package models_test

import (
	"testing"

	"github.com/dukex/journey/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlJourney = `
name: Knee replacement recovery
start_node_id: welcome
nodes:
  - id: welcome
    type: MESSAGE
    message: Welcome to your recovery program
    next_node_id: pause
  - id: pause
    type: DELAY
    delay_seconds: 2
    next_node_id: language
  - id: language
    type: CONDITIONAL
    condition:
      field: patient.language
      operator: "="
      value: es
    true_node_id: spanish
    false_node_id: null
  - id: spanish
    type: MESSAGE
    message: Bienvenido
`

func TestParseJourneyDocument_YAML(t *testing.T) {
	t.Parallel()

	journey, err := models.ParseJourneyDocument([]byte(yamlJourney))
	require.NoError(t, err)

	assert.Equal(t, "Knee replacement recovery", journey.Name)
	assert.Equal(t, "welcome", journey.StartNodeID)
	require.Len(t, journey.Nodes, 4)

	delay := journey.Nodes[1].(*models.DelayNode)
	assert.InDelta(t, 2, delay.DelaySeconds, 0)

	cond := journey.Nodes[2].(*models.ConditionalNode)
	assert.Equal(t, "es", cond.Condition.Value)
	assert.Nil(t, cond.FalseNodeID)
}

func TestParseJourneyDocument_JSON(t *testing.T) {
	t.Parallel()

	doc := `{"name":"A","start_node_id":"m1","nodes":[{"id":"m1","type":"MESSAGE","message":"hi","next_node_id":null}]}`

	journey, err := models.ParseJourneyDocument([]byte(doc))
	require.NoError(t, err)
	require.Len(t, journey.Nodes, 1)
	assert.Equal(t, models.NodeTypeMessage, journey.Nodes[0].Type())
}

func TestParseJourneyDocument_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		document string
	}{
		{name: "empty document", document: ""},
		{name: "missing nodes", document: `{"name":"A","start_node_id":"m1"}`},
		{name: "no nodes", document: `{"name":"A","start_node_id":"m1","nodes":[]}`},
		{name: "unknown node type", document: `{"name":"A","start_node_id":"m1","nodes":[{"id":"m1","type":"SMS"}]}`},
		{name: "negative delay", document: `{"name":"A","start_node_id":"d1","nodes":[{"id":"d1","type":"DELAY","delay_seconds":-1}]}`},
		{name: "condition without operator", document: `{"name":"A","start_node_id":"c1","nodes":[{"id":"c1","type":"CONDITIONAL","condition":{"field":"age"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := models.ParseJourneyDocument([]byte(tt.document))
			assert.ErrorIs(t, err, models.ErrInvalidDocument)
		})
	}
}
