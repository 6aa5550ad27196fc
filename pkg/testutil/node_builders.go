// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/journey/pkg/models"
	"github.com/google/uuid"
)

// Message creates a message node. An empty next completes the run.
func Message(id, message, next string) *models.MessageNode {
	return &models.MessageNode{ID: id, Message: message, NextNodeID: ref(next)}
}

// Delay creates a delay node. An empty next completes the run.
func Delay(id string, seconds float64, next string) *models.DelayNode {
	return &models.DelayNode{ID: id, DelaySeconds: seconds, NextNodeID: ref(next)}
}

// Conditional creates a conditional node. Empty branches complete the run.
func Conditional(id, field, operator string, value any, whenTrue, whenFalse string) *models.ConditionalNode {
	return &models.ConditionalNode{
		ID:          id,
		Condition:   models.Condition{Field: field, Operator: operator, Value: value},
		TrueNodeID:  ref(whenTrue),
		FalseNodeID: ref(whenFalse),
	}
}

// CreateTestJourney creates a journey with a random id.
func CreateTestJourney(startNodeID string, nodes ...models.Node) *models.Journey {
	return &models.Journey{
		ID:          uuid.New().String(),
		Name:        "Test Journey",
		StartNodeID: startNodeID,
		Nodes:       nodes,
	}
}

// CreateTestRun creates an in_progress run of journeyID with no current node.
func CreateTestRun(journeyID string, runContext map[string]any, overrides ...func(*models.Run)) *models.Run {
	run := &models.Run{
		ID:        uuid.New().String(),
		JourneyID: journeyID,
		Context:   runContext,
		Status:    models.RunStatusInProgress,
	}

	for _, override := range overrides {
		override(run)
	}

	return run
}

// WithCurrentNode positions the run on nodeID.
func WithCurrentNode(nodeID string) func(*models.Run) {
	return func(r *models.Run) {
		r.CurrentNodeID = &nodeID
	}
}

func ref(id string) *string {
	if id == "" {
		return nil
	}

	return &id
}
