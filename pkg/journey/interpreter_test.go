package journey_test

import (
	"math"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/condition"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpret(t *testing.T) {
	t.Parallel()

	ctx := map[string]any{"age": 70}

	tests := []struct {
		name     string
		node     models.Node
		kind     journey.TransitionKind
		next     *string
		delay    time.Duration
		message  *string
		branched *bool
	}{
		{
			name:    "message with successor",
			node:    &models.MessageNode{ID: "m1", Message: "hi", NextNodeID: models.StringPtr("m2")},
			kind:    journey.Advance,
			next:    models.StringPtr("m2"),
			message: models.StringPtr("hi"),
		},
		{
			name:    "last message",
			node:    &models.MessageNode{ID: "m1", Message: "bye"},
			kind:    journey.Complete,
			message: models.StringPtr("bye"),
		},
		{
			name:  "delay",
			node:  &models.DelayNode{ID: "d1", DelaySeconds: 1.5, NextNodeID: models.StringPtr("m1")},
			kind:  journey.Suspend,
			next:  models.StringPtr("m1"),
			delay: 1500 * time.Millisecond,
		},
		{
			name: "zero delay without successor",
			node: &models.DelayNode{ID: "d1"},
			kind: journey.Suspend,
		},
		{
			name: "negative delay is clamped",
			node: &models.DelayNode{ID: "d1", DelaySeconds: -3},
			kind: journey.Suspend,
		},
		{
			name:  "delay beyond Duration range saturates",
			node:  &models.DelayNode{ID: "d1", DelaySeconds: 1e10, NextNodeID: models.StringPtr("m1")},
			kind:  journey.Suspend,
			next:  models.StringPtr("m1"),
			delay: time.Duration(math.MaxInt64),
		},
		{
			name:  "infinite delay saturates",
			node:  &models.DelayNode{ID: "d1", DelaySeconds: math.Inf(1)},
			kind:  journey.Suspend,
			delay: time.Duration(math.MaxInt64),
		},
		{
			name: "NaN delay is clamped",
			node: &models.DelayNode{ID: "d1", DelaySeconds: math.NaN()},
			kind: journey.Suspend,
		},
		{
			name: "condition true",
			node: &models.ConditionalNode{
				ID:          "c1",
				Condition:   models.Condition{Field: "age", Operator: ">", Value: 65},
				TrueNodeID:  models.StringPtr("senior"),
				FalseNodeID: models.StringPtr("general"),
			},
			kind:     journey.Advance,
			next:     models.StringPtr("senior"),
			branched: boolPtr(true),
		},
		{
			name: "condition false",
			node: &models.ConditionalNode{
				ID:          "c1",
				Condition:   models.Condition{Field: "age", Operator: "<", Value: 65},
				TrueNodeID:  models.StringPtr("senior"),
				FalseNodeID: models.StringPtr("general"),
			},
			kind:     journey.Advance,
			next:     models.StringPtr("general"),
			branched: boolPtr(false),
		},
		{
			name: "selected branch is null",
			node: &models.ConditionalNode{
				ID:          "c1",
				Condition:   models.Condition{Field: "age", Operator: "=", Value: "70"},
				FalseNodeID: models.StringPtr("general"),
			},
			kind:     journey.Complete,
			branched: boolPtr(true),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transition, err := journey.Interpret(tt.node, ctx)
			require.NoError(t, err)

			assert.Equal(t, tt.kind, transition.Kind)
			assert.Equal(t, tt.next, transition.NextNodeID)
			assert.Equal(t, tt.delay, transition.Delay)
			assert.Equal(t, tt.message, transition.Message)
			assert.Equal(t, tt.branched, transition.Branch)
		})
	}
}

func TestInterpret_UnsupportedOperator(t *testing.T) {
	t.Parallel()

	node := &models.ConditionalNode{
		ID:        "c1",
		Condition: models.Condition{Field: "age", Operator: "contains", Value: 1},
	}

	_, err := journey.Interpret(node, map[string]any{"age": 1})

	var unsupported *condition.UnsupportedOperatorError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "contains", unsupported.Operator)
}

func TestTransitionKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "advance", journey.Advance.String())
	assert.Equal(t, "complete", journey.Complete.String())
	assert.Equal(t, "suspend", journey.Suspend.String())
	assert.Equal(t, "TransitionKind(9)", journey.TransitionKind(9).String())
}

func boolPtr(b bool) *bool {
	return &b
}
