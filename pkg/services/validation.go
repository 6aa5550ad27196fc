package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/dukex/journey/pkg/condition"
	"github.com/dukex/journey/pkg/models"
)

// ValidateJourney checks the graph consistency of a journey and returns a
// ValidationError listing every problem, or nil when the journey is runnable.
func ValidateJourney(journey *models.Journey) error {
	if journey == nil {
		return ErrJourneyNil
	}

	var problems []string

	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(journey.Name) == "" {
		addf("name is required")
	}

	if len(journey.Nodes) == 0 {
		addf("journey must have at least one node")
	}

	ids := make(map[string]struct{}, len(journey.Nodes))

	for i, node := range journey.Nodes {
		if node == nil {
			addf("node at index %d is empty", i)

			continue
		}

		id := node.NodeID()
		if id == "" {
			addf("node at index %d has no id", i)

			continue
		}

		if _, dup := ids[id]; dup {
			addf("duplicate node id %q", id)
		}

		ids[id] = struct{}{}

		problems = append(problems, nodeProblems(node)...)
	}

	if journey.StartNodeID == "" {
		addf("start_node_id is required")
	} else if _, ok := ids[journey.StartNodeID]; !ok && len(journey.Nodes) > 0 {
		addf("start node %q does not exist", journey.StartNodeID)
	}

	for _, node := range journey.Nodes {
		if node == nil {
			continue
		}

		for _, next := range models.Successors(node) {
			if _, ok := ids[next]; !ok {
				addf("node %q references unknown node %q", node.NodeID(), next)
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	return nil
}

func nodeProblems(node models.Node) []string {
	var problems []string

	switch n := node.(type) {
	case *models.MessageNode:
		if n.Message == "" {
			problems = append(problems, fmt.Sprintf("message node %q has an empty message", n.ID))
		}
	case *models.DelayNode:
		if n.DelaySeconds < 0 || math.IsNaN(n.DelaySeconds) || math.IsInf(n.DelaySeconds, 0) {
			problems = append(problems, fmt.Sprintf("delay node %q must wait a finite, non-negative number of seconds", n.ID))
		}
	case *models.ConditionalNode:
		if n.Condition.Field == "" {
			problems = append(problems, fmt.Sprintf("conditional node %q has no field", n.ID))
		}

		if !condition.IsSupported(n.Condition.Operator) {
			problems = append(problems, fmt.Sprintf("conditional node %q uses unsupported operator %q", n.ID, n.Condition.Operator))
		}
	}

	return problems
}
