package journey

import (
	"fmt"
	"math"
	"time"

	"github.com/dukex/journey/pkg/condition"
	"github.com/dukex/journey/pkg/models"
)

// TransitionKind is what the coordinator does after a node is interpreted.
type TransitionKind int

const (
	// Advance moves the run to NextNodeID and keeps stepping.
	Advance TransitionKind = iota
	// Complete ends the run successfully.
	Complete
	// Suspend keeps the run on the current delay node until the timer fires,
	// then resumes at NextNodeID (or completes when it is nil).
	Suspend
)

func (k TransitionKind) String() string {
	switch k {
	case Advance:
		return "advance"
	case Complete:
		return "complete"
	case Suspend:
		return "suspend"
	default:
		return fmt.Sprintf("TransitionKind(%d)", int(k))
	}
}

// Transition is the outcome of interpreting one node.
type Transition struct {
	Kind       TransitionKind
	NextNodeID *string
	Delay      time.Duration
	// Message is set for message nodes and must be emitted before the
	// transition is persisted.
	Message *string
	// Branch records the evaluated condition of a conditional node.
	Branch *bool
}

// Interpret computes the transition for node against the run context. It has
// no side effects; emitting, persisting and scheduling belong to the caller.
func Interpret(node models.Node, runContext map[string]any) (Transition, error) {
	switch n := node.(type) {
	case *models.MessageNode:
		message := n.Message

		return follow(n.NextNodeID, Transition{Message: &message}), nil
	case *models.DelayNode:
		return Transition{
			Kind:       Suspend,
			NextNodeID: n.NextNodeID,
			Delay:      delayDuration(n.DelaySeconds),
		}, nil
	case *models.ConditionalNode:
		matched, err := condition.Evaluate(runContext, n.Condition.Field, n.Condition.Operator, n.Condition.Value)
		if err != nil {
			return Transition{}, err
		}

		target := n.FalseNodeID
		if matched {
			target = n.TrueNodeID
		}

		return follow(target, Transition{Branch: &matched}), nil
	default:
		return Transition{}, fmt.Errorf("%w: %T", models.ErrUnknownNodeType, node)
	}
}

func follow(next *string, t Transition) Transition {
	if next == nil {
		t.Kind = Complete

		return t
	}

	t.Kind = Advance
	t.NextNodeID = next

	return t
}

// maxDelaySeconds is the longest delay a time.Duration can hold.
const maxDelaySeconds = float64(math.MaxInt64) / float64(time.Second)

// delayDuration converts delay_seconds, saturating at the largest Duration
// rather than wrapping to a negative one.
func delayDuration(seconds float64) time.Duration {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}

	if seconds >= maxDelaySeconds {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(seconds * float64(time.Second))
}
