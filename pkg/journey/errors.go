package journey

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedReference is the cause of a run failed because its journey
	// or a node it had to visit could not be found.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrSchedulerStopped is returned when scheduling after Stop.
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrStepLimitExceeded fails a run that keeps advancing without ever
	// suspending or completing, which only a cyclic journey can do.
	ErrStepLimitExceeded = errors.New("step limit exceeded")

	// ErrStepPanicked wraps a panic recovered while interpreting a node.
	ErrStepPanicked = errors.New("step panicked")
)

// UnresolvedReferenceError names the journey and node that could not be resolved.
// NodeID is empty when the journey itself is missing.
type UnresolvedReferenceError struct {
	JourneyID string
	NodeID    string
	Err       error
}

func (e *UnresolvedReferenceError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("journey %s could not be loaded: %v", e.JourneyID, e.Err)
	}

	return fmt.Sprintf("node %s not found in journey %s", e.NodeID, e.JourneyID)
}

func (e *UnresolvedReferenceError) Unwrap() error {
	return e.Err
}

func (e *UnresolvedReferenceError) Is(target error) bool {
	return target == ErrUnresolvedReference
}

func missingNode(journeyID, nodeID string) error {
	return &UnresolvedReferenceError{JourneyID: journeyID, NodeID: nodeID}
}

func missingJourney(journeyID string, err error) error {
	return &UnresolvedReferenceError{JourneyID: journeyID, Err: err}
}
