package models

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// IsTerminal reports whether no further transition is possible from the status.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

func (s RunStatus) Valid() bool {
	return s == RunStatusInProgress || s.IsTerminal()
}

// Run is one execution of a journey against a context.
//
// While the run is in progress CurrentNodeID identifies the node being processed,
// or the delay node the run is waiting on. A completed run has no current node;
// a failed run keeps the last node the engine attempted to process.
type Run struct {
	ID            string         `json:"id"`
	JourneyID     string         `json:"journey_id"`
	Context       map[string]any `json:"context"`
	Status        RunStatus      `json:"status"`
	CurrentNodeID *string        `json:"current_node_id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the run, including its context.
func (r *Run) Clone() *Run {
	clone := *r
	clone.Context = CloneContext(r.Context)

	if r.CurrentNodeID != nil {
		id := *r.CurrentNodeID
		clone.CurrentNodeID = &id
	}

	return &clone
}

// CloneContext deep-copies nested maps and slices of a run context.
func CloneContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}

	clone := make(map[string]any, len(ctx))
	for k, v := range ctx {
		clone[k] = cloneValue(v)
	}

	return clone
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return CloneContext(value)
	case []any:
		items := make([]any, len(value))
		for i, item := range value {
			items[i] = cloneValue(item)
		}

		return items
	default:
		return value
	}
}
