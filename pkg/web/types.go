// Package web provides HTTP request and response types for the journey API.
package web

import (
	"time"

	"github.com/dukex/journey/pkg/models"
)

// CreateJourneyRequest represents the request body for creating a journey.
// Nodes are kept as documents so the journey schema can check them.
type CreateJourneyRequest struct {
	Name        string           `json:"name"          validate:"required"`
	StartNodeID string           `json:"start_node_id" validate:"required"`
	Nodes       []map[string]any `json:"nodes"         validate:"required,min=1,dive,required"`
}

// Document returns the request as a generic journey document.
func (r CreateJourneyRequest) Document() map[string]any {
	nodes := make([]any, len(r.Nodes))
	for i, node := range r.Nodes {
		nodes[i] = node
	}

	return map[string]any{
		"name":          r.Name,
		"start_node_id": r.StartNodeID,
		"nodes":         nodes,
	}
}

type CreateJourneyResponse struct {
	JourneyID string `json:"journey_id"`
}

// TriggerJourneyRequest represents the request body for triggering a journey.
// Older clients send the run context as patient_context.
type TriggerJourneyRequest struct {
	Context        map[string]any `json:"context"         validate:"required_without=PatientContext"`
	PatientContext map[string]any `json:"patient_context" validate:"required_without=Context"`
}

// RunContext returns whichever context the client sent.
func (r TriggerJourneyRequest) RunContext() map[string]any {
	if r.Context != nil {
		return r.Context
	}

	return r.PatientContext
}

type TriggerJourneyResponse struct {
	RunID string `json:"run_id"`
}

// RunResponse is a run with RFC 3339 timestamps.
type RunResponse struct {
	ID            string           `json:"id"`
	JourneyID     string           `json:"journey_id"`
	Context       map[string]any   `json:"context"`
	Status        models.RunStatus `json:"status"`
	CurrentNodeID *string          `json:"current_node_id"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
}

func NewRunResponse(run *models.Run) RunResponse {
	return RunResponse{
		ID:            run.ID,
		JourneyID:     run.JourneyID,
		Context:       run.Context,
		Status:        run.Status,
		CurrentNodeID: run.CurrentNodeID,
		CreatedAt:     run.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     run.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func NewRunResponses(runs []*models.Run) []RunResponse {
	responses := make([]RunResponse, len(runs))
	for i, run := range runs {
		responses[i] = NewRunResponse(run)
	}

	return responses
}
