// Package persistence provides the storage abstraction for journeys and runs.
package persistence

import (
	"context"

	"github.com/dukex/journey/pkg/models"
)

// Persistence is the read/write contract every storage backend implements.
type Persistence interface {
	// Journeys returns every stored journey, newest first.
	Journeys(ctx context.Context) ([]*models.Journey, error)
	// SaveJourney stores a new journey. Journeys are immutable, so saving an
	// existing id fails with ErrJourneyAlreadyExists.
	SaveJourney(ctx context.Context, journey *models.Journey) error
	GetJourney(ctx context.Context, id string) (*models.Journey, error)

	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	// UpdateRunStatusAndNode writes the run's state machine position and bumps updated_at.
	UpdateRunStatusAndNode(ctx context.Context, id string, status models.RunStatus, nodeID *string) error
	RunsByJourney(ctx context.Context, journeyID string) ([]*models.Run, error)
	RunsByStatus(ctx context.Context, status models.RunStatus) ([]*models.Run, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
