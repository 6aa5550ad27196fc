package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/google/uuid"
)

// RunStarter hands a freshly created run to the execution engine.
type RunStarter interface {
	Start(ctx context.Context, runID string) error
}

type Journey struct {
	persistence persistence.Persistence
	starter     RunStarter
	logger      *slog.Logger

	inflight sync.WaitGroup
}

// NewJourney creates a new journey service.
func NewJourney(persistence persistence.Persistence, starter RunStarter, logger *slog.Logger) *Journey {
	return &Journey{
		persistence: persistence,
		starter:     starter,
		logger:      logger,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Journey) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateFromDocument checks a journey document against the journey schema,
// then creates the journey it describes.
func (s *Journey) CreateFromDocument(ctx context.Context, doc map[string]any) (*models.Journey, error) {
	journey, err := models.DecodeJourneyDocument(doc)
	if err != nil {
		return nil, NewValidationError("CreateFromDocument", "INVALID_DOCUMENT", err.Error(), ErrInvalidJourney)
	}

	return s.Create(ctx, journey)
}

// Create validates and stores a new journey. The journey id is generated.
func (s *Journey) Create(ctx context.Context, journey *models.Journey) (*models.Journey, error) {
	if err := ValidateJourney(journey); err != nil {
		return nil, err
	}

	journey.ID = uuid.New().String()
	journey.Name = strings.TrimSpace(journey.Name)
	journey.CreatedAt = time.Now().UTC()

	err := s.persistence.SaveJourney(ctx, journey)
	if err != nil {
		return nil, fmt.Errorf("failed to create journey: %w", err)
	}

	s.logger.InfoContext(ctx, "journey created", "journey_id", journey.ID, "nodes", len(journey.Nodes))

	return journey, nil
}

// List returns every journey, newest first.
func (s *Journey) List(ctx context.Context) ([]*models.Journey, error) {
	journeys, err := s.persistence.Journeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}

	return journeys, nil
}

// FetchByID retrieves a journey by its ID.
func (s *Journey) FetchByID(ctx context.Context, id string) (*models.Journey, error) {
	return s.persistence.GetJourney(ctx, id)
}

// Trigger creates an in_progress run of the journey with no current node and
// starts it in the background. The run is returned as soon as it is stored.
func (s *Journey) Trigger(ctx context.Context, journeyID string, runContext map[string]any) (*models.Run, error) {
	if _, err := s.persistence.GetJourney(ctx, journeyID); err != nil {
		return nil, err
	}

	if runContext == nil {
		runContext = map[string]any{}
	}

	run := &models.Run{
		ID:        uuid.New().String(),
		JourneyID: journeyID,
		Context:   runContext,
		Status:    models.RunStatusInProgress,
	}

	err := s.persistence.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.InfoContext(ctx, "journey triggered", "journey_id", journeyID, "run_id", run.ID)

	if s.starter != nil {
		s.inflight.Add(1)

		go func() {
			defer s.inflight.Done()

			startCtx := context.WithoutCancel(ctx)
			if err := s.starter.Start(startCtx, run.ID); err != nil {
				s.logger.ErrorContext(startCtx, "failed to start run", "run_id", run.ID, "error", err)
			}
		}()
	}

	return run, nil
}

// Wait blocks until every run started by Trigger has returned from its
// initial step loop.
func (s *Journey) Wait() {
	s.inflight.Wait()
}

// FetchRun retrieves a run by its ID.
func (s *Journey) FetchRun(ctx context.Context, runID string) (*models.Run, error) {
	return s.persistence.GetRun(ctx, runID)
}

// ListRuns returns the runs of a journey, oldest first.
func (s *Journey) ListRuns(ctx context.Context, journeyID string) ([]*models.Run, error) {
	if _, err := s.persistence.GetJourney(ctx, journeyID); err != nil {
		return nil, err
	}

	runs, err := s.persistence.RunsByJourney(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}
