// Package memory provides an in-process persistence implementation used by the runner and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

// Persistence keeps journeys and runs in maps guarded by a mutex. Records are
// copied on the way in and out so callers never share state with the store.
type Persistence struct {
	mu       sync.RWMutex
	journeys map[string]*models.Journey
	runs     map[string]*models.Run
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		journeys: make(map[string]*models.Journey),
		runs:     make(map[string]*models.Run),
	}
}

func (p *Persistence) Journeys(_ context.Context) ([]*models.Journey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	journeys := make([]*models.Journey, 0, len(p.journeys))
	for _, journey := range p.journeys {
		journeys = append(journeys, copyJourney(journey))
	}

	persistence.SortJourneys(journeys)

	return journeys, nil
}

func (p *Persistence) SaveJourney(_ context.Context, journey *models.Journey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.journeys[journey.ID]; exists {
		return persistence.NewJourneyError("Save", journey.ID, persistence.ErrJourneyAlreadyExists)
	}

	stored := copyJourney(journey)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	p.journeys[journey.ID] = stored

	return nil
}

func (p *Persistence) GetJourney(_ context.Context, id string) (*models.Journey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	journey, ok := p.journeys[id]
	if !ok {
		return nil, persistence.NewJourneyError("Get", id, persistence.ErrJourneyNotFound)
	}

	return copyJourney(journey), nil
}

func (p *Persistence) CreateRun(_ context.Context, run *models.Run) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.runs[run.ID]; exists {
		return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
	}

	stored := run.Clone()
	persistence.StampRun(stored, time.Now().UTC())
	p.runs[run.ID] = stored

	return nil
}

func (p *Persistence) GetRun(_ context.Context, id string) (*models.Run, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	run, ok := p.runs[id]
	if !ok {
		return nil, persistence.NewRunError("Get", id, persistence.ErrRunNotFound)
	}

	return run.Clone(), nil
}

func (p *Persistence) UpdateRunStatusAndNode(_ context.Context, id string, status models.RunStatus, nodeID *string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	run, ok := p.runs[id]
	if !ok {
		return persistence.NewRunError("Update", id, persistence.ErrRunNotFound)
	}

	run.Status = status
	run.CurrentNodeID = persistence.CopyNodeID(nodeID)
	run.UpdatedAt = time.Now().UTC()

	return nil
}

func (p *Persistence) RunsByJourney(_ context.Context, journeyID string) ([]*models.Run, error) {
	return p.filterRuns(func(run *models.Run) bool { return run.JourneyID == journeyID }), nil
}

func (p *Persistence) RunsByStatus(_ context.Context, status models.RunStatus) ([]*models.Run, error) {
	return p.filterRuns(func(run *models.Run) bool { return run.Status == status }), nil
}

func (p *Persistence) filterRuns(match func(*models.Run) bool) []*models.Run {
	p.mu.RLock()
	defer p.mu.RUnlock()

	runs := make([]*models.Run, 0)

	for _, run := range p.runs {
		if match(run) {
			runs = append(runs, run.Clone())
		}
	}

	persistence.SortRuns(runs)

	return runs
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// copyJourney copies the journey and its node slice. Nodes themselves are
// never mutated after decoding, so they are shared.
func copyJourney(journey *models.Journey) *models.Journey {
	clone := *journey
	clone.Nodes = append(models.NodeList(nil), journey.Nodes...)

	return &clone
}
