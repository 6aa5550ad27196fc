package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

// Journeys returns every journey on disk, newest first.
func (fp *Persistence) Journeys(_ context.Context) ([]*models.Journey, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	journeys := make([]*models.Journey, 0)

	err := each(fp, journeysDir, func(journey *models.Journey) {
		journeys = append(journeys, journey)
	})
	if err != nil {
		return nil, err
	}

	persistence.SortJourneys(journeys)

	return journeys, nil
}

// SaveJourney writes a new journey file.
func (fp *Persistence) SaveJourney(_ context.Context, journey *models.Journey) error {
	if err := validateID(journey.ID); err != nil {
		return persistence.NewJourneyError("Save", journey.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.exists(journeysDir, journey.ID) {
		return persistence.NewJourneyError("Save", journey.ID, persistence.ErrJourneyAlreadyExists)
	}

	stored := *journey
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	return fp.write(journeysDir, journey.ID, &stored)
}

// GetJourney reads one journey file.
func (fp *Persistence) GetJourney(_ context.Context, id string) (*models.Journey, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewJourneyError("Get", id, err)
	}

	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var journey models.Journey

	err := fp.read(journeysDir, id, &journey)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewJourneyError("Get", id, persistence.ErrJourneyNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read journey %s: %w", id, err)
	}

	return &journey, nil
}
