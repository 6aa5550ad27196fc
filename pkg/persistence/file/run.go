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

// CreateRun writes a new run file.
func (fp *Persistence) CreateRun(_ context.Context, run *models.Run) error {
	if err := validateID(run.ID); err != nil {
		return persistence.NewRunError("Create", run.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.exists(runsDir, run.ID) {
		return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
	}

	stored := run.Clone()
	persistence.StampRun(stored, time.Now().UTC())

	return fp.write(runsDir, run.ID, stored)
}

// GetRun reads one run file.
func (fp *Persistence) GetRun(_ context.Context, id string) (*models.Run, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewRunError("Get", id, err)
	}

	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.getRun(id)
}

func (fp *Persistence) getRun(id string) (*models.Run, error) {
	var run models.Run

	err := fp.read(runsDir, id, &run)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewRunError("Get", id, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}

	return &run, nil
}

// UpdateRunStatusAndNode rewrites the run file with the new position.
func (fp *Persistence) UpdateRunStatusAndNode(_ context.Context, id string, status models.RunStatus, nodeID *string) error {
	if err := validateID(id); err != nil {
		return persistence.NewRunError("Update", id, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	run, err := fp.getRun(id)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return persistence.NewRunError("Update", id, persistence.ErrRunNotFound)
		}

		return err
	}

	run.Status = status
	run.CurrentNodeID = persistence.CopyNodeID(nodeID)
	run.UpdatedAt = time.Now().UTC()

	return fp.write(runsDir, id, run)
}

// RunsByJourney scans every run file for the journey.
func (fp *Persistence) RunsByJourney(_ context.Context, journeyID string) ([]*models.Run, error) {
	return fp.filterRuns(func(run *models.Run) bool { return run.JourneyID == journeyID })
}

// RunsByStatus scans every run file for the status.
func (fp *Persistence) RunsByStatus(_ context.Context, status models.RunStatus) ([]*models.Run, error) {
	return fp.filterRuns(func(run *models.Run) bool { return run.Status == status })
}

func (fp *Persistence) filterRuns(match func(*models.Run) bool) ([]*models.Run, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	runs := make([]*models.Run, 0)

	err := each(fp, runsDir, func(run *models.Run) {
		if match(run) {
			runs = append(runs, run)
		}
	})
	if err != nil {
		return nil, err
	}

	persistence.SortRuns(runs)

	return runs, nil
}
