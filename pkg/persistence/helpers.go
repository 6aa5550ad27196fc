package persistence

import (
	"sort"
	"time"

	"github.com/dukex/journey/pkg/models"
)

// SortJourneys orders journeys newest first, breaking ties by id.
func SortJourneys(journeys []*models.Journey) {
	sort.SliceStable(journeys, func(i, j int) bool {
		if journeys[i].CreatedAt.Equal(journeys[j].CreatedAt) {
			return journeys[i].ID < journeys[j].ID
		}

		return journeys[i].CreatedAt.After(journeys[j].CreatedAt)
	})
}

// SortRuns orders runs oldest first, breaking ties by id.
func SortRuns(runs []*models.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}

		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
}

// StampRun fills in missing timestamps on a run about to be created.
func StampRun(run *models.Run, now time.Time) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
}

// CopyNodeID returns a copy of a nullable node id.
func CopyNodeID(id *string) *string {
	if id == nil {
		return nil
	}

	value := *id

	return &value
}
