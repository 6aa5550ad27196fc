// Package badger provides embedded persistence for journeys and runs on BadgerDB.
//
// Records are JSON values under "journey:" and "run:" keys. Runs are indexed
// by journey and by status through empty-valued keys whose suffix is the run id.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	json "github.com/goccy/go-json"
)

const (
	journeyPrefix      = "journey:"
	runPrefix          = "run:"
	journeyIndexPrefix = "idx:journey-run:"
	statusIndexPrefix  = "idx:status:"
)

// Persistence implements persistence.Persistence on an embedded Badger database.
type Persistence struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewPersistence opens the database stored in dir. A "badger://" prefix is
// accepted; an empty dir or "memory" opens an in-memory database.
func NewPersistence(dir string, logger *slog.Logger) (*Persistence, error) {
	dir = strings.TrimPrefix(dir, "badger://")

	opts := badger.DefaultOptions(dir).WithLogger(&slogAdapter{logger: logger})
	if dir == "" || dir == "memory" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(&slogAdapter{logger: logger})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &Persistence{db: db, logger: logger}, nil
}

func journeyKey(id string) []byte {
	return []byte(journeyPrefix + id)
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

func journeyRunPrefix(journeyID string) string {
	return journeyIndexPrefix + journeyID + ":"
}

func statusPrefix(status models.RunStatus) string {
	return statusIndexPrefix + string(status) + ":"
}

func (p *Persistence) Journeys(_ context.Context) ([]*models.Journey, error) {
	journeys := make([]*models.Journey, 0)

	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(journeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var journey models.Journey

			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &journey)
			})
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}

			journeys = append(journeys, &journey)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	persistence.SortJourneys(journeys)

	return journeys, nil
}

func (p *Persistence) SaveJourney(_ context.Context, journey *models.Journey) error {
	stored := *journey
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal journey: %w", err)
	}

	return p.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(journeyKey(journey.ID))
		if err == nil {
			return persistence.NewJourneyError("Save", journey.ID, persistence.ErrJourneyAlreadyExists)
		}

		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		return txn.Set(journeyKey(journey.ID), data)
	})
}

func (p *Persistence) GetJourney(_ context.Context, id string) (*models.Journey, error) {
	var journey models.Journey

	err := p.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, journeyKey(id), &journey)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, persistence.NewJourneyError("Get", id, persistence.ErrJourneyNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get journey %s: %w", id, err)
	}

	return &journey, nil
}

func (p *Persistence) CreateRun(_ context.Context, run *models.Run) error {
	stored := run.Clone()
	persistence.StampRun(stored, time.Now().UTC())

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	return p.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(runKey(run.ID))
		if err == nil {
			return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
		}

		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		err = txn.Set(runKey(run.ID), data)
		if err != nil {
			return err
		}

		err = txn.Set([]byte(journeyRunPrefix(stored.JourneyID)+run.ID), []byte{})
		if err != nil {
			return err
		}

		return txn.Set([]byte(statusPrefix(stored.Status)+run.ID), []byte{})
	})
}

func (p *Persistence) GetRun(_ context.Context, id string) (*models.Run, error) {
	var run models.Run

	err := p.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, runKey(id), &run)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, persistence.NewRunError("Get", id, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	return &run, nil
}

func (p *Persistence) UpdateRunStatusAndNode(_ context.Context, id string, status models.RunStatus, nodeID *string) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		var run models.Run

		err := getJSON(txn, runKey(id), &run)
		if err != nil {
			return err
		}

		err = txn.Delete([]byte(statusPrefix(run.Status) + id))
		if err != nil {
			return err
		}

		run.Status = status
		run.CurrentNodeID = persistence.CopyNodeID(nodeID)
		run.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}

		err = txn.Set(runKey(id), data)
		if err != nil {
			return err
		}

		return txn.Set([]byte(statusPrefix(status)+id), []byte{})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return persistence.NewRunError("Update", id, persistence.ErrRunNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}

	return nil
}

func (p *Persistence) RunsByJourney(_ context.Context, journeyID string) ([]*models.Run, error) {
	return p.runsByIndex(journeyRunPrefix(journeyID))
}

func (p *Persistence) RunsByStatus(_ context.Context, status models.RunStatus) ([]*models.Run, error) {
	return p.runsByIndex(statusPrefix(status))
}

func (p *Persistence) runsByIndex(prefix string) ([]*models.Run, error) {
	runs := make([]*models.Run, 0)

	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), prefix)

			var run models.Run

			err := getJSON(txn, runKey(id), &run)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}

			if err != nil {
				return err
			}

			runs = append(runs, &run)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	persistence.SortRuns(runs)

	return runs, nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if p.db.IsClosed() {
		return errors.New("badger database is closed")
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}

func getJSON(txn *badger.Txn, key []byte, target any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, target)
	})
}

// slogAdapter routes badger's printf-style logging into slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a *slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a *slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a *slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
