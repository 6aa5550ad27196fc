// Package redis provides Redis persistence for journeys and runs.
//
// Records are stored as JSON strings. A sorted set indexes journeys by
// creation time, and plain sets index runs by journey and by status.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	json "github.com/goccy/go-json"
	backend "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix     = "journey:"
	maxUpdateAttempts = 5
)

var errUpdateConflict = errors.New("run changed concurrently")

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client *backend.Client
	prefix string
}

type Option func(*Persistence)

// WithPrefix sets the prefix of every key written by the store.
func WithPrefix(prefix string) Option {
	return func(p *Persistence) {
		p.prefix = prefix
	}
}

// NewPersistence connects to the Redis server described by a redis:// URL.
func NewPersistence(ctx context.Context, redisURL string, opts ...Option) (*Persistence, error) {
	options, err := backend.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	p := NewFromClient(backend.NewClient(options), opts...)

	err = p.HealthCheck(ctx)
	if err != nil {
		_ = p.client.Close()

		return nil, err
	}

	return p, nil
}

// NewFromClient creates the store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Persistence {
	p := &Persistence{
		client: client,
		prefix: defaultPrefix,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Persistence) journeyKey(id string) string {
	return p.prefix + "journey:" + id
}

func (p *Persistence) journeyIndexKey() string {
	return p.prefix + "journeys"
}

func (p *Persistence) runKey(id string) string {
	return p.prefix + "run:" + id
}

func (p *Persistence) journeyRunsKey(journeyID string) string {
	return p.prefix + "journey-runs:" + journeyID
}

func (p *Persistence) statusKey(status models.RunStatus) string {
	return p.prefix + "runs:" + string(status)
}

func (p *Persistence) Journeys(ctx context.Context) ([]*models.Journey, error) {
	ids, err := p.client.ZRevRange(ctx, p.journeyIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.journeyKey(id)
	}

	journeys, err := fetchAll[models.Journey](ctx, p.client, keys)
	if err != nil {
		return nil, err
	}

	persistence.SortJourneys(journeys)

	return journeys, nil
}

func (p *Persistence) SaveJourney(ctx context.Context, journey *models.Journey) error {
	stored := *journey
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal journey: %w", err)
	}

	created, err := p.client.SetNX(ctx, p.journeyKey(journey.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save journey %s: %w", journey.ID, err)
	}

	if !created {
		return persistence.NewJourneyError("Save", journey.ID, persistence.ErrJourneyAlreadyExists)
	}

	err = p.client.ZAdd(ctx, p.journeyIndexKey(), backend.Z{
		Score:  float64(stored.CreatedAt.UnixMilli()),
		Member: journey.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index journey %s: %w", journey.ID, err)
	}

	return nil
}

func (p *Persistence) GetJourney(ctx context.Context, id string) (*models.Journey, error) {
	var journey models.Journey

	err := get(ctx, p.client, p.journeyKey(id), &journey)
	if errors.Is(err, backend.Nil) {
		return nil, persistence.NewJourneyError("Get", id, persistence.ErrJourneyNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get journey %s: %w", id, err)
	}

	return &journey, nil
}

func (p *Persistence) CreateRun(ctx context.Context, run *models.Run) error {
	stored := run.Clone()
	persistence.StampRun(stored, time.Now().UTC())

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	created, err := p.client.SetNX(ctx, p.runKey(run.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}

	if !created {
		return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
	}

	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, p.journeyRunsKey(stored.JourneyID), stored.ID)
	pipe.SAdd(ctx, p.statusKey(stored.Status), stored.ID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to index run %s: %w", run.ID, err)
	}

	return nil
}

func (p *Persistence) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run

	err := get(ctx, p.client, p.runKey(id), &run)
	if errors.Is(err, backend.Nil) {
		return nil, persistence.NewRunError("Get", id, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	return &run, nil
}

// UpdateRunStatusAndNode rewrites the run and moves it between status sets in
// one optimistic transaction, retrying when another writer got there first.
func (p *Persistence) UpdateRunStatusAndNode(ctx context.Context, id string, status models.RunStatus, nodeID *string) error {
	key := p.runKey(id)

	update := func(tx *backend.Tx) error {
		var run models.Run

		err := get(ctx, tx, key, &run)
		if errors.Is(err, backend.Nil) {
			return persistence.NewRunError("Update", id, persistence.ErrRunNotFound)
		}

		if err != nil {
			return err
		}

		previous := run.Status
		run.Status = status
		run.CurrentNodeID = persistence.CopyNodeID(nodeID)
		run.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SRem(ctx, p.statusKey(previous), id)
			pipe.SAdd(ctx, p.statusKey(status), id)

			return nil
		})

		return err
	}

	for range maxUpdateAttempts {
		err := p.client.Watch(ctx, update, key)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}

		if err != nil && !persistence.IsRunNotFound(err) {
			return fmt.Errorf("failed to update run %s: %w", id, err)
		}

		return err
	}

	return persistence.NewRunError("Update", id, errUpdateConflict)
}

func (p *Persistence) RunsByJourney(ctx context.Context, journeyID string) ([]*models.Run, error) {
	return p.runsInSet(ctx, p.journeyRunsKey(journeyID))
}

func (p *Persistence) RunsByStatus(ctx context.Context, status models.RunStatus) ([]*models.Run, error) {
	return p.runsInSet(ctx, p.statusKey(status))
}

func (p *Persistence) runsInSet(ctx context.Context, setKey string) ([]*models.Run, error) {
	ids, err := p.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.runKey(id)
	}

	runs, err := fetchAll[models.Run](ctx, p.client, keys)
	if err != nil {
		return nil, err
	}

	persistence.SortRuns(runs)

	return runs, nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func get(ctx context.Context, client backend.Cmdable, key string, target any) error {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, target)
}

// fetchAll loads every key with one MGET, skipping keys that vanished.
func fetchAll[T any](ctx context.Context, client backend.Cmdable, keys []string) ([]*T, error) {
	records := make([]*T, 0, len(keys))
	if len(keys) == 0 {
		return records, nil
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		record := new(T)
		if err := json.Unmarshal([]byte(raw), record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", keys[i], err)
		}

		records = append(records, record)
	}

	return records, nil
}
