package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
)

// JourneyRepository handles journey-related database operations.
type JourneyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJourneyRepository creates a new journey repository.
func NewJourneyRepository(db *sql.DB, logger *slog.Logger) *JourneyRepository {
	return &JourneyRepository{db: db, logger: logger}
}

const selectJourney = `
	SELECT
		id
	  , name
	  , start_node_id
	  , nodes
	  , created_at
	FROM journeys
`

// Journeys returns all journeys, newest first.
func (r *JourneyRepository) Journeys(ctx context.Context) ([]*models.Journey, error) {
	rows, err := r.db.QueryContext(ctx, selectJourney+" ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query journeys: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}

		journeys = append(journeys, journey)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating journeys: %w", err)
	}

	return journeys, nil
}

// GetJourney returns a journey by its ID.
func (r *JourneyRepository) GetJourney(ctx context.Context, id string) (*models.Journey, error) {
	row := r.db.QueryRowContext(ctx, selectJourney+" WHERE id = $1", id)

	journey, err := scanJourney(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewJourneyError("Get", id, persistence.ErrJourneyNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan journey: %w", err)
	}

	return journey, nil
}

// SaveJourney inserts a new journey.
func (r *JourneyRepository) SaveJourney(ctx context.Context, journey *models.Journey) error {
	createdAt := journey.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	nodesJSON, err := json.Marshal(journey.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	query := `
		INSERT INTO journeys (id, name, start_node_id, nodes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query, journey.ID, journey.Name, journey.StartNodeID, nodesJSON, createdAt)
	if isUniqueViolation(err) {
		return persistence.NewJourneyError("Save", journey.ID, persistence.ErrJourneyAlreadyExists)
	}

	if err != nil {
		return fmt.Errorf("failed to insert journey: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJourney(row scanner) (*models.Journey, error) {
	var (
		journey   models.Journey
		nodesJSON []byte
	)

	err := row.Scan(&journey.ID, &journey.Name, &journey.StartNodeID, &nodesJSON, &journey.CreatedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(nodesJSON, &journey.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes of journey %s: %w", journey.ID, err)
	}

	return &journey, nil
}
