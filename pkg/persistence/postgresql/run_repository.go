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

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const selectRun = `
	SELECT
		id
	  , journey_id
	  , context
	  , status
	  , current_node_id
	  , created_at
	  , updated_at
	FROM journey_runs
`

// CreateRun inserts a new run.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	stored := run.Clone()
	persistence.StampRun(stored, time.Now().UTC())

	contextJSON, err := json.Marshal(contextOrEmpty(stored.Context))
	if err != nil {
		return fmt.Errorf("failed to marshal run context: %w", err)
	}

	query := `
		INSERT INTO journey_runs (id, journey_id, context, status, current_node_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		stored.ID, stored.JourneyID, contextJSON, string(stored.Status),
		nullString(stored.CurrentNodeID), stored.CreatedAt, stored.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
	}

	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// GetRun returns a run by its ID.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx, selectRun+" WHERE id = $1", id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRunError("Get", id, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// UpdateRunStatusAndNode updates the run position and bumps updated_at.
func (r *RunRepository) UpdateRunStatusAndNode(ctx context.Context, id string, status models.RunStatus, nodeID *string) error {
	query := `
		UPDATE journey_runs
		SET status = $2, current_node_id = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, string(status), nullString(nodeID), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewRunError("Update", id, persistence.ErrRunNotFound)
	}

	return nil
}

// RunsByJourney returns the runs of a journey, oldest first.
func (r *RunRepository) RunsByJourney(ctx context.Context, journeyID string) ([]*models.Run, error) {
	return r.queryRuns(ctx, selectRun+" WHERE journey_id = $1 ORDER BY created_at, id", journeyID)
}

// RunsByStatus returns the runs in a status, oldest first.
func (r *RunRepository) RunsByStatus(ctx context.Context, status models.RunStatus) ([]*models.Run, error) {
	return r.queryRuns(ctx, selectRun+" WHERE status = $1 ORDER BY created_at, id", string(status))
}

func (r *RunRepository) queryRuns(ctx context.Context, query string, args ...any) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		run         models.Run
		contextJSON []byte
		status      string
		currentNode sql.NullString
	)

	err := row.Scan(&run.ID, &run.JourneyID, &contextJSON, &status, &currentNode, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(contextJSON, &run.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal context of run %s: %w", run.ID, err)
	}

	run.Status = models.RunStatus(status)

	if currentNode.Valid {
		run.CurrentNodeID = &currentNode.String
	}

	return &run, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *value, Valid: true}
}

func contextOrEmpty(ctx map[string]any) map[string]any {
	if ctx == nil {
		return map[string]any{}
	}

	return ctx
}
