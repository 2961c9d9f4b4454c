// internal/infra/database/postgres_run_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medirate_alerts/internal/domain/cycle"

	"github.com/lib/pq" // For pq.Array
)

var ErrRunNotFound = cycle.ErrRunNotFound

const runColumns = `id::text, kind, sources, started_at, finished_at, flags_reset, inserted, updated, skipped, failed, COALESCE(error, ''), dispatched_at`

type PostgresRunRepository struct {
	db *sql.DB
}

func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

var _ cycle.RunRepository = (*PostgresRunRepository)(nil)

func (r *PostgresRunRepository) Save(ctx context.Context, run cycle.Run) error {
	query := `INSERT INTO reconciliation_runs (id, kind, sources, started_at, finished_at, flags_reset, inserted, updated, skipped, failed, error)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}
	sources := run.Sources
	if sources == nil {
		sources = []string{}
	}
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Kind, pq.Array(sources), run.StartedAt, run.FinishedAt, run.FlagsReset,
		run.Totals.Inserted, run.Totals.Updated, run.Totals.Skipped, run.Totals.Failed, runErr)
	if err != nil {
		return fmt.Errorf("error saving reconciliation run: %w", err)
	}
	return nil
}

func (r *PostgresRunRepository) GetByID(ctx context.Context, id string) (*cycle.Run, error) {
	query := `SELECT ` + runColumns + ` FROM reconciliation_runs WHERE id = $1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("error getting reconciliation run by ID: %w", err)
	}
	return run, nil
}

func (r *PostgresRunRepository) ListRecent(ctx context.Context, limit int) ([]cycle.Run, error) {
	query := `SELECT ` + runColumns + ` FROM reconciliation_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing reconciliation runs: %w", err)
	}
	defer rows.Close()

	var runs []cycle.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reconciliation run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliation runs: %w", err)
	}
	return runs, nil
}

func (r *PostgresRunRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE reconciliation_runs SET dispatched_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("error marking reconciliation run dispatched: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for run dispatch: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*cycle.Run, error) {
	var (
		run        cycle.Run
		dispatched sql.NullTime
	)
	err := row.Scan(&run.ID, &run.Kind, pq.Array(&run.Sources), &run.StartedAt, &run.FinishedAt, &run.FlagsReset,
		&run.Totals.Inserted, &run.Totals.Updated, &run.Totals.Skipped, &run.Totals.Failed, &run.Error, &dispatched)
	if err != nil {
		return nil, err
	}
	if dispatched.Valid {
		run.DispatchedAt = &dispatched.Time
	}
	return &run, nil
}
