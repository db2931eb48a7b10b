package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository stores pipeline run history.
type Repository interface {
	Recorder
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// runColumns is the SELECT column list for run queries.
const runColumns = `id, pipeline, dry_run, status, started_at, completed_at, duration_ms,
			total_steps, succeeded_steps, failed_steps, skipped_steps,
			failed_step, error, faults, steps`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateRun inserts a new run record.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	faultsJSON, stepsJSON, err := marshalRunDetail(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipeline_runs (
			id, pipeline, dry_run, status, started_at, completed_at, duration_ms,
			total_steps, succeeded_steps, failed_steps, skipped_steps,
			failed_step, error, faults, steps
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.Pipeline,
		run.DryRun,
		string(run.Status),
		run.StartedAt.Format(time.RFC3339Nano),
		nullableTime(run.CompletedAt),
		run.DurationMS,
		run.TotalSteps,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		nullableInt(run.FailedStep),
		nullableString(run.Error),
		faultsJSON,
		stepsJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing run record.
func (r *SQLiteRepository) UpdateRun(ctx context.Context, run *Run) error {
	faultsJSON, stepsJSON, err := marshalRunDetail(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE pipeline_runs SET
			status = ?, completed_at = ?, duration_ms = ?,
			succeeded_steps = ?, failed_steps = ?, skipped_steps = ?,
			failed_step = ?, error = ?, faults = ?, steps = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(run.Status),
		nullableTime(run.CompletedAt),
		run.DurationMS,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		nullableInt(run.FailedStep),
		nullableString(run.Error),
		faultsJSON,
		stepsJSON,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (*Run, error) {
	var run Run
	var status, startedAt string
	var completedAt, errMsg, faultsJSON, stepsJSON sql.NullString
	var failedStep sql.NullInt64

	err := scanner.Scan(
		&run.ID,
		&run.Pipeline,
		&run.DryRun,
		&status,
		&startedAt,
		&completedAt,
		&run.DurationMS,
		&run.TotalSteps,
		&run.Succeeded,
		&run.Failed,
		&run.Skipped,
		&failedStep,
		&errMsg,
		&faultsJSON,
		&stepsJSON,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if t, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
		run.StartedAt = t
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339Nano, completedAt.String); parseErr == nil {
			run.CompletedAt = &t
		}
	}
	if failedStep.Valid {
		idx := int(failedStep.Int64)
		run.FailedStep = &idx
	}
	run.Error = errMsg.String

	if faultsJSON.Valid && faultsJSON.String != "" && faultsJSON.String != "null" {
		if jsonErr := json.Unmarshal([]byte(faultsJSON.String), &run.Faults); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling faults: %w", jsonErr)
		}
	}
	run.Steps = []StepResult{}
	if stepsJSON.Valid && stepsJSON.String != "" && stepsJSON.String != "null" {
		if jsonErr := json.Unmarshal([]byte(stepsJSON.String), &run.Steps); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling steps: %w", jsonErr)
		}
	}
	return &run, nil
}

func marshalRunDetail(run *Run) (faults, steps sql.NullString, err error) {
	if len(run.Faults) > 0 {
		b, mErr := json.Marshal(run.Faults)
		if mErr != nil {
			return faults, steps, fmt.Errorf("marshalling faults: %w", mErr)
		}
		faults = sql.NullString{String: string(b), Valid: true}
	}
	b, mErr := json.Marshal(run.Steps)
	if mErr != nil {
		return faults, steps, fmt.Errorf("marshalling steps: %w", mErr)
	}
	steps = sql.NullString{String: string(b), Valid: true}
	return faults, steps, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
