package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"wow-tracker/internal/domain"
)

type JobRunRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewJobRunRepository(db *sql.DB, logger zerolog.Logger) *JobRunRepository {
	return &JobRunRepository{db: db, logger: logger}
}

// Create opens a RUNNING job run. snapshotDate may be zero for jobs with no
// snapshot scope.
func (r *JobRunRepository) Create(ctx context.Context, jobType domain.JobType, snapshotDate time.Time) (*domain.JobRun, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var dateValue sql.NullString
	if !snapshotDate.IsZero() {
		dateValue = sql.NullString{String: FormatDate(snapshotDate), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_runs (id, job_type, status, snapshot_date, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, jobType, domain.JobStatusRunning, dateValue, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create job run: %w", err)
	}

	return &domain.JobRun{
		ID:           id,
		JobType:      jobType,
		Status:       domain.JobStatusRunning,
		SnapshotDate: snapshotDate,
		StartedAt:    now,
	}, nil
}

// Finish closes a job run with a terminal status and a JSON details payload.
func (r *JobRunRepository) Finish(ctx context.Context, id string, status domain.JobStatus, details any) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal job details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE job_runs SET status = ?, finished_at = ?, details_json = ? WHERE id = ?`,
		status, time.Now().UTC(), string(detailsJSON), id,
	)
	if err != nil {
		return fmt.Errorf("finish job run: %w", err)
	}
	return nil
}

// LatestCompletedPoll returns the most recently started poll run for a date
// that reached a terminal status, or nil when none has.
func (r *JobRunRepository) LatestCompletedPoll(ctx context.Context, snapshotDate time.Time) (*domain.JobRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, job_type, status, snapshot_date, started_at, finished_at, details_json
		FROM job_runs
		WHERE job_type = ? AND snapshot_date = ? AND status IN (?, ?, ?)
		ORDER BY started_at DESC
		LIMIT 1`,
		domain.JobTypePoll, FormatDate(snapshotDate),
		domain.JobStatusSuccess, domain.JobStatusPartialFailure, domain.JobStatusFailed)

	run, err := scanJobRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// LatestByType returns the most recently started run of a job type in any
// status, or nil when the job has never run.
func (r *JobRunRepository) LatestByType(ctx context.Context, jobType domain.JobType) (*domain.JobRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, job_type, status, snapshot_date, started_at, finished_at, details_json
		FROM job_runs
		WHERE job_type = ?
		ORDER BY started_at DESC
		LIMIT 1`, jobType)

	run, err := scanJobRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func scanJobRun(row rowScanner) (*domain.JobRun, error) {
	var run domain.JobRun
	var rawDate, detailsJSON sql.NullString
	var finishedAt sql.NullTime
	err := row.Scan(&run.ID, &run.JobType, &run.Status, &rawDate, &run.StartedAt, &finishedAt, &detailsJSON)
	if err != nil {
		return nil, err
	}
	if rawDate.Valid {
		if run.SnapshotDate, err = ParseDate(rawDate.String); err != nil {
			return nil, fmt.Errorf("parse job snapshot date %q: %w", rawDate.String, err)
		}
	}
	run.FinishedAt = timeOrZero(finishedAt)
	run.DetailsJSON = stringOrEmpty(detailsJSON)
	return &run, nil
}
