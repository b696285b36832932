package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nexgear75/MacScribe/internal/models"
)

// ErrJobNotFound is returned when no history row matches.
var ErrJobNotFound = errors.New("job not found")

// HistoryRepository persists finished sessions in the jobs table.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record inserts job with the next sequence number. A job id may only be recorded once.
func (r *HistoryRepository) Record(job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, sequence, input, action, output_format, output_path, title,
			status, error_message, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		job.ID,
		sequence,
		job.Input,
		string(job.Action),
		job.OutputFormat,
		job.OutputPath,
		job.Title,
		string(job.Status),
		job.ErrorMessage,
		job.StartedAt.UTC(),
		job.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	job.Sequence = sequence
	return nil
}

// Get retrieves a job by session id.
func (r *HistoryRepository) Get(id string) (*models.Job, error) {
	query := `
		SELECT id, sequence, input, action, output_format, output_path, title,
			status, error_message, started_at, finished_at
		FROM jobs
		WHERE id = ?
	`

	job, err := scanJob(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, err
}

// List returns the most recent jobs first, filtered by status when it is non-empty.
// A limit of zero or less returns every row.
func (r *HistoryRepository) List(status models.JobStatus, limit int) ([]*models.Job, error) {
	query := `
		SELECT id, sequence, input, action, output_format, output_path, title,
			status, error_message, started_at, finished_at
		FROM jobs
	`

	args := []any{}

	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}

	query += " ORDER BY sequence DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

// Purge deletes jobs finished before cutoff and returns how many were removed.
func (r *HistoryRepository) Purge(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM jobs WHERE finished_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanJob scans a single row from [sql.Row] or [sql.Rows] into a [models.Job]
func scanJob(row scanner) (*models.Job, error) {
	var (
		job    models.Job
		action string
		status string
	)

	err := row.Scan(
		&job.ID, &job.Sequence, &job.Input, &action, &job.OutputFormat, &job.OutputPath,
		&job.Title, &status, &job.ErrorMessage, &job.StartedAt, &job.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Action = models.Action(action)
	job.Status = models.JobStatus(status)
	return &job, nil
}
