package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store persists job records
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, response Payload) error
	MarkFailed(ctx context.Context, jobID string, errText string) error
	FindActive(ctx context.Context, jobType string, target Refs) (*Job, error)
	List(ctx context.Context, filter ListFilter) ([]Job, error)
}

// ListFilter narrows and pages a job listing
type ListFilter struct {
	UserID     string
	JobType    string
	Status     Status
	ProjectID  string
	PositionID string
	PageSize   int
	Cursor     *Cursor
}

const jobColumns = `job_id, job_type, status, request, response, error_message,
	user_id, project_id, position_id, candidate_id, created_at, updated_at`

// SQLStore is a Store backed by sqlx. Queries are written with ? placeholders
// and rebound for the connected driver.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore creates a new SQLStore
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, job *Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now()
	}
	job.UpdatedAt = job.CreatedAt
	if job.Status == "" {
		job.Status = StatusPending
	}
	if len(job.Request) == 0 {
		job.Request = Payload("{}")
	}

	query := s.db.Rebind(`
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Type,
		job.Status,
		job.Request,
		job.Response,
		job.Error,
		job.UserID,
		job.ProjectID,
		job.PositionID,
		job.CandidateID,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *SQLStore) Get(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE job_id = ?`)

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// MarkRunning moves a pending job to running
func (s *SQLStore) MarkRunning(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, StatusRunning, nil, "")
}

// MarkCompleted moves a running job to completed and stores its response
func (s *SQLStore) MarkCompleted(ctx context.Context, jobID string, response Payload) error {
	return s.transition(ctx, jobID, StatusCompleted, response, "")
}

// MarkFailed moves a pending or running job to failed and stores the error text
func (s *SQLStore) MarkFailed(ctx context.Context, jobID string, errText string) error {
	return s.transition(ctx, jobID, StatusFailed, nil, errText)
}

// transition applies a conditional update so a job can only move forward
// from one of the permitted predecessor states.
func (s *SQLStore) transition(ctx context.Context, jobID string, to Status, response Payload, errText string) error {
	query, args, err := sqlx.In(`
		UPDATE jobs
		SET status = ?, response = ?, error_message = ?, updated_at = ?
		WHERE job_id = ? AND status IN (?)
	`, to, response, errText, now(), jobID, predecessors[to])
	if err != nil {
		return fmt.Errorf("failed to build transition query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to mark job %s: %w", to, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	current, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
}

// FindActive returns the newest pending or running job of jobType scoped to
// the same target. Only the non-empty references of target are compared.
func (s *SQLStore) FindActive(ctx context.Context, jobType string, target Refs) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_type = ? AND status IN (?, ?)`
	args := []any{jobType, StatusPending, StatusRunning}

	if target.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, target.ProjectID)
	}
	if target.PositionID != "" {
		query += " AND position_id = ?"
		args = append(args, target.PositionID)
	}
	if target.CandidateID != "" {
		query += " AND candidate_id = ?"
		args = append(args, target.CandidateID)
	}

	query += " ORDER BY created_at DESC, job_id DESC LIMIT 1"

	var job Job
	if err := s.db.GetContext(ctx, &job, s.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}

	return &job, nil
}

// List returns jobs newest first. It fetches one row more than PageSize so
// callers can tell whether another page exists.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}

	if filter.JobType != "" {
		query += " AND job_type = ?"
		args = append(args, filter.JobType)
	}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}

	if filter.PositionID != "" {
		query += " AND position_id = ?"
		args = append(args, filter.PositionID)
	}

	if filter.Cursor != nil {
		query += " AND (created_at, job_id) < (?, ?)"
		args = append(args, filter.Cursor.CreatedAt.UTC(), filter.Cursor.JobID)
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	jobs := []Job{}
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// Cursor marks the last job of a page
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}
