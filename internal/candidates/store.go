package candidates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const candidateColumns = `id, project_id, position_id, name, email, phone, status,
	resume_url, location, tags, source, created_at, updated_at`

// SQLStore reads and writes candidate data through sqlx
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore creates a new SQLStore
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	query := s.db.Rebind(`SELECT id, name, hires_count, created_at, updated_at FROM projects WHERE id = ?`)
	if err := s.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err, "project", id)
	}
	return &p, nil
}

func (s *SQLStore) GetPosition(ctx context.Context, id string) (*Position, error) {
	var p Position
	query := s.db.Rebind(`
		SELECT id, project_id, title, location, applicants_count, created_at, updated_at
		FROM positions WHERE id = ?
	`)
	if err := s.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err, "position", id)
	}
	return &p, nil
}

func (s *SQLStore) InsertProject(ctx context.Context, p *Project) error {
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt

	query := s.db.Rebind(`
		INSERT INTO projects (id, name, hires_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.HiresCount, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertPosition(ctx context.Context, p *Position) error {
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt

	query := s.db.Rebind(`
		INSERT INTO positions (id, project_id, title, location, applicants_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.ProjectID, p.Title, p.Location, p.ApplicantsCount, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

// FindByEmail matches a candidate of the project by exact email
func (s *SQLStore) FindByEmail(ctx context.Context, projectID, email string) (*Candidate, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, `project_id = ? AND email = ?`, projectID, email)
}

// FindBySourceURL matches a candidate previously imported from source with the same profile URL
func (s *SQLStore) FindBySourceURL(ctx context.Context, projectID, source, url string) (*Candidate, error) {
	if url == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, `project_id = ? AND source = ? AND resume_url = ?`, projectID, source, url)
}

// FindByName matches a candidate of the position by exact name
func (s *SQLStore) FindByName(ctx context.Context, projectID, positionID, name string) (*Candidate, error) {
	if name == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, `project_id = ? AND position_id = ? AND name = ?`, projectID, positionID, name)
}

func (s *SQLStore) findOne(ctx context.Context, where string, args ...any) (*Candidate, error) {
	var c Candidate
	query := s.db.Rebind(`SELECT ` + candidateColumns + ` FROM candidates WHERE ` + where + ` ORDER BY created_at, id LIMIT 1`)
	if err := s.db.GetContext(ctx, &c, query, args...); err != nil {
		return nil, notFound(err, "candidate", fmt.Sprintf("%v", args))
	}
	return &c, nil
}

func (s *SQLStore) GetCandidate(ctx context.Context, id string) (*Candidate, error) {
	return s.findOne(ctx, `id = ?`, id)
}

// ListByProject returns the project's candidates oldest first
func (s *SQLStore) ListByProject(ctx context.Context, projectID string) ([]Candidate, error) {
	list := []Candidate{}
	query := s.db.Rebind(`SELECT ` + candidateColumns + ` FROM candidates WHERE project_id = ? ORDER BY created_at, id`)
	if err := s.db.SelectContext(ctx, &list, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return list, nil
}

func (s *SQLStore) Insert(ctx context.Context, c *Candidate) error {
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	if c.Tags == nil {
		c.Tags = Tags{}
	}

	query := s.db.Rebind(`INSERT INTO candidates (` + candidateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.ProjectID, c.PositionID, c.Name, c.Email, c.Phone, c.Status,
		c.ResumeURL, c.Location, c.Tags, c.Source, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert candidate: %w", err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, c *Candidate) error {
	c.UpdatedAt = now()

	query := s.db.Rebind(`
		UPDATE candidates
		SET position_id = ?, name = ?, email = ?, phone = ?, status = ?, resume_url = ?,
		    location = ?, tags = ?, source = ?, updated_at = ?
		WHERE id = ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		c.PositionID, c.Name, c.Email, c.Phone, c.Status, c.ResumeURL,
		c.Location, c.Tags, c.Source, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update candidate: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("candidate %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

// RecountHires recomputes project.hires_count from the candidate rows
func (s *SQLStore) RecountHires(ctx context.Context, projectID string) (int, error) {
	query := s.db.Rebind(`
		UPDATE projects
		SET hires_count = (SELECT COUNT(*) FROM candidates WHERE project_id = ? AND status = ?),
		    updated_at = ?
		WHERE id = ?
	`)
	if _, err := s.db.ExecContext(ctx, query, projectID, StatusHired, now(), projectID); err != nil {
		return 0, fmt.Errorf("failed to recount hires: %w", err)
	}

	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return project.HiresCount, nil
}

// RecountApplicants recomputes position.applicants_count from the candidate rows
func (s *SQLStore) RecountApplicants(ctx context.Context, positionID string) (int, error) {
	query := s.db.Rebind(`
		UPDATE positions
		SET applicants_count = (SELECT COUNT(*) FROM candidates WHERE position_id = ?),
		    updated_at = ?
		WHERE id = ?
	`)
	if _, err := s.db.ExecContext(ctx, query, positionID, now(), positionID); err != nil {
		return 0, fmt.Errorf("failed to recount applicants: %w", err)
	}

	position, err := s.GetPosition(ctx, positionID)
	if err != nil {
		return 0, err
	}
	return position.ApplicantsCount, nil
}

func notFound(err error, kind, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", kind, err)
}
