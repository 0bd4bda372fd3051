// Package candidates holds the candidate, project and position records the
// import reconciler reads and writes.
package candidates

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Project owns positions and candidates
type Project struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	HiresCount int       `db:"hires_count" json:"hires_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Position is an opening within a project
type Position struct {
	ID              string    `db:"id" json:"id"`
	ProjectID       string    `db:"project_id" json:"project_id"`
	Title           string    `db:"title" json:"title"`
	Location        string    `db:"location" json:"location"`
	ApplicantsCount int       `db:"applicants_count" json:"applicants_count"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Candidate is a person tracked against a project and, usually, a position
type Candidate struct {
	ID         string    `db:"id" json:"id"`
	ProjectID  string    `db:"project_id" json:"project_id"`
	PositionID string    `db:"position_id" json:"position_id,omitempty"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email,omitempty"`
	Phone      string    `db:"phone" json:"phone,omitempty"`
	Status     string    `db:"status" json:"status"`
	ResumeURL  string    `db:"resume_url" json:"resume_url,omitempty"`
	Location   string    `db:"location" json:"location,omitempty"`
	Tags       Tags      `db:"tags" json:"tags"`
	Source     string    `db:"source" json:"source,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Tags is a tag set stored as a JSON array
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (t *Tags) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("candidates: cannot scan %T into Tags", src)
	}

	if len(data) == 0 {
		*t = Tags{}
		return nil
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return fmt.Errorf("candidates: invalid tags: %w", err)
	}
	*t = tags
	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
