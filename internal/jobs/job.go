// Package jobs persists job records, drives them through their lifecycle and
// dispatches queued work to job-aware handlers.
package jobs

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// predecessors lists, for each state, the states it may be entered from.
// A job that never started may fail directly (for example when enqueueing fails).
var predecessors = map[Status][]Status{
	StatusRunning:   {StatusPending},
	StatusCompleted: {StatusRunning},
	StatusFailed:    {StatusPending, StatusRunning},
}

// CanTransition reports whether a job may move from one status to another
func CanTransition(from, to Status) bool {
	return lo.Contains(predecessors[to], from)
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Payload is a JSON document stored as TEXT
type Payload []byte

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[0:0], data...)
	return nil
}

func (p Payload) Value() (driver.Value, error) {
	return string(p), nil
}

func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case string:
		*p = Payload(v)
	case []byte:
		*p = append(Payload(nil), v...)
	default:
		return fmt.Errorf("jobs: cannot scan %T into Payload", src)
	}
	return nil
}

// Decode unmarshals the payload into v
func (p Payload) Decode(v any) error {
	if len(p) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(p, v)
}

// NewPayload encodes v as a payload
func NewPayload(v any) (Payload, error) {
	switch t := v.(type) {
	case nil:
		return Payload("{}"), nil
	case Payload:
		return t, nil
	case json.RawMessage:
		return Payload(t), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// Refs are the optional references a job is scoped to
type Refs struct {
	UserID      string `db:"user_id" json:"user_id,omitempty"`
	ProjectID   string `db:"project_id" json:"project_id,omitempty"`
	PositionID  string `db:"position_id" json:"position_id,omitempty"`
	CandidateID string `db:"candidate_id" json:"candidate_id,omitempty"`
}

// Job is one persisted unit of asynchronous work
type Job struct {
	ID        string    `db:"job_id" json:"job_id"`
	Type      string    `db:"job_type" json:"job_type"`
	Status    Status    `db:"status" json:"status"`
	Request   Payload   `db:"request" json:"request"`
	Response  Payload   `db:"response" json:"response,omitempty"`
	Error     string    `db:"error_message" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	Refs
}

// message is what producers put on the queue for a job
type message struct {
	JobID string `json:"job_id"`
}

// now returns the current time at second precision, which keeps TEXT
// timestamps in SQLite ordered the same way as in Postgres.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
