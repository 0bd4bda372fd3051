package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/recruitq/internal/importer"
	"github.com/cuongbtq/recruitq/internal/jobs"
)

type CreateImportRequest struct {
	UserID string `json:"user_id"`
	importer.Request
}

type MarketResearchRequest struct {
	UserID string `json:"user_id"`
}

type ListJobsRequest struct {
	UserID     string `form:"user_id"`
	JobType    string `form:"job_type"`
	Status     string `form:"status"`
	ProjectID  string `form:"project_id"`
	PositionID string `form:"position_id"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID       string          `json:"job_id"`
	JobType     string          `json:"job_type"`
	Status      string          `json:"status"`
	UserID      string          `json:"user_id,omitempty"`
	ProjectID   string          `json:"project_id,omitempty"`
	PositionID  string          `json:"position_id,omitempty"`
	CandidateID string          `json:"candidate_id,omitempty"`
	Request     json.RawMessage `json:"request,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// FromJob converts a job record to its wire form
func FromJob(job *jobs.Job) JobDTO {
	return JobDTO{
		JobID:       job.ID,
		JobType:     job.Type,
		Status:      string(job.Status),
		UserID:      job.UserID,
		ProjectID:   job.ProjectID,
		PositionID:  job.PositionID,
		CandidateID: job.CandidateID,
		Request:     raw(job.Request),
		Response:    raw(job.Response),
		Error:       job.Error,
		CreatedAt:   job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func raw(p jobs.Payload) json.RawMessage {
	if len(p) == 0 {
		return nil
	}
	return json.RawMessage(p)
}
