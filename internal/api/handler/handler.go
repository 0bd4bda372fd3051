package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/recruitq/internal/candidates"
	"github.com/cuongbtq/recruitq/internal/jobs"
	"github.com/cuongbtq/recruitq/internal/queue"
	"github.com/cuongbtq/recruitq/internal/realtime"
)

// JobService is the producer side of the job queue
type JobService interface {
	Submit(ctx context.Context, jobType string, request any, refs jobs.Refs) (*jobs.Job, error)
	Get(ctx context.Context, jobID string) (*jobs.Job, error)
	List(ctx context.Context, filter jobs.ListFilter) ([]jobs.Job, *jobs.Cursor, error)
	Stats(ctx context.Context) queue.Stats
}

// Researcher submits deduplicated market research refreshes
type Researcher interface {
	Refresh(ctx context.Context, positionID, userID string) (*jobs.Job, bool, error)
}

// EventSource hands out realtime subscriptions and reports delivery counts
type EventSource interface {
	Subscribe(userID string) *realtime.Subscription
	Subscribers() int
	Published() int64
	Dropped() int64
}

// CandidateReader reads imported candidates
type CandidateReader interface {
	GetProject(ctx context.Context, id string) (*candidates.Project, error)
	ListByProject(ctx context.Context, projectID string) ([]candidates.Candidate, error)
}

// Pinger reports database reachability
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string
	DB          Pinger
	Jobs        JobService
	Research    Researcher
	Events      EventSource
	Candidates  CandidateReader
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	jobs     JobService
	research Researcher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		jobs:     deps.Jobs,
		research: deps.Research,
	}
}
