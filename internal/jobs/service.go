package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cuongbtq/recruitq/internal/queue"
)

// Service is the producer side: it records jobs and hands them to the queue.
type Service struct {
	store   Store
	backend queue.Backend
	logger  *slog.Logger
}

// NewService creates a new producer service
func NewService(store Store, backend queue.Backend, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		backend: backend,
		logger:  logger.With("component", "job_service"),
	}
}

// Submit creates a pending job and enqueues it without waiting for execution.
// When the queue rejects the job, the record is marked failed.
func (s *Service) Submit(ctx context.Context, jobType string, request any, refs Refs) (*Job, error) {
	payload, err := NewPayload(request)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Status:  StatusPending,
		Request: payload,
		Refs:    refs,
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.backend.Enqueue(ctx, jobType, message{JobID: job.ID}); err != nil {
		s.logger.Error("Failed to enqueue job",
			slog.String("job_id", job.ID),
			slog.String("job_type", jobType),
			slog.Any("error", err),
		)

		errText := fmt.Sprintf("enqueue failed: %v", err)
		if markErr := s.store.MarkFailed(ctx, job.ID, errText); markErr != nil {
			s.logger.Error("Failed to mark unqueued job failed",
				slog.String("job_id", job.ID),
				slog.Any("error", markErr),
			)
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info("Job submitted",
		slog.String("job_id", job.ID),
		slog.String("job_type", jobType),
		slog.String("user_id", refs.UserID),
	)

	return job, nil
}

// SubmitUnique returns the pending or running job of the same type and target
// when one exists, and submits a new job otherwise. The boolean reports
// whether an existing job was returned.
func (s *Service) SubmitUnique(ctx context.Context, jobType string, request any, refs Refs) (*Job, bool, error) {
	existing, err := s.store.FindActive(ctx, jobType, refs)
	switch {
	case err == nil:
		s.logger.Info("Reusing in-flight job",
			slog.String("job_id", existing.ID),
			slog.String("job_type", jobType),
			slog.String("status", string(existing.Status)),
		)
		return existing, true, nil
	case !errors.Is(err, ErrJobNotFound):
		return nil, false, err
	}

	job, err := s.Submit(ctx, jobType, request, refs)
	return job, false, err
}

// Get returns a job by id
func (s *Service) Get(ctx context.Context, jobID string) (*Job, error) {
	return s.store.Get(ctx, jobID)
}

// List returns one page of jobs and the cursor of the next page, if any
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Job, *Cursor, error) {
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	jobs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	if len(jobs) <= filter.PageSize {
		return jobs, nil, nil
	}

	jobs = jobs[:filter.PageSize]
	next := CursorFor(jobs[len(jobs)-1])
	return jobs, &next, nil
}

// Stats returns the queue diagnostics
func (s *Service) Stats(ctx context.Context) queue.Stats {
	return s.backend.Stats(ctx)
}
