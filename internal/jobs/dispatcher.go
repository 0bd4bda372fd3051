package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/recruitq/internal/queue"
	"github.com/cuongbtq/recruitq/internal/realtime"
)

const recordAttempts = 3

// Func performs the work of one job and returns its response
type Func func(ctx context.Context, job *Job) (any, error)

// Dispatcher binds job-aware handlers to a queue backend. For every queued
// message it loads the job, moves it to running, runs the handler and records
// the terminal outcome.
type Dispatcher struct {
	store     Store
	backend   queue.Backend
	publisher realtime.Publisher
	logger    *slog.Logger

	recordBackoff time.Duration
}

// NewDispatcher creates a dispatcher. publisher may be nil.
func NewDispatcher(store Store, backend queue.Backend, publisher realtime.Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		backend:   backend,
		publisher: publisher,
		logger:    logger.With("component", "dispatcher"),

		recordBackoff: 100 * time.Millisecond,
	}
}

// Register binds fn to jobType on the backend
func (d *Dispatcher) Register(jobType string, fn Func) {
	d.backend.RegisterHandler(jobType, func(ctx context.Context, payload json.RawMessage) error {
		return d.dispatch(ctx, jobType, payload, fn)
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, jobType string, payload json.RawMessage, fn Func) error {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil || msg.JobID == "" {
		return fmt.Errorf("invalid %s message: %s", jobType, string(payload))
	}

	logger := d.logger.With(
		slog.String("job_id", msg.JobID),
		slog.String("job_type", jobType),
	)

	job, err := d.store.Get(ctx, msg.JobID)
	if errors.Is(err, ErrJobNotFound) {
		logger.Warn("Job record disappeared, skipping")
		return nil
	}
	if err != nil {
		return queue.NewRetryableError(fmt.Errorf("failed to load job: %w", err))
	}

	if err := d.store.MarkRunning(ctx, job.ID); err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			logger.Warn("Job record disappeared, skipping")
			return nil
		case errors.Is(err, ErrInvalidTransition):
			// redelivered after another consumer already took it
			logger.Info("Job is no longer pending, skipping", slog.String("status", string(job.Status)))
			return nil
		default:
			return queue.NewRetryableError(fmt.Errorf("failed to mark job running: %w", err))
		}
	}
	job.Status = StatusRunning
	d.notify(job, "")

	logger.Info("Processing job")

	result, runErr := d.invoke(ctx, job, fn)

	var response Payload
	if runErr == nil {
		response, runErr = NewPayload(result)
	}

	if runErr != nil {
		logger.Error("Job failed", slog.Any("error", runErr))
		return d.fail(ctx, logger, job, runErr.Error())
	}

	if err := d.record(ctx, func() error { return d.store.MarkCompleted(ctx, job.ID, response) }); err != nil {
		logger.Error("Failed to update job status to completed", slog.Any("error", err))
		return d.fail(ctx, logger, job, fmt.Sprintf("failed to record completion: %v", err))
	}
	job.Status = StatusCompleted
	job.Response = response
	d.notify(job, "")

	logger.Info("Job completed")
	return nil
}

// fail records the failed state and only then announces it. When even that
// write is lost the delivery is handed back to the backend as retryable.
func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, job *Job, errText string) error {
	err := d.record(ctx, func() error { return d.store.MarkFailed(ctx, job.ID, errText) })
	switch {
	case errors.Is(err, ErrJobNotFound):
		logger.Warn("Job record disappeared, skipping")
		return nil
	case errors.Is(err, ErrInvalidTransition):
		return fmt.Errorf("job %s failed after leaving running: %s", job.ID, errText)
	case err != nil:
		logger.Error("Failed to update job status to failed", slog.Any("error", err))
		return queue.NewRetryableError(fmt.Errorf("job %s failed but was not recorded: %w", job.ID, err))
	}
	job.Status = StatusFailed
	job.Error = errText
	d.notify(job, errText)

	// the failure is recorded; redelivery would only be skipped
	return fmt.Errorf("job %s failed: %s", job.ID, errText)
}

// record retries a terminal write a few times. A missing record or a job that
// already left running is final and not retried.
func (d *Dispatcher) record(ctx context.Context, write func() error) error {
	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		if err = write(); err == nil {
			return nil
		}
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrInvalidTransition) || attempt == recordAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt) * d.recordBackoff):
		}
	}
	return err
}

// invoke runs fn, turning a panic into an error
func (d *Dispatcher) invoke(ctx context.Context, job *Job, fn Func) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return fn(ctx, job)
}

func (d *Dispatcher) notify(job *Job, errText string) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(realtime.Event{
		Type:   realtime.EventTypeJob,
		UserID: job.UserID,
		Payload: realtime.JobPayload{
			JobID:   job.ID,
			JobType: job.Type,
			Status:  string(job.Status),
			Error:   errText,
		},
	})
}
