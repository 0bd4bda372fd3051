// Package queue hands job payloads to registered handlers through an
// interchangeable backend: an in-process FIFO or a RabbitMQ work queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNoHandler is returned when no handler is registered for a job type
	ErrNoHandler = errors.New("no handler registered for job type")

	// ErrBackendStopped is returned by Enqueue once the backend has been stopped
	ErrBackendStopped = errors.New("queue backend stopped")
)

// Handler processes one queued payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Backend is the contract shared by every queue implementation.
type Backend interface {
	// RegisterHandler binds h to jobType, replacing any previous handler.
	RegisterHandler(jobType string, h Handler)
	// Enqueue hands payload to the backend without waiting for execution.
	Enqueue(ctx context.Context, jobType string, payload any) error
	Stats(ctx context.Context) Stats
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Stats is a diagnostic snapshot used for health reporting.
type Stats struct {
	Backend     string    `json:"backend"`
	Queued      int       `json:"queued"`
	Handlers    []string  `json:"handlers"`
	IsRunning   bool      `json:"is_running"`
	Consumers   int       `json:"consumers"`
	Processed   int64     `json:"processed"`
	Failed      int64     `json:"failed"`
	LastJob     string    `json:"last_job,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// RetryableError marks a failure as transient. The RabbitMQ backend
// redelivers such payloads until the attempt budget is spent.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// Registry owns the handler table and the outcome counters of one process.
type Registry struct {
	logger *slog.Logger

	mu          sync.Mutex
	handlers    map[string]Handler
	processed   int64
	failed      int64
	lastJob     string
	lastError   string
	lastUpdated time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register binds h to jobType
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[jobType]; exists {
		r.logger.Warn("Replacing job handler", slog.String("job_type", jobType))
	}
	r.handlers[jobType] = h
}

// Lookup returns the handler bound to jobType
func (r *Registry) Lookup(jobType string) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handlers[jobType]
	return h, ok
}

// JobTypes returns the registered job types in sorted order
func (r *Registry) JobTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, 0, len(r.handlers))
	for jobType := range r.handlers {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}

// Execute runs the handler for jobType and records the outcome.
// Panics are recovered and reported as errors.
func (r *Registry) Execute(ctx context.Context, jobType string, payload json.RawMessage) (err error) {
	h, ok := r.Lookup(jobType)
	if !ok {
		err = fmt.Errorf("%w: %s", ErrNoHandler, jobType)
		r.logger.Error("Dropping job without handler", slog.String("job_type", jobType))
		r.record(jobType, err)
		return err
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
		if err != nil {
			r.logger.Error("Job handler failed",
				slog.String("job_type", jobType),
				slog.Any("error", err),
			)
		}
		r.record(jobType, err)
	}()

	return h(ctx, payload)
}

func (r *Registry) record(jobType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastJob = jobType
	r.lastUpdated = time.Now().UTC()
	if err != nil {
		r.failed++
		r.lastError = err.Error()
		return
	}
	r.processed++
	r.lastError = ""
}

// fill copies the registry counters into s
func (r *Registry) fill(s *Stats) {
	s.Handlers = r.JobTypes()

	r.mu.Lock()
	defer r.mu.Unlock()

	s.Processed = r.processed
	s.Failed = r.failed
	s.LastJob = r.lastJob
	s.LastError = r.lastError
	s.LastUpdated = r.lastUpdated
}

// encodePayload turns an arbitrary payload into raw JSON
func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}
