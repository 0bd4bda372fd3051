package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	BackendMemory = "memory"

	defaultPollInterval = time.Second
	defaultStopTimeout  = 5 * time.Second
)

type entry struct {
	jobType string
	payload json.RawMessage
}

// MemoryBackend is an unbounded in-process FIFO drained by a single
// consumer goroutine. Handlers therefore run one at a time.
type MemoryBackend struct {
	registry     *Registry
	logger       *slog.Logger
	pollInterval time.Duration
	stopTimeout  time.Duration

	mu      sync.Mutex
	items   []entry
	running bool
	stopped bool
	signal  chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewMemoryBackend creates an in-process backend
func NewMemoryBackend(registry *Registry, logger *slog.Logger, pollInterval, stopTimeout time.Duration) *MemoryBackend {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}

	return &MemoryBackend{
		registry:     registry,
		logger:       logger.With("component", "memory_queue"),
		pollInterval: pollInterval,
		stopTimeout:  stopTimeout,
		signal:       make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (b *MemoryBackend) RegisterHandler(jobType string, h Handler) {
	b.registry.Register(jobType, h)
}

// Enqueue appends the payload and wakes the consumer.
func (b *MemoryBackend) Enqueue(ctx context.Context, jobType string, payload any) error {
	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrBackendStopped
	}
	b.items = append(b.items, entry{jobType: jobType, payload: raw})
	depth := len(b.items)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}

	b.logger.Debug("Job enqueued",
		slog.String("job_type", jobType),
		slog.Int("queued", depth),
	)
	return nil
}

// Start launches the consumer goroutine. In-flight handlers keep running
// when ctx is canceled; use Stop to shut down.
func (b *MemoryBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return ErrBackendStopped
	}
	if b.running {
		return nil
	}
	b.running = true

	go b.consume(context.WithoutCancel(ctx))

	b.logger.Info("In-process queue started",
		slog.Duration("poll_interval", b.pollInterval),
	)
	return nil
}

func (b *MemoryBackend) consume(ctx context.Context) {
	defer close(b.done)

	timer := time.NewTimer(b.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		e, ok := b.pop()
		if !ok {
			timer.Reset(b.pollInterval)
			select {
			case <-b.signal:
			case <-timer.C:
			case <-b.stop:
				return
			}
			continue
		}

		// errors are counted and logged by the registry
		_ = b.registry.Execute(ctx, e.jobType, e.payload)
	}
}

func (b *MemoryBackend) pop() (entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return entry{}, false
	}
	e := b.items[0]
	b.items[0] = entry{}
	b.items = b.items[1:]
	return e, true
}

// Stop signals the consumer and waits at most the stop timeout for it to exit.
// A handler that is still running is not interrupted.
func (b *MemoryBackend) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	wasRunning := b.running
	b.running = false
	close(b.stop)
	remaining := len(b.items)
	b.mu.Unlock()

	if !wasRunning {
		return nil
	}

	timer := time.NewTimer(b.stopTimeout)
	defer timer.Stop()

	select {
	case <-b.done:
		b.logger.Info("In-process queue stopped", slog.Int("abandoned", remaining))
	case <-timer.C:
		b.logger.Warn("In-process queue consumer did not exit in time",
			slog.Duration("stop_timeout", b.stopTimeout),
		)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (b *MemoryBackend) Stats(ctx context.Context) Stats {
	s := Stats{Backend: BackendMemory}
	b.registry.fill(&s)

	b.mu.Lock()
	defer b.mu.Unlock()

	s.Queued = len(b.items)
	s.IsRunning = b.running
	if b.running {
		s.Consumers = 1
	}
	return s
}
