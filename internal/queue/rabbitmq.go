package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const BackendRabbitMQ = "rabbitmq"

// Broker is the subset of the RabbitMQ client the backend needs.
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string, headers amqp.Table) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	QueueDepth() (messages int, consumers int, err error)
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
}

// envelope is the wire format of one queued job
type envelope struct {
	JobType string          `json:"job_type"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

type delivery struct {
	envelope
	tag uint64
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionDeadLetter
)

func (a action) String() string {
	switch a {
	case actionAck:
		return "ack"
	case actionRetry:
		return "retry"
	default:
		return "dead_letter"
	}
}

// RabbitConfig tunes the consumer side of the RabbitMQ backend
type RabbitConfig struct {
	Concurrency  int
	MaxAttempts  int
	RetryBackoff time.Duration
	StopTimeout  time.Duration
}

// RabbitBackend persists entries in a RabbitMQ queue and, when started,
// runs a pool of consumer goroutines that execute registered handlers.
type RabbitBackend struct {
	registry *Registry
	broker   Broker
	logger   *slog.Logger
	cfg      RabbitConfig
	workerID string

	mu       sync.Mutex
	running  bool
	stopped  bool
	stopChan chan struct{}
	jobsChan chan *delivery
	wg       sync.WaitGroup
}

// NewRabbitBackend creates a RabbitMQ backed queue
func NewRabbitBackend(registry *Registry, broker Broker, logger *slog.Logger, cfg RabbitConfig) *RabbitBackend {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}

	return &RabbitBackend{
		registry: registry,
		broker:   broker,
		logger:   logger.With("component", "rabbitmq_queue"),
		cfg:      cfg,
		workerID: "worker-" + uuid.NewString()[:8],
		stopChan: make(chan struct{}),
		jobsChan: make(chan *delivery),
	}
}

func (b *RabbitBackend) RegisterHandler(jobType string, h Handler) {
	b.registry.Register(jobType, h)
}

// Enqueue publishes a persistent envelope for jobType
func (b *RabbitBackend) Enqueue(ctx context.Context, jobType string, payload any) error {
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	if stopped {
		return ErrBackendStopped
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}

	return b.publish(ctx, envelope{JobType: jobType, Payload: raw, Attempt: 1})
}

func (b *RabbitBackend) publish(ctx context.Context, env envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	headers := amqp.Table{
		"job_type": env.JobType,
		"attempt":  int32(env.Attempt),
	}

	if err := b.broker.PublishWithRetry(ctx, body, "application/json", headers); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", env.JobType, err)
	}
	return nil
}

// Start subscribes to the work queue and spawns the consumer pool
func (b *RabbitBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return ErrBackendStopped
	}
	if b.running {
		return nil
	}

	deliveries, err := b.broker.Consume(b.workerID)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	b.running = true

	// handlers finish their current job on shutdown
	runCtx := context.WithoutCancel(ctx)

	b.wg.Add(1)
	go b.dispatch(deliveries)

	for i := 0; i < b.cfg.Concurrency; i++ {
		b.wg.Add(1)
		go b.workerLoop(runCtx, i)
	}

	b.logger.Info("RabbitMQ consumers started",
		slog.String("worker_id", b.workerID),
		slog.Int("concurrency", b.cfg.Concurrency),
	)
	return nil
}

// dispatch decodes deliveries and hands them to the worker pool
func (b *RabbitBackend) dispatch(deliveries <-chan amqp.Delivery) {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopChan:
			return

		case raw, ok := <-deliveries:
			if !ok {
				b.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			d, err := decodeDelivery(raw)
			if err != nil {
				b.logger.Error("Dead-lettering malformed message",
					slog.Any("error", err),
					slog.String("body", string(raw.Body)),
				)
				if nackErr := b.broker.Nack(raw.DeliveryTag, false); nackErr != nil {
					b.logger.Error("Failed to NACK malformed message", slog.Any("error", nackErr))
				}
				continue
			}

			select {
			case b.jobsChan <- d:
			case <-b.stopChan:
				// give it back to the broker for another consumer
				if nackErr := b.broker.Nack(raw.DeliveryTag, true); nackErr != nil {
					b.logger.Error("Failed to NACK message on shutdown", slog.Any("error", nackErr))
				}
				return
			}
		}
	}
}

func decodeDelivery(raw amqp.Delivery) (*delivery, error) {
	var env envelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.JobType == "" {
		return nil, errors.New("invalid envelope: missing job_type")
	}
	if env.Attempt <= 0 {
		env.Attempt = 1
	}
	return &delivery{envelope: env, tag: raw.DeliveryTag}, nil
}

func (b *RabbitBackend) workerLoop(ctx context.Context, workerNum int) {
	defer b.wg.Done()

	workerName := fmt.Sprintf("%s-%d", b.workerID, workerNum)

	for {
		select {
		case <-b.stopChan:
			return

		case d := <-b.jobsChan:
			err := b.registry.Execute(ctx, d.JobType, d.Payload)
			b.settle(ctx, workerName, d, b.decide(err, d.Attempt))
		}
	}
}

// decide picks how to settle a delivery given the handler outcome
func (b *RabbitBackend) decide(err error, attempt int) action {
	if err == nil {
		return actionAck
	}
	if errors.Is(err, ErrNoHandler) {
		return actionDeadLetter
	}
	if IsRetryable(err) && attempt < b.cfg.MaxAttempts {
		return actionRetry
	}
	return actionDeadLetter
}

func (b *RabbitBackend) settle(ctx context.Context, workerName string, d *delivery, act action) {
	logger := b.logger.With(
		slog.String("worker_name", workerName),
		slog.String("job_type", d.JobType),
		slog.Int("attempt", d.Attempt),
		slog.String("action", act.String()),
	)

	switch act {
	case actionAck:
		if err := b.broker.Ack(d.tag); err != nil {
			logger.Error("Failed to ACK message", slog.Any("error", err))
		}

	case actionRetry:
		backoff := b.cfg.RetryBackoff * time.Duration(d.Attempt)
		select {
		case <-time.After(backoff):
		case <-b.stopChan:
			// redelivered by the broker after restart
			if err := b.broker.Nack(d.tag, true); err != nil {
				logger.Error("Failed to NACK message on shutdown", slog.Any("error", err))
			}
			return
		}

		next := d.envelope
		next.Attempt++
		if err := b.publish(ctx, next); err != nil {
			logger.Error("Failed to republish job, dead-lettering", slog.Any("error", err))
			if nackErr := b.broker.Nack(d.tag, false); nackErr != nil {
				logger.Error("Failed to NACK message", slog.Any("error", nackErr))
			}
			return
		}
		if err := b.broker.Ack(d.tag); err != nil {
			logger.Error("Failed to ACK retried message", slog.Any("error", err))
		}
		logger.Info("Job scheduled for retry", slog.Duration("backoff", backoff))

	case actionDeadLetter:
		if err := b.broker.Nack(d.tag, false); err != nil {
			logger.Error("Failed to NACK message", slog.Any("error", err))
			return
		}
		logger.Warn("Job dead-lettered")
	}
}

// Stop closes the consumer pool and waits for in-flight handlers
func (b *RabbitBackend) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	wasRunning := b.running
	b.running = false
	close(b.stopChan)
	b.mu.Unlock()

	if !wasRunning {
		return nil
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(b.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-done:
		b.logger.Info("RabbitMQ consumers stopped")
	case <-timer.C:
		b.logger.Warn("RabbitMQ consumers did not exit in time",
			slog.Duration("stop_timeout", b.cfg.StopTimeout),
		)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Stats reports broker-side depth and consumer count plus local counters
func (b *RabbitBackend) Stats(ctx context.Context) Stats {
	s := Stats{Backend: BackendRabbitMQ}
	b.registry.fill(&s)

	b.mu.Lock()
	s.IsRunning = b.running
	b.mu.Unlock()

	messages, consumers, err := b.broker.QueueDepth()
	if err != nil {
		b.logger.Warn("Failed to inspect queue", slog.Any("error", err))
		return s
	}
	s.Queued = messages
	s.Consumers = consumers
	return s
}
