package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventBroker is the part of the RabbitMQ client used to carry events
// between worker and API processes.
type EventBroker interface {
	PublishEvent(ctx context.Context, body []byte) error
	ConsumeEvents(consumerTag string) (<-chan amqp.Delivery, error)
}

// AMQPRelay publishes events to a fanout exchange from worker processes and
// feeds them into a local Hub in the API process.
type AMQPRelay struct {
	broker         EventBroker
	logger         *slog.Logger
	events         chan Event
	publishTimeout time.Duration
	drainTimeout   time.Duration
}

// NewAMQPRelay creates a relay with an outgoing buffer of bufferSize events
func NewAMQPRelay(broker EventBroker, bufferSize int, logger *slog.Logger) *AMQPRelay {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &AMQPRelay{
		broker:         broker,
		logger:         logger.With("component", "realtime_relay"),
		events:         make(chan Event, bufferSize),
		publishTimeout: 2 * time.Second,
		drainTimeout:   2 * time.Second,
	}
}

// Publish queues e for the sender loop; it drops the event when the buffer is full
func (r *AMQPRelay) Publish(e Event) {
	select {
	case r.events <- e:
	default:
		r.logger.Warn("Relay buffer full, dropping event",
			slog.String("job_id", e.Payload.JobID),
			slog.String("status", e.Payload.Status),
		)
	}
}

// Run sends queued events to the broker until ctx is canceled, then flushes
// what is still buffered for up to drainTimeout.
func (r *AMQPRelay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain(context.WithoutCancel(ctx))
			return
		case e := <-r.events:
			r.send(ctx, e)
		}
	}
}

func (r *AMQPRelay) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.drainTimeout)
	defer cancel()

	sent := 0
	for {
		if ctx.Err() != nil {
			r.logger.Warn("Relay stopped with events still queued",
				slog.Int("sent", sent),
				slog.Int("dropped", len(r.events)),
			)
			return
		}
		select {
		case e := <-r.events:
			r.send(ctx, e)
			sent++
		default:
			if sent > 0 {
				r.logger.Info("Flushed queued events", slog.Int("sent", sent))
			}
			return
		}
	}
}

func (r *AMQPRelay) send(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		r.logger.Error("Failed to encode event", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	if err := r.broker.PublishEvent(ctx, body); err != nil {
		r.logger.Warn("Failed to publish event",
			slog.String("job_id", e.Payload.JobID),
			slog.Any("error", err),
		)
	}
}

// Forward consumes broadcast events and publishes them to hub until ctx is
// canceled or the broker closes the subscription.
func (r *AMQPRelay) Forward(ctx context.Context, hub Publisher, consumerTag string) error {
	deliveries, err := r.broker.ConsumeEvents(consumerTag)
	if err != nil {
		return err
	}

	r.logger.Info("Forwarding broker events", slog.String("consumer_tag", consumerTag))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("event subscription closed")
			}
			var e Event
			if err := json.Unmarshal(d.Body, &e); err != nil {
				r.logger.Warn("Skipping malformed event", slog.Any("error", err))
				continue
			}
			hub.Publish(e)
		}
	}
}
