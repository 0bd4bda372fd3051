package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recruitq/shared/logger"
)

type fakeBroker struct {
	mu         sync.Mutex
	published  []envelope
	acked      []uint64
	nacked     map[uint64]bool
	deliveries chan amqp.Delivery
	publishErr error
	depth      int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		nacked:     make(map[uint64]bool),
		deliveries: make(chan amqp.Delivery, 16),
		depth:      7,
	}
}

func (f *fakeBroker) PublishWithRetry(ctx context.Context, body []byte, contentType string, headers amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	f.published = append(f.published, env)
	return nil
}

func (f *fakeBroker) Consume(string) (<-chan amqp.Delivery, error) { return f.deliveries, nil }

func (f *fakeBroker) QueueDepth() (int, int, error) { return f.depth, 2, nil }

func (f *fakeBroker) Ack(tag uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeBroker) Nack(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked[tag] = requeue
	return nil
}

func (f *fakeBroker) snapshot() ([]envelope, []uint64, map[uint64]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nacked := make(map[uint64]bool, len(f.nacked))
	for k, v := range f.nacked {
		nacked[k] = v
	}
	return append([]envelope(nil), f.published...), append([]uint64(nil), f.acked...), nacked
}

func deliver(t *testing.T, f *fakeBroker, tag uint64, env envelope) {
	t.Helper()
	body, err := json.Marshal(env)
	require.NoError(t, err)
	f.deliveries <- amqp.Delivery{DeliveryTag: tag, Body: body}
}

func newRabbitBackend(t *testing.T, f *fakeBroker) *RabbitBackend {
	t.Helper()
	b := NewRabbitBackend(NewRegistry(logger.NewNop()), f, logger.NewNop(), RabbitConfig{
		Concurrency:  2,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
		StopTimeout:  time.Second,
	})
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

func TestRabbitBackend_EnqueueEnvelope(t *testing.T) {
	f := newFakeBroker()
	b := newRabbitBackend(t, f)

	require.NoError(t, b.Enqueue(context.Background(), "candidate_import", map[string]string{"job_id": "j-1"}))

	published, _, _ := f.snapshot()
	require.Len(t, published, 1)
	assert.Equal(t, "candidate_import", published[0].JobType)
	assert.Equal(t, 1, published[0].Attempt)
	assert.JSONEq(t, `{"job_id":"j-1"}`, string(published[0].Payload))
}

func TestRabbitBackend_EnqueueError(t *testing.T) {
	f := newFakeBroker()
	f.publishErr = errors.New("channel closed")
	b := newRabbitBackend(t, f)

	err := b.Enqueue(context.Background(), "candidate_import", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestRabbitBackend_Decide(t *testing.T) {
	b := NewRabbitBackend(NewRegistry(logger.NewNop()), newFakeBroker(), logger.NewNop(), RabbitConfig{MaxAttempts: 3})

	tests := []struct {
		name    string
		err     error
		attempt int
		want    action
	}{
		{name: "success", err: nil, attempt: 1, want: actionAck},
		{name: "retryable with attempts left", err: NewRetryableError(errors.New("db down")), attempt: 1, want: actionRetry},
		{name: "wrapped retryable", err: fmt.Errorf("load: %w", NewRetryableError(errors.New("db down"))), attempt: 2, want: actionRetry},
		{name: "retryable out of attempts", err: NewRetryableError(errors.New("db down")), attempt: 3, want: actionDeadLetter},
		{name: "plain failure", err: errors.New("extraction failed"), attempt: 1, want: actionDeadLetter},
		{name: "no handler", err: fmt.Errorf("%w: x", ErrNoHandler), attempt: 1, want: actionDeadLetter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.decide(tt.err, tt.attempt))
		})
	}
}

func TestRabbitBackend_ConsumeAndSettle(t *testing.T) {
	f := newFakeBroker()
	b := newRabbitBackend(t, f)
	ctx := context.Background()

	var mu sync.Mutex
	calls := map[string]int{}
	b.RegisterHandler("ok", func(ctx context.Context, payload json.RawMessage) error {
		mu.Lock()
		calls["ok"]++
		mu.Unlock()
		return nil
	})
	b.RegisterHandler("flaky", func(ctx context.Context, payload json.RawMessage) error {
		return NewRetryableError(errors.New("db unavailable"))
	})
	b.RegisterHandler("broken", func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("listing changed")
	})

	require.NoError(t, b.Start(ctx))

	deliver(t, f, 1, envelope{JobType: "ok", Payload: json.RawMessage(`{}`), Attempt: 1})
	deliver(t, f, 2, envelope{JobType: "flaky", Payload: json.RawMessage(`{"job_id":"j-2"}`), Attempt: 1})
	deliver(t, f, 3, envelope{JobType: "broken", Payload: json.RawMessage(`{}`), Attempt: 1})
	deliver(t, f, 4, envelope{JobType: "flaky", Payload: json.RawMessage(`{}`), Attempt: 3})
	f.deliveries <- amqp.Delivery{DeliveryTag: 5, Body: []byte("not json")}

	require.Eventually(t, func() bool {
		_, acked, nacked := f.snapshot()
		return len(acked) == 2 && len(nacked) == 3
	}, 2*time.Second, 5*time.Millisecond)

	published, acked, nacked := f.snapshot()
	assert.ElementsMatch(t, []uint64{1, 2}, acked)
	assert.Equal(t, map[uint64]bool{3: false, 4: false, 5: false}, nacked)

	// the retried job goes back with the next attempt number
	require.Len(t, published, 1)
	assert.Equal(t, "flaky", published[0].JobType)
	assert.Equal(t, 2, published[0].Attempt)
	assert.JSONEq(t, `{"job_id":"j-2"}`, string(published[0].Payload))

	stats := b.Stats(ctx)
	assert.Equal(t, BackendRabbitMQ, stats.Backend)
	assert.Equal(t, 7, stats.Queued)
	assert.Equal(t, 2, stats.Consumers)
	assert.True(t, stats.IsRunning)
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(3), stats.Failed)
	assert.Equal(t, []string{"broken", "flaky", "ok"}, stats.Handlers)
}

func TestRabbitBackend_RetryPublishFailureDeadLetters(t *testing.T) {
	f := newFakeBroker()
	b := newRabbitBackend(t, f)
	ctx := context.Background()

	b.RegisterHandler("flaky", func(ctx context.Context, payload json.RawMessage) error {
		f.mu.Lock()
		f.publishErr = errors.New("broker gone")
		f.mu.Unlock()
		return NewRetryableError(errors.New("db unavailable"))
	})

	require.NoError(t, b.Start(ctx))
	deliver(t, f, 9, envelope{JobType: "flaky", Payload: json.RawMessage(`{}`), Attempt: 1})

	require.Eventually(t, func() bool {
		_, _, nacked := f.snapshot()
		_, ok := nacked[9]
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	_, acked, nacked := f.snapshot()
	assert.Empty(t, acked)
	assert.False(t, nacked[9])
}

func TestRabbitBackend_StopRejectsEnqueue(t *testing.T) {
	f := newFakeBroker()
	b := newRabbitBackend(t, f)
	ctx := context.Background()

	require.NoError(t, b.Start(ctx))
	require.NoError(t, b.Stop(ctx))

	assert.ErrorIs(t, b.Enqueue(ctx, "ok", nil), ErrBackendStopped)
	assert.False(t, b.Stats(ctx).IsRunning)
}

func TestDecodeDelivery(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
		attempt int
	}{
		{name: "valid", body: `{"job_type":"a","payload":{},"attempt":2}`, attempt: 2},
		{name: "missing attempt defaults to first", body: `{"job_type":"a","payload":{}}`, attempt: 1},
		{name: "missing job type", body: `{"payload":{}}`, wantErr: "missing job_type"},
		{name: "not json", body: `nope`, wantErr: "invalid envelope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decodeDelivery(amqp.Delivery{DeliveryTag: 1, Body: []byte(tt.body)})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.attempt, d.Attempt)
			assert.Equal(t, uint64(1), d.tag)
		})
	}
}
