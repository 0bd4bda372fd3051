package queue

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/recruitq/internal/config"
)

// Deps carries the collaborators a backend may need
type Deps struct {
	Logger   *slog.Logger
	Registry *Registry
	Broker   Broker // required by the rabbitmq backend
}

// New builds the backend selected by configuration. It is called once at
// process start; the rest of the process only sees the Backend contract.
func New(cfg *config.Config, deps Deps) (Backend, error) {
	if deps.Logger == nil {
		return nil, errors.New("queue: logger is required")
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry(deps.Logger)
	}

	switch cfg.Queue.Backend {
	case "", BackendMemory:
		return NewMemoryBackend(deps.Registry, deps.Logger, cfg.Queue.PollInterval, cfg.Queue.StopTimeout), nil

	case BackendRabbitMQ:
		if deps.Broker == nil {
			return nil, errors.New("queue: rabbitmq backend requires a broker")
		}
		return NewRabbitBackend(deps.Registry, deps.Broker, deps.Logger, RabbitConfig{
			Concurrency:  cfg.Worker.Concurrency,
			MaxAttempts:  cfg.RabbitMQ.Consumer.MaxAttempts,
			RetryBackoff: cfg.RabbitMQ.Consumer.RetryBackoff,
			StopTimeout:  cfg.Worker.ShutdownTimeout,
		}), nil

	default:
		return nil, fmt.Errorf("queue: unsupported backend %q", cfg.Queue.Backend)
	}
}
