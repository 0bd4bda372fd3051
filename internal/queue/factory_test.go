package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recruitq/internal/config"
	"github.com/cuongbtq/recruitq/shared/logger"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		broker  Broker
		want    any
		wantErr string
	}{
		{name: "default is memory", backend: "", want: &MemoryBackend{}},
		{name: "memory", backend: BackendMemory, want: &MemoryBackend{}},
		{name: "rabbitmq", backend: BackendRabbitMQ, broker: newFakeBroker(), want: &RabbitBackend{}},
		{name: "rabbitmq without broker", backend: BackendRabbitMQ, wantErr: "requires a broker"},
		{name: "unknown", backend: "redis", wantErr: "unsupported backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Queue: config.QueueBackend{Backend: tt.backend}}

			backend, err := New(cfg, Deps{Logger: logger.NewNop(), Broker: tt.broker})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, backend)
		})
	}
}
