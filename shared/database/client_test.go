package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recruitq/shared/logger"
)

func TestConfig_DSN(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		cfg := &Config{Host: "db", Port: 5432, User: "u", Password: "p", Database: "recruit", SSLMode: "disable"}
		driver, dsn := cfg.dsn()
		assert.Equal(t, DriverPostgres, driver)
		assert.Equal(t, "host=db port=5432 user=u password=p dbname=recruit sslmode=disable", dsn)
	})

	t.Run("sqlite defaults to memory", func(t *testing.T) {
		cfg := &Config{Driver: DriverSQLite}
		driver, dsn := cfg.dsn()
		assert.Equal(t, DriverSQLite, driver)
		assert.Contains(t, dsn, "file::memory:")
	})
}

func TestNewClient_SQLiteWithMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recruitq.db")

	client, err := NewClient(&Config{Driver: DriverSQLite, Database: path, AutoMigrate: true}, logger.NewNop())
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.HealthCheck(ctx))

	var tables []string
	err = client.GetDB().SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('jobs', 'projects', 'positions', 'candidates') ORDER BY name`)
	require.NoError(t, err)
	assert.Equal(t, []string{"candidates", "jobs", "positions", "projects"}, tables)

	// re-running is a no-op
	require.NoError(t, Migrate(ctx, client.GetDB()))
	assert.Contains(t, client.Stats(), "MaxOpenConns: 1")
}
