// Package dbtest opens migrated in-memory SQLite databases for store tests.
package dbtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recruitq/shared/database"
)

var counter atomic.Int64

// New returns a fresh, fully migrated database that is closed when the test ends.
func New(t testing.TB) *sqlx.DB {
	t.Helper()

	name := fmt.Sprintf("file:recruitq_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)&_time_format=sqlite", counter.Add(1))
	db, err := sqlx.Open(database.DriverSQLite, name)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}
