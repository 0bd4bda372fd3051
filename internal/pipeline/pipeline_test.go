package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recruitq/internal/candidates"
	"github.com/cuongbtq/recruitq/internal/config"
	"github.com/cuongbtq/recruitq/internal/importer"
	"github.com/cuongbtq/recruitq/internal/jobs"
	"github.com/cuongbtq/recruitq/internal/queue"
	"github.com/cuongbtq/recruitq/internal/research"
	"github.com/cuongbtq/recruitq/shared/database/dbtest"
	"github.com/cuongbtq/recruitq/shared/logger"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNop()
	db := dbtest.New(t)

	cands := candidates.NewSQLStore(db)
	require.NoError(t, cands.InsertProject(ctx, &candidates.Project{ID: "proj-1", Name: "Platform"}))
	require.NoError(t, cands.InsertPosition(ctx, &candidates.Position{ID: "pos-1", ProjectID: "proj-1", Title: "SRE"}))

	store := jobs.NewSQLStore(db)
	backend := queue.NewMemoryBackend(queue.NewRegistry(log), log, 10*time.Millisecond, time.Second)
	svc := jobs.NewService(store, backend, log)
	researcher := research.NewService(svc, cands, log)

	// no credentials: imports fail with a configuration error before any fetch
	cfg := &config.SourceConfig{Name: "linkedin", BaseURL: "http://127.0.0.1:1"}
	require.NoError(t, Register(jobs.NewDispatcher(store, backend, nil, log), cfg, cands, researcher, log))

	require.NoError(t, backend.Start(ctx))
	t.Cleanup(func() { _ = backend.Stop(context.Background()) })

	assert.ElementsMatch(t, JobTypes, backend.Stats(ctx).Handlers)

	imp, err := svc.Submit(ctx, importer.JobType, importer.Request{
		ProjectID: "proj-1",
		Jobs:      []importer.Listing{{PositionID: "pos-1", JobID: "1"}},
	}, jobs.Refs{ProjectID: "proj-1"})
	require.NoError(t, err)

	res, _, err := researcher.Refresh(ctx, "pos-1", "")
	require.NoError(t, err)

	wait := func(id string) *jobs.Job {
		var job *jobs.Job
		require.Eventually(t, func() bool {
			job, err = store.Get(ctx, id)
			return err == nil && job.Status.IsTerminal()
		}, 2*time.Second, 5*time.Millisecond)
		return job
	}

	failed := wait(imp.ID)
	assert.Equal(t, jobs.StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "missing source credentials")

	assert.Equal(t, jobs.StatusCompleted, wait(res.ID).Status)
}
