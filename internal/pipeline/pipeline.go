// Package pipeline binds every job type to the handler that executes it.
// Both the API process (in-process queue) and the worker process call Register
// so the two deployments run identical handlers.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/cuongbtq/recruitq/internal/candidates"
	"github.com/cuongbtq/recruitq/internal/config"
	"github.com/cuongbtq/recruitq/internal/importer"
	"github.com/cuongbtq/recruitq/internal/jobs"
	"github.com/cuongbtq/recruitq/internal/research"
)

// JobTypes lists every job type Register binds
var JobTypes = []string{importer.JobType, research.JobType}

// Register builds the job handlers from configuration and binds them to d
func Register(d *jobs.Dispatcher, cfg *config.SourceConfig, store *candidates.SQLStore, researcher *research.Service, logger *slog.Logger) error {
	source, err := importer.NewHTTPSource(importer.HTTPSourceConfig{
		BaseURL:   cfg.BaseURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create listing source: %w", err)
	}

	reconciler := importer.NewReconciler(store, source, cfg.Name, logger)
	d.Register(importer.JobType, reconciler.Handle)
	d.Register(research.JobType, researcher.Handle)

	logger.Info("Job handlers registered",
		slog.Any("job_types", JobTypes),
		slog.String("import_marker", reconciler.Marker()),
	)
	return nil
}
