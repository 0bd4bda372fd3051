package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/recruitq/internal/candidates"
	"github.com/cuongbtq/recruitq/internal/config"
	"github.com/cuongbtq/recruitq/internal/jobs"
	"github.com/cuongbtq/recruitq/internal/pipeline"
	"github.com/cuongbtq/recruitq/internal/queue"
	"github.com/cuongbtq/recruitq/internal/realtime"
	"github.com/cuongbtq/recruitq/internal/research"
	"github.com/cuongbtq/recruitq/shared/database"
	"github.com/cuongbtq/recruitq/shared/logger"
	"github.com/cuongbtq/recruitq/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("Connections established")

	backend, err := queue.New(cfg, queue.Deps{Logger: appLogger.Logger, Broker: rabbitClient})
	if err != nil {
		return fmt.Errorf("failed to create queue backend: %w", err)
	}

	// job events leave this process through the broker's fanout exchange
	relay := realtime.NewAMQPRelay(rabbitClient, cfg.Realtime.BufferSize, appLogger.Logger)
	go relay.Run(ctx)

	jobStore := jobs.NewSQLStore(dbClient.GetDB())
	candidateStore := candidates.NewSQLStore(dbClient.GetDB())
	researchService := research.NewService(jobs.NewService(jobStore, backend, appLogger.Logger), candidateStore, appLogger.Logger)

	dispatcher := jobs.NewDispatcher(jobStore, backend, relay, appLogger.Logger)
	if err := pipeline.Register(dispatcher, &cfg.Source, candidateStore, researchService, appLogger.Logger); err != nil {
		return err
	}

	if err := backend.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumers: %w", err)
	}

	appLogger.Info("Worker service started successfully")

	<-ctx.Done()
	appLogger.Info("Received signal, shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()

	if err := backend.Stop(shutdownCtx); err != nil {
		appLogger.Warn("Worker shutdown timeout exceeded", slog.Any("error", err))
	}

	stats := backend.Stats(shutdownCtx)
	appLogger.Info("Worker service shutdown complete",
		slog.Int64("processed", stats.Processed),
		slog.Int64("failed", stats.Failed),
	)
	return nil
}
