package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/recruitq/internal/api/handler"
	"github.com/cuongbtq/recruitq/internal/api/router"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue_backend", cfg.Queue.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	jobStore := jobs.NewSQLStore(dbClient.GetDB())
	candidateStore := candidates.NewSQLStore(dbClient.GetDB())
	hub := realtime.NewHub(cfg.Realtime.BufferSize, appLogger.Logger)

	deps := queue.Deps{Logger: appLogger.Logger}
	var rabbitClient *rabbitmq.Client
	if cfg.Queue.Backend == queue.BackendRabbitMQ {
		rabbitClient, err = rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		deps.Broker = rabbitClient
		appLogger.Info("RabbitMQ connection established")
	}

	backend, err := queue.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create queue backend: %w", err)
	}

	jobService := jobs.NewService(jobStore, backend, appLogger.Logger)
	researchService := research.NewService(jobService, candidateStore, appLogger.Logger)

	if rabbitClient != nil {
		// workers execute jobs; this process only produces them and relays their events
		relay := realtime.NewAMQPRelay(rabbitClient, cfg.Realtime.BufferSize, appLogger.Logger)
		go func() {
			tag := "api-events-" + uuid.NewString()[:8]
			if err := relay.Forward(ctx, hub, tag); err != nil {
				appLogger.Error("Event relay stopped", slog.Any("error", err))
			}
		}()
	} else {
		dispatcher := jobs.NewDispatcher(jobStore, backend, hub, appLogger.Logger)
		if err := pipeline.Register(dispatcher, &cfg.Source, candidateStore, researchService, appLogger.Logger); err != nil {
			return err
		}
		if err := backend.Start(ctx); err != nil {
			return fmt.Errorf("failed to start queue backend: %w", err)
		}
	}

	r := initRouter(cfg, &handler.Dependencies{
		Logger:      appLogger.Logger,
		ServiceName: cfg.App.Name,
		DB:          dbClient.GetDB(),
		Jobs:        jobService,
		Research:    researchService,
		Events:      hub,
		Candidates:  candidateStore,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	if err := backend.Stop(shutdownCtx); err != nil {
		appLogger.Warn("Queue backend did not stop cleanly", slog.Any("error", err))
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	return router.SetupRouter(deps)
}
