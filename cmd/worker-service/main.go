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
	"time"

	"github.com/joho/godotenv"

	"github.com/resumatch/resumatch/internal/ai/gemini"
	"github.com/resumatch/resumatch/internal/config"
	"github.com/resumatch/resumatch/internal/docstore"
	"github.com/resumatch/resumatch/internal/migrate"
	"github.com/resumatch/resumatch/internal/rasterize"
	"github.com/resumatch/resumatch/internal/worker"
	"github.com/resumatch/resumatch/internal/worker/storage"
	"github.com/resumatch/resumatch/internal/workflow"
	"github.com/resumatch/resumatch/shared/logger"
	"github.com/resumatch/resumatch/shared/postgresql"
	"github.com/resumatch/resumatch/shared/rabbitmq"
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

	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	if err := migrate.Run(context.Background(), dbClient.GetDB().DB, appLogger.Logger); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiKey := os.Getenv(cfg.Inference.APIKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("environment variable %s is not set", cfg.Inference.APIKeyEnv)
	}

	geminiClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:         apiKey,
		EnhanceModel:   cfg.Inference.EnhanceModel,
		AnalyzeModel:   cfg.Inference.AnalyzeModel,
		Temperature:    cfg.Inference.Temperature,
		RequestTimeout: cfg.Inference.RequestTimeout,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	documents := docstore.New(cfg.Storage.UploadsDir)
	rasterizer := rasterize.NewPoppler(&rasterize.Config{
		Binary:    cfg.Rasterizer.Binary,
		Format:    cfg.Rasterizer.Format,
		DPI:       cfg.Rasterizer.DPI,
		Timeout:   cfg.Rasterizer.Timeout,
		ImagesDir: cfg.Storage.ImagesDir,
	}, appLogger.Logger)

	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)

	retry := workflow.RetryPolicy{
		Attempts:          cfg.Inference.Retry.Attempts,
		BaseDelay:         cfg.Inference.Retry.BaseDelay,
		BackoffMultiplier: cfg.Inference.Retry.BackoffMultiplier,
	}

	stages := workflow.ResumeMatchStages(documents, rasterizer, geminiClient, geminiClient, retry, appLogger.Logger)
	engine := workflow.NewEngine(store, stages, appLogger.Logger)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		RabbitClient:      rabbitClient,
		Storage:           store,
		Engine:            engine,
		Concurrency:       cfg.Worker.Concurrency,
		PrefetchCount:     cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		ReclaimAfter:      cfg.Worker.ReclaimAfter,
		ClaimRetryDelay:   cfg.Worker.ClaimRetryDelay,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give in-flight jobs time to settle before forcing exit
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
