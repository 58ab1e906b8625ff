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
	"github.com/joho/godotenv"

	"github.com/cuongbtq/truthlens/internal/api/handler"
	"github.com/cuongbtq/truthlens/internal/api/router"
	"github.com/cuongbtq/truthlens/internal/broadcast"
	"github.com/cuongbtq/truthlens/internal/config"
	"github.com/cuongbtq/truthlens/internal/decision"
	"github.com/cuongbtq/truthlens/internal/fusion"
	"github.com/cuongbtq/truthlens/internal/inference"
	"github.com/cuongbtq/truthlens/internal/jobstore"
	"github.com/cuongbtq/truthlens/internal/llm"
	"github.com/cuongbtq/truthlens/internal/observability"
	"github.com/cuongbtq/truthlens/internal/pipeline"
	"github.com/cuongbtq/truthlens/internal/reverse"
	"github.com/cuongbtq/truthlens/internal/signals"
	"github.com/cuongbtq/truthlens/internal/worker"
	"github.com/cuongbtq/truthlens/shared/logger"
	"github.com/cuongbtq/truthlens/shared/rabbitmq"
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

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize tracing
	shutdownTracing, err := observability.InitTracing(context.Background(), observability.TracingConfig{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	metrics := observability.NewRegistry()

	// Job store with its retention janitor
	store := jobstore.NewMemoryStore(cfg.Pipeline.Retention,
		jobstore.WithLogger(appLogger.Logger),
		jobstore.WithMetrics(metrics),
	)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go store.Run(janitorCtx, cfg.Pipeline.JanitorInterval)

	// Optional RabbitMQ mirror of terminal events
	var rabbitClient *rabbitmq.Client
	if cfg.Broker.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.Broker, appLogger.Logger)
		if err != nil {
			stopJanitor()
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		appLogger.Info("RabbitMQ connection established")
	}

	events := initBroadcaster(cfg, rabbitClient, appLogger.Logger, metrics)

	// Pipeline
	orchestrator, err := initOrchestrator(cfg, store, events, appLogger.Logger, metrics)
	if err != nil {
		stopJanitor()
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	jobWorker := worker.NewWorker(&worker.Config{
		Logger:      appLogger.Logger,
		Pipeline:    orchestrator,
		Metrics:     metrics,
		Concurrency: cfg.Pipeline.MaxConcurrentJobs,
		JobTimeout:  cfg.Pipeline.JobTimeout,
	})

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, &handler.Dependencies{
		Logger:             appLogger.Logger,
		Store:              store,
		Runner:             jobWorker,
		Events:             events,
		Metrics:            metrics,
		ServiceName:        cfg.App.Name,
		MaxUploadBytes:     cfg.Server.MaxUploadBytes,
		CancelOnDisconnect: cfg.Pipeline.CancelOnDisconnect,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal or server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case runErr = <-serverErr:
		appLogger.Error("Server failed to start", slog.Any("error", runErr))
	}

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		stopJanitor()
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		runErr = errors.Join(runErr, err)
	}

	// Running jobs are canceled and recorded as failed before the broker closes
	if err := jobWorker.Stop(ctx); err != nil {
		appLogger.Error("Worker did not stop in time",
			slog.Any("error", err),
		)
		runErr = errors.Join(runErr, err)
	}

	if err := shutdownTracing(ctx); err != nil {
		appLogger.Warn("Failed to flush traces", slog.Any("error", err))
	}

	appLogger.Info("Server shutdown complete")
	return runErr
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   timeFormat,
	}

	return logger.New(loggerCfg)
}

// initRabbitMQ initializes the RabbitMQ publisher
func initRabbitMQ(cfg *config.BrokerConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
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
		BindingKey:         cfg.BindingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initBroadcaster builds the progress broadcaster, mirroring terminal events
// to RabbitMQ when a client is given
func initBroadcaster(cfg *config.Config, rabbitClient *rabbitmq.Client, logger *slog.Logger, metrics observability.Recorder) *broadcast.Broadcaster {
	opts := []broadcast.Option{
		broadcast.WithBuffer(cfg.Pipeline.ObserverBuffer),
		broadcast.WithLogger(logger),
		broadcast.WithMetrics(metrics),
	}
	if rabbitClient != nil {
		opts = append(opts, broadcast.WithSink(broadcast.NewBrokerSink(rabbitClient)))
	}
	return broadcast.New(opts...)
}

// initOrchestrator wires the signal collaborators, fusion and decision engines
// into the pipeline
func initOrchestrator(cfg *config.Config, store jobstore.Store, events pipeline.Publisher, logger *slog.Logger, metrics observability.Recorder) (*pipeline.Orchestrator, error) {
	models := inference.NewClient(inference.Config{
		BaseURL: cfg.Inference.BaseURL,
		APIKey:  cfg.Inference.APIKey,
		Timeout: cfg.Inference.Timeout,
	}, logger)

	// Grad-CAM may be served separately from the scoring models
	renderer := models
	if cfg.Inference.VisualizerBaseURL != "" {
		renderer = inference.NewClient(inference.Config{
			BaseURL: cfg.Inference.VisualizerBaseURL,
			APIKey:  cfg.Inference.APIKey,
			Timeout: cfg.Inference.Timeout,
		}, logger)
	}

	searcher, index := initReverseSearch(&cfg.ReverseSearch, cfg.Pipeline.IndexCapacity, logger)

	collab := pipeline.Collaborators{
		Face:       signals.NewFaceCropper(models, cfg.Pipeline.FacePadding),
		CNN:        signals.NewModelDetector(models, signals.ModelHandle{Name: cfg.Inference.CNNModel}),
		Semantic:   signals.NewModelDetector(models, signals.ModelHandle{Name: cfg.Inference.SemanticModel}),
		Visualizer: signals.NewVisualizer(renderer),
		Frequency:  signals.NewFrequencyAnalyzer(),
		Exif:       signals.NewExifReader(),
		Reverse:    searcher,
	}
	if index != nil {
		collab.Index = index
	}

	fuse, err := fusion.NewEngine(cfg.Fusion)
	if err != nil {
		return nil, fmt.Errorf("failed to create fusion engine: %w", err)
	}

	decider, err := initDecider(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	return pipeline.NewOrchestrator(store, events, fuse, decider, collab,
		pipeline.Config{CollaboratorTimeout: cfg.Pipeline.CollaboratorTimeout},
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
	)
}

// initReverseSearch builds the providers in configured order. The local index
// is returned so the pipeline can add analyzed uploads to it.
func initReverseSearch(cfg *config.ReverseSearchConfig, indexCapacity int, logger *slog.Logger) (*reverse.Searcher, *reverse.LocalIndex) {
	var (
		providers []reverse.Provider
		index     *reverse.LocalIndex
	)

	for _, name := range cfg.Providers {
		switch name {
		case config.ProviderLocal:
			index = reverse.NewLocalIndex(indexCapacity)
			providers = append(providers, index)
		case config.ProviderSerpAPI:
			if cfg.SerpAPIKey == "" {
				logger.Warn("SerpAPI key not set, skipping provider",
					slog.String("env", config.EnvSerpAPIKey),
				)
				continue
			}
			providers = append(providers, reverse.NewSerpAPI(reverse.SerpAPIConfig{
				BaseURL:    cfg.SerpAPIURL,
				APIKey:     cfg.SerpAPIKey,
				Timeout:    cfg.Timeout,
				MaxResults: cfg.MaxResults,
			}, logger))
		case config.ProviderMock:
			providers = append(providers, reverse.Mock{})
		}
	}

	logger.Info("Reverse search configured", slog.Int("providers", len(providers)))
	return reverse.NewSearcher(providers, cfg.MaxResults, logger), index
}

// initDecider builds the decision engine: reasoning first when enabled and
// keyed, the rule engine otherwise and as fallback
func initDecider(cfg *config.Config, logger *slog.Logger, metrics observability.Recorder) (*decision.Decider, error) {
	fallback := decision.NewRuleEngine(cfg.Decision.Thresholds)

	if !cfg.Reasoning.Enabled || cfg.Reasoning.APIKey == "" {
		logger.Warn("Reasoning disabled, verdicts come from the rule engine",
			slog.Bool("enabled", cfg.Reasoning.Enabled),
			slog.String("env", config.EnvReasoningAPIKey),
		)
		return decision.NewDecider(nil, fallback, logger, metrics), nil
	}

	reasoner := llm.NewClient(llm.Config{
		APIKey:      cfg.Reasoning.APIKey,
		BaseURL:     cfg.Reasoning.BaseURL,
		Model:       cfg.Reasoning.Model,
		Temperature: cfg.Reasoning.Temperature,
		Timeout:     cfg.Reasoning.Timeout,
	}, logger)

	primary, err := decision.NewReasoningEngine(reasoner, cfg.Fusion, cfg.Decision.Policy, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning engine: %w", err)
	}

	return decision.NewDecider(primary, fallback, logger, metrics), nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	logger.Debug("Router configured",
		slog.Int64("max_upload_bytes", deps.MaxUploadBytes),
		slog.Bool("cancel_on_disconnect", deps.CancelOnDisconnect),
	)

	// Setup router
	return router.SetupRouter(deps)
}
