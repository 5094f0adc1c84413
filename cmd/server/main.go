package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/api"
	"github.com/irfndi/celebrum-insights/internal/api/handlers"
	"github.com/irfndi/celebrum-insights/internal/cache"
	"github.com/irfndi/celebrum-insights/internal/config"
	"github.com/irfndi/celebrum-insights/internal/database"
	"github.com/irfndi/celebrum-insights/internal/logging"
	"github.com/irfndi/celebrum-insights/internal/metrics"
	"github.com/irfndi/celebrum-insights/internal/middleware"
	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/observability"
	"github.com/irfndi/celebrum-insights/internal/services"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

const serviceName = "celebrum-insights"

// version is set at build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := observability.InitSentry(cfg.Sentry, version, cfg.Environment); err != nil {
		logger.WithError(err).Warn("Failed to initialize Sentry")
	}
	defer observability.Flush(context.Background())

	ctx := context.Background()
	stopTelemetry := initTelemetry(ctx, cfg, logger)
	defer stopTelemetry()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricCollectors := metrics.New(registry)

	erm := services.NewErrorRecoveryManager(logger)
	for name, policy := range services.DefaultRetryPolicies() {
		erm.RegisterRetryPolicy(name, policy)
	}

	// Initialize database
	var db *database.PostgresDB
	result := erm.ExecuteWithRetry(ctx, "database_operation", func(ctx context.Context, _ int) error {
		var err error
		db, err = database.NewPostgresConnection(ctx, cfg.Database, logger)
		return utils.Transient(err)
	})
	if !result.Success {
		return fmt.Errorf("failed to connect to database: %w", result.Error)
	}
	defer db.Close()

	// Initialize Redis
	var redis *database.RedisClient
	result = erm.ExecuteWithRetry(ctx, "redis_operation", func(ctx context.Context, _ int) error {
		var err error
		redis, err = database.NewRedisConnection(ctx, cfg.Redis, logger)
		return err
	})
	if !result.Success {
		return fmt.Errorf("failed to connect to Redis: %w", result.Error)
	}
	defer redis.Close()

	repo := database.NewSnapshotRepository(db.Pool)
	sources := domainSources(repo)

	var snapshotCache *cache.SnapshotCache
	if cfg.Cache.Enabled {
		snapshotCache = cache.NewSnapshotCache(redis.Client, config.Duration(cfg.Cache.SnapshotTTL, cache.DefaultSnapshotTTL), logger, metricCollectors)
		sources = services.WithCache(sources, snapshotCache, logger)
	}

	aggregator := services.NewCrossRoleAggregator(aggregatorConfig(cfg.Aggregator), logger, metricCollectors)
	engine, err := services.NewRecommendationEngine(engineConfig(cfg.Recommendations), logger, metricCollectors)
	if err != nil {
		return fmt.Errorf("failed to create recommendation engine: %w", err)
	}

	insights := services.NewInsightService(aggregator, engine, sources, analyzers(cfg.Analytics), logger)
	notifier, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	switch {
	case errors.Is(err, services.ErrNotifierDisabled):
		logger.Info("Telegram notifications disabled")
	case err != nil:
		logger.WithError(err).Warn("Failed to initialize Telegram notifier")
	default:
		insights.SetNotifier(notifier)
	}

	deps := api.Dependencies{
		Insights:  insights,
		Versioner: services.NewLiveUpdateVersioner(logger, metricCollectors),
		Snapshots: repo,
		HealthChecks: map[string]handlers.HealthChecker{
			"database": db,
			"redis":    redis,
		},
		Auth:              middleware.NewAuthMiddleware(cfg.Security.JWTSecret, cfg.Security.JWTIssuer),
		Admin:             middleware.NewAdminMiddleware(cfg.Security.AdminAPIKey),
		Collectors:        metricCollectors,
		Gatherer:          registry,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		DefaultMaxResults: cfg.Recommendations.DefaultMaxResults,
		Version:           version,
		Logger:            logger,
	}
	if snapshotCache != nil {
		deps.SnapshotCache = snapshotCache
	}
	router := api.NewRouter(deps)

	// Create HTTP server with security timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:      config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, serviceName, version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logging.LogShutdown(logger, serviceName, "signal received: "+sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// initTelemetry starts trace export and, when configured, log export. The
// returned func flushes both.
func initTelemetry(ctx context.Context, cfg *config.Config, logger *logrus.Logger) func() {
	if !cfg.Telemetry.Enabled {
		return func() {}
	}

	res, err := observability.NewResource(ctx, serviceName, version, cfg.Environment)
	if err != nil {
		logger.WithError(err).Warn("Failed to describe telemetry resource")
	}

	var shutdowns []observability.ShutdownFunc
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry, res)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize tracing")
	} else {
		shutdowns = append(shutdowns, shutdownTracing)
	}

	if cfg.Telemetry.ExportLogs && cfg.Telemetry.Exporter == "otlp" {
		provider, err := logging.NewOTLPLoggerProvider(ctx, logging.OTLPConfig{
			Endpoint: cfg.Telemetry.Endpoint,
			Insecure: cfg.Telemetry.Insecure,
		}, res)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize OTLP log export")
		} else {
			logging.AttachOTLP(logger, provider, serviceName)
			shutdowns = append(shutdowns, provider.Shutdown)
		}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, shutdown := range shutdowns {
			if err := shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to flush telemetry")
			}
		}
	}
}

func domainSources(repo *database.SnapshotRepository) []services.DomainSource {
	snapshotSources := database.SnapshotSources(repo)
	sources := make([]services.DomainSource, len(snapshotSources))
	for i, s := range snapshotSources {
		sources[i] = s
	}
	return sources
}

func aggregatorConfig(cfg config.AggregatorConfig) services.CrossRoleAggregatorConfig {
	out := services.CrossRoleAggregatorConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   config.Duration(cfg.RetryDelay, 100*time.Millisecond),
		FetchTimeout: config.Duration(cfg.FetchTimeout, 0),
	}
	if cfg.CircuitBreaker.Enabled {
		out.Breaker = &services.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
			Timeout:          config.Duration(cfg.CircuitBreaker.Timeout, 60*time.Second),
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		}
	}
	return out
}

func engineConfig(cfg config.RecommendationsConfig) services.RecommendationEngineConfig {
	return services.RecommendationEngineConfig{
		ConfidenceLevel:   cfg.ConfidenceLevel,
		Iterations:        cfg.Iterations,
		IssuedIndexSize:   cfg.IssuedIndexSize,
		HistoryWeight:     cfg.HistoryWeight,
		HistorySaturation: cfg.HistorySaturation,
		ImpactSpread:      cfg.ImpactSpread,
		Seed:              cfg.Seed,
	}
}

func analyzers(cfg config.AnalyticsConfig) map[models.Domain]services.DomainAnalyzer {
	return map[models.Domain]services.DomainAnalyzer{
		models.DomainInventory: services.NewInventoryAnalyzer(services.InventoryAnalyzerConfig{
			MinStockoutProbability: cfg.StockoutProbability,
			TargetTurnover:         cfg.TargetTurnover,
		}),
		models.DomainMarketing: services.NewMarketingAnalyzer(services.MarketingAnalyzerConfig{
			MaxLag: cfg.MarketingMaxLag,
		}),
		models.DomainOperations: services.NewOperationsAnalyzer(services.OperationsAnalyzerConfig{
			BottleneckUtilization:    cfg.BottleneckUtilization,
			UnderutilizedUtilization: cfg.IdleUtilization,
			AnomalyThreshold:         cfg.AnomalyThreshold,
		}),
		models.DomainFinance: services.NewFinancialAnalyzer(services.FinancialAnalyzerConfig{
			AnomalyThreshold: cfg.AnomalyThreshold,
			RunwayWarning:    cfg.RunwayWarning,
		}),
		models.DomainCustomer: services.NewCustomerAnalyzer(services.CustomerAnalyzerConfig{
			AtRiskChurn: cfg.AtRiskChurn,
		}),
	}
}
