package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/config"
	"github.com/aurascan-ai/aurascan-engine/pkg/database"
	"github.com/aurascan-ai/aurascan-engine/pkg/handlers"
	"github.com/aurascan-ai/aurascan-engine/pkg/logging"
	"github.com/aurascan-ai/aurascan-engine/pkg/middleware"
	"github.com/aurascan-ai/aurascan-engine/pkg/providers"
	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
	"github.com/aurascan-ai/aurascan-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	schedulerSweepInterval = 15 * time.Minute
	healthCheckInterval    = 5 * time.Minute
)

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.Int("scan_max_concurrent", cfg.Scan.MaxConcurrent),
		zap.Bool("auto_trigger", cfg.Scan.AutoTrigger))

	ctx := context.Background()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	registry, err := providers.NewRegistry(ctx, cfg.Providers, cfg.Scan.ProviderTimeout(), logger)
	if err != nil {
		logger.Fatal("Failed to build provider registry", zap.Error(err))
	}
	defer registry.Close()
	logger.Info("Provider clients configured", zap.Strings("providers", registry.Names()))

	scopes := database.NewOrgScopeProvider(db)

	orgRepo := repositories.NewOrgRepository()
	promptRepo := repositories.NewPromptRepository()
	providerRepo := repositories.NewProviderRepository()
	jobRepo := repositories.NewJobRepository()
	runRepo := repositories.NewRunRepository()
	usageRepo := repositories.NewUsageRepository()

	scanService := services.NewScanService(
		jobRepo, runRepo, orgRepo, promptRepo, providerRepo, registry,
		services.ScanConfig{
			MaxConcurrent:   cfg.Scan.MaxConcurrent,
			ProviderTimeout: cfg.Scan.ProviderTimeout(),
			StaleAfter:      cfg.Scan.HeartbeatStaleAfter(),
		},
		logger,
	)
	schedulerService := services.NewSchedulerService(
		jobRepo, orgRepo, promptRepo, providerRepo, registry, scanService,
		services.SchedulerConfig{WindowHourUTC: cfg.Scan.WindowHourUTC},
		logger,
	)
	healthService := services.NewHealthService(
		jobRepo, runRepo,
		services.HealthConfig{
			StaleAfter: cfg.Scan.HeartbeatStaleAfter(),
			SampleSize: cfg.Scan.HealthSampleSize,
		},
		logger,
	)
	correctionService := services.NewCorrectionService(runRepo, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, healthService, scopes, logger).RegisterRoutes(mux)
	handlers.NewScanHandler(schedulerService, correctionService, jobRepo, scopes,
		cfg.Scan.HeartbeatStaleAfter(), logger).RegisterRoutes(mux)
	handlers.NewUsageHandler(usageRepo, scopes, logger).RegisterRoutes(mux)

	var loop *services.SchedulerLoop
	if cfg.Scan.AutoTrigger {
		loop = services.NewSchedulerLoop(schedulerService, orgRepo, scopes, schedulerSweepInterval, logger)
		loop.Start()
	}

	healthLoop := services.NewHealthLoop(healthService, scopes, healthCheckInterval, logger)
	healthLoop.Start()

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting aurascan-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	healthLoop.Stop()
	if loop != nil {
		loop.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// runMigrations applies pending schema migrations over a database/sql
// connection, which the migrate driver requires.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}
