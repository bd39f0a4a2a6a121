package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appintegration "github.com/erp/marketplace/internal/application/integration"
	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/auth"
	"github.com/erp/marketplace/internal/infrastructure/cache"
	"github.com/erp/marketplace/internal/infrastructure/channel"
	"github.com/erp/marketplace/internal/infrastructure/config"
	"github.com/erp/marketplace/internal/infrastructure/logger"
	"github.com/erp/marketplace/internal/infrastructure/persistence"
	"github.com/erp/marketplace/internal/infrastructure/scheduler"
	"github.com/erp/marketplace/internal/infrastructure/telemetry"
	"github.com/erp/marketplace/internal/infrastructure/vault"
	"github.com/erp/marketplace/internal/interfaces/http/handler"
	"github.com/erp/marketplace/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

//	@title			ERP Marketplace API
//	@version		1.0
//	@description	Marketplace channel integration and synchronization
//	@BasePath		/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting marketplace service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = logsProvider.Bridge(log, logger.ParseLevel(cfg.Log.Level))
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider.Meter(telemetry.MeterName))
	if err != nil {
		log.Fatal("Failed to register sync metrics", zap.Error(err))
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}
	if err := telemetry.RegisterOtelGorm(db.DB, telemetry.DBTracingConfig{
		Enabled: cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBName:  cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to enable database tracing", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// Sync locks and OAuth states
	coordination, err := cache.NewCoordinationFactory(cfg.Redis, cfg.Marketplace.SyncTimeout+time.Minute,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	).Create(ctx)
	if err != nil {
		log.Fatal("Failed to initialize coordination backend", zap.Error(err))
	}
	defer func() {
		_ = coordination.Close()
	}()

	// Credential vault
	masterKey := cfg.Marketplace.VaultMasterKey
	if masterKey == "" {
		if cfg.IsProduction() {
			log.Fatal("marketplace.vault_master_key is required in production")
		}
		masterKey, err = vault.GenerateKey()
		if err != nil {
			log.Fatal("Failed to generate vault key", zap.Error(err))
		}
		log.Warn("No vault master key configured, using an ephemeral key. Stored credentials will not survive a restart.")
	}
	credentialVault, err := vault.New(persistence.NewGormCredentialStore(db.DB), masterKey, log)
	if err != nil {
		log.Fatal("Failed to initialize credential vault", zap.Error(err))
	}

	// Channel connectors
	catalog := channel.BuiltinCatalog()
	connectors, err := channel.NewRegistry(catalog, cfg.Marketplace.Channels, log)
	if err != nil {
		log.Fatal("Failed to build channel connectors", zap.Error(err))
	}

	// Repositories
	channels := cache.NewCachedChannelRepository(persistence.NewGormChannelRepository(db.DB), cfg.Marketplace.CatalogCacheTTL)
	enablements := persistence.NewGormEnablementRepository(db.DB)
	integrations := persistence.NewGormIntegrationRepository(db.DB)
	syncLogs := persistence.NewGormSyncLogRepository(db.DB)

	// Application services
	retry := integration.RetryPolicy{
		BaseDelay: cfg.Marketplace.RetryBaseDelay,
		MaxDelay:  cfg.Marketplace.RetryMaxDelay,
	}
	gate := appintegration.NewPermissionGate()
	registry := appintegration.NewChannelRegistry(channels, enablements, gate, log)
	if err := registry.Bootstrap(ctx, channel.Channels(catalog)); err != nil {
		log.Fatal("Failed to seed channel catalog", zap.Error(err))
	}

	negotiator := appintegration.NewAuthNegotiator(registry, integrations, credentialVault, coordination.Locks, gate,
		appintegration.NewOAuth2Strategy(connectors, coordination.States, cfg.Marketplace.StateTTL),
		appintegration.NewAPIKeyStrategy(connectors),
		log,
	)
	executor := appintegration.NewSyncExecutor(registry, integrations, syncLogs, credentialVault, connectors, coordination.Locks,
		appintegration.SyncExecutorConfig{Timeout: cfg.Marketplace.SyncTimeout, Retry: retry},
		log,
	)
	executor.SetMetrics(syncMetrics)

	pool, err := scheduler.NewWorkerPool(scheduler.WorkerPoolConfig{
		Workers:   cfg.Marketplace.Workers,
		QueueSize: cfg.Marketplace.QueueSize,
	}, executor, log)
	if err != nil {
		log.Fatal("Invalid worker pool configuration", zap.Error(err))
	}

	signatureFailures := cache.NewSignatureFailureTracker(cfg.Marketplace.WebhookFailureWindow, 0)
	ingestor := appintegration.NewWebhookIngestor(registry, connectors, integrations, credentialVault,
		coordination.Locks, signatureFailures, pool, cfg.Marketplace.WebhookFailureThreshold, log)
	ingestor.SetMetrics(syncMetrics)

	service := appintegration.NewIntegrationService(integrations, syncLogs, credentialVault, coordination.Locks, gate,
		negotiator, executor, log)
	service.SetSignatureTracker(signatureFailures)
	stats := appintegration.NewStatsAggregator(channels, enablements, integrations, syncLogs, gate, cfg.Marketplace.StatsWindow)

	// Background sync
	if err := pool.Start(ctx); err != nil {
		log.Fatal("Failed to start worker pool", zap.Error(err))
	}
	var trigger *scheduler.SyncTrigger
	if cfg.Marketplace.SchedulerEnabled {
		trigger, err = scheduler.NewSyncTrigger(scheduler.SyncTriggerConfig{
			Spec:      cfg.Marketplace.CronSpec,
			Direction: integration.DirectionImport,
		}, appintegration.NewSyncScheduler(integrations, retry), pool, log)
		if err != nil {
			log.Fatal("Invalid sync trigger configuration", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sync trigger", zap.Error(err))
		}
	} else {
		log.Info("Scheduled sync disabled")
	}

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.NewEngine(router.Config{
		HTTP:        cfg.HTTP,
		Marketplace: cfg.Marketplace,
		JWTService:  auth.NewJWTService(cfg.JWT),
		Logger:      log,
		Tracing:     tracerProvider.IsEnabled(),
	}, router.Handlers{
		System: handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.ReadinessCheck{
			"database": db.Ping,
			"redis":    coordination.Ping,
		}),
		Channel:     handler.NewChannelHandler(registry, gate),
		Connect:     handler.NewConnectHandler(negotiator),
		Integration: handler.NewIntegrationHandler(service),
		Webhook:     handler.NewWebhookHandler(ingestor),
		Stats:       handler.NewStatsHandler(stats),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Error("Sync trigger did not stop cleanly", zap.Error(err))
		}
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Error("Worker pool did not drain", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush traces", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	_ = log.Sync()
	if err := logsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush logs", zap.Error(err))
	}
}
