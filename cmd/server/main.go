package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appbilling "github.com/wasteline/backend/internal/application/billing"
	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/infrastructure/cache"
	"github.com/wasteline/backend/internal/infrastructure/config"
	"github.com/wasteline/backend/internal/infrastructure/event"
	"github.com/wasteline/backend/internal/infrastructure/logger"
	"github.com/wasteline/backend/internal/infrastructure/migration"
	"github.com/wasteline/backend/internal/infrastructure/notification"
	"github.com/wasteline/backend/internal/infrastructure/persistence"
	"github.com/wasteline/backend/internal/infrastructure/scheduler"
	"github.com/wasteline/backend/internal/infrastructure/telemetry"
	"github.com/wasteline/backend/internal/interfaces/http/handler"
	"github.com/wasteline/backend/internal/interfaces/http/middleware"
	"github.com/wasteline/backend/internal/interfaces/http/router"
	"github.com/wasteline/backend/migrations"
)

// Version is stamped at build time with -ldflags "-X main.Version=..."
var Version = "dev"

// notificationDedupTTL bounds how long a delivered event ID is remembered
const notificationDedupTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := logger.ConfigForEnvironment(cfg.App.Env)
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    Version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	log = logger.Tee(log, loggerProvider.ZapCore(level))

	log.Info("Starting billing engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", Version),
	)

	meter := meterProvider.Meter("wasteline/billing")
	billingMetrics, err := telemetry.NewBillingMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create billing metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to access connection pool", zap.Error(err))
	}
	poolMetrics, err := telemetry.RegisterDBPoolMetrics(meter, sqlDB)
	if err != nil {
		log.Fatal("Failed to register connection pool metrics", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		migrator, err := migration.NewFromFS(sqlDB, migrations.FS, log)
		if err != nil {
			log.Fatal("Failed to create migrator", zap.Error(err))
		}
		if err := migrator.Up(); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
		if err := migrator.Close(); err != nil {
			log.Warn("Error closing migrator", zap.Error(err))
		}
	}

	// Run-lock and idempotency store
	store, err := cache.NewStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create coordination store", zap.Error(err))
	}

	// Event bus and notification delivery
	bus := event.NewInMemoryEventBus(log)
	notifier, err := notification.New(cfg.Notification, log)
	if err != nil {
		log.Fatal("Failed to create notifier", zap.Error(err))
	}
	notificationHandler := appbilling.NewNotificationHandler(notifier, cfg.Notification.Timeout, billingMetrics, log)
	bus.Subscribe(
		event.NewIdempotentHandler(notificationHandler, store, notificationDedupTTL, log),
		notificationHandler.EventTypes()...,
	)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	loc, err := cfg.Billing.Location()
	if err != nil {
		log.Fatal("Invalid billing timezone", zap.Error(err))
	}
	clock := shared.NewSystemClock(loc)

	// Repositories
	contractRepo := persistence.NewGormContractRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Services
	allocation := appbilling.NewAllocationService(appbilling.AllocationServiceConfig{
		TxScope:        txScope,
		EventPublisher: bus,
		Clock:          clock,
		Metrics:        billingMetrics,
		Logger:         log,
		MaxRetries:     cfg.Billing.AllocationMaxRetries,
		RetryBackoff:   cfg.Billing.AllocationRetryBackoff,
	})
	contracts := appbilling.NewContractService(contractRepo, cfg.Billing.DefaultGracePeriodDays, clock, log)
	payments := appbilling.NewPaymentService(appbilling.PaymentServiceConfig{
		PaymentRepo:    paymentRepo,
		Allocation:     allocation,
		EventPublisher: bus,
		Clock:          clock,
		Metrics:        billingMetrics,
		Logger:         log,
	})
	invoices := appbilling.NewInvoiceService(appbilling.InvoiceServiceConfig{
		InvoiceRepo:    invoiceRepo,
		Allocation:     allocation,
		EventPublisher: bus,
		Clock:          clock,
		Metrics:        billingMetrics,
		Logger:         log,
	})
	ledger := appbilling.NewLedgerService(invoiceRepo, paymentRepo)
	aging := appbilling.NewAgingService(invoiceRepo, cfg.Billing.AgingGraceDays, clock)
	generator := appbilling.NewInvoiceGenerator(appbilling.InvoiceGeneratorConfig{
		ContractRepo:   contractRepo,
		InvoiceRepo:    invoiceRepo,
		Invoices:       invoices,
		RunLocker:      store,
		NoticeStore:    store,
		EventPublisher: bus,
		Clock:          clock,
		Metrics:        billingMetrics,
		Logger:         log,
		Settings: appbilling.GeneratorConfig{
			InvoiceDueDays:        cfg.Billing.InvoiceDueDays,
			RunLockTTL:            cfg.Billing.RunLockTTL,
			OverdueNoticeInterval: cfg.Billing.OverdueNoticeInterval,
		},
	})

	// Scheduler
	cron := scheduler.NewCronScheduler(scheduler.Config{
		JobTimeout: cfg.Billing.RunLockTTL,
		Location:   loc,
	}, log)
	if cfg.Billing.GeneratorEnabled {
		if err := cron.Register(cfg.Billing.GeneratorSchedule, generator); err != nil {
			log.Fatal("Failed to schedule invoice generation", zap.Error(err))
		}
	}
	cron.Start(ctx)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]handler.HealthCheck{
		"database": db.Ping,
	}
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = pinger.Ping
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		Meter:          meter,
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSAllowOrigins,
			AllowMethods: cfg.HTTP.CORSAllowMethods,
			AllowHeaders: cfg.HTTP.CORSAllowHeaders,
			MaxAge:       12 * time.Hour,
		},
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Logger:         log,
	}, router.Handlers{
		Contract: handler.NewContractHandler(contracts),
		Payment:  handler.NewPaymentHandler(payments),
		Invoice:  handler.NewInvoiceHandler(invoices),
		Report:   handler.NewReportHandler(ledger, aging),
		Job:      handler.NewJobHandler(generator, cron),
		Health:   handler.NewHealthHandler(Version, checks),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := cron.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduler did not stop cleanly", zap.Error(err))
	}
	// the bus drains after the scheduler so overdue notices from a final run still go out
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not drain", zap.Error(err))
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn("Error closing coordination store", zap.Error(err))
		}
	}
	if err := poolMetrics.Unregister(); err != nil {
		log.Warn("Error unregistering pool metrics", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logger": loggerProvider.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry provider shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}
