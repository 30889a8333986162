package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cfdi/backend/internal/application/invoicing"
	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/infrastructure/auth"
	"github.com/cfdi/backend/internal/infrastructure/config"
	"github.com/cfdi/backend/internal/infrastructure/lock"
	"github.com/cfdi/backend/internal/infrastructure/logger"
	"github.com/cfdi/backend/internal/infrastructure/persistence"
	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"github.com/cfdi/backend/internal/infrastructure/telemetry"
	"github.com/cfdi/backend/internal/interfaces/http/handler"
	"github.com/cfdi/backend/internal/interfaces/http/middleware"
	"github.com/cfdi/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	telemetry.ServiceVersion = version

	ctx := context.Background()

	// The bootstrap logger reports telemetry setup; the final logger also
	// feeds the OpenTelemetry log pipeline.
	bootLog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	otelLevel, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		otelLevel = zapcore.InfoLevel
	}
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		LoggerProvider: loggerProvider,
		Level:          otelLevel,
	}))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting CFDI backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	persistenceMetrics, err := telemetry.NewPersistenceMetrics(meterProvider)
	if err != nil {
		log.Fatal("Failed to register persistence metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithIgnoreRecordNotFoundError(true))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfigFrom(cfg.Telemetry, cfg.Database.DBName), log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// Schema-adaptive persistence
	dialect, err := schema.DialectFor(db.DB)
	if err != nil {
		log.Fatal("Unsupported catalog dialect", zap.Error(err))
	}
	mappings, err := schema.LoadMappings(cfg.Schema.MappingsFile, persistence.DefaultMappings())
	if err != nil {
		log.Fatal("Failed to load schema mappings", zap.Error(err))
	}
	catalog := schema.NewCatalogIntrospector(db.DB, dialect,
		schema.WithIntrospectorLogger(log),
		schema.WithRecorder(persistenceMetrics),
	)
	builder := schema.NewBuilder(catalog, mappings,
		schema.NewSynthesizer(schema.WithSynthesizerLogger(log)),
		schema.WithManagedColumns(cfg.Schema.ManagedColumns...),
		schema.WithBuilderLogger(log),
		schema.WithBuilderRecorder(persistenceMetrics),
	)
	registry := persistence.DefaultRegistry()

	documents := persistence.NewDocumentRepository(db.DB, builder, registry, log,
		persistence.WithFiscalLocation(cfg.Fiscal.Location()),
	)
	tickets := persistence.NewTicketRepository(db.DB, builder, log)
	cancellations := persistence.NewGormCancellationRepository(db.DB)
	reader := persistence.NewFallbackResolver(db.DB, builder, registry,
		persistence.WithFallbackLogger(log),
		persistence.WithFallbackRecorder(persistenceMetrics),
	)

	locker, closeLocker, err := lock.NewLocker(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to initialize document locks", zap.Error(err))
	}
	defer func() {
		if err := closeLocker(); err != nil {
			log.Error("Error closing lock backend", zap.Error(err))
		}
	}()

	// Application services
	issuanceService := invoicing.NewIssuanceService(documents, documents, documents, tickets, locker,
		invoicing.WithIssuanceLogger(log),
		invoicing.WithIssuanceLockTTL(cfg.Redis.LockTTL),
	)
	cancellationService := invoicing.NewCancellationService(documents, cancellations, locker,
		fiscal.NewGraceWindow(cfg.Fiscal.Location()),
		invoicing.WithCancellationLogger(log),
		invoicing.WithCancellationLockTTL(cfg.Redis.LockTTL),
	)
	queryService := invoicing.NewQueryService(reader, log)
	schemaService := invoicing.NewSchemaService(catalog, mappings, log)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     tracerProvider.IsEnabled(),
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.HTTPMetrics(meterProvider, log))
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.SecureWithConfig(middleware.DefaultSecurityConfig()))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFrom(cfg.HTTP)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	validator := auth.NewTokenValidator(cfg.JWT)
	guards := router.Guards{
		Operator: middleware.JWTAuthMiddleware(validator, log),
		Admin: middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			Validator:    validator,
			RequiredRole: router.AdminRole,
			Logger:       log,
		}),
		Callback: middleware.CallbackSecret(cfg.Fiscal.CallbackSecret, log),
	}

	router.NewRouter(engine, router.WithAPIVersion("v1")).
		RegisterAll(router.Handlers{
			Fiscal: handler.NewFiscalHandler(issuanceService, cancellationService, queryService),
			Schema: handler.NewSchemaHandler(schemaService),
			Health: handler.NewHealthHandler(db, version),
		}, guards).
		Setup()

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush traces", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		bootLog.Error("Failed to flush logs", zap.Error(err))
	}
}
