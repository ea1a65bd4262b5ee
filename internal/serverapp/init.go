package serverapp

import (
	"context"
	"fmt"
	"log/slog"
)

// InitCore prepares what a report run needs: telemetry, the database,
// permissions and the catalog snapshot loaded from definitionsDir. The
// one-shot CLI stops here.
func (a *App) InitCore(ctx context.Context, definitionsDir string) error {
	return a.init(ctx, definitionsDir, false)
}

// Init initializes all runtime resources including the HTTP server. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	return a.init(ctx, a.cfg.Reports.Dir, true)
}

func (a *App) init(ctx context.Context, definitionsDir string, serve bool) error {
	a.stateMu.Lock()
	if a.initialized || (a.coreReady && !serve) {
		a.stateMu.Unlock()
		return nil
	}
	if a.coreReady {
		a.stateMu.Unlock()
		return fmt.Errorf("app was initialized without the HTTP server")
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, reportMetrics, reloadMetrics, securityMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to database",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database_effective", a.effectiveDatabase),
		slog.Bool("dsn_present", a.dsnPresent),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.effectiveDatabase, a.dsnPresent); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	permissions, closePermissions, err := buildPermissions(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize permissions: %w", err)
	}
	if closePermissions != nil {
		cleanup.push("permissions store", func(_ context.Context) error {
			return closePermissions()
		})
	}

	queryExecutor := buildQueryExecutor(a.cfg, db, a.effectiveDatabase)
	customFields := buildCustomFields(a.cfg, queryExecutor)

	manager, catalogCancel, err := startCatalogManager(ctx, a.cfg, a.logger, db, reloadMetrics, customFields, a.effectiveDatabase, definitionsDir, serve)
	if err != nil {
		return fmt.Errorf("failed to initialize report catalog: %w", err)
	}
	cleanup.push("catalog manager", func(shutdownCtx context.Context) error {
		catalogCancel()
		return manager.Wait(shutdownCtx)
	})

	runner := NewRunner(RunnerConfig{
		Manager:         manager,
		Executor:        queryExecutor,
		Permissions:     permissions,
		CustomFields:    customFields,
		Metrics:         reportMetrics,
		SecurityMetrics: securityMetrics,
		Logger:          a.logger,
		Timeout:         a.cfg.Server.ReportTimeout,
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.reportMetrics = reportMetrics
	a.reloadMetrics = reloadMetrics
	a.securityMetrics = securityMetrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.permissions = permissions
	a.queryExecutor = queryExecutor
	a.customFields = customFields
	a.manager = manager
	a.catalogCancel = catalogCancel
	a.runner = runner
	a.stateMu.Unlock()

	if !serve {
		a.stateMu.Lock()
		a.cleanup = cleanup
		a.coreReady = true
		a.stateMu.Unlock()
		success = true
		return nil
	}

	reportsHandler, err := buildReportsHandler(a.cfg, a.logger, runner, securityMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize reports handler: %w", err)
	}

	adminHandler, err := buildAdminHandler(a.cfg, a.logger, manager, securityMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize admin handler: %w", err)
	}

	mux := buildRouter(a.cfg, a.logger, db, reportsHandler, adminHandler, meterProvider)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv, certSource, err := buildServer(a.cfg, a.logger, handler, serverAddr)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})
	if certSource != nil {
		cleanup.push("TLS certificate source", func(_ context.Context) error {
			return certSource.Close()
		})
	}

	a.stateMu.Lock()
	a.reportsHandler = reportsHandler
	a.adminHandler = adminHandler
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.certSource = certSource
	a.cleanup = cleanup
	a.coreReady = true
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
