package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reportgen/internal/config"
	"reportgen/internal/dbexec"
	"reportgen/internal/logging"
	"reportgen/internal/middleware"
	"reportgen/internal/observability"
	"reportgen/internal/permission"
	"reportgen/internal/report"
	"reportgen/internal/schemarefresh"
	"reportgen/internal/sqlfetch"
	"reportgen/internal/tlscert"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitLogger builds the process logger and, when enabled, the OTLP log
// provider. A nil out writes to stdout.
func InitLogger(cfg *config.Config, out io.Writer) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: out,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     exporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func exporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.ReportMetrics, *observability.ReloadMetrics, *observability.SecurityMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")

	reportMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	reloadMetrics, err := observability.InitReloadMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	securityMetrics, err := observability.InitSecurityMetrics()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger.Info("security metrics initialized")

	return meterProvider, reportMetrics, reloadMetrics, securityMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       exporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")

	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	// verify-ca and verify-full need the custom TLS config registered before Open.
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	dsn := cfg.Database.DSN()

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, effectiveDatabase string, dsnPresent bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("database_effective", effectiveDatabase),
		slog.Bool("dsn_present", dsnPresent),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval

	// A zero timeout tries once and fails immediately.
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

// buildPermissions selects the permissions backend. The returned close
// function, when non-nil, releases the backend's connection.
func buildPermissions(cfg *config.Config, logger *logging.Logger) (report.Permissions, func() error, error) {
	mode, err := permission.ParseMode(cfg.Permissions.Mode)
	if err != nil {
		return nil, nil, err
	}

	switch mode {
	case permission.ModeStatic:
		static, err := permission.NewStatic(cfg.Permissions.Grants)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("static permissions enabled", slog.Int("grants", len(cfg.Permissions.Grants)))
		return static, nil, nil
	case permission.ModeMelange:
		store, err := openMelangeStore(cfg.Permissions.MelangeDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open melange store: %w", err)
		}
		checker := permission.NewMelangeChecker(store, cfg.Permissions.CacheTTL)
		logger.Info("melange permissions enabled", slog.Duration("cache_ttl", cfg.Permissions.CacheTTL))
		return permission.NewMelange(checker, logger.Logger), store.Close, nil
	default:
		logger.Warn("permissions are disabled; every user may read every model")
		return permission.AllowAll(), nil, nil
	}
}

func openMelangeStore(dsn string) (*sql.DB, error) {
	store, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	store.SetConnMaxLifetime(30 * time.Minute)
	store.SetMaxOpenConns(10)
	store.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.PingContext(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func buildQueryExecutor(cfg *config.Config, db *sql.DB, effectiveDatabase string) dbexec.QueryExecutor {
	if !cfg.Server.Auth.DBRoleEnabled {
		return dbexec.NewStandardExecutor(db)
	}
	return dbexec.NewRoleExecutor(dbexec.RoleExecutorConfig{
		DB:           db,
		DatabaseName: effectiveDatabase,
		RoleFromCtx:  middleware.RoleFromContext,
	})
}

func buildCustomFields(cfg *config.Config, executor dbexec.QueryExecutor) *sqlfetch.CustomFields {
	if !cfg.Schema.CustomFieldsEnabled {
		return nil
	}
	return sqlfetch.NewCustomFields(executor, cfg.Schema.CustomFields)
}

func startCatalogManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, metrics *observability.ReloadMetrics, customFields *sqlfetch.CustomFields, effectiveDatabase string, definitionsDir string, poll bool) (*schemarefresh.Manager, context.CancelFunc, error) {
	managerCfg := schemarefresh.Config{
		DB:             db,
		DatabaseName:   effectiveDatabase,
		DefinitionsDir: definitionsDir,
		Naming:         cfg.Naming,
		ExcludeTables:  cfg.Schema.ExcludeTables,
		Properties:     cfg.Schema.Properties,
		Logger:         logger,
		Metrics:        metrics,
		MinInterval:    cfg.Schema.RefreshMinInterval,
		MaxInterval:    cfg.Schema.RefreshMaxInterval,
	}
	if customFields != nil {
		managerCfg.CustomFields = customFields
	}
	manager, err := schemarefresh.NewManager(ctx, managerCfg)
	if err != nil {
		return nil, nil, err
	}

	catalogCtx, catalogCancel := context.WithCancel(context.Background())
	if poll {
		manager.Start(catalogCtx)
	}

	return manager, catalogCancel, nil
}

func oidcAuthConfig(cfg *config.Config, securityMetrics *observability.SecurityMetrics) middleware.OIDCAuthConfig {
	return middleware.OIDCAuthConfig{
		Enabled:   cfg.Server.Auth.OIDCEnabled,
		IssuerURL: cfg.Server.Auth.OIDCIssuerURL,
		Audience:  cfg.Server.Auth.OIDCAudience,
		CAFile:    cfg.Server.Auth.OIDCCAFile,
		ClockSkew: cfg.Server.Auth.OIDCClockSkew,
		Metrics:   securityMetrics,
	}
}

func buildReportsHandler(cfg *config.Config, logger *logging.Logger, runner *Runner, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	reports := http.NewServeMux()
	reports.HandleFunc("GET /reports", listReportsHandler(runner))
	reports.HandleFunc("GET /reports/{name}", runReportHandler(runner, cfg.Reports))

	// Middleware order: OIDC auth runs outermost, then the report user and DB
	// role are read from the validated claims. The chain is:
	//   request -> logging -> OIDC auth -> report user -> DB role -> reports
	var handler http.Handler = reports
	if cfg.Server.Auth.DBRoleEnabled {
		handler = middleware.DBRoleMiddleware(cfg.Server.Auth.DBRoleClaimName, nil)(handler)
		logger.Info("database role middleware enabled")
	}

	if cfg.Server.Auth.OIDCEnabled {
		handler = middleware.ReportUserMiddleware(cfg.Server.Auth.RolesClaimName)(handler)
		authMiddleware, err := middleware.OIDCAuthMiddleware(oidcAuthConfig(cfg, securityMetrics), logger)
		if err != nil {
			return nil, err
		}
		handler = authMiddleware(handler)
		logger.Info("OIDC auth middleware enabled")
	}

	return middleware.LoggingMiddleware(logger)(handler), nil
}

// buildAdminHandler returns nil when the admin endpoints are disabled.
func buildAdminHandler(cfg *config.Config, logger *logging.Logger, manager *schemarefresh.Manager, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	if !cfg.Server.Admin.ReloadEnabled {
		return nil, nil
	}

	var adminHandler http.Handler = http.HandlerFunc(reloadHandler(manager, securityMetrics))
	if strings.TrimSpace(cfg.Server.Admin.AuthToken) != "" {
		tokenMiddleware, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
			Token:     cfg.Server.Admin.AuthToken,
			Operation: "reload",
			Metrics:   securityMetrics,
		})
		if err != nil {
			return nil, err
		}
		adminHandler = tokenMiddleware(adminHandler)
		logger.Info("admin endpoints require the admin token")
	} else {
		authMiddleware, err := middleware.OIDCAuthMiddleware(oidcAuthConfig(cfg, securityMetrics), logger)
		if err != nil {
			return nil, err
		}
		adminHandler = authMiddleware(adminHandler)
		logger.Info("admin endpoints require OIDC authentication")
	}
	return middleware.LoggingMiddleware(logger)(adminHandler), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, reportsHandler http.Handler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/reports", reportsHandler)
	mux.Handle("/reports/", reportsHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/reports", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))
	if adminHandler != nil {
		mux.Handle("/admin/reload", adminHandler)
	}

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
		})(handler)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality: report names
// collapse into the route pattern.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/reports", "/health", "/metrics", "/admin/reload":
		return rawPath
	}
	if name, ok := strings.CutPrefix(rawPath, "/reports/"); ok && name != "" && !strings.Contains(name, "/") {
		return "/reports/{name}"
	}
	return "/*"
}

func buildServer(cfg *config.Config, logger *logging.Logger, handler http.Handler, serverAddr string) (*http.Server, tlscert.Source, error) {
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	mode, err := tlscert.ParseMode(cfg.Server.TLSMode)
	if err != nil {
		return nil, nil, err
	}
	certSource, err := tlscert.New(tlscert.Config{
		Mode:        mode,
		CertFile:    cfg.Server.TLSCertFile,
		KeyFile:     cfg.Server.TLSKeyFile,
		AutoCertDir: cfg.Server.TLSAutoCertDir,
	}, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	if certSource == nil {
		return srv, nil, nil
	}

	srv.TLSConfig = certSource.TLSConfig()
	logger.Info("TLS enabled",
		slog.String("mode", string(mode)),
		slog.String("cert_source", certSource.String()))

	return srv, certSource, nil
}

func tlsEnabled(cfg *config.Config) bool {
	mode, err := tlscert.ParseMode(cfg.Server.TLSMode)
	return err == nil && mode != tlscert.ModeOff
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	useTLS := tlsEnabled(cfg)
	go func() {
		protocol := "http"
		if useTLS {
			protocol = "https"
		}

		logAttrs := []any{
			slog.String("protocol", protocol),
			slog.String("address", serverAddr),
			slog.String("reports_endpoint", "/reports"),
			slog.String("health_endpoint", "/health"),
			slog.String("reports_dir", cfg.Reports.Dir),
			slog.String("permissions_mode", cfg.Permissions.Mode),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
			slog.Bool("tls_enabled", useTLS),
		}

		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		if cfg.Server.Admin.ReloadEnabled {
			logAttrs = append(logAttrs, slog.String("reload_endpoint", "/admin/reload"))
		}
		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}
		if useTLS {
			logAttrs = append(logAttrs, slog.String("tls_mode", cfg.Server.TLSMode))
		}

		logger.Info("server starting", logAttrs...)

		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			// Generic body; driver errors can carry addresses.
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}

// reloader rebuilds the catalog snapshot; *schemarefresh.Manager implements it.
type reloader interface {
	ReloadContext(ctx context.Context, trigger string) error
	Current() *schemarefresh.Snapshot
}

func reloadHandler(manager reloader, securityMetrics *observability.SecurityMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
			return
		}

		authCtx, authenticated := middleware.AuthFromContext(r.Context())
		logAttrs := []any{
			slog.String("operation", "reload"),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Bool("authenticated", authenticated),
		}
		if authenticated {
			logAttrs = append(logAttrs,
				slog.String("authenticated_user", authCtx.Subject),
				slog.String("issuer", authCtx.Issuer),
			)
		}
		reqLogger.Info("admin endpoint accessed", logAttrs...)

		reloadCtx, reloadCancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer reloadCancel()

		if err := manager.ReloadContext(reloadCtx, observability.TriggerAdmin); err != nil {
			if securityMetrics != nil {
				securityMetrics.RecordAdminEndpointAccess(r.Context(), "reload", authenticated, false)
			}
			reqLogger.Error("report reload failed", slog.String("error", err.Error()))
			middleware.WriteError(w, http.StatusInternalServerError, "reload failed", "RELOAD_FAILED")
			return
		}

		if securityMetrics != nil {
			securityMetrics.RecordAdminEndpointAccess(r.Context(), "reload", authenticated, true)
		}

		definitions := 0
		if snap := manager.Current(); snap != nil {
			definitions = len(snap.Definitions)
		}
		reqLogger.Info("reports reloaded", append(logAttrs, slog.Int("definitions", definitions))...)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","definitions":%d}`, definitions)
	}
}
