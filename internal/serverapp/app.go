// Package serverapp wires configuration, observability, the report database
// and the catalog manager into the report server and the one-shot CLI.
package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"reportgen/internal/config"
	"reportgen/internal/dbexec"
	"reportgen/internal/logging"
	"reportgen/internal/observability"
	"reportgen/internal/report"
	"reportgen/internal/schemarefresh"
	"reportgen/internal/sqlfetch"
	"reportgen/internal/tlscert"
)

// App owns runtime resources for the reportgen lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	effectiveDatabase string
	dsnPresent        bool

	meterProvider   *observability.MeterProvider
	reportMetrics   *observability.ReportMetrics
	reloadMetrics   *observability.ReloadMetrics
	securityMetrics *observability.SecurityMetrics
	tracerProvider  *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	permissions   report.Permissions
	queryExecutor dbexec.QueryExecutor
	customFields  *sqlfetch.CustomFields

	manager       *schemarefresh.Manager
	catalogCancel context.CancelFunc
	runner        *Runner

	reportsHandler http.Handler
	adminHandler   http.Handler
	mux            *http.ServeMux
	handler        http.Handler

	serverAddr string
	srv        *http.Server
	certSource tlscert.Source

	cleanup cleanupStack

	stateMu      sync.Mutex
	coreReady    bool
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	effectiveDatabase, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		effectiveDatabase: effectiveDatabase,
		dsnPresent:        strings.TrimSpace(cfg.Database.ConnectionString) != "",
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Runner returns the report runner. It is nil until InitCore has completed.
func (a *App) Runner() *Runner {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.runner
}
