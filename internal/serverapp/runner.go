package serverapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"reportgen/internal/dbexec"
	"reportgen/internal/export"
	"reportgen/internal/logging"
	"reportgen/internal/observability"
	"reportgen/internal/permission"
	"reportgen/internal/report"
	"reportgen/internal/schema"
	"reportgen/internal/schemarefresh"
	"reportgen/internal/sqlfetch"
)

// ErrCatalogUnavailable is returned when no catalog snapshot has been built.
var ErrCatalogUnavailable = errors.New("report catalog is not available")

// RunnerConfig holds the dependencies of a Runner.
type RunnerConfig struct {
	Manager         *schemarefresh.Manager
	Executor        dbexec.QueryExecutor
	Permissions     report.Permissions
	CustomFields    *sqlfetch.CustomFields
	Metrics         *observability.ReportMetrics
	SecurityMetrics *observability.SecurityMetrics
	Logger          *logging.Logger
	// Timeout bounds one run; zero means no limit.
	Timeout time.Duration
}

// Runner executes report definitions against the current catalog snapshot.
type Runner struct {
	manager  *schemarefresh.Manager
	exec     dbexec.QueryExecutor
	perms    report.Permissions
	custom   *sqlfetch.CustomFields
	metrics  *observability.ReportMetrics
	logger   *logging.Logger
	timeout  time.Duration
	snapshot func() *schemarefresh.Snapshot
}

// NewRunner creates a Runner. Permissions default to allow-all.
func NewRunner(cfg RunnerConfig) *Runner {
	perms := cfg.Permissions
	if perms == nil {
		perms = permission.AllowAll()
	}
	if cfg.SecurityMetrics != nil {
		perms = deniedRecorder{next: perms, metrics: cfg.SecurityMetrics}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	r := &Runner{
		manager: cfg.Manager,
		exec:    cfg.Executor,
		perms:   perms,
		custom:  cfg.CustomFields,
		metrics: cfg.Metrics,
		logger:  logger,
		timeout: cfg.Timeout,
	}
	r.snapshot = func() *schemarefresh.Snapshot {
		if r.manager == nil {
			return nil
		}
		return r.manager.Current()
	}
	return r
}

// RunRequest describes one report run.
type RunRequest struct {
	Definition *report.Definition
	User       report.User
	Format     export.Format
	// Preview limits the run to the preview row count; a definition may also
	// request preview on its own.
	Preview bool
}

// Definitions lists the definitions of the current snapshot.
func (r *Runner) Definitions() []*report.Definition {
	snap := r.snapshot()
	if snap == nil {
		return nil
	}
	return snap.Definitions
}

// Definition looks up a definition by name in the current snapshot.
func (r *Runner) Definition(name string) (*report.Definition, bool) {
	snap := r.snapshot()
	if snap == nil {
		return nil, false
	}
	return snap.Definition(name)
}

// Run executes req and returns the report result.
func (r *Runner) Run(ctx context.Context, req RunRequest) (report.Result, error) {
	def := req.Definition
	if def == nil {
		return report.Result{}, fmt.Errorf("%w: no definition given", report.ErrInvalidDefinition)
	}
	snap := r.snapshot()
	if snap == nil {
		return report.Result{}, ErrCatalogUnavailable
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := r.logger.WithReport(def.Name, def.Root)
	ctx = logging.WithLogger(ctx, logger)
	if r.metrics != nil {
		ctx = observability.ContextWithReportMetrics(ctx, r.metrics)
		r.metrics.IncrementActiveRuns(ctx)
		defer r.metrics.DecrementActiveRuns(ctx)
	}
	start := time.Now()

	res, err := r.run(ctx, snap, req, logger)

	outcome := observability.OutcomeOK
	switch {
	case err != nil:
		outcome = observability.OutcomeError
		logger.Error("report run failed", slog.String("error", err.Error()))
	case Denied(res):
		outcome = observability.OutcomeForbidden
	default:
		logger.Info("report run finished",
			slog.Int("rows", len(res.Rows)),
			slog.Int("columns", len(res.Columns)),
			slog.Duration("duration", time.Since(start)),
		)
	}
	if r.metrics != nil {
		r.metrics.RecordRun(ctx, def.Name, string(req.Format), outcome, time.Since(start), len(res.Rows))
		if outcome == observability.OutcomeOK {
			r.metrics.RecordDeniedColumns(ctx, def.Name, deniedColumnCount(res))
		}
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, snap *schemarefresh.Snapshot, req RunRequest, logger *logging.Logger) (report.Result, error) {
	def := req.Definition
	srcOpts := []sqlfetch.Option{sqlfetch.WithLogger(logger.Logger)}
	if r.custom != nil {
		srcOpts = append(srcOpts, sqlfetch.WithCustomFields(r.custom))
	}
	src, err := sqlfetch.New(r.exec, snap.Catalog, def.Root, srcOpts...)
	if err != nil {
		return report.Result{}, err
	}

	filters, err := def.Filters()
	if err != nil {
		return report.Result{}, err
	}

	opts := []report.Option{
		report.WithPropertyFilters(filters...),
		report.WithPreview(req.Preview || def.Preview),
		report.WithLogger(logger.Logger),
	}
	if r.custom != nil {
		opts = append(opts, report.WithCustomFields(r.custom))
	}
	return report.ToList(ctx, src, def.Columns(), req.User, r.perms, opts...)
}

// Export runs req and writes the result to w in req.Format. Nothing is
// written when the run is denied at the root model.
func (r *Runner) Export(ctx context.Context, w io.Writer, req RunRequest) (report.Result, error) {
	res, err := r.Run(ctx, req)
	if err != nil || Denied(res) {
		return res, err
	}
	if err := export.Write(w, req.Format, req.Definition.DisplayTitle(), export.Header(res.Columns), res); err != nil {
		return res, err
	}
	return res, nil
}

// Denied reports whether res is the result of a run refused at the root model.
func Denied(res report.Result) bool {
	return res.Message == report.PermissionDeniedMessage && len(res.Columns) == 0
}

func deniedColumnCount(res report.Result) int {
	if Denied(res) {
		return 0
	}
	return res.DeniedColumns
}

// deniedRecorder counts refused capability checks.
type deniedRecorder struct {
	next    report.Permissions
	metrics *observability.SecurityMetrics
}

func (d deniedRecorder) HasCapability(ctx context.Context, user report.User, et schema.EntityType, capability report.Capability) bool {
	if d.next.HasCapability(ctx, user, et, capability) {
		return true
	}
	d.metrics.RecordPermissionDenied(ctx, et.Name(), string(capability))
	return false
}
