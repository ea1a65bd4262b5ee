package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of reportgen metrics.
const MeterName = "reportgen"

// Report run outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeForbidden = "forbidden"
)

// ReportMetrics holds metrics for report runs.
type ReportMetrics struct {
	runDuration   metric.Float64Histogram
	runCounter    metric.Int64Counter
	errorCounter  metric.Int64Counter
	activeRuns    metric.Int64UpDownCounter
	rowsCount     metric.Int64Histogram
	deniedColumns metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

// InitReportMetrics creates the report instruments on the global meter provider.
func InitReportMetrics() (*ReportMetrics, error) {
	meter := otel.Meter(MeterName)

	runDuration, err := meter.Float64Histogram(
		"report.run.duration",
		metric.WithDescription("Duration of report runs in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}

	runCounter, err := meter.Int64Counter(
		"report.runs.total",
		metric.WithDescription("Total number of report runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"report.errors.total",
		metric.WithDescription("Total number of failed report runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRuns, err := meter.Int64UpDownCounter(
		"report.runs.active",
		metric.WithDescription("Number of report runs in progress"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active runs counter: %w", err)
	}

	rowsCount, err := meter.Int64Histogram(
		"report.rows.count",
		metric.WithDescription("Number of rows produced by a report run, including summary rows"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows histogram: %w", err)
	}

	deniedColumns, err := meter.Int64Counter(
		"report.columns.denied.total",
		metric.WithDescription("Columns dropped from report output for lack of permission"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create denied columns counter: %w", err)
	}

	fetchDuration, err := meter.Float64Histogram(
		"report.fetch.duration",
		metric.WithDescription("Duration of the database fetch step of a report run in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch duration histogram: %w", err)
	}

	return &ReportMetrics{
		runDuration:   runDuration,
		runCounter:    runCounter,
		errorCounter:  errorCounter,
		activeRuns:    activeRuns,
		rowsCount:     rowsCount,
		deniedColumns: deniedColumns,
		fetchDuration: fetchDuration,
	}, nil
}

// RecordRun records a finished report run.
func (m *ReportMetrics) RecordRun(ctx context.Context, report, format, outcome string, duration time.Duration, rows int) {
	attrs := []attribute.KeyValue{
		attribute.String("report", report),
		attribute.String("format", format),
		attribute.String("outcome", outcome),
	}
	m.runDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.runCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if outcome == OutcomeError {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("report", report)))
		return
	}
	m.rowsCount.Record(ctx, int64(rows), metric.WithAttributes(attribute.String("report", report)))
}

// RecordDeniedColumns counts columns dropped by permission checks.
func (m *ReportMetrics) RecordDeniedColumns(ctx context.Context, report string, count int) {
	if count <= 0 {
		return
	}
	m.deniedColumns.Add(ctx, int64(count), metric.WithAttributes(attribute.String("report", report)))
}

// RecordFetch records the time spent loading rows for a model.
func (m *ReportMetrics) RecordFetch(ctx context.Context, model string, mode string, duration time.Duration) {
	m.fetchDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("mode", mode),
	))
}

// IncrementActiveRuns increments the active runs counter.
func (m *ReportMetrics) IncrementActiveRuns(ctx context.Context) {
	m.activeRuns.Add(ctx, 1)
}

// DecrementActiveRuns decrements the active runs counter.
func (m *ReportMetrics) DecrementActiveRuns(ctx context.Context) {
	m.activeRuns.Add(ctx, -1)
}

// InitMetrics initializes the report metrics and logs that they are ready.
func InitMetrics(logger *slog.Logger) (*ReportMetrics, error) {
	metrics, err := InitReportMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize report metrics: %w", err)
	}
	logger.Info("report metrics initialized")
	return metrics, nil
}

type reportMetricsContextKey struct{}

// ContextWithReportMetrics stores report metrics in the provided context.
func ContextWithReportMetrics(ctx context.Context, metrics *ReportMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, reportMetricsContextKey{}, metrics)
}

// ReportMetricsFromContext retrieves report metrics from the context.
func ReportMetricsFromContext(ctx context.Context) *ReportMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(reportMetricsContextKey{}).(*ReportMetrics)
	return metrics
}
