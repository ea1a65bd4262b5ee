package observability

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// withManualReader installs a meter provider whose data can be collected on demand.
func withManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestReportMetrics(t *testing.T) {
	reader := withManualReader(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	metrics, err := InitMetrics(logger)
	require.NoError(t, err)

	ctx := ContextWithReportMetrics(context.Background(), metrics)
	require.Same(t, metrics, ReportMetricsFromContext(ctx))
	assert.Nil(t, ReportMetricsFromContext(context.Background()))

	metrics.IncrementActiveRuns(ctx)
	metrics.RecordRun(ctx, "payroll", "csv", OutcomeOK, 20*time.Millisecond, 12)
	metrics.RecordRun(ctx, "payroll", "json", OutcomeError, 5*time.Millisecond, 0)
	metrics.RecordDeniedColumns(ctx, "payroll", 2)
	metrics.RecordDeniedColumns(ctx, "payroll", 0)
	metrics.RecordFetch(ctx, "employees", "flat", 3*time.Millisecond)
	metrics.DecrementActiveRuns(ctx)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, data["report.runs.total"]))
	assert.Equal(t, int64(1), sumOf(t, data["report.errors.total"]))
	assert.Equal(t, int64(2), sumOf(t, data["report.columns.denied.total"]))
	assert.Equal(t, int64(0), sumOf(t, data["report.runs.active"]))

	rows, ok := data["report.rows.count"].(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, rows.DataPoints, 1)
	assert.Equal(t, uint64(1), rows.DataPoints[0].Count)
	assert.Equal(t, int64(12), rows.DataPoints[0].Sum)
	assert.Contains(t, data, "report.fetch.duration")
}

func TestReloadMetrics(t *testing.T) {
	reader := withManualReader(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	metrics, err := InitReloadMetrics(logger)
	require.NoError(t, err)

	metrics.RecordReload(context.Background(), time.Millisecond, false, TriggerAdmin, 0)
	metrics.RecordReload(context.Background(), time.Millisecond, true, TriggerStartup, 4)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, data["catalog.reload.total"]))
	assert.Equal(t, int64(1), sumOf(t, data["catalog.reload.errors.total"]))

	gauge, ok := data["report.definitions.loaded"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(4), gauge.DataPoints[0].Value)
}

func TestSecurityMetrics(t *testing.T) {
	reader := withManualReader(t)

	metrics, err := InitSecurityMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordAuthAttempt(ctx, "/reports")
	metrics.RecordAuthFailure(ctx, "/reports", "missing_token")
	metrics.RecordAuthSuccess(ctx, "/reports", "https://issuer.example.com")
	metrics.RecordAdminEndpointAccess(ctx, "reload", true, true)
	metrics.RecordTokenValidationError(ctx, "verification_failed")
	metrics.RecordPermissionDenied(ctx, "employees", "view")
	metrics.RecordPermissionDenied(ctx, "departments", "view")

	data := collect(t, reader)
	assert.Equal(t, int64(1), sumOf(t, data["security.auth.attempts.total"]))
	assert.Equal(t, int64(1), sumOf(t, data["security.auth.failures.total"]))
	assert.Equal(t, int64(2), sumOf(t, data["security.permission.denials.total"]))
}
