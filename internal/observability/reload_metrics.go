package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Reload triggers.
const (
	TriggerStartup = "startup"
	TriggerAdmin   = "admin"
	TriggerPoll    = "poll"
)

// ReloadMetrics tracks reloads of the model catalog and report definitions.
type ReloadMetrics struct {
	reloadCounter   metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
	definitions     atomic.Int64
}

// InitReloadMetrics initializes reload metrics.
func InitReloadMetrics(logger *slog.Logger) (*ReloadMetrics, error) {
	meter := otel.Meter(MeterName)

	reloadCounter, err := meter.Int64Counter(
		"catalog.reload.total",
		metric.WithDescription("Total number of catalog and definition reload attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reload counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"catalog.reload.errors.total",
		metric.WithDescription("Total number of failed reload attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reload error counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"catalog.reload.duration",
		metric.WithDescription("Duration of reload attempts in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reload duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"catalog.reload.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful reload"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reload last success gauge: %w", err)
	}

	definitionsGauge, err := meter.Int64ObservableGauge(
		"report.definitions.loaded",
		metric.WithDescription("Number of report definitions currently served"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create definitions gauge: %w", err)
	}

	metrics := &ReloadMetrics{
		reloadCounter: reloadCounter,
		errorCounter:  errorCounter,
		durationHist:  durationHist,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if last := metrics.lastSuccessUnix.Load(); last > 0 {
				observer.ObserveInt64(lastSuccessGauge, last)
				observer.ObserveInt64(definitionsGauge, metrics.definitions.Load())
			}
			return nil
		},
		lastSuccessGauge,
		definitionsGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register reload gauge callback: %w", err)
	}

	logger.Info("reload metrics initialized")
	return metrics, nil
}

// RecordReload records a reload attempt. definitions is the number of report
// definitions served after a successful reload.
func (m *ReloadMetrics) RecordReload(ctx context.Context, duration time.Duration, success bool, trigger string, definitions int) {
	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	}

	m.reloadCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !success {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
		return
	}

	m.definitions.Store(int64(definitions))
	m.lastSuccessUnix.Store(time.Now().Unix())
}
