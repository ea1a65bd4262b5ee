package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"reportgen/internal/value"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)
	originalTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(originalTP)
	})
	return recorder
}

func spansByName(recorder *tracetest.SpanRecorder) map[string]sdktrace.ReadOnlySpan {
	out := make(map[string]sdktrace.ReadOnlySpan)
	for _, span := range recorder.Ended() {
		out[span.Name()] = span
	}
	return out
}

func TestBuildPlanSpanNestsUnderRun(t *testing.T) {
	recorder := recordSpans(t)
	employee, _, _ := hrTypes()
	src := &memSource{root: employee, flat: [][]value.Value{
		vals(value.Int(1), value.Text("Ann")),
	}}

	_, err := ToList(context.Background(), src, ColumnsFromPaths([]string{"name"}), alice, nil)
	require.NoError(t, err)

	spans := spansByName(recorder)
	run, ok := spans["report.to_list"]
	require.True(t, ok)
	plan, ok := spans["report.build_plan"]
	require.True(t, ok)
	assert.Equal(t, run.SpanContext().SpanID(), plan.Parent().SpanID())
	assert.Equal(t, codes.Unset, plan.Status().Code)
}

func TestBuildPlanSpanRecordsConfigError(t *testing.T) {
	recorder := recordSpans(t)
	employee, _, _ := hrTypes()
	columns := []Column{
		{Path: "name", Group: true, Position: 0},
		{Path: "dept__name", Group: true, Position: 1},
	}

	_, err := ToList(context.Background(), &memSource{root: employee}, columns, alice, nil)
	require.ErrorIs(t, err, ErrMultipleGroups)

	plan, ok := spansByName(recorder)["report.build_plan"]
	require.True(t, ok)
	assert.Equal(t, codes.Error, plan.Status().Code)
	assert.NotEmpty(t, plan.Events(), "the error is recorded as a span event")
}
