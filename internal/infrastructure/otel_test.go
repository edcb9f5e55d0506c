package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func otelTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tracingConfig returns a config with tracing enabled for span tests.
func tracingConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "vquant-test",
		ServiceVersion: "v0.0.0",
		Environment:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		EnableMetrics:  true,
		EnableTracing:  true,
		SampleRatio:    1.0,
	}
}

func TestOTelInitialization(t *testing.T) {
	providers, err := InitializeOTel(nil, otelTestLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	// The default configuration enables metrics only.
	assert.Nil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelConfiguration(t *testing.T) {
	logger := otelTestLogger()

	tests := []struct {
		name    string
		config  *OTelConfig
		wantErr string
	}{
		{
			name:   "tracing_and_metrics",
			config: tracingConfig(),
		},
		{
			name: "disabled_tracing",
			config: &OTelConfig{
				ServiceName:    "vquant-test",
				ServiceVersion: "v0.0.0",
				Environment:    "test",
				TraceExporter:  "none",
				MetricExporter: "prometheus",
				EnableMetrics:  true,
				EnableTracing:  false,
			},
		},
		{
			name: "disabled_metrics",
			config: &OTelConfig{
				ServiceName:    "vquant-test",
				ServiceVersion: "v0.0.0",
				Environment:    "test",
				TraceExporter:  "stdout",
				MetricExporter: "none",
				EnableMetrics:  false,
				EnableTracing:  true,
				SampleRatio:    1.0,
			},
		},
		{
			name: "unsupported_trace_exporter",
			config: &OTelConfig{
				ServiceName:    "vquant-test",
				ServiceVersion: "v0.0.0",
				TraceExporter:  "jaeger",
				MetricExporter: "none",
				EnableTracing:  true,
			},
			wantErr: "unsupported trace exporter",
		},
		{
			name: "unsupported_metric_exporter",
			config: &OTelConfig{
				ServiceName:    "vquant-test",
				ServiceVersion: "v0.0.0",
				TraceExporter:  "none",
				MetricExporter: "statsd",
				EnableMetrics:  true,
			},
			wantErr: "unsupported metric exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers, err := InitializeOTel(tt.config, logger)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, providers)

			if tt.config.EnableTracing && tt.config.TraceExporter != "none" {
				assert.NotNil(t, providers.TracerProvider)
				assert.NotNil(t, providers.Tracer)
			}
			if tt.config.EnableMetrics && tt.config.MetricExporter != "none" {
				assert.NotNil(t, providers.MeterProvider)
				assert.NotNil(t, providers.Meter)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			assert.NoError(t, providers.Shutdown(ctx))
		})
	}
}

func TestTraceCorrelation(t *testing.T) {
	providers, err := InitializeOTel(tracingConfig(), otelTestLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	// No span in context yields an empty trace ID.
	assert.Empty(t, TraceIDFromContext(context.Background()))

	ctx, span := providers.Tracer.Start(context.Background(), "test-operation")
	defer span.End()

	traceID := TraceIDFromContext(ctx)
	require.NotEmpty(t, traceID)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)

	ctx = WithTraceID(ctx, traceID)
	assert.Equal(t, traceID, GetTraceID(ctx))
}

func TestBusinessMetrics(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), otelTestLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	assert.NotNil(t, metrics.HTTPRequestsTotal)
	assert.NotNil(t, metrics.HTTPRequestDuration)
	assert.NotNil(t, metrics.HTTPActiveRequests)

	assert.NotNil(t, metrics.DataLoadsTotal)
	assert.NotNil(t, metrics.DataLoadDuration)
	assert.NotNil(t, metrics.DataLoadErrors)
	assert.NotNil(t, metrics.DataCacheHits)
	assert.NotNil(t, metrics.DataCacheMisses)
	assert.NotNil(t, metrics.DataBytesFetched)
	assert.NotNil(t, metrics.FactorsComputed)
	assert.NotNil(t, metrics.SignalsEvaluated)

	assert.NotNil(t, metrics.StudiesTotal)
	assert.NotNil(t, metrics.StudyDuration)
	assert.NotNil(t, metrics.CorrelationsComputed)

	assert.NotNil(t, metrics.OperationExecutionsTotal)
	assert.NotNil(t, metrics.OperationExecutionDuration)
	assert.NotNil(t, metrics.OperationStepsTotal)
	assert.NotNil(t, metrics.OperationStepDuration)
	assert.NotNil(t, metrics.OperationActiveOperations)
	assert.NotNil(t, metrics.OperationErrors)
	assert.NotNil(t, metrics.OperationCancellations)

	assert.NotNil(t, metrics.WebSocketConnections)
	assert.NotNil(t, metrics.WebSocketMessagesSent)
}

func TestSpanOperations(t *testing.T) {
	providers, err := InitializeOTel(tracingConfig(), otelTestLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := providers.Tracer.Start(context.Background(), "test-span")
	defer span.End()
	require.True(t, span.IsRecording())

	SetSpanAttributes(ctx, map[string]interface{}{
		"string_attr": "test_value",
		"int_attr":    42,
		"int64_attr":  int64(7),
		"float_attr":  3.14,
		"bool_attr":   true,
		"other_attr":  time.Second,
	})

	AddSpanEvent(ctx, "test.event", map[string]interface{}{
		"event_data": "test_event_value",
		"timestamp":  time.Now().Unix(),
	})

	RecordError(ctx, assert.AnError)

	// All helpers are no-ops without a recording span.
	bg := context.Background()
	SetSpanAttributes(bg, map[string]interface{}{"k": "v"})
	AddSpanEvent(bg, "ignored", nil)
	RecordError(bg, assert.AnError)
}

func TestRecordHelpers(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), otelTestLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	RecordOperationMetrics(ctx, metrics, "op-1", "study", 120*time.Millisecond, true, nil)
	RecordOperationMetrics(ctx, metrics, "op-2", "ingest", 5*time.Millisecond, false, assert.AnError)
	RecordOperationStepMetrics(ctx, metrics, "op-1", "fetch", 80*time.Millisecond, true)
	RecordActiveOperationChange(ctx, metrics, 1)
	RecordActiveOperationChange(ctx, metrics, -1)
	RecordOperationCancellation(ctx, metrics, "op-3", "user request")
	RecordStudyMetrics(ctx, metrics, "stocks_vn", 300*time.Millisecond, 12, true)

	// Nil metrics must be tolerated everywhere.
	RecordOperationMetrics(ctx, nil, "op", "study", time.Second, true, nil)
	RecordOperationStepMetrics(ctx, nil, "op", "step", time.Second, true)
	RecordActiveOperationChange(ctx, nil, 1)
	RecordOperationCancellation(ctx, nil, "op", "reason")
	RecordStudyMetrics(ctx, nil, "stocks_vn", time.Second, 0, false)
}

func TestPrometheusEndpoint(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), otelTestLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)
	metrics.HTTPRequestsTotal.Add(context.Background(), 1)

	server := httptest.NewServer(providers.PrometheusHTTP)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestTracePropagation(t *testing.T) {
	providers, err := InitializeOTel(tracingConfig(), otelTestLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, parentSpan := providers.Tracer.Start(context.Background(), "parent-operation")
	defer parentSpan.End()

	_, childSpan := providers.Tracer.Start(ctx, "child-operation")
	defer childSpan.End()

	assert.Equal(t, parentSpan.SpanContext().TraceID(), childSpan.SpanContext().TraceID())
	assert.NotEqual(t, parentSpan.SpanContext().SpanID(), childSpan.SpanContext().SpanID())
}

func BenchmarkMetricOperations(b *testing.B) {
	providers, err := InitializeOTel(DefaultOTelConfig(), otelTestLogger())
	require.NoError(b, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(b, err)

	ctx := context.Background()
	b.ResetTimer()
	b.ReportAllocs()

	b.Run("counter_increment", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			metrics.HTTPRequestsTotal.Add(ctx, 1)
		}
	})

	b.Run("histogram_record", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			metrics.HTTPRequestDuration.Record(ctx, float64(i)*0.001)
		}
	})
}
