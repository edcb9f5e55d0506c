package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/edges-ai/vquant/internal/infrastructure"
)

func metricsOnlyProviders(t *testing.T) *infrastructure.OTelProviders {
	t.Helper()
	providers, err := infrastructure.InitializeOTel(&infrastructure.OTelConfig{
		ServiceName:    "vquant-test",
		ServiceVersion: "test",
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		EnableTracing:  false,
		EnableMetrics:  true,
		SampleRatio:    1.0,
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, providers.Shutdown(ctx))
	})
	return providers
}

func noopMetrics(t *testing.T) *infrastructure.BusinessMetrics {
	t.Helper()
	metrics, err := infrastructure.CreateBusinessMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return metrics
}

func TestNewOTelMiddleware(t *testing.T) {
	providers := metricsOnlyProviders(t)

	mw, err := NewOTelMiddleware(providers)
	require.NoError(t, err)
	require.NotNil(t, mw)
	assert.NotNil(t, mw.BusinessMetrics())
}

func TestOTelHandler(t *testing.T) {
	providers := metricsOnlyProviders(t)
	mw, err := NewOTelMiddleware(providers)
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Use(mw.Handler)
	router.Get("/api/data/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ticker":"AAPL"}`))
	})
	router.Get("/api/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/data/AAPL", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ticker":"AAPL"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/broken", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	// Both requests land in the exported counter, labeled by chi route
	// pattern and status.
	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsW := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(metricsW, metricsReq)
	require.Equal(t, http.StatusOK, metricsW.Code)

	body := metricsW.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, `route="/api/data/{ticker}"`)
	assert.Contains(t, body, `status_code="500"`)
}

func TestBusinessMetricsMiddleware(t *testing.T) {
	metrics := noopMetrics(t)

	var got *infrastructure.BusinessMetrics
	handler := BusinessMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetBusinessMetricsFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Same(t, metrics, got)
	assert.Nil(t, GetBusinessMetricsFromContext(context.Background()))
}

func TestRecordStepMetrics(t *testing.T) {
	metrics := noopMetrics(t)
	ctx := context.WithValue(context.Background(), businessMetricsKey, metrics)

	// Must be safe with and without metrics on the context.
	RecordStepMetrics(ctx, "op-1", "compute_factors", 120*time.Millisecond, true)
	RecordStepMetrics(context.Background(), "op-1", "compute_factors", 120*time.Millisecond, false)
}

func TestTraceMiddleware(t *testing.T) {
	called := false
	handler := TraceMiddleware("list_factors")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/factors", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebSocketTraceMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	called := false
	handler := WebSocketTraceMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://research.example.com")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, called)

	entry := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "websocket upgrade attempt", entry["msg"])
	assert.Equal(t, "https://research.example.com", entry["origin"])
}

func TestOperationTraceHandler(t *testing.T) {
	var gotPath string
	handler := OperationTraceHandler("study_run", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/operations", nil))

	assert.Equal(t, "/api/operations", gotPath)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "x-forwarded-for wins",
			headers: map[string]string{"X-Forwarded-For": "10.1.2.3", "X-Real-IP": "10.9.9.9"},
			remote:  "192.168.1.1:1234",
			want:    "10.1.2.3",
		},
		{
			name:    "x-real-ip fallback",
			headers: map[string]string{"X-Real-IP": "10.9.9.9"},
			remote:  "192.168.1.1:1234",
			want:    "10.9.9.9",
		},
		{
			name:   "remote addr fallback",
			remote: "192.168.1.1:1234",
			want:   "192.168.1.1:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetRealIP(req))
		})
	}
}

// newBufferLogger builds a JSON logger writing to buf for log assertions.
func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}
