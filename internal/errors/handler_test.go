package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/storage"
)

func testHandler(includeStack bool) *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), includeStack)
}

func requestWithID(method, target, reqID string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	return r.WithContext(context.WithValue(r.Context(), middleware.RequestIDKey, reqID))
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	return decoded
}

func TestErrorToProblem(t *testing.T) {
	h := testHandler(false)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "timeout",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:       "api validation error",
			err:        ErrValidation("tickers", "required"),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
		},
		{
			name:       "api operation running",
			err:        ErrOperationRunning,
			wantStatus: http.StatusConflict,
			wantType:   TypeOperationRunning,
		},
		{
			name:       "bad factor ref sentinel",
			err:        fmt.Errorf("parse: %w", vquant.ErrBadFactorRef),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeBadFactorRef,
		},
		{
			name:       "factor not found typed",
			err:        &vquant.FactorNotFoundError{Factor: "risk.vol_20", Ticker: "ACB"},
			wantStatus: http.StatusNotFound,
			wantType:   TypeFactorNotFound,
		},
		{
			name:       "data load missing ticker",
			err:        &vquant.DataLoadError{Ticker: "ZZZ", Path: "x", Err: storage.ErrNotFound},
			wantStatus: http.StatusNotFound,
			wantType:   TypeDataNotFound,
		},
		{
			name:       "plain not found text",
			err:        errors.New("report template not found"),
			wantStatus: http.StatusNotFound,
			wantType:   TypeNotFound,
		},
		{
			name:       "rate limit text",
			err:        errors.New("rate limit exceeded for 10.0.0.1"),
			wantStatus: http.StatusTooManyRequests,
			wantType:   TypeRateLimit,
		},
		{
			name:       "unknown error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := requestWithID(http.MethodGet, "/api/v1/data/ohlcv", "req-1")
			problem := h.ErrorToProblem(tt.err, r)

			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/api/v1/data/ohlcv", problem.Instance)
		})
	}
}

func TestHandleError(t *testing.T) {
	h := testHandler(false)

	w := httptest.NewRecorder()
	r := requestWithID(http.MethodGet, "/api/v1/factors", "req-42")
	h.HandleError(w, r, FactorNotFound("technical.rsi_14"))

	assert.Equal(t, http.StatusNotFound, w.Code)

	decoded := decodeProblem(t, w)
	assert.Equal(t, TypeFactorNotFound, decoded["type"])
	assert.Equal(t, "req-42", decoded["trace_id"])
	assert.Equal(t, "FACTOR_NOT_FOUND", decoded["error_code"])
	assert.NotContains(t, decoded, "stack")
}

func TestHandleErrorNil(t *testing.T) {
	h := testHandler(false)

	w := httptest.NewRecorder()
	h.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Empty(t, w.Body.String())
}

func TestHandleErrorWithStack(t *testing.T) {
	h := testHandler(true)

	w := httptest.NewRecorder()
	r := requestWithID(http.MethodGet, "/api/v1/studies", "req-7")
	h.HandleError(w, r, errors.New("boom"))

	decoded := decodeProblem(t, w)
	assert.Contains(t, decoded, "stack")
}

func TestHandlePanic(t *testing.T) {
	h := testHandler(true)

	w := httptest.NewRecorder()
	r := requestWithID(http.MethodPost, "/api/v1/studies", "req-9")
	h.HandlePanic(w, r, "index out of range")

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	decoded := decodeProblem(t, w)
	assert.Equal(t, TypeInternal, decoded["type"])
	assert.Equal(t, "req-9", decoded["trace_id"])
	assert.Equal(t, "index out of range", decoded["panic"])
	assert.Contains(t, decoded, "stack")
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := testHandler(false)

	w := httptest.NewRecorder()
	h.NotFound(w, requestWithID(http.MethodGet, "/nope", "req-1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, TypeNotFound, decodeProblem(t, w)["type"])

	w = httptest.NewRecorder()
	h.MethodNotAllowed(w, requestWithID(http.MethodDelete, "/api/v1/health", "req-2"))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, decodeProblem(t, w)["detail"], "DELETE")
}

func TestHandlerMiddlewarePanicRecovery(t *testing.T) {
	h := testHandler(false)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})

	w := httptest.NewRecorder()
	h.Middleware(next).ServeHTTP(w, requestWithID(http.MethodGet, "/api/v1/data/ohlcv", "req-5"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, TypeInternal, decodeProblem(t, w)["type"])
}

func TestErrorResponseWriter(t *testing.T) {
	h := testHandler(false)

	rec := httptest.NewRecorder()
	w := &errorResponseWriter{
		ResponseWriter: rec,
		handler:        h,
		request:        httptest.NewRequest(http.MethodGet, "/", nil),
	}

	w.WriteHeader(http.StatusBadRequest)
	w.WriteHeader(http.StatusOK) // second call must be ignored
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := w.Write([]byte("body"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "body", rec.Body.String())
}

func TestErrorResponseWriterImplicitOK(t *testing.T) {
	h := testHandler(false)

	rec := httptest.NewRecorder()
	w := &errorResponseWriter{
		ResponseWriter: rec,
		handler:        h,
		request:        httptest.NewRequest(http.MethodGet, "/", nil),
	}

	_, err := w.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
