package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError(t *testing.T) {
	err := New(http.StatusBadRequest, "INVALID_REQUEST", "bad input")
	assert.Equal(t, "bad input", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", err.ErrorCode)
	assert.Nil(t, err.Details)

	withDetails := NewWithDetails(http.StatusNotFound, "NOT_FOUND", "missing", "ticker AAA")
	assert.Equal(t, "ticker AAA", withDetails.Details)
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err        *APIError
		statusCode int
		errorCode  string
	}{
		{ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
		{ErrValidationFailed, http.StatusBadRequest, "VALIDATION_FAILED"},
		{ErrBadFactorRef, http.StatusBadRequest, "BAD_FACTOR_REF"},
		{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ErrTickerNotFound, http.StatusNotFound, "TICKER_NOT_FOUND"},
		{ErrFactorNotFound, http.StatusNotFound, "FACTOR_NOT_FOUND"},
		{ErrOperationNotFound, http.StatusNotFound, "OPERATION_NOT_FOUND"},
		{ErrOperationRunning, http.StatusConflict, "OPERATION_RUNNING"},
		{ErrRateLimitExceeded, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{ErrInternalServer, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{ErrStorage, http.StatusInternalServerError, "STORAGE_ERROR"},
		{ErrServiceUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.errorCode, func(t *testing.T) {
			assert.Equal(t, tt.statusCode, tt.err.StatusCode)
			assert.Equal(t, tt.errorCode, tt.err.ErrorCode)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		err := ErrValidation("tickers", "at least one ticker is required")
		assert.Equal(t, http.StatusBadRequest, err.StatusCode)
		detail, ok := err.Details.(ValidationError)
		require.True(t, ok)
		assert.Equal(t, "tickers", detail.Field)
	})

	t.Run("factor_not_found", func(t *testing.T) {
		err := FactorNotFound("technical.rsi_14")
		assert.Equal(t, http.StatusNotFound, err.StatusCode)
		assert.Equal(t, "FACTOR_NOT_FOUND", err.ErrorCode)
		assert.Contains(t, err.Message, "technical.rsi_14")
	})

	t.Run("ticker_not_found", func(t *testing.T) {
		err := TickerNotFound("ZZZ")
		assert.Equal(t, http.StatusNotFound, err.StatusCode)
		assert.Contains(t, err.Message, "ZZZ")
	})

	t.Run("storage", func(t *testing.T) {
		err := StorageError("save factor", errors.New("disk full"))
		assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
		assert.Contains(t, err.Message, "save factor")
		assert.Equal(t, "disk full", err.Details)
	})

	t.Run("invalid_request", func(t *testing.T) {
		err := InvalidRequestWithError(errors.New("unexpected EOF"))
		assert.Equal(t, "INVALID_REQUEST", err.ErrorCode)
		assert.Equal(t, "unexpected EOF", err.Details)
	})

	t.Run("panic", func(t *testing.T) {
		err := ErrPanic("nil pointer dereference")
		assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
		rec, ok := err.Details.(PanicRecovery)
		require.True(t, ok)
		assert.Equal(t, "nil pointer dereference", rec.Message)
	})
}

func TestNewValidationErrors(t *testing.T) {
	err := NewValidationErrors([]ValidationError{
		{Field: "tickers", Message: "required"},
		{Field: "winsorize.lower", Message: "must be below upper"},
	})

	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	details, ok := err.Details.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, details.Errors, 2)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, TickerNotFound("ZZZ"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TICKER_NOT_FOUND", resp.Error.ErrorCode)
}

func TestAppError(t *testing.T) {
	t.Run("with_cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewNetworkError("fetch dataset manifest", cause)

		assert.Equal(t, "[NETWORK] fetch dataset manifest: connection refused", err.Error())
		assert.Equal(t, cause, errors.Unwrap(err))
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("without_cause", func(t *testing.T) {
		err := NewNotFoundError("factor rsi_14")
		assert.Equal(t, "[NOT_FOUND] factor rsi_14 not found", err.Error())
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("with_context", func(t *testing.T) {
		err := NewStorageError("load parquet", errors.New("corrupt file")).
			WithContext("ticker", "AAA").
			WithContext("timeframe", "1d")

		assert.Equal(t, "AAA", err.Context["ticker"])
		assert.Equal(t, "1d", err.Context["timeframe"])
	})

	t.Run("types", func(t *testing.T) {
		assert.Equal(t, ErrTypeParsing, NewParsingError("bad csv", nil).Type)
		assert.Equal(t, ErrTypeCompute, NewComputeError("sma window", nil).Type)
		assert.Equal(t, ErrTypeValidation, NewAppValidationError("empty name").Type)
		assert.Equal(t, ErrTypePermission, NewPermissionError("read only").Type)
		assert.Equal(t, ErrTypeConfig, NewConfigError("bad port", nil).Type)
	})
}
