package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/edges-ai/vquant/internal/errors"
)

// studyRequest mirrors the request DTOs the API validates.
type studyRequest struct {
	Ticker string `json:"ticker" validate:"required,ticker"`
	Factor string `json:"factor" validate:"required,factorref"`
	Start  string `json:"start" validate:"omitempty,iso8601"`
	Window int    `json:"window" validate:"gte=1,lte=504"`
	Method string `json:"method" validate:"omitempty,oneof=pearson spearman"`
}

func newValidationMiddleware() *ValidationMiddleware {
	logger := discardLogger()
	return NewValidationMiddleware(logger, apierrors.NewErrorHandler(logger, false))
}

func TestValidateStruct(t *testing.T) {
	m := newValidationMiddleware()

	tests := []struct {
		name    string
		req     studyRequest
		wantErr string
	}{
		{
			name: "valid request",
			req:  studyRequest{Ticker: "AAPL", Factor: "momentum.roc_20", Start: "2026-01-02", Window: 60, Method: "spearman"},
		},
		{
			name: "bare factor name is valid",
			req:  studyRequest{Ticker: "BRK.B", Factor: "rsi_14", Window: 20},
		},
		{
			name:    "missing ticker",
			req:     studyRequest{Factor: "rsi_14", Window: 20},
			wantErr: "ticker is required",
		},
		{
			name:    "lowercase ticker rejected",
			req:     studyRequest{Ticker: "aapl", Factor: "rsi_14", Window: 20},
			wantErr: "ticker must be a valid ticker symbol",
		},
		{
			name:    "malformed factor reference",
			req:     studyRequest{Ticker: "AAPL", Factor: "momentum..roc", Window: 20},
			wantErr: "factor must be a factor reference like category.name",
		},
		{
			name:    "bad date",
			req:     studyRequest{Ticker: "AAPL", Factor: "rsi_14", Start: "2026-13-45", Window: 20},
			wantErr: "start must be a date in YYYY-MM-DD form",
		},
		{
			name:    "window too small",
			req:     studyRequest{Ticker: "AAPL", Factor: "rsi_14", Window: 0},
			wantErr: "window must be greater than or equal to 1",
		},
		{
			name:    "unknown correlation method",
			req:     studyRequest{Ticker: "AAPL", Factor: "rsi_14", Window: 20, Method: "kendall"},
			wantErr: "method must be one of: pearson, spearman",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateStruct(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var apiErr *apierrors.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "VALIDATION_FAILED", apiErr.ErrorCode)

			details, ok := apiErr.Details.(apierrors.ValidationErrors)
			require.True(t, ok)
			require.NotEmpty(t, details.Errors)

			messages := make([]string, 0, len(details.Errors))
			for _, ve := range details.Errors {
				messages = append(messages, ve.Message)
			}
			assert.Contains(t, messages, tt.wantErr)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	m := newValidationMiddleware()

	okHandler := func(bodySeen *string) http.Handler {
		return m.ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				body, _ := io.ReadAll(r.Body)
				*bodySeen = string(body)
			}
			w.WriteHeader(http.StatusOK)
		}))
	}

	t.Run("get requests skip validation", func(t *testing.T) {
		var body string
		w := httptest.NewRecorder()
		okHandler(&body).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/factors", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("oversized body rejected", func(t *testing.T) {
		var body string
		req := httptest.NewRequest(http.MethodPost, "/api/studies", strings.NewReader("{}"))
		req.ContentLength = 20 << 20
		w := httptest.NewRecorder()
		okHandler(&body).ServeHTTP(w, req)

		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		problem := decodeProblemBody(t, w)
		assert.Equal(t, "/errors/payload-too-large", problem["type"])
		assert.Equal(t, "PAYLOAD_TOO_LARGE", problem["error_code"])
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		var body string
		req := httptest.NewRequest(http.MethodPost, "/api/studies", strings.NewReader(`{"ticker": "AAPL"`))
		w := httptest.NewRecorder()
		okHandler(&body).ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		problem := decodeProblemBody(t, w)
		assert.Equal(t, "INVALID_JSON", problem["error_code"])
	})

	t.Run("valid json passes with body restored", func(t *testing.T) {
		var body string
		payload := `{"ticker":"AAPL","factor":"rsi_14"}`
		req := httptest.NewRequest(http.MethodPost, "/api/studies", strings.NewReader(payload))
		w := httptest.NewRecorder()
		okHandler(&body).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, payload, body)
	})
}

func TestContentTypeValidator(t *testing.T) {
	handler := ContentTypeValidator("application/json")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/studies", strings.NewReader("{}"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeProblemBody(t, w)
		assert.Equal(t, "MISSING_CONTENT_TYPE", resp["error_code"])
	})

	t.Run("unsupported content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/studies", strings.NewReader("ticker=AAPL"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		resp := decodeProblemBody(t, w)
		assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", resp["error_code"])
	})

	t.Run("json with charset accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/studies", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("get skipped", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/factors", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestQueryParamValidator(t *testing.T) {
	logger := discardLogger()
	v := NewQueryParamValidator(logger, apierrors.NewErrorHandler(logger, false))

	t.Run("int default", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/factors", nil)
		got, ok := v.ValidateInt(httptest.NewRecorder(), req, "limit", 1, 100, 25)
		assert.True(t, ok)
		assert.Equal(t, 25, got)
	})

	t.Run("int valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/factors?limit=50", nil)
		got, ok := v.ValidateInt(httptest.NewRecorder(), req, "limit", 1, 100, 25)
		assert.True(t, ok)
		assert.Equal(t, 50, got)
	})

	t.Run("int not a number", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/factors?limit=12abc", nil)
		w := httptest.NewRecorder()
		_, ok := v.ValidateInt(w, req, "limit", 1, 100, 25)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("int out of range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/factors?limit=500", nil)
		w := httptest.NewRecorder()
		_, ok := v.ValidateInt(w, req, "limit", 1, 100, 25)
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		problem := decodeProblemBody(t, w)
		assert.Equal(t, "/errors/validation", problem["type"])
	})

	t.Run("enum", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/studies?method=spearman", nil)
		got, ok := v.ValidateEnum(httptest.NewRecorder(), req, "method", []string{"pearson", "spearman"}, "pearson")
		assert.True(t, ok)
		assert.Equal(t, "spearman", got)

		req = httptest.NewRequest(http.MethodGet, "/api/studies?method=kendall", nil)
		w := httptest.NewRecorder()
		_, ok = v.ValidateEnum(w, req, "method", []string{"pearson", "spearman"}, "pearson")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		req = httptest.NewRequest(http.MethodGet, "/api/studies", nil)
		got, ok = v.ValidateEnum(httptest.NewRecorder(), req, "method", []string{"pearson", "spearman"}, "pearson")
		assert.True(t, ok)
		assert.Equal(t, "pearson", got)
	})

	t.Run("date", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/data/AAPL?start=2026-03-15", nil)
		got, ok := v.ValidateDate(httptest.NewRecorder(), req, "start")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), got)

		req = httptest.NewRequest(http.MethodGet, "/api/data/AAPL?start=03/15/2026", nil)
		w := httptest.NewRecorder()
		_, ok = v.ValidateDate(w, req, "start")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		req = httptest.NewRequest(http.MethodGet, "/api/data/AAPL", nil)
		got, ok = v.ValidateDate(httptest.NewRecorder(), req, "start")
		require.True(t, ok)
		assert.True(t, got.IsZero())
	})
}
