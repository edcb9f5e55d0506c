package middleware

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyAuth(t *testing.T) {
	keys := map[string]string{"sk-research-1": "quant-desk"}

	newHandler := func(gotClient *string) http.Handler {
		return APIKeyAuth(discardLogger(), keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*gotClient = APIClientFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))
	}

	t.Run("missing key", func(t *testing.T) {
		var client string
		w := httptest.NewRecorder()
		newHandler(&client).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/data/AAPL", nil))

		require.Equal(t, http.StatusUnauthorized, w.Code)
		problem := decodeProblemBody(t, w)
		assert.Equal(t, "/errors/unauthorized", problem["type"])
		assert.Equal(t, "API key required", problem["detail"])
	})

	t.Run("invalid key", func(t *testing.T) {
		var client string
		req := httptest.NewRequest(http.MethodGet, "/api/data/AAPL", nil)
		req.Header.Set("X-API-Key", "sk-wrong")
		w := httptest.NewRecorder()
		newHandler(&client).ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		problem := decodeProblemBody(t, w)
		assert.Equal(t, "Invalid API key", problem["detail"])
	})

	t.Run("valid header key", func(t *testing.T) {
		var client string
		req := httptest.NewRequest(http.MethodGet, "/api/data/AAPL", nil)
		req.Header.Set("X-API-Key", "sk-research-1")
		w := httptest.NewRecorder()
		newHandler(&client).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "quant-desk", client)
	})

	t.Run("query parameter fallback", func(t *testing.T) {
		var client string
		req := httptest.NewRequest(http.MethodGet, "/api/data/AAPL?api_key=sk-research-1", nil)
		w := httptest.NewRecorder()
		newHandler(&client).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "quant-desk", client)
	})
}

func TestAPIClientFromContext(t *testing.T) {
	assert.Empty(t, APIClientFromContext(context.Background()))

	ctx := context.WithValue(context.Background(), apiClientKey, "quant-desk")
	assert.Equal(t, "quant-desk", APIClientFromContext(ctx))
}

func TestSecureHeaders(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		handler := DefaultSecureHeaders().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
		assert.NotEmpty(t, w.Header().Get("Permissions-Policy"))

		csp := w.Header().Get("Content-Security-Policy")
		assert.Contains(t, csp, "default-src 'self'")
		assert.Contains(t, csp, "https://go-echarts.github.io")
		assert.Contains(t, csp, "connect-src 'self' ws: wss:")

		// No TLS on the request, so no HSTS.
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("hsts over tls", func(t *testing.T) {
		handler := DefaultSecureHeaders().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
		req.TLS = &tls.ConnectionState{}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		hsts := w.Header().Get("Strict-Transport-Security")
		assert.Contains(t, hsts, "max-age=63072000")
		assert.Contains(t, hsts, "includeSubDomains")
		assert.Contains(t, hsts, "preload")
	})

	t.Run("websocket upgrade skipped", func(t *testing.T) {
		handler := DefaultSecureHeaders().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Upgrade", "websocket")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Security-Policy"))
		assert.Empty(t, w.Header().Get("X-Frame-Options"))
	})

	t.Run("dev mode relaxes csp", func(t *testing.T) {
		sh := DefaultSecureHeaders()
		sh.DevMode = true
		handler := sh.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		csp := w.Header().Get("Content-Security-Policy")
		assert.Contains(t, csp, "connect-src *")
		assert.Empty(t, w.Header().Get("Permissions-Policy"))
	})

	t.Run("explicit csp wins", func(t *testing.T) {
		sh := DefaultSecureHeaders()
		sh.ContentSecurityPolicy = "default-src 'none'"
		handler := sh.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
	})
}

func TestAuditLog(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	handler := AuditLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	ctx := context.WithValue(context.Background(), apiClientKey, "quant-desk")
	req := httptest.NewRequest(http.MethodPost, "/api/operations?mode=full", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	access := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &access))
	assert.Equal(t, "api_access", access["event_type"])
	assert.Equal(t, "quant-desk", access["client"])
	assert.Equal(t, "mode=full", access["query"])

	response := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &response))
	assert.Equal(t, "api_response", response["event_type"])
	assert.Equal(t, float64(http.StatusCreated), response["status"])
}

func TestAuditLogAnonymous(t *testing.T) {
	var buf bytes.Buffer
	handler := AuditLog(newBufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	entry := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(buf.String(), "\n", 2)[0]), &entry))
	assert.Equal(t, "anonymous", entry["client"])
}
