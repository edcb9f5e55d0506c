package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	withOrigin := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "wildcard admits everyone", allowed: []string{"*"}, origin: "http://evil.example", want: true},
		{name: "empty list admits everyone", allowed: nil, origin: "http://anywhere.example", want: true},
		{name: "listed origin", allowed: []string{"http://localhost:3000"}, origin: "http://localhost:3000", want: true},
		{name: "unlisted origin", allowed: []string{"http://localhost:3000"}, origin: "http://evil.example", want: false},
		{name: "no origin header", allowed: []string{"http://localhost:3000"}, origin: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := originChecker(tt.allowed)
			assert.Equal(t, tt.want, check(withOrigin(tt.origin)))
		})
	}
}

func TestWebSocketHandlerRejectsPlainRequest(t *testing.T) {
	h := NewWebSocketHandler(nil, []string{"*"}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code, "non-upgrade request is refused")
}
