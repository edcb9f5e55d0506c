package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	ws "github.com/edges-ai/vquant/internal/websocket"
)

// WebSocketHandler upgrades connections and registers them with the hub so
// clients receive operation snapshots as studies progress.
type WebSocketHandler struct {
	hub      *ws.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a WebSocket handler. allowedOrigins uses the
// same semantics as the CORS middleware: "*" admits every origin.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		hub:    hub,
		logger: logger.With(slog.String("component", "websocket_handler")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// ServeHTTP upgrades the request and hands the connection to the hub.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	traceID := middleware.GetReqID(r.Context())
	h.logger.InfoContext(r.Context(), "websocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("trace_id", traceID))

	ws.ServeWSWithTrace(h.hub, conn, traceID)
}

func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := len(allowed) == 0
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		return func(*http.Request) bool { return true }
	}

	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin header.
		return origin == "" || set[origin]
	}
}
