// Package websocket streams research events to connected dashboard
// clients: operation lifecycle updates, ingest progress, data
// availability changes, and structured errors. A single Hub fans
// messages out to every registered client and evicts clients that
// cannot keep up.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/edges-ai/vquant/internal/infrastructure"
)

// Message type constants shared with the dashboard client.
const (
	TypeConnection        = "connection"
	TypeStatus            = "status"
	TypeOutput            = "output"
	TypeError             = "error"
	TypeDataUpdate        = "data_update"
	TypeLog               = "log"
	TypeOperationStatus   = "operation:status"
	TypeOperationProgress = "operation:progress"
	TypeOperationComplete = "operation:complete"
	TypeOperationSnapshot = "operation:snapshot"

	SubtypeAll    = "all"
	ActionRefresh = "refresh"

	// Message levels
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// ErrorRecoveryHints maps broadcast error codes to recovery suggestions
// shown in the dashboard.
var ErrorRecoveryHints = map[string]string{
	"DATA_NOT_FOUND":   "Ingest bars for the ticker before requesting factors or studies",
	"COLUMN_NOT_FOUND": "Compute the factor first or check the factor reference spelling",
	"INGEST_FAILED":    "Check the source file format and column mapping, then retry the ingest",
	"STUDY_FAILED":     "Verify the factor and return columns cover the requested window",
	"REPORT_FAILED":    "Check that the output directory is writable and retry the export",
	"STORAGE_READONLY": "The store is open read-only; restart with write access before ingesting",
	"default":          "Retry the request or check the server logs",
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages to fan out
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex

	logger *slog.Logger

	// Counters, mutated only under mu
	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	// Control
	quit        chan struct{}
	metricsQuit chan struct{}
	running     bool
}

// NewHub creates a hub. A nil logger falls back to the process default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.hub"))

	return &Hub{
		broadcast:   make(chan []byte),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		clients:     make(map[*Client]bool),
		logger:      logger,
		quit:        make(chan struct{}),
		metricsQuit: make(chan struct{}),
	}
}

// Start launches the hub loop and metrics reporting. Idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
	go h.reportMetrics()
}

// Run processes register, unregister, and broadcast events until Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.totalConnections++
			h.mu.Unlock()

			ctx := context.Background()
			if client.traceID != "" {
				ctx = infrastructure.WithTraceID(ctx, client.traceID)
			}

			h.logger.InfoContext(ctx, "client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			GetMetrics().RecordConnection()
			if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
				otelMetrics.RecordConnection(ctx)
				otelMetrics.RecordClientCount(ctx, int64(count))
			}

			connMsg := map[string]interface{}{
				"type": TypeConnection,
				"data": map[string]interface{}{
					"status":    "connected",
					"message":   "Connected to vquant event stream",
					"client_id": client.id,
				},
				"timestamp": time.Now().Format(time.RFC3339),
			}
			if client.traceID != "" {
				connMsg["trace_id"] = client.traceID
			}

			jsonData, err := json.Marshal(connMsg)
			if err == nil {
				select {
				case client.send <- jsonData:
					h.logger.DebugContext(ctx, "connection message sent",
						slog.String("client_id", client.id))
				default:
					h.logger.WarnContext(ctx, "connection message dropped, client buffer full",
						slog.String("client_id", client.id))
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()

				ctx := context.Background()
				if client.traceID != "" {
					ctx = infrastructure.WithTraceID(ctx, client.traceID)
				}

				h.logger.InfoContext(ctx, "client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))

				GetMetrics().RecordDisconnection(time.Since(client.connectedAt))
				if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
					otelMetrics.RecordDisconnection(ctx, time.Since(client.connectedAt), "normal")
					otelMetrics.RecordClientCount(ctx, int64(count))
				}
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			// Copy so the lock is not held while sending.
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			h.logger.Debug("broadcasting message",
				slog.Int("client_count", len(clients)),
				slog.Int("message_size", len(message)))

			successCount := 0
			failCount := 0

			for _, client := range clients {
				select {
				case client.send <- message:
					successCount++
				default:
					failCount++
					// Send buffer full; evict the slow client.
					h.mu.Lock()
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
					h.mu.Unlock()

					ctx := context.Background()
					if client.traceID != "" {
						ctx = infrastructure.WithTraceID(ctx, client.traceID)
					}
					h.logger.WarnContext(ctx, "client send buffer full, disconnecting",
						slog.String("client_id", client.id))

					GetMetrics().RecordDisconnection(time.Since(client.connectedAt))
					GetMetrics().RecordDroppedMessage()
					if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
						otelMetrics.RecordDisconnection(ctx, time.Since(client.connectedAt), "slow_client")
						otelMetrics.RecordDroppedMessage(ctx, "broadcast", "buffer_full")
					}
				}
			}

			h.mu.Lock()
			h.messagesSent += int64(successCount)
			h.messagesDropped += int64(failCount)
			h.mu.Unlock()

			if failCount > 0 {
				h.logger.Warn("broadcast missed slow clients",
					slog.Int("success_count", successCount),
					slog.Int("fail_count", failCount))
			}

			if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
				otelMetrics.RecordBroadcast(context.Background(), "broadcast",
					int64(len(clients)), int64(successCount), int64(failCount))
			}
		}
	}
}

// BroadcastUpdate sends a typed event to all connected clients.
func (h *Hub) BroadcastUpdate(eventType, subtype, action string, data interface{}) {
	h.BroadcastUpdateWithTrace(eventType, subtype, action, data, "")
}

// BroadcastUpdateWithTrace sends a typed event carrying a trace ID.
// Operation snapshots are self-describing; other events keep the
// subtype and action fields for the dashboard router.
func (h *Hub) BroadcastUpdateWithTrace(eventType, subtype, action string, data interface{}, traceID string) {
	message := map[string]interface{}{
		"type":      eventType,
		"data":      data,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if traceID != "" {
		message["trace_id"] = traceID
	}

	if eventType != TypeOperationSnapshot && eventType != "" {
		message["subtype"] = subtype
		message["action"] = action
	}

	h.broadcastJSON(message)
}

func (h *Hub) broadcastJSON(message map[string]interface{}) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		ctx := context.Background()
		if traceID, ok := message["trace_id"].(string); ok && traceID != "" {
			ctx = infrastructure.WithTraceID(ctx, traceID)
		}
		msgType, _ := message["type"].(string)
		h.logger.ErrorContext(ctx, "message marshal error",
			slog.String("error", err.Error()),
			slog.String("message_type", msgType))
		return
	}

	h.broadcast <- jsonData
}

// BroadcastProgress sends a step progress update for a running operation.
func (h *Hub) BroadcastProgress(operationID, step string, progress int, message string) {
	h.broadcastJSON(map[string]interface{}{
		"type": TypeOperationProgress,
		"data": map[string]interface{}{
			"operation_id": operationID,
			"step":         step,
			"progress":     progress,
			"message":      message,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// BroadcastProgressWithDetails sends a progress update with item counts
// and step-specific details, such as rows ingested or tickers scanned.
func (h *Hub) BroadcastProgressWithDetails(operationID, step string, current, total int, message string, details map[string]interface{}) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(current) / float64(total) * 100
	}

	h.broadcastJSON(map[string]interface{}{
		"type": TypeOperationProgress,
		"data": map[string]interface{}{
			"operation_id": operationID,
			"step":         step,
			"current":      current,
			"total":        total,
			"percentage":   percentage,
			"message":      message,
			"details":      details,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// BroadcastStatus sends a server status update.
func (h *Hub) BroadcastStatus(status, message string) {
	h.BroadcastStatusWithTrace(status, message, "")
}

// BroadcastStatusWithTrace sends a server status update with a trace ID.
func (h *Hub) BroadcastStatusWithTrace(status, message, traceID string) {
	update := map[string]interface{}{
		"type": TypeStatus,
		"data": map[string]interface{}{
			"status":  status,
			"message": message,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if traceID != "" {
		update["trace_id"] = traceID
	}

	h.broadcastJSON(update)
}

// BroadcastOutput sends a log line produced by a running step.
func (h *Hub) BroadcastOutput(message, level string) {
	h.broadcastJSON(map[string]interface{}{
		"type": TypeOutput,
		"data": map[string]interface{}{
			"message": message,
			"level":   level,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// BroadcastError sends a structured error with a recovery hint.
func (h *Hub) BroadcastError(code, message, details, step string, recoverable bool) {
	hint := ErrorRecoveryHints[code]
	if hint == "" {
		hint = ErrorRecoveryHints["default"]
	}

	h.broadcastJSON(map[string]interface{}{
		"type": TypeError,
		"data": map[string]interface{}{
			"code":        code,
			"message":     message,
			"details":     details,
			"step":        step,
			"recoverable": recoverable,
			"hint":        hint,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// BroadcastDataUpdate announces that stored series data changed, so
// dashboards can refresh the affected ticker and category.
func (h *Hub) BroadcastDataUpdate(market, ticker, timeframe, category string, rows int) {
	h.BroadcastUpdate(TypeDataUpdate, category, ActionRefresh, map[string]interface{}{
		"market":    market,
		"ticker":    ticker,
		"timeframe": timeframe,
		"category":  category,
		"rows":      rows,
	})
}

// BroadcastRefresh tells dashboards to reload the named components.
func (h *Hub) BroadcastRefresh(source string, components []string) {
	h.BroadcastUpdate(TypeDataUpdate, SubtypeAll, ActionRefresh, map[string]interface{}{
		"source":     source,
		"components": components,
	})
}

// BroadcastJSON sends a pre-formatted message directly.
func (h *Hub) BroadcastJSON(message map[string]interface{}) {
	h.broadcastJSON(message)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast implements the services.EventBroadcaster interface.
func (h *Hub) Broadcast(messageType string, data interface{}) {
	h.BroadcastUpdate(messageType, "", "", data)
}

// Stop closes all client connections and halts the hub loop. Idempotent.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	close(h.metricsQuit)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// reportMetrics logs hub health every 30 seconds.
func (h *Hub) reportMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.metricsQuit:
			h.logger.Info("metrics reporting shutting down")
			return

		case <-ticker.C:
			h.mu.RLock()
			activeClients := len(h.clients)
			totalConnections := h.totalConnections
			messagesSent := h.messagesSent
			messagesDropped := h.messagesDropped
			h.mu.RUnlock()

			GetMetrics().RecordQueueDepth(int64(len(h.broadcast)))

			h.logger.Info("hub metrics",
				slog.Int("active_clients", activeClients),
				slog.Int64("total_connections", totalConnections),
				slog.Int64("messages_sent", messagesSent),
				slog.Int64("messages_dropped", messagesDropped),
				slog.Int("broadcast_queue", len(h.broadcast)),
			)
		}
	}
}

// GetHubMetrics returns a snapshot of hub counters.
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
	}
}
