package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vquant.websocket"

// OTelMetrics provides OpenTelemetry instruments for the hub and its
// clients. Attributes stay low-cardinality: message types, directions,
// and reasons, never client or connection identifiers.
type OTelMetrics struct {
	connectionsTotal   metric.Int64Counter
	connectionsActive  metric.Int64UpDownCounter
	connectionDuration metric.Float64Histogram
	connectionErrors   metric.Int64Counter

	messagesTotal metric.Int64Counter
	messageBytes  metric.Int64Counter
	messageErrors metric.Int64Counter

	droppedMessages metric.Int64Counter
	broadcastsTotal metric.Int64Counter
	clientCount     metric.Int64Gauge
}

// NewOTelMetrics creates instruments on the globally registered meter
// provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter(meterName)

	connectionsTotal, err := meter.Int64Counter(
		"websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	connectionsActive, err := meter.Int64UpDownCounter(
		"websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	connectionDuration, err := meter.Float64Histogram(
		"websocket_connection_duration_seconds",
		metric.WithDescription("WebSocket connection duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	connectionErrors, err := meter.Int64Counter(
		"websocket_connection_errors_total",
		metric.WithDescription("Total number of WebSocket connection errors"),
	)
	if err != nil {
		return nil, err
	}

	messagesTotal, err := meter.Int64Counter(
		"websocket_messages_total",
		metric.WithDescription("Total number of WebSocket messages"),
	)
	if err != nil {
		return nil, err
	}

	messageBytes, err := meter.Int64Counter(
		"websocket_message_bytes_total",
		metric.WithDescription("Total WebSocket message bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	messageErrors, err := meter.Int64Counter(
		"websocket_message_errors_total",
		metric.WithDescription("Total number of WebSocket message errors"),
	)
	if err != nil {
		return nil, err
	}

	droppedMessages, err := meter.Int64Counter(
		"websocket_dropped_messages_total",
		metric.WithDescription("Total number of dropped WebSocket messages"),
	)
	if err != nil {
		return nil, err
	}

	broadcastsTotal, err := meter.Int64Counter(
		"websocket_broadcasts_total",
		metric.WithDescription("Total number of hub broadcast operations"),
	)
	if err != nil {
		return nil, err
	}

	clientCount, err := meter.Int64Gauge(
		"websocket_client_count",
		metric.WithDescription("Current number of connected WebSocket clients"),
	)
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		connectionsTotal:   connectionsTotal,
		connectionsActive:  connectionsActive,
		connectionDuration: connectionDuration,
		connectionErrors:   connectionErrors,
		messagesTotal:      messagesTotal,
		messageBytes:       messageBytes,
		messageErrors:      messageErrors,
		droppedMessages:    droppedMessages,
		broadcastsTotal:    broadcastsTotal,
		clientCount:        clientCount,
	}, nil
}

// RecordConnection records a new connection.
func (m *OTelMetrics) RecordConnection(ctx context.Context) {
	m.connectionsTotal.Add(ctx, 1)
	m.connectionsActive.Add(ctx, 1)
}

// RecordDisconnection records a disconnection and its duration.
func (m *OTelMetrics) RecordDisconnection(ctx context.Context, duration time.Duration, reason string) {
	attrs := metric.WithAttributes(attribute.String("disconnect_reason", reason))

	m.connectionsActive.Add(ctx, -1)
	m.connectionDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordConnectionError records an error establishing a connection.
func (m *OTelMetrics) RecordConnectionError(ctx context.Context, errorType string) {
	m.connectionErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error_type", errorType),
	))
}

// RecordMessageSent records an outbound message.
func (m *OTelMetrics) RecordMessageSent(ctx context.Context, messageType string, size int64) {
	attrs := metric.WithAttributes(
		attribute.String("direction", "outbound"),
		attribute.String("message_type", messageType),
	)

	m.messagesTotal.Add(ctx, 1, attrs)
	m.messageBytes.Add(ctx, size, attrs)
}

// RecordMessageReceived records an inbound message.
func (m *OTelMetrics) RecordMessageReceived(ctx context.Context, messageType string, size int64) {
	attrs := metric.WithAttributes(
		attribute.String("direction", "inbound"),
		attribute.String("message_type", messageType),
	)

	m.messagesTotal.Add(ctx, 1, attrs)
	m.messageBytes.Add(ctx, size, attrs)
}

// RecordMessageError records a message delivery error.
func (m *OTelMetrics) RecordMessageError(ctx context.Context, messageType, errorType string) {
	m.messageErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("message_type", messageType),
		attribute.String("error_type", errorType),
	))
}

// RecordDroppedMessage records a message dropped before delivery.
func (m *OTelMetrics) RecordDroppedMessage(ctx context.Context, messageType, reason string) {
	m.droppedMessages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("message_type", messageType),
		attribute.String("drop_reason", reason),
	))
}

// RecordBroadcast records one hub fan-out with its delivery counts.
func (m *OTelMetrics) RecordBroadcast(ctx context.Context, messageType string, clientCount, successCount, failCount int64) {
	m.broadcastsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("message_type", messageType),
		attribute.Int64("client_count", clientCount),
		attribute.Int64("success_count", successCount),
		attribute.Int64("fail_count", failCount),
	))
}

// RecordClientCount records the current number of connected clients.
func (m *OTelMetrics) RecordClientCount(ctx context.Context, count int64) {
	m.clientCount.Record(ctx, count)
}

// Global OTel metrics instance
var globalOTelMetrics *OTelMetrics

// InitOTelMetrics initializes the global instruments. Call after the
// meter provider is registered; the hub and clients record through the
// global instance when it is set.
func InitOTelMetrics() error {
	metrics, err := NewOTelMetrics()
	if err != nil {
		return err
	}
	globalOTelMetrics = metrics
	return nil
}

// GetOTelMetrics returns the global instruments, or nil before
// InitOTelMetrics.
func GetOTelMetrics() *OTelMetrics {
	return globalOTelMetrics
}
