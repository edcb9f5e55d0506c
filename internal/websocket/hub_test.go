package websocket

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a registered-capable client without a transport.
func newTestClient(hub *Hub, id string, buffer int) *Client {
	return &Client{
		id:          id,
		hub:         hub,
		send:        make(chan []byte, buffer),
		connectedAt: time.Now(),
		remoteAddr:  "127.0.0.1:8080",
		logger:      testLogger(),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())

	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.logger)
	assert.NotNil(t, hub.quit)
	assert.NotNil(t, hub.metricsQuit)
	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, hub.running)
}

func TestHubStartStop(t *testing.T) {
	hub := NewHub(testLogger())

	hub.Start()
	assert.True(t, hub.running)

	// Starting again is idempotent
	hub.Start()
	assert.True(t, hub.running)

	time.Sleep(10 * time.Millisecond)

	hub.Stop()
	assert.False(t, hub.running)

	hub.Stop()
	assert.False(t, hub.running)
}

func TestHubClientRegistration(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, "client-1", 256)
	client.traceID = "trace-1"

	hub.Register(client)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, hub.ClientCount())

	select {
	case msg := <-client.send:
		var connMsg map[string]interface{}
		require.NoError(t, json.Unmarshal(msg, &connMsg))
		assert.Equal(t, TypeConnection, connMsg["type"])
		assert.Equal(t, "trace-1", connMsg["trace_id"])
		data := connMsg["data"].(map[string]interface{})
		assert.Equal(t, "connected", data["status"])
		assert.Equal(t, "client-1", data["client_id"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for connection message")
	}

	hub.unregister <- client
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubConnectionMessageOmitsEmptyTrace(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, "client-2", 256)
	hub.Register(client)

	select {
	case msg := <-client.send:
		var connMsg map[string]interface{}
		require.NoError(t, json.Unmarshal(msg, &connMsg))
		assert.NotContains(t, connMsg, "trace_id")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for connection message")
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newTestClient(hub, fmt.Sprintf("client-%d", i), 256)
		hub.Register(clients[i])
	}
	time.Sleep(100 * time.Millisecond)

	// Drain connection messages
	for _, client := range clients {
		<-client.send
	}

	hub.BroadcastStatus("ready", "store warmed up")

	for i, client := range clients {
		select {
		case msg := <-client.send:
			var status map[string]interface{}
			require.NoError(t, json.Unmarshal(msg, &status))
			assert.Equal(t, TypeStatus, status["type"])
			data := status["data"].(map[string]interface{})
			assert.Equal(t, "ready", data["status"])
			assert.Equal(t, "store warmed up", data["message"])
		case <-time.After(time.Second):
			t.Fatalf("client %d missed the broadcast", i)
		}
	}

	time.Sleep(50 * time.Millisecond)
	metrics := hub.GetHubMetrics()
	assert.Equal(t, int64(3), metrics["messages_sent"])
	assert.Equal(t, int64(0), metrics["messages_dropped"])
}

func TestHubEvictsSlowClient(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	// Buffer of one fills with the connection message, so the next
	// broadcast cannot be delivered.
	slow := newTestClient(hub, "slow", 1)
	hub.Register(slow)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, hub.ClientCount())

	hub.BroadcastStatus("running", "study started")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, hub.ClientCount())
	metrics := hub.GetHubMetrics()
	assert.Equal(t, int64(1), metrics["messages_dropped"])
}

func TestBroadcastUpdate(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, "client-3", 256)
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)
	<-client.send

	t.Run("regular event carries subtype and action", func(t *testing.T) {
		hub.BroadcastUpdate(TypeDataUpdate, "ohlcv", ActionRefresh, map[string]interface{}{
			"ticker": "AAPL",
		})

		msg := readBroadcast(t, client)
		assert.Equal(t, TypeDataUpdate, msg["type"])
		assert.Equal(t, "ohlcv", msg["subtype"])
		assert.Equal(t, ActionRefresh, msg["action"])
		assert.NotEmpty(t, msg["timestamp"])
	})

	t.Run("snapshot event omits subtype and action", func(t *testing.T) {
		hub.BroadcastUpdate(TypeOperationSnapshot, "ignored", "ignored", map[string]interface{}{
			"operation_id": "op-1",
			"status":       "running",
		})

		msg := readBroadcast(t, client)
		assert.Equal(t, TypeOperationSnapshot, msg["type"])
		assert.NotContains(t, msg, "subtype")
		assert.NotContains(t, msg, "action")
	})

	t.Run("trace id attached when provided", func(t *testing.T) {
		hub.BroadcastUpdateWithTrace(TypeOperationStatus, "op-2", "update", nil, "trace-9")

		msg := readBroadcast(t, client)
		assert.Equal(t, "trace-9", msg["trace_id"])
	})
}

func TestBroadcastProgress(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, "client-4", 256)
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)
	<-client.send

	hub.BroadcastProgress("op-7", "compute_factors", 40, "rsi_14 done")

	msg := readBroadcast(t, client)
	assert.Equal(t, TypeOperationProgress, msg["type"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "op-7", data["operation_id"])
	assert.Equal(t, "compute_factors", data["step"])
	assert.Equal(t, float64(40), data["progress"])
	assert.Equal(t, "rsi_14 done", data["message"])
}

func TestBroadcastProgressWithDetails(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, "client-5", 256)
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)
	<-client.send

	hub.BroadcastProgressWithDetails("op-8", "ingest", 150, 600, "ingesting bars",
		map[string]interface{}{"ticker": "MSFT"})

	msg := readBroadcast(t, client)
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, float64(150), data["current"])
	assert.Equal(t, float64(600), data["total"])
	assert.Equal(t, float64(25), data["percentage"])
	details := data["details"].(map[string]interface{})
	assert.Equal(t, "MSFT", details["ticker"])
}

func TestBroadcastError(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, "client-6", 256)
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)
	<-client.send

	t.Run("known code gets its hint", func(t *testing.T) {
		hub.BroadcastError("DATA_NOT_FOUND", "no bars for ticker", "XNAS:ZZZZ", "fetch_data", true)

		msg := readBroadcast(t, client)
		assert.Equal(t, TypeError, msg["type"])
		data := msg["data"].(map[string]interface{})
		assert.Equal(t, "DATA_NOT_FOUND", data["code"])
		assert.Equal(t, true, data["recoverable"])
		assert.Equal(t, ErrorRecoveryHints["DATA_NOT_FOUND"], data["hint"])
	})

	t.Run("unknown code falls back to default hint", func(t *testing.T) {
		hub.BroadcastError("SOMETHING_ODD", "unexpected state", "", "report", false)

		msg := readBroadcast(t, client)
		data := msg["data"].(map[string]interface{})
		assert.Equal(t, ErrorRecoveryHints["default"], data["hint"])
	})
}

func TestBroadcastDataUpdate(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, "client-7", 256)
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)
	<-client.send

	hub.BroadcastDataUpdate("XNAS", "AAPL", "1d", "ohlcv", 252)

	msg := readBroadcast(t, client)
	assert.Equal(t, TypeDataUpdate, msg["type"])
	assert.Equal(t, "ohlcv", msg["subtype"])
	assert.Equal(t, ActionRefresh, msg["action"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "XNAS", data["market"])
	assert.Equal(t, "AAPL", data["ticker"])
	assert.Equal(t, "1d", data["timeframe"])
	assert.Equal(t, float64(252), data["rows"])
}

func TestBroadcastOutputAndRefresh(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, "client-8", 256)
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)
	<-client.send

	hub.BroadcastOutput("wrote tearsheet.html", LevelSuccess)
	msg := readBroadcast(t, client)
	assert.Equal(t, TypeOutput, msg["type"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, LevelSuccess, data["level"])

	hub.BroadcastRefresh("ingest", []string{"tickers", "coverage"})
	msg = readBroadcast(t, client)
	assert.Equal(t, TypeDataUpdate, msg["type"])
	assert.Equal(t, SubtypeAll, msg["subtype"])
}

func TestHubConcurrentBroadcasts(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, "client-9", 256)
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)
	<-client.send

	const broadcasters = 5
	const perBroadcaster = 10

	var wg sync.WaitGroup
	for i := 0; i < broadcasters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perBroadcaster; j++ {
				hub.BroadcastStatus("running", fmt.Sprintf("worker %d message %d", n, j))
			}
		}(i)
	}
	wg.Wait()

	received := 0
	timeout := time.After(2 * time.Second)
	for received < broadcasters*perBroadcaster {
		select {
		case <-client.send:
			received++
		case <-timeout:
			t.Fatalf("received %d of %d broadcasts", received, broadcasters*perBroadcaster)
		}
	}
	assert.Equal(t, broadcasters*perBroadcaster, received)
}

func readBroadcast(t *testing.T, client *Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-client.send:
		msg := make(map[string]interface{})
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
		return nil
	}
}

// TestServeWSEndToEnd drives a live connection through an httptest
// server: upgrade, connection message, broadcast, heartbeat.
func TestServeWSEndToEnd(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ServeWSWithTrace(hub, conn, "trace-ws")
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// First frame is the connection message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var connMsg map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &connMsg))
	assert.Equal(t, TypeConnection, connMsg["type"])
	assert.Equal(t, "trace-ws", connMsg["trace_id"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	// Heartbeats are consumed without a reply
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)))

	hub.BroadcastProgress("op-1", "study", 100, "study complete")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)

	var progress map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &progress))
	assert.Equal(t, TypeOperationProgress, progress["type"])

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()

	client := newTestClient(hub, "client-10", 256)
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)
	<-client.send

	hub.Stop()

	// The send channel drains any buffered frames and then reports
	// closed.
	select {
	case _, ok := <-client.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on Stop")
	}
	assert.Equal(t, 0, hub.ClientCount())
}
