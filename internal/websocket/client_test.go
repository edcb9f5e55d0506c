package websocket

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientWithConnection(t *testing.T) {
	hub := NewHub(testLogger())
	mock := NewMockConnection()

	client := NewClientWithConnection(hub, mock, testLogger())

	assert.NotEmpty(t, client.id)
	assert.Equal(t, "127.0.0.1:8080", client.remoteAddr)
	assert.Equal(t, 256, cap(client.send))
	assert.NotNil(t, client.logger)

	other := NewClientWithConnection(hub, mock, testLogger())
	assert.NotEqual(t, client.id, other.id)
}

func TestReadPumpHeartbeat(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	mock := NewMockConnection()
	mock.AddReadMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`), nil)

	client := NewClientWithConnection(hub, mock, testLogger())

	done := make(chan struct{})
	go func() {
		client.ReadPump()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not stop")
	}

	assert.True(t, mock.Closed)
	assert.Equal(t, int64(1), client.messagesReceived)
	assert.Equal(t, int64(maxMessageSize), mock.ReadLimit)
	assert.False(t, mock.ReadDeadline.IsZero())
	assert.NotNil(t, mock.PongHandler)
}

func TestWritePumpDeliversFrames(t *testing.T) {
	hub := NewHub(testLogger())
	mock := NewMockConnection()
	client := NewClientWithConnection(hub, mock, testLogger())

	go client.WritePump()

	client.send <- []byte(`{"type":"status"}`)

	require.Eventually(t, func() bool {
		return len(mock.GetWrittenMessages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	written := mock.GetWrittenMessages()
	assert.Equal(t, websocket.TextMessage, written[0].Type)
	assert.JSONEq(t, `{"type":"status"}`, string(written[0].Data))
	assert.Equal(t, int64(1), client.messagesSent)

	// Closing the channel makes the pump send a close frame and stop.
	close(client.send)

	require.Eventually(t, func() bool {
		msgs := mock.GetWrittenMessages()
		return len(msgs) == 2 && msgs[1].Type == websocket.CloseMessage
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWritePumpDrainsQueuedFrames(t *testing.T) {
	hub := NewHub(testLogger())
	mock := NewMockConnection()
	client := NewClientWithConnection(hub, mock, testLogger())

	// Queue several frames before the pump starts so the drain loop
	// has work on the first wakeup.
	client.send <- []byte(`{"seq":1}`)
	client.send <- []byte(`{"seq":2}`)
	client.send <- []byte(`{"seq":3}`)

	go client.WritePump()

	require.Eventually(t, func() bool {
		return len(mock.GetWrittenMessages()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	written := mock.GetWrittenMessages()
	assert.JSONEq(t, `{"seq":1}`, string(written[0].Data))
	assert.JSONEq(t, `{"seq":2}`, string(written[1].Data))
	assert.JSONEq(t, `{"seq":3}`, string(written[2].Data))

	close(client.send)
}

func TestWritePumpStopsOnWriteError(t *testing.T) {
	hub := NewHub(testLogger())
	mock := NewMockConnection()
	mock.WriteMessageFunc = func(messageType int, data []byte) error {
		return errors.New("broken pipe")
	}
	client := NewClientWithConnection(hub, mock, testLogger())

	go client.WritePump()

	client.send <- []byte(`{"type":"status"}`)

	require.Eventually(t, func() bool {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		return mock.Closed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(0), client.messagesSent)
}

func TestReadPumpRecordsBytes(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	mock := NewMockConnection()
	mock.AddReadMessage(websocket.TextMessage, []byte(`{"query":"factors"}`), nil)
	mock.AddReadMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`), nil)

	client := NewClientWithConnection(hub, mock, testLogger())

	done := make(chan struct{})
	go func() {
		client.ReadPump()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not stop")
	}

	assert.Equal(t, int64(2), client.messagesReceived)
	assert.Equal(t, int64(len(`{"query":"factors"}`)+len(`{"type":"heartbeat"}`)), client.bytesReceived)
}
