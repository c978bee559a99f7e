package link

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/micutio/aerosync/internal/frame"
	"github.com/micutio/aerosync/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFeedServer answers the initial request with one aircraft update and every heartbeat with an ack.
func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{ //nolint:exhaustruct // defaults are fine
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("Upgrade error: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			out, err := frame.DecodeOutbound(data)
			if err != nil {
				t.Logf("bad client frame: %v", err)
				continue
			}

			var reply frame.Inbound
			switch out.(type) {
			case frame.RequestInitialData:
				callsign := "SWR100"
				altitude := 31000.0
				reply = frame.AircraftUpdate{Updates: []track.Update{{ID: "4B1814", Callsign: &callsign, Altitude: &altitude}}}
			case frame.Heartbeat:
				reply = frame.HeartbeatAck{}
			default:
				continue
			}

			encoded, err := frame.Encode(reply)
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func TestWebsocketTransportRoundTrip(t *testing.T) {
	server := newFeedServer(t)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	transport := NewWebsocketTransport(time.Second)
	conn, err := transport.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	data, err := frame.Encode(frame.RequestInitialData{})
	require.NoError(t, err)
	require.NoError(t, conn.WriteFrame(data))

	raw, err := conn.ReadFrame()
	require.NoError(t, err)

	in, err := frame.Decode(raw)
	require.NoError(t, err)
	update, ok := in.(frame.AircraftUpdate)
	require.True(t, ok)
	require.Len(t, update.Updates, 1)
	assert.Equal(t, "4B1814", update.Updates[0].ID)
}

func TestWebsocketTransportDialError(t *testing.T) {
	transport := NewWebsocketTransport(100 * time.Millisecond)
	_, err := transport.Dial(context.Background(), "ws://127.0.0.1:1/ws")
	require.Error(t, err)
}

func TestManagerOverWebsocket(t *testing.T) {
	server := newFeedServer(t)

	cfg := testConfig()
	cfg.URL = "ws" + strings.TrimPrefix(server.URL, "http")
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.HeartbeatCheckInterval = 5 * time.Millisecond
	cfg.HeartbeatTimeout = 100 * time.Millisecond

	m, _, sink := newTestManager(t, cfg, NewWebsocketTransport(time.Second))
	require.NoError(t, m.Connect())

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, time.Millisecond)

	// heartbeats keep coming back, the watchdog stays quiet
	time.Sleep(200 * time.Millisecond)
	status := m.Status()
	assert.Equal(t, StateConnected, status.State)
	assert.NoError(t, status.LastError)

	require.NoError(t, m.Disconnect())
	waitForState(t, m, StateDisconnected)
}
