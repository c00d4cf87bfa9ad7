package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsTestClient struct {
	conn *websocket.Conn
	ctx  context.Context
}

func (c *wsTestClient) send(t *testing.T, msg ClientMessage) {
	t.Helper()
	require.NoError(t, wsjson.Write(c.ctx, c.conn, msg))
}

// read returns the next server message as a generic map.
func (c *wsTestClient) read(t *testing.T) map[string]any {
	t.Helper()
	_, data, err := c.conn.Read(c.ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func newWSPair(t *testing.T, m *ConnectionManager) *wsTestClient {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		m.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	return &wsTestClient{conn: conn, ctx: ctx}
}

func TestConnectionLifecycle(t *testing.T) {
	bus := NewBus(nil)
	m := NewConnectionManager(bus, time.Second, nil)
	client := newWSPair(t, m)

	hello := client.read(t)
	assert.Equal(t, "connection.established", hello["type"])
	assert.NotEmpty(t, hello["connection_id"])

	client.send(t, ClientMessage{Action: "ping"})
	assert.Equal(t, "pong", client.read(t)["type"])
}

func TestSubscribeReceivesEvents(t *testing.T) {
	bus := NewBus(nil)
	m := NewConnectionManager(bus, time.Second, nil)
	client := newWSPair(t, m)
	client.read(t) // connection.established

	client.send(t, ClientMessage{Action: "subscribe", Channel: RunChannel("r1")})
	confirmed := client.read(t)
	assert.Equal(t, "subscription.confirmed", confirmed["type"])
	assert.Equal(t, RunChannel("r1"), confirmed["channel"])

	// Wait for the pump to attach before publishing.
	require.Eventually(t, func() bool {
		return bus.SubscriberCount(RunChannel("r1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.Publish(RunChannel("r1"), TypeRunStatus, map[string]any{"status": "running"})

	msg := client.read(t)
	require.Equal(t, "event", msg["type"])
	ev := msg["event"].(map[string]any)
	assert.Equal(t, TypeRunStatus, ev["type"])
	assert.Equal(t, "running", ev["payload"].(map[string]any)["status"])
}

func TestSubscribeAutoCatchup(t *testing.T) {
	bus := NewBus(nil)
	m := NewConnectionManager(bus, time.Second, nil)

	// Published before the client ever connects.
	bus.Publish("ch", TypeNodeProgress, map[string]any{"step": float64(1)})
	bus.Publish("ch", TypeNodeProgress, map[string]any{"step": float64(2)})

	client := newWSPair(t, m)
	client.read(t) // connection.established

	client.send(t, ClientMessage{Action: "subscribe", Channel: "ch"})
	assert.Equal(t, "subscription.confirmed", client.read(t)["type"])

	catchup := client.read(t)
	require.Equal(t, "catchup", catchup["type"])
	events := catchup["events"].([]any)
	require.Len(t, events, 2)
	first := events[0].(map[string]any)
	assert.Equal(t, float64(1), first["id"])
}

func TestCatchupOverflow(t *testing.T) {
	bus := NewBus(nil)
	m := NewConnectionManager(bus, time.Second, nil)

	for i := 0; i < historyLimit+10; i++ {
		bus.Publish("ch", TypeNodeProgress, nil)
	}

	client := newWSPair(t, m)
	client.read(t) // connection.established

	since := int64(1)
	client.send(t, ClientMessage{Action: "catchup", Channel: "ch", LastEventID: &since})
	msg := client.read(t)
	assert.Equal(t, "catchup.overflow", msg["type"])
}

func TestSubscribeRequiresChannel(t *testing.T) {
	bus := NewBus(nil)
	m := NewConnectionManager(bus, time.Second, nil)
	client := newWSPair(t, m)
	client.read(t) // connection.established

	client.send(t, ClientMessage{Action: "subscribe"})
	msg := client.read(t)
	assert.Equal(t, "error", msg["type"])
}

func TestDisconnectReleasesSubscriptions(t *testing.T) {
	bus := NewBus(nil)
	m := NewConnectionManager(bus, time.Second, nil)
	client := newWSPair(t, m)
	client.read(t) // connection.established

	client.send(t, ClientMessage{Action: "subscribe", Channel: "ch"})
	client.read(t) // subscription.confirmed
	require.Eventually(t, func() bool {
		return bus.SubscriberCount("ch") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, m.ActiveConnections())

	require.NoError(t, client.conn.Close(websocket.StatusNormalClosure, "done"))

	require.Eventually(t, func() bool {
		return bus.SubscriberCount("ch") == 0 && m.ActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
