package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ConnectionManager manages WebSocket connections and their bus
// subscriptions. One instance per process.
type ConnectionManager struct {
	bus          *Bus
	writeTimeout time.Duration
	logger       *slog.Logger

	mu          sync.RWMutex
	connections map[string]*Connection
}

// Connection represents a single WebSocket client.
//
// subscriptions is accessed without a lock: all reads and writes happen on
// the goroutine that owns the connection (HandleConnection's read loop and
// its deferred cleanup). writeMu serializes frame writes, which also come
// from pump goroutines.
type Connection struct {
	ID   string
	conn *websocket.Conn

	writeMu       sync.Mutex
	subscriptions map[string]*Subscription
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewConnectionManager creates a connection manager over the bus.
func NewConnectionManager(bus *Bus, writeTimeout time.Duration, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &ConnectionManager{
		bus:          bus,
		writeTimeout: writeTimeout,
		logger:       logger,
		connections:  make(map[string]*Connection),
	}
}

// HandleConnection manages the lifecycle of one WebSocket connection. Called
// by the HTTP handler after upgrade; blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:            uuid.NewString(),
		conn:          conn,
		subscriptions: make(map[string]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.ID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warn("invalid websocket message", "connection_id", c.ID, "error", err)
			continue
		}
		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregister(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	for channel, sub := range c.subscriptions {
		sub.Close()
		delete(c.subscriptions, channel)
	}
	c.wg.Wait()
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		m.subscribe(c, msg.Channel)
		m.sendJSON(c, map[string]string{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})
		// Auto catch-up so late subscribers don't miss prior events.
		m.sendCatchup(c, msg.Channel, 0)

	case "unsubscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		if sub, ok := c.subscriptions[msg.Channel]; ok {
			sub.Close()
			delete(c.subscriptions, msg.Channel)
		}

	case "catchup":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for catchup"})
			return
		}
		if msg.LastEventID != nil {
			m.sendCatchup(c, msg.Channel, *msg.LastEventID)
		}

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe attaches the connection to a bus channel and starts the pump
// goroutine delivering events to the socket.
func (m *ConnectionManager) subscribe(c *Connection, channel string) {
	if _, ok := c.subscriptions[channel]; ok {
		return
	}
	sub := m.bus.Subscribe(channel)
	c.subscriptions[channel] = sub

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				m.sendJSON(c, map[string]any{
					"type":  "event",
					"event": ev,
				})
			}
		}
	}()
}

// sendCatchup delivers retained events newer than sinceID. When the ring has
// already evicted part of the gap, a catchup.overflow message tells the
// client to do a full REST reload instead.
func (m *ConnectionManager) sendCatchup(c *Connection, channel string, sinceID int64) {
	evs, overflow := m.bus.Since(channel, sinceID)
	if overflow {
		m.sendJSON(c, map[string]any{
			"type":    "catchup.overflow",
			"channel": channel,
		})
		return
	}
	if len(evs) == 0 {
		return
	}
	m.sendJSON(c, map[string]any{
		"type":    "catchup",
		"channel": channel,
		"events":  evs,
	})
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("marshal websocket message", "connection_id", c.ID, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		m.logger.Warn("failed to send to websocket client",
			"connection_id", c.ID, "error", err)
	}
}
