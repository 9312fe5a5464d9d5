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

// ConnectionManager manages WebSocket connections and their itinerary
// subscriptions. Each process has one ConnectionManager instance; it is the
// only component that touches the websocket transport. Sequencing, history,
// and backpressure live in the Bus.
type ConnectionManager struct {
	bus *Bus

	mu          sync.RWMutex
	connections map[string]*Connection

	// Write timeout for WebSocket sends.
	writeTimeout time.Duration
}

// Connection represents a single WebSocket client.
//
// subscriptions is accessed WITHOUT a lock. This is safe because all reads
// and writes (subscribe, unsubscribe, catchup, cleanup) happen on the single
// goroutine that owns this connection (HandleConnection's read loop and its
// deferred cleanup). Pump goroutines never touch the map; they only cancel
// the connection context.
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	subscriptions map[string]*Subscription // itineraryID → subscription
	ctx           context.Context
	cancel        context.CancelFunc
	writeMu       sync.Mutex
}

// NewConnectionManager creates a connection manager bound to a bus.
func NewConnectionManager(bus *Bus, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		bus:          bus,
		connections:  make(map[string]*Connection),
		writeTimeout: writeTimeout,
	}
}

// ActiveConnections returns the count of live WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:            uuid.New().String(),
		Conn:          conn,
		subscriptions: make(map[string]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", c.ID, "error", err)
			continue
		}
		if err := validateClientMessage(&msg); err != nil {
			m.sendJSON(c, map[string]string{"type": "error", "message": err.Error()})
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// handleClientMessage dispatches a client message. Runs on the connection's
// read-loop goroutine.
func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if _, exists := c.subscriptions[msg.ItineraryID]; exists {
			m.sendJSON(c, map[string]string{
				"type":         "error",
				"itinerary_id": msg.ItineraryID,
				"message":      "already subscribed",
			})
			return
		}
		m.attach(c, msg.ItineraryID, msg.LastEventID)

	case "unsubscribe":
		if sub, exists := c.subscriptions[msg.ItineraryID]; exists {
			m.bus.Unregister(sub)
			delete(c.subscriptions, msg.ItineraryID)
		}

	case "catchup":
		// Re-registration replays the tail past last_event_id and rejoins
		// the live stream atomically.
		if sub, exists := c.subscriptions[msg.ItineraryID]; exists {
			m.bus.Unregister(sub)
			delete(c.subscriptions, msg.ItineraryID)
		}
		m.attach(c, msg.ItineraryID, msg.LastEventID)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// attach registers a bus subscription for the connection and starts its pump.
func (m *ConnectionManager) attach(c *Connection, itineraryID string, lastSeen *int64) {
	sub := m.bus.Register(itineraryID, lastSeen)
	c.subscriptions[itineraryID] = sub
	go m.pump(c, sub)
}

// pump forwards a subscription's frames to the WebSocket until the
// subscription or connection ends. If the bus dropped the subscription for
// falling behind, the whole connection is closed: a client too slow for one
// stream is too slow for all of them.
func (m *ConnectionManager) pump(c *Connection, sub *Subscription) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-sub.Done():
			if sub.Dropped() {
				slog.Warn("Closing connection after send buffer overflow",
					"connection_id", c.ID, "itinerary_id", sub.ItineraryID)
				c.cancel()
			}
			return
		case frame := <-sub.Frames():
			// Done wins over buffered frames: once the subscription ended,
			// nothing more reaches the client.
			select {
			case <-sub.Done():
				if sub.Dropped() {
					slog.Warn("Closing connection after send buffer overflow",
						"connection_id", c.ID, "itinerary_id", sub.ItineraryID)
					c.cancel()
				}
				return
			default:
			}
			if err := m.writeFrame(c, frame); err != nil {
				slog.Warn("WebSocket write failed, closing connection",
					"connection_id", c.ID, "error", err)
				c.cancel()
				return
			}
		}
	}
}

// writeFrame sends raw bytes to a connection with a write timeout. Writes
// are serialized per connection; coder/websocket does not allow concurrent
// writers.
func (m *ConnectionManager) writeFrame(c *Connection, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, frame)
}

// sendJSON marshals and sends a control message to a single connection.
func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.writeFrame(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.ID, "error", err)
	}
}

// registerConnection adds a connection to the tracking map.
func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

// unregisterConnection removes a connection and releases its subscriptions.
func (m *ConnectionManager) unregisterConnection(c *Connection) {
	for _, sub := range c.subscriptions {
		m.bus.Unregister(sub)
	}
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}
