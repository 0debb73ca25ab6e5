package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// CommandHandler receives inbound messages and disconnect notifications
// from the connection manager.
type CommandHandler interface {
	HandleCommand(conn *Connection, msg Message)
	HandleDisconnect(conn *Connection)
}

// ConnectionManager owns all WebSocket connections and their room
// membership. A connection belongs to at most one room at a time; the
// room determines which broadcasts it receives. Publishes for a room
// are serialized through one channel, so they are delivered in the
// order they were issued.
type ConnectionManager struct {
	mu         sync.RWMutex
	rooms      map[string]map[*Connection]bool
	membership map[*Connection]string

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  CommandHandler

	broadcastCh chan outbound
}

// Connection represents one WebSocket client.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	manager *ConnectionManager

	ConnectedAt time.Time

	// closed is guarded by the manager's mu. Send is only closed while
	// holding it, and never written to once closed is set.
	closed bool
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// outbound is one queued delivery: a room broadcast, or a unicast when
// conn is set.
type outbound struct {
	setID string
	conn  *Connection
	data  []byte
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. The command
// handler must be attached with SetHandler before serving connections.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		rooms:      make(map[string]map[*Connection]bool),
		membership: make(map[*Connection]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan outbound, 1000),
	}
}

// SetHandler attaches the inbound command handler.
func (cm *ConnectionManager) SetHandler(h CommandHandler) {
	cm.handler = h
}

// Start processes queued deliveries until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case out := <-cm.broadcastCh:
			cm.deliver(out)
		}
	}
}

// HandleWebSocket upgrades an HTTP request to a WebSocket connection
// and starts its read/write pumps.
func (cm *ConnectionManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.mu.Lock()
	cm.membership[connection] = ""
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")
}

// Join moves the connection into the given room, leaving any previous
// one.
func (cm *ConnectionManager) Join(conn *Connection, setID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if prev, ok := cm.membership[conn]; ok && prev != "" {
		cm.leaveLocked(conn, prev)
	}

	if cm.rooms[setID] == nil {
		cm.rooms[setID] = make(map[*Connection]bool)
	}
	cm.rooms[setID][conn] = true
	cm.membership[conn] = setID

	log.Debug().
		Str("connection_id", conn.ID).
		Str("set_id", setID).
		Int("room_size", len(cm.rooms[setID])).
		Msg("connection joined room")
}

// Room returns the set the connection is currently joined to, or the
// empty string.
func (cm *ConnectionManager) Room(conn *Connection) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.membership[conn]
}

// Publish queues an event for every connection currently in the room.
// Connections in other rooms never observe it.
func (cm *ConnectionManager) Publish(setID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("event", msg.Event).Msg("failed to marshal event")
		return
	}

	select {
	case cm.broadcastCh <- outbound{setID: setID, data: data}:
	default:
		log.Warn().Str("set_id", setID).Str("event", msg.Event).Msg("broadcast channel full, dropping message")
	}
}

// Unicast queues an event for a single connection, regardless of room.
func (cm *ConnectionManager) Unicast(conn *Connection, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("event", msg.Event).Msg("failed to marshal event")
		return
	}

	select {
	case cm.broadcastCh <- outbound{conn: conn, data: data}:
	default:
		log.Warn().Str("connection_id", conn.ID).Str("event", msg.Event).Msg("broadcast channel full, dropping unicast")
	}
}

// Stats summarizes active connections per room.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveSets       int            `json:"active_sets"`
	RoomSizes        map[string]int `json:"room_sizes"`
}

// GetStats returns statistics about active connections.
func (cm *ConnectionManager) GetStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{RoomSizes: make(map[string]int)}
	for setID, conns := range cm.rooms {
		stats.RoomSizes[setID] = len(conns)
		stats.TotalConnections += len(conns)
	}
	stats.ActiveSets = len(cm.rooms)
	return stats
}

func (cm *ConnectionManager) deliver(out outbound) {
	if out.conn != nil {
		cm.send(out.conn, out.data)
		return
	}

	cm.mu.RLock()
	room := cm.rooms[out.setID]
	targets := make([]*Connection, 0, len(room))
	for conn := range room {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.send(conn, out.data)
	}
}

func (cm *ConnectionManager) send(conn *Connection, data []byte) {
	// The channel write happens under the read lock so it cannot
	// interleave with unregister closing Send.
	cm.mu.RLock()
	if conn.closed {
		cm.mu.RUnlock()
		return
	}
	select {
	case conn.Send <- data:
		cm.mu.RUnlock()
		return
	default:
	}
	cm.mu.RUnlock()

	// Slow or dead consumer; drop it rather than block the room.
	log.Warn().
		Str("connection_id", conn.ID).
		Msg("connection send buffer full, closing connection")
	cm.unregister(conn)
	conn.Conn.Close()
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, registered := cm.membership[conn]; !registered {
		return
	}
	if room := cm.membership[conn]; room != "" {
		cm.leaveLocked(conn, room)
	}
	delete(cm.membership, conn)
	conn.closed = true
	close(conn.Send)

	log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
}

// leaveLocked removes the connection from a room, dropping the room
// entirely when it empties. Callers must hold cm.mu.
func (cm *ConnectionManager) leaveLocked(conn *Connection, setID string) {
	if room, ok := cm.rooms[setID]; ok {
		delete(room, conn)
		if len(room) == 0 {
			delete(cm.rooms, setID)
		}
	}
	cm.membership[conn] = ""
}

// writePump sends queued messages and pings to the WebSocket.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound commands and dispatches them to the handler.
func (c *Connection) readPump() {
	defer func() {
		if c.manager.handler != nil {
			c.manager.handler.HandleDisconnect(c)
		}
		c.manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().
				Err(err).
				Str("connection_id", c.ID).
				Msg("ignoring malformed client message")
			continue
		}

		if c.manager.handler != nil {
			c.manager.handler.HandleCommand(c, msg)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
