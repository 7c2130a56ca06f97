package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client wraps a WebSocket connection. Gorilla connections allow only one
// concurrent writer, so all writes go through the client's mutex.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// WriteJSON sends v as a JSON text message.
func (c *Client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub tracks active WebSocket connections per chat session. A session may
// have multiple connections (e.g. multiple tabs sharing a session id).
type Hub struct {
	mu            sync.RWMutex
	clients       map[string]map[*Client]struct{} // sessionID -> set of clients
	maxPerSession int
}

// NewHub creates a Hub with a per-session connection limit.
func NewHub(maxPerSession int) *Hub {
	if maxPerSession <= 0 {
		maxPerSession = 10
	}
	return &Hub{
		clients:       make(map[string]map[*Client]struct{}),
		maxPerSession: maxPerSession,
	}
}

// Register adds a connection for the given session.
// If the per-session limit is exceeded, the new connection is closed and nil
// is returned.
func (h *Hub) Register(sessionID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionClients, ok := h.clients[sessionID]
	if !ok {
		sessionClients = make(map[*Client]struct{})
		h.clients[sessionID] = sessionClients
	}

	if len(sessionClients) >= h.maxPerSession {
		log.Printf("Websocket: session %s exceeded max connections (%d), closing new connection", sessionID, h.maxPerSession)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections for this session"),
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	sessionClients[client] = struct{}{}
	return client
}

// Unregister removes a client for the given session and closes the
// connection. It reports whether this was the session's last connection,
// so callers can tear down per-session state.
func (h *Hub) Unregister(sessionID string, client *Client) bool {
	if client == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sessionClients, ok := h.clients[sessionID]
	if !ok {
		_ = client.conn.Close()
		return false
	}

	delete(sessionClients, client)
	_ = client.conn.Close()

	if len(sessionClients) == 0 {
		delete(h.clients, sessionID)
		return true
	}
	return false
}

// Send broadcasts a JSON message to all active clients for the session.
func (h *Hub) Send(sessionID string, msg interface{}) {
	h.mu.RLock()
	sessionClients := make([]*Client, 0, len(h.clients[sessionID]))
	for client := range h.clients[sessionID] {
		sessionClients = append(sessionClients, client)
	}
	h.mu.RUnlock()

	for _, client := range sessionClients {
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("Websocket: failed to write message for session %s: %v", sessionID, err)
			go h.Unregister(sessionID, client)
		}
	}
}

// ActiveConnections returns the number of active connections for a session.
func (h *Hub) ActiveConnections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[sessionID])
}
