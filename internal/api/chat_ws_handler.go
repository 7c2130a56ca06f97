package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/mailmind/mailmind/internal/agent"
	"github.com/mailmind/mailmind/internal/cache"
	ws "github.com/mailmind/mailmind/internal/websocket"
)

// ChatWSHandler handles /ws/chat: each inbound message is handed to the
// agent runtime and the resulting events are streamed back. Session ids are
// client-provided so a session can span reconnects; a fresh one is minted
// when the client sends none. When the last connection for a session goes
// away its email cache is cleared.
type ChatWSHandler struct {
	runtime agent.Runtime
	cache   *cache.SessionCache
	hub     *ws.Hub
}

// NewChatWSHandler creates a new ChatWSHandler instance.
func NewChatWSHandler(runtime agent.Runtime, sessionCache *cache.SessionCache, hub *ws.Hub) *ChatWSHandler {
	return &ChatWSHandler{runtime: runtime, cache: sessionCache, hub: hub}
}

type chatRequest struct {
	Message   string          `json:"message"`
	History   []agent.Message `json:"history"`
	SessionID string          `json:"session_id"`
}

// Handle upgrades the connection and serves chat messages until it closes.
func (h *ChatWSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ChatWSHandler: failed to upgrade connection: %v", err)
		return
	}

	client := h.hub.Register(sessionID, conn)
	if client == nil {
		return
	}

	log.Printf("ChatWSHandler: session %s connected", sessionID)
	_ = client.WriteJSON(map[string]string{"type": "session", "session_id": sessionID})

	defer func() {
		if last := h.hub.Unregister(sessionID, client); last {
			h.cache.Clear(sessionID)
			log.Printf("ChatWSHandler: session %s closed, cache cleared", sessionID)
		}
	}()

	for {
		_, data, err := client.Conn().ReadMessage()
		if err != nil {
			return
		}

		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			_ = client.WriteJSON(map[string]string{"type": "error", "message": "invalid message"})
			continue
		}

		// A message may carry its own session id; tool effects then land in
		// that session's cache, not the connection's.
		msgSession := req.SessionID
		if msgSession == "" {
			msgSession = sessionID
		}

		sink := func(ev agent.Event) {
			_ = client.WriteJSON(ev)
		}
		if err := h.runtime.Stream(context.Background(), msgSession, req.Message, req.History, sink); err != nil {
			log.Printf("ChatWSHandler: runtime error for session %s: %v", msgSession, err)
			_ = client.WriteJSON(map[string]string{"type": "error", "message": err.Error()})
			continue
		}
		_ = client.WriteJSON(map[string]string{"type": "complete"})
	}
}
