package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mailmind/mailmind/internal/models"
	"github.com/mailmind/mailmind/internal/pipeline"
	ws "github.com/mailmind/mailmind/internal/websocket"
)

// streamLimitPerFolder is how many recent emails each folder contributes to
// the progressive stream.
const streamLimitPerFolder = 10

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. This server is expected to run behind a
		// reverse proxy in a trusted environment.
		return true
	},
}

// EmailsWSHandler handles /ws/emails: on connect it streams folder contents
// progressively and then answers ping/refresh actions.
type EmailsWSHandler struct {
	pipeline *pipeline.Pipeline
	hub      *ws.Hub
}

// NewEmailsWSHandler creates a new EmailsWSHandler instance.
func NewEmailsWSHandler(p *pipeline.Pipeline, hub *ws.Hub) *EmailsWSHandler {
	return &EmailsWSHandler{pipeline: p, hub: hub}
}

// Handle upgrades the connection and starts the initial folder stream.
func (h *EmailsWSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("EmailsWSHandler: failed to upgrade connection: %v", err)
		return
	}

	streamID := uuid.NewString()
	client := h.hub.Register(streamID, conn)
	if client == nil {
		return
	}

	log.Printf("EmailsWSHandler: stream %s connected", streamID)

	// One stream at a time per connection; refresh waits for the previous
	// stream to finish.
	var streamMu sync.Mutex
	runStream := func(ctx context.Context) {
		streamMu.Lock()
		defer streamMu.Unlock()

		_ = client.WriteJSON(map[string]string{"type": "status", "message": "Connecting to mail server..."})

		sink := &wsStreamSink{client: client}
		if err := h.pipeline.StreamFolders(ctx, sink, streamLimitPerFolder); err != nil {
			_ = client.WriteJSON(map[string]string{"type": "error", "message": err.Error()})
			return
		}
		_ = client.WriteJSON(map[string]string{"type": "complete"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go runStream(ctx)
	go h.readLoop(ctx, cancel, streamID, client, runStream)
}

func (h *EmailsWSHandler) readLoop(ctx context.Context, cancel context.CancelFunc, streamID string, client *ws.Client, runStream func(context.Context)) {
	defer func() {
		cancel()
		h.hub.Unregister(streamID, client)
		log.Printf("EmailsWSHandler: stream %s disconnected", streamID)
	}()

	for {
		_, data, err := client.Conn().ReadMessage()
		if err != nil {
			return
		}

		var action struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(data, &action); err != nil {
			continue
		}

		switch action.Action {
		case "ping":
			_ = client.WriteJSON(map[string]string{"type": "pong"})
		case "refresh":
			go runStream(ctx)
		}
	}
}

// wsStreamSink forwards pipeline stream events as WebSocket messages.
type wsStreamSink struct {
	client *ws.Client
}

func (s *wsStreamSink) Folders(folders []models.Folder) {
	names := make([]string, 0, len(folders))
	for _, f := range folders {
		names = append(names, f.Name)
	}
	_ = s.client.WriteJSON(map[string]interface{}{"type": "folders", "folders": names})
}

func (s *wsStreamSink) FolderLoading(name string) {
	_ = s.client.WriteJSON(map[string]interface{}{"type": "folder_loading", "folder": name})
}

func (s *wsStreamSink) FolderLoaded(name string, emails []*models.Email, unreadCount int) {
	_ = s.client.WriteJSON(map[string]interface{}{
		"type":         "folder_loaded",
		"folder":       name,
		"unread_count": unreadCount,
		"emails":       toEmailJSONList(emails),
	})
}

func (s *wsStreamSink) FolderError(name string, err error) {
	_ = s.client.WriteJSON(map[string]interface{}{"type": "error", "folder": name, "message": err.Error()})
}
