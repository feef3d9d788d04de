// -----------------------------------------------------------------------
// WebSocket Handler - live job change stream for UI clients
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsClient is one connected UI client, optionally filtered to an owner.
type wsClient struct {
	conn    *websocket.Conn
	ownerID string
	mu      sync.Mutex // serializes writes to conn
}

// jobEventMessage is the wire format pushed to clients.
type jobEventMessage struct {
	Type string           `json:"type"`
	Job  *models.VideoJob `json:"job"`
}

// WebSocketHandler pushes job change events to connected clients. A client
// that passes ?owner_id= only receives events for that owner's jobs.
type WebSocketHandler struct {
	logger  arbor.ILogger
	clients map[*wsClient]bool
	mu      sync.RWMutex
}

// NewWebSocketHandler creates the handler and subscribes it to job events.
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:  logger,
		clients: make(map[*wsClient]bool),
	}

	for _, eventType := range []interfaces.EventType{
		interfaces.EventJobUpdated,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobDeleted,
	} {
		et := eventType
		events.Subscribe(et, func(ctx context.Context, event interfaces.Event) error {
			h.broadcast(et, event)
			return nil
		})
	}

	return h
}

// HandleWebSocket upgrades the connection and registers the client.
// GET /ws?owner_id=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		conn:    conn,
		ownerID: r.URL.Query().Get("owner_id"),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("remote", r.RemoteAddr).
		Str("owner_id", client.ownerID).
		Int("clients", count).
		Msg("WebSocket client connected")

	// Reader loop exists only to detect disconnects
	go func() {
		defer h.removeClient(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.conn.Close()
	}
	h.clients = make(map[*wsClient]bool)
}

func (h *WebSocketHandler) broadcast(eventType interfaces.EventType, event interfaces.Event) {
	job, ok := event.Payload.(*models.VideoJob)
	if !ok {
		return
	}

	message := jobEventMessage{Type: string(eventType), Job: job}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		if client.ownerID == "" || client.ownerID == job.OwnerID {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.mu.Lock()
		err := client.conn.WriteJSON(message)
		client.mu.Unlock()
		if err != nil {
			h.removeClient(client)
		}
	}
}

func (h *WebSocketHandler) removeClient(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.conn.Close()
	}
	h.mu.Unlock()
}
