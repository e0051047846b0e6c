package websocket

import (
	"sync"

	"draftsync/internal/entity"
	"draftsync/internal/pkg/logger"
)

// Hub fans engine events out to the UI clients watching a writing session
// and keeps the last cursor position each UI reported. Single instance;
// every client is a local websocket connection.
type Hub struct {
	// Registered clients map: SessionID -> List of Clients (multi-pane UI)
	clients map[string][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Last cursor position reported per session
	cursors map[string]entity.CursorPosition

	// Lock for safe map access
	mu sync.RWMutex

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		cursors:    make(map[string]entity.CursorPosition),
		logger:     log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{
				"session_id": client.SessionID,
				"client_id":  client.ID,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.SessionID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.SessionID]) == 0 {
					delete(h.clients, client.SessionID)
					h.logger.Info("Hub", "Session has no clients left", map[string]interface{}{"session_id": client.SessionID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Send delivers a payload to every client watching the session. A client
// whose buffer is full is dropped; its channel is closed exactly once, by
// Run's unregister path.
func (h *Hub) Send(sessionID string, data []byte) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.clients[sessionID]...)
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Client Send buffer full, dropping connection", map[string]interface{}{
				"session_id": sessionID,
				"client_id":  client.ID,
			})
			h.unregister <- client
		}
	}
}

// Broadcast delivers a payload to every connected client regardless of
// session (gateway-wide notices). Stale clients are unregistered after the
// lock is released; Run handles the close.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	var all []*Client
	for _, clients := range h.clients {
		all = append(all, clients...)
	}
	h.mu.RUnlock()

	var stale []*Client
	for _, client := range all {
		select {
		case client.Send <- data:
		default:
			stale = append(stale, client)
		}
	}
	for _, client := range stale {
		h.unregister <- client
	}
}

// reportCursor records a cursor position sent by a UI client.
func (h *Hub) reportCursor(sessionID string, pos entity.CursorPosition) {
	h.mu.Lock()
	h.cursors[sessionID] = pos
	h.mu.Unlock()
}

// LastCursor returns the last position a UI reported for the session.
func (h *Hub) LastCursor(sessionID string) (entity.CursorPosition, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pos, ok := h.cursors[sessionID]
	return pos, ok
}
