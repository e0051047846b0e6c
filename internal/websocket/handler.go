package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs handles websocket requests from a UI client watching a session.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID string) {
	client := &Client{
		Hub:       hub,
		ID:        uuid.NewString(),
		Conn:      c,
		SessionID: sessionID,
		Send:      make(chan []byte, 256),
	}
	client.Hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}
