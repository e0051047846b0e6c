package websocket

import (
	"encoding/json"

	"draftsync/internal/entity"
)

// RemoteEditor adapts a session's UI clients into the sync engine's editor
// capability: the cursor is whatever the UI last reported over the socket,
// and restoring pushes a cursor_restore directive back out. The engine
// never knows it is talking to a browser.
type RemoteEditor struct {
	hub       *Hub
	sessionID string
}

func NewRemoteEditor(hub *Hub, sessionID string) *RemoteEditor {
	return &RemoteEditor{hub: hub, sessionID: sessionID}
}

func (e *RemoteEditor) Cursor() (entity.CursorPosition, bool) {
	return e.hub.LastCursor(e.sessionID)
}

func (e *RemoteEditor) SetCursor(pos entity.CursorPosition) {
	data, err := json.Marshal(map[string]interface{}{
		"type":   "cursor_restore",
		"cursor": pos,
	})
	if err != nil {
		return
	}
	e.hub.Send(e.sessionID, data)
}
