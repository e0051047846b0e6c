package events

import "time"

// Draft lifecycle event codes emitted by the sync engine.
const (
	TypeDraftSaved          = "DRAFT_SAVED"
	TypeDraftSaveFailed     = "DRAFT_SAVE_FAILED"
	TypeDraftReplaced       = "DRAFT_REPLACED"
	TypeDraftUpdateDeferred = "DRAFT_UPDATE_DEFERRED"
	TypeDraftSwitched       = "DRAFT_SWITCHED"
	TypeDraftEditing        = "DRAFT_EDITING"
	TypeCursorRestore       = "CURSOR_RESTORE"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "DRAFT_SAVED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the plain implementation the engine emits.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewDraftEvent builds a BaseEvent stamped now, with the session id merged
// into the payload so consumers can route without unwrapping.
func NewDraftEvent(eventType, sessionId string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["session_id"] = sessionId
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
}
