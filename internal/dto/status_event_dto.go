package dto

// Status event types delivered by the upstream push channel.
const (
	StatusDraftUpdated      = "draft_updated"
	StatusDraftSwitched     = "draft_switched"
	StatusReferencesUpdated = "references_updated"
)

// StatusEventMessage is one event from the upstream status push channel,
// re-published verbatim onto the in-process bus by the stream subscriber.
type StatusEventMessage struct {
	Type      string         `json:"type"`
	SessionId string         `json:"session_id"`
	Draft     *DraftResponse `json:"draft,omitempty"`
}
