package dto

import (
	"time"

	"draftsync/internal/entity"
)

// UpdateDraftRequest is the payload sent to the upstream backend when the
// gateway persists local edits. Title is optional: nil means "unchanged".
type UpdateDraftRequest struct {
	Title   *string `json:"title,omitempty"`
	Content string  `json:"content"`
}

// DraftResponse is the canonical saved record returned by the upstream
// backend from both getDraft and updateDraft.
type DraftResponse struct {
	Id         string             `json:"id"`
	Title      string             `json:"title"`
	Content    string             `json:"content"`
	References []entity.Reference `json:"references,omitempty"`
	UpdatedAt  *time.Time         `json:"updated_at,omitempty"`
}

// DraftInputRequest carries the latest editor buffer on a keystroke from
// the UI. Cursor is optional; when present it updates the engine's
// remembered position for later restores.
type DraftInputRequest struct {
	Content string                 `json:"content"`
	Title   *string                `json:"title,omitempty" validate:"omitempty,max=500"`
	Cursor  *entity.CursorPosition `json:"cursor,omitempty"`
}

// DraftStateResponse is the engine's edit-session snapshot exposed to the UI.
type DraftStateResponse struct {
	SessionId         string                `json:"session_id"`
	DraftId           string                `json:"draft_id"`
	Title             string                `json:"title"`
	Content           string                `json:"content"`
	References        []entity.Reference    `json:"references,omitempty"`
	IsUserEditing     bool                  `json:"is_user_editing"`
	HasUnsavedChanges bool                  `json:"has_unsaved_changes"`
	Cursor            entity.CursorPosition `json:"cursor"`
	LastSavedAt       *time.Time            `json:"last_saved_at,omitempty"`
}
