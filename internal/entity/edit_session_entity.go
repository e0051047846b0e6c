package entity

import "time"

// CursorPosition is a line/column pair within the edit buffer.
// Zero-based; Column counts runes so multi-byte text restores correctly.
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// EditSession is the transient, client-local editing state for one draft.
// While the user is active, LocalContent is the single source of truth:
// externally pushed content must never overwrite it (see the sync engine).
type EditSession struct {
	LocalContent       string
	Title              string
	IsUserEditing      bool
	HasUnsavedChanges  bool
	LastCursorPosition CursorPosition
	LastSavedAt        *time.Time
}
