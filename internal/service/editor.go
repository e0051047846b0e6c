package service

import (
	"strings"
	"unicode/utf8"

	"draftsync/internal/entity"
)

// Editor is the capability surface the sync engine needs from an editor to
// keep the cursor stable across content replacement. Implementations live
// with the UI transport (websocket remote editor, test fakes); the engine
// itself stays editor-library-agnostic.
type Editor interface {
	// Cursor returns the current position, false when none is known yet.
	Cursor() (entity.CursorPosition, bool)

	// SetCursor restores a position after the buffer has been re-rendered.
	SetCursor(pos entity.CursorPosition)
}

// clampCursor fits a position recorded against old text into new text.
// Content replacement invalidates offsets, so line is capped to the last
// line and column to that line's rune length.
func clampCursor(content string, pos entity.CursorPosition) entity.CursorPosition {
	lines := strings.Split(content, "\n")

	if pos.Line < 0 {
		pos.Line = 0
	}
	if pos.Line > len(lines)-1 {
		pos.Line = len(lines) - 1
	}

	lineLen := utf8.RuneCountInString(lines[pos.Line])
	if pos.Column < 0 {
		pos.Column = 0
	}
	if pos.Column > lineLen {
		pos.Column = lineLen
	}
	return pos
}
