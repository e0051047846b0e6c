package entity

import "time"

// Draft is the canonical document record for a writing session as the
// upstream backend knows it. Content and title are mutated from two sides
// (local edits, server pushes); references are passthrough metadata the
// gateway carries but never interprets.
type Draft struct {
	Id         string
	Title      string
	Content    string
	References []Reference
	UpdatedAt  *time.Time
}

// Reference is a single citation record attached to a draft.
type Reference struct {
	Id       string                 `json:"id"`
	Citation string                 `json:"citation,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
