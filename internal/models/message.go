package models

import "time"

// HelpRequestMessage is a persisted chat message on a help request.
type HelpRequestMessage struct {
	ID              int64     `db:"id" json:"id"`
	ClassID         int64     `db:"class_id" json:"class_id"`
	HelpRequestID   int64     `db:"help_request_id" json:"help_request_id"`
	Author          string    `db:"author" json:"author"`
	Message         string    `db:"message" json:"message"`
	Requestor       *string   `db:"requestor" json:"requestor,omitempty"`
	InstructorsOnly bool      `db:"instructors_only" json:"instructors_only"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// RowID implements tablecache keying.
func (m HelpRequestMessage) RowID() int64 { return m.ID }

// EphemeralChatMessage is a queue chat message that only lives in memory.
type EphemeralChatMessage struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is the uniform shape both chat channel variants expose.
type ChatMessage struct {
	ID              string    `json:"id"`
	Message         string    `json:"message"`
	Author          string    `json:"author"`
	InstructorsOnly bool      `json:"instructors_only,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
