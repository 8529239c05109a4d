package models

import "time"

type MessageKind = string

const (
	MessageKindText     = MessageKind("text")
	MessageKindImage    = MessageKind("image")
	MessageKindDocument = MessageKind("document")
	MessageKindPoll     = MessageKind("poll")
	MessageKindCallLog  = MessageKind("call_log")
	MessageKindSystem   = MessageKind("system")
)

type DeleteScope = string

const (
	DeleteScopeForSender   = DeleteScope("for_sender")
	DeleteScopeForEveryone = DeleteScope("for_everyone")
)

// Message is one entry of a conversation's canonical log. Entries are never
// removed, only flagged; Seq keeps replay order stable for every consumer.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Kind           MessageKind `json:"kind"`
	Seq            uint64      `json:"seq"`
	CreatedAt      time.Time   `json:"created_at"`

	Payload map[string]any `json:"payload"`

	IsEdited    bool        `json:"is_edited"`
	IsPinned    bool        `json:"is_pinned"`
	IsDeleted   bool        `json:"is_deleted"`
	DeleteScope DeleteScope `json:"delete_scope,omitempty"`
	DeletedBy   string      `json:"deleted_by,omitempty"`

	// Emoji -> reactor ids. Buckets with no reactors are dropped entirely.
	Reactions map[string][]string `json:"reactions,omitempty"`
}

// Message payload bodies, one per kind.

type TextBody struct {
	Text string `json:"text" validate:"required"`
}

type ImageBody struct {
	Attachment string `json:"attachment" validate:"required"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

type DocumentBody struct {
	Attachment string `json:"attachment" validate:"required"`
	Filename   string `json:"filename" validate:"required"`
	Size       int64  `json:"size,omitempty"`
}

type PollBody struct {
	PollID string `json:"poll_id" validate:"required"`
}

type CallLogBody struct {
	CallType string `json:"call_type" validate:"required"`
	Duration int64  `json:"duration"`
	Outcome  string `json:"outcome" validate:"required,oneof=ended missed"`
}

type SystemBody struct {
	Text string `json:"text" validate:"required"`
}
