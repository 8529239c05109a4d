package models

import jsoniter "github.com/json-iterator/go"

const (
	EventMessageNew    = "messages.new"
	EventMessageEdit   = "messages.edit"
	EventMessageDelete = "messages.delete"
	EventMessagePin    = "messages.pin"
	EventMessageReact  = "messages.react"
	EventPollNew       = "polls.new"
	EventPollVote      = "polls.vote"
	EventPollOption    = "polls.option"
	EventPollEnd       = "polls.end"
	EventCallStart     = "calls.start"
	EventCallConnected = "calls.connected"
	EventCallUpdate    = "calls.update"
	EventCallEnd       = "calls.end"
)

// ChangeEvent is what mutations fan out to subscribers; the transport layer
// relays it to remote participants as-is.
type ChangeEvent struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
	Payload        any    `json:"payload"`
}

func (v ChangeEvent) Marshal() []byte {
	raw, _ := jsoniter.Marshal(v)
	return raw
}
