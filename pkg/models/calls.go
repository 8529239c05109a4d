package models

import "time"

type CallType = string

const (
	CallTypeVoice = CallType("voice")
	CallTypeVideo = CallType("video")
	CallTypeGroup = CallType("group")
)

type CallState = string

const (
	CallStateConnecting = CallState("connecting")
	CallStateConnected  = CallState("connected")
	CallStateEnded      = CallState("ended")
)

type CallOutcome = string

const (
	CallOutcomeEnded  = CallOutcome("ended")
	CallOutcomeMissed = CallOutcome("missed")
)

// CallSession only lives while a call is active; once ended it is reified
// into a call_log message and discarded.
type CallSession struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	InitiatorID    string     `json:"initiator_id"`
	Type           CallType   `json:"type"`
	State          CallState  `json:"state"`
	StartedAt      time.Time  `json:"started_at"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`

	Participants []Participant `json:"participants"`

	// Session-local UI flag, carries no call semantics.
	IsMinimized bool `json:"is_minimized"`
}

type Participant struct {
	UserID     string    `json:"user_id"`
	IsMuted    bool      `json:"is_muted"`
	IsCameraOn bool      `json:"is_camera_on"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Duration reports whole seconds spent connected. The clock is sampled at
// connect and end; a session that never connected reports zero.
func (v CallSession) Duration(now time.Time) int64 {
	if v.ConnectedAt == nil {
		return 0
	}
	until := now
	if v.EndedAt != nil {
		until = *v.EndedAt
	}
	elapsed := until.Sub(*v.ConnectedAt)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed.Seconds())
}

type CallLogSummary struct {
	CallID         string      `json:"call_id"`
	ConversationID string      `json:"conversation_id"`
	Type           CallType    `json:"type"`
	Duration       int64       `json:"duration"`
	Outcome        CallOutcome `json:"outcome"`
}
