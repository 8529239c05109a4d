package models

import "errors"

// Failure kinds surfaced across the facade boundary. The transport layer
// matches them with errors.Is to decide whether to retry, surface or drop.
var (
	ErrInvalidPayload    = errors.New("payload does not match message kind")
	ErrNotEditable       = errors.New("message is not editable")
	ErrForbidden         = errors.New("actor is not allowed to perform this action")
	ErrPollEnded         = errors.New("poll has already ended")
	ErrInvalidPoll       = errors.New("poll request is invalid")
	ErrAlreadyInCall     = errors.New("conversation already has an ongoing call")
	ErrInvalidTransition = errors.New("call state transition is invalid")
	ErrNotFound          = errors.New("record not found")
)
