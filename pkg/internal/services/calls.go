package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/converse-im/converse/pkg/models"
)

// CommitFunc reifies an ended call into its call_log entry. The session is
// only discarded once the commit succeeds; on error the call stays active.
type CommitFunc func(models.CallLogSummary) (models.Message, error)

// CallService runs the per-conversation call state machine. Timing is two
// clock samples (connect, end); nothing ticks in the background.
type CallService struct {
	mu     sync.Mutex
	calls  map[string]*callEntry
	active map[string]string

	clock func() time.Time
	bus   *EventBus
}

type callEntry struct {
	mu      sync.Mutex
	session *models.CallSession
}

func NewCallService(bus *EventBus) *CallService {
	return &CallService{
		calls:  make(map[string]*callEntry),
		active: make(map[string]string),
		clock:  time.Now,
		bus:    bus,
	}
}

// SetClock swaps the time source; tests use it to make durations
// deterministic.
func (s *CallService) SetClock(clock func() time.Time) {
	s.clock = clock
}

func (s *CallService) entry(callID string) (*callEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.calls[callID]; ok {
		return entry, nil
	}
	return nil, fmt.Errorf("call %s: %w", callID, models.ErrNotFound)
}

func (s *CallService) withCall(callID string, fn func(*models.CallSession) error) (models.CallSession, error) {
	entry, err := s.entry(callID)
	if err != nil {
		return models.CallSession{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := fn(entry.session); err != nil {
		return models.CallSession{}, err
	}
	return copySession(entry.session), nil
}

// NewCall opens a session in connecting state with the initiator already on
// the roster. A conversation holds at most one non-ended session.
func (s *CallService) NewCall(conversationID, initiatorID string, callType models.CallType) (models.CallSession, error) {
	switch callType {
	case models.CallTypeVoice, models.CallTypeVideo, models.CallTypeGroup:
	default:
		return models.CallSession{}, fmt.Errorf("unknown call type %s: %w", callType, models.ErrInvalidPayload)
	}

	s.mu.Lock()
	if _, ok := s.active[conversationID]; ok {
		s.mu.Unlock()
		return models.CallSession{}, fmt.Errorf("conversation %s: %w", conversationID, models.ErrAlreadyInCall)
	}
	now := s.clock()
	session := &models.CallSession{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		InitiatorID:    initiatorID,
		Type:           callType,
		State:          models.CallStateConnecting,
		StartedAt:      now,
		Participants: []models.Participant{
			{UserID: initiatorID, JoinedAt: now},
		},
	}
	s.calls[session.ID] = &callEntry{session: session}
	s.active[conversationID] = session.ID
	s.mu.Unlock()

	out := copySession(session)
	s.bus.Publish(models.ChangeEvent{
		Action:         models.EventCallStart,
		ConversationID: conversationID,
		Payload:        out,
	})
	return out, nil
}

// MarkCallConnected samples the clock and starts the connected phase.
// Repeating it is a no-op; an ended session rejects it.
func (s *CallService) MarkCallConnected(callID string) (models.CallSession, error) {
	var changed bool
	out, err := s.withCall(callID, func(session *models.CallSession) error {
		switch session.State {
		case models.CallStateEnded:
			return fmt.Errorf("call %s already ended: %w", callID, models.ErrInvalidTransition)
		case models.CallStateConnected:
			return nil
		}
		session.State = models.CallStateConnected
		session.ConnectedAt = lo.ToPtr(s.clock())
		changed = true
		return nil
	})
	if err != nil {
		return out, err
	}

	if changed {
		s.bus.Publish(models.ChangeEvent{
			Action:         models.EventCallConnected,
			ConversationID: out.ConversationID,
			Payload:        out,
		})
	}
	return out, nil
}

// EndCall freezes the session, hands its summary to commit and discards it.
// Ending straight from connecting yields a missed call with zero duration.
func (s *CallService) EndCall(callID, actorID string, commit CommitFunc) (models.CallSession, *models.Message, error) {
	entry, err := s.entry(callID)
	if err != nil {
		return models.CallSession{}, nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.session.State == models.CallStateEnded {
		return models.CallSession{}, nil, fmt.Errorf("call %s already ended: %w", callID, models.ErrInvalidTransition)
	}
	logMessage, err := s.endLocked(entry.session, actorID, commit)
	if err != nil {
		return models.CallSession{}, nil, err
	}
	return copySession(entry.session), logMessage, nil
}

// endLocked runs the terminal transition with the entry lock held. The
// caller guarantees the session is not yet ended.
func (s *CallService) endLocked(session *models.CallSession, actorID string, commit CommitFunc) (*models.Message, error) {
	prevState := session.State
	endedAt := s.clock()
	session.EndedAt = &endedAt
	session.State = models.CallStateEnded

	outcome := models.CallOutcomeEnded
	if session.ConnectedAt == nil {
		outcome = models.CallOutcomeMissed
	}
	summary := models.CallLogSummary{
		CallID:         session.ID,
		ConversationID: session.ConversationID,
		Type:           session.Type,
		Duration:       session.Duration(endedAt),
		Outcome:        outcome,
	}

	var logMessage *models.Message
	if commit != nil {
		appended, err := commit(summary)
		if err != nil {
			// Reification failed; the call is still reported active.
			session.EndedAt = nil
			session.State = prevState
			return nil, err
		}
		logMessage = &appended
	}

	s.mu.Lock()
	delete(s.calls, session.ID)
	if s.active[session.ConversationID] == session.ID {
		delete(s.active, session.ConversationID)
	}
	s.mu.Unlock()

	log.Debug().
		Str("call", session.ID).
		Str("actor", actorID).
		Str("outcome", summary.Outcome).
		Int64("duration", summary.Duration).
		Msg("Call session reified into call log...")

	s.bus.Publish(models.ChangeEvent{
		Action:         models.EventCallEnd,
		ConversationID: session.ConversationID,
		Payload:        copySession(session),
	})
	return logMessage, nil
}

// JoinCall adds a participant to a group call roster. Joining twice is a
// no-op.
func (s *CallService) JoinCall(callID, userID string) (models.CallSession, error) {
	out, err := s.withCall(callID, func(session *models.CallSession) error {
		if session.Type != models.CallTypeGroup {
			return fmt.Errorf("join is only valid for group calls: %w", models.ErrInvalidTransition)
		}
		if session.State == models.CallStateEnded {
			return fmt.Errorf("call %s already ended: %w", callID, models.ErrInvalidTransition)
		}
		if lo.ContainsBy(session.Participants, func(p models.Participant) bool { return p.UserID == userID }) {
			return nil
		}
		session.Participants = append(session.Participants, models.Participant{
			UserID:   userID,
			JoinedAt: s.clock(),
		})
		return nil
	})
	if err != nil {
		return out, err
	}

	s.bus.Publish(models.ChangeEvent{
		Action:         models.EventCallUpdate,
		ConversationID: out.ConversationID,
		Payload:        out,
	})
	return out, nil
}

// LeaveCall removes a participant from a group call roster. The last
// participant leaving ends the call; the reified log entry is returned when
// that happens.
func (s *CallService) LeaveCall(callID, userID string, commit CommitFunc) (models.CallSession, *models.Message, error) {
	entry, err := s.entry(callID)
	if err != nil {
		return models.CallSession{}, nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	session := entry.session
	if session.Type != models.CallTypeGroup {
		return models.CallSession{}, nil, fmt.Errorf("leave is only valid for group calls: %w", models.ErrInvalidTransition)
	}
	if session.State == models.CallStateEnded {
		return models.CallSession{}, nil, fmt.Errorf("call %s already ended: %w", callID, models.ErrInvalidTransition)
	}

	before := len(session.Participants)
	session.Participants = lo.Reject(session.Participants, func(p models.Participant, _ int) bool {
		return p.UserID == userID
	})
	if len(session.Participants) == before {
		return copySession(session), nil, nil
	}

	if len(session.Participants) == 0 {
		logMessage, err := s.endLocked(session, userID, commit)
		if err != nil {
			return models.CallSession{}, nil, err
		}
		return copySession(session), logMessage, nil
	}

	out := copySession(session)
	s.bus.Publish(models.ChangeEvent{
		Action:         models.EventCallUpdate,
		ConversationID: out.ConversationID,
		Payload:        out,
	})
	return out, nil, nil
}

// SetCallMute flips a participant's mute flag; unknown users are ignored.
func (s *CallService) SetCallMute(callID, userID string, value bool) (models.CallSession, error) {
	return s.setParticipantFlag(callID, userID, func(p *models.Participant) bool {
		changed := p.IsMuted != value
		p.IsMuted = value
		return changed
	})
}

// SetCallCamera flips a participant's camera flag; unknown users are
// ignored.
func (s *CallService) SetCallCamera(callID, userID string, value bool) (models.CallSession, error) {
	return s.setParticipantFlag(callID, userID, func(p *models.Participant) bool {
		changed := p.IsCameraOn != value
		p.IsCameraOn = value
		return changed
	})
}

func (s *CallService) setParticipantFlag(callID, userID string, apply func(*models.Participant) bool) (models.CallSession, error) {
	var changed bool
	out, err := s.withCall(callID, func(session *models.CallSession) error {
		for i := range session.Participants {
			if session.Participants[i].UserID == userID {
				changed = apply(&session.Participants[i])
				break
			}
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	if changed {
		s.bus.Publish(models.ChangeEvent{
			Action:         models.EventCallUpdate,
			ConversationID: out.ConversationID,
			Payload:        out,
		})
	}
	return out, nil
}

// SetCallMinimized toggles the session-local UI flag. No event is emitted;
// the flag means nothing to other participants.
func (s *CallService) SetCallMinimized(callID string, value bool) (models.CallSession, error) {
	return s.withCall(callID, func(session *models.CallSession) error {
		session.IsMinimized = value
		return nil
	})
}

// GetOngoingCall returns the conversation's active session, if any.
func (s *CallService) GetOngoingCall(conversationID string) (models.CallSession, error) {
	s.mu.Lock()
	callID, ok := s.active[conversationID]
	s.mu.Unlock()
	if !ok {
		return models.CallSession{}, fmt.Errorf("conversation %s has no ongoing call: %w", conversationID, models.ErrNotFound)
	}
	return s.withCall(callID, func(*models.CallSession) error { return nil })
}

// ListCallParticipants pages the roster in join order. The last page may be
// short; a page index past the end yields an empty slice.
func (s *CallService) ListCallParticipants(callID string, pageIndex, pageSize int) ([]models.Participant, error) {
	if pageCap := viper.GetInt("calling.participant_page_cap"); pageSize <= 0 || pageSize > pageCap {
		pageSize = pageCap
	}

	session, err := s.withCall(callID, func(*models.CallSession) error { return nil })
	if err != nil {
		return nil, err
	}

	start := pageIndex * pageSize
	if pageIndex < 0 || start >= len(session.Participants) {
		return []models.Participant{}, nil
	}
	end := min(start+pageSize, len(session.Participants))
	return session.Participants[start:end], nil
}

func copySession(session *models.CallSession) models.CallSession {
	out := *session
	out.Participants = append([]models.Participant{}, session.Participants...)
	if session.ConnectedAt != nil {
		out.ConnectedAt = lo.ToPtr(*session.ConnectedAt)
	}
	if session.EndedAt != nil {
		out.EndedAt = lo.ToPtr(*session.EndedAt)
	}
	return out
}
