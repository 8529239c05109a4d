// Package conversation is the single entry point of the engine. External
// collaborators (transport, presentation) issue commands and queries here;
// the subsystems underneath are not importable from outside the module.
package conversation

import (
	"github.com/converse-im/converse/pkg/internal/services"
	"github.com/converse-im/converse/pkg/models"
)

type Facade struct {
	bus       *services.EventBus
	store     *services.MessageStore
	reactions *services.ReactionAggregator
	polls     *services.PollEngine
	calls     *services.CallService
}

func New() *Facade {
	bus := services.NewEventBus()
	store := services.NewMessageStore(bus)
	return &Facade{
		bus:       bus,
		store:     store,
		reactions: services.NewReactionAggregator(store),
		polls:     services.NewPollEngine(bus),
		calls:     services.NewCallService(bus),
	}
}

// Messages

func (f *Facade) SendText(conversationID, senderID, text string) (models.Message, error) {
	return f.store.NewMessage(conversationID, senderID, models.MessageKindText,
		services.EncodeBody(models.TextBody{Text: text}))
}

func (f *Facade) SendImage(conversationID, senderID string, body models.ImageBody) (models.Message, error) {
	return f.store.NewMessage(conversationID, senderID, models.MessageKindImage,
		services.EncodeBody(body))
}

func (f *Facade) SendDocument(conversationID, senderID string, body models.DocumentBody) (models.Message, error) {
	return f.store.NewMessage(conversationID, senderID, models.MessageKindDocument,
		services.EncodeBody(body))
}

// SendSystem appends a system notice (membership changes, renames and the
// like). System entries are never editable.
func (f *Facade) SendSystem(conversationID, text string) (models.Message, error) {
	return f.store.NewMessage(conversationID, "", models.MessageKindSystem,
		services.EncodeBody(models.SystemBody{Text: text}))
}

func (f *Facade) EditMessage(messageID, editorID, text string) (models.Message, error) {
	return f.store.EditMessage(messageID, editorID, text)
}

func (f *Facade) DeleteMessage(messageID, actorID string, scope models.DeleteScope) (models.Message, error) {
	return f.store.DeleteMessage(messageID, actorID, scope)
}

func (f *Facade) PinMessage(messageID string, pinned bool) (models.Message, error) {
	return f.store.PinMessage(messageID, pinned)
}

func (f *Facade) GetHistory(conversationID, viewerID string, cursor uint64, limit int) ([]models.Message, uint64) {
	return f.store.ListMessage(conversationID, viewerID, cursor, limit)
}

func (f *Facade) GetPinned(conversationID, viewerID string) []models.Message {
	return f.store.ListPinned(conversationID, viewerID)
}

// Reactions

func (f *Facade) ReactTo(messageID, userID, emoji string) (models.Message, error) {
	return f.reactions.ReactMessage(messageID, userID, emoji)
}

func (f *Facade) Reactors(messageID, emoji string) ([]string, error) {
	return f.reactions.ListReactors(messageID, emoji)
}

// Polls

// CreatePoll registers the poll and appends its carrier message as one
// logical operation; a failed append leaves no poll behind.
func (f *Facade) CreatePoll(conversationID, creatorID, question string, options []string) (models.Message, models.Poll, error) {
	poll, err := f.polls.NewPoll(conversationID, creatorID, question, options)
	if err != nil {
		return models.Message{}, models.Poll{}, err
	}

	message, err := f.store.NewMessage(conversationID, creatorID, models.MessageKindPoll,
		services.EncodeBody(models.PollBody{PollID: poll.ID}))
	if err != nil {
		f.polls.DiscardPoll(poll.ID)
		return models.Message{}, models.Poll{}, err
	}

	if err := f.polls.BindMessage(poll.ID, message.ID); err != nil {
		return models.Message{}, models.Poll{}, err
	}
	poll, err = f.polls.GetPoll(poll.ID)
	if err != nil {
		return models.Message{}, models.Poll{}, err
	}

	f.bus.Publish(models.ChangeEvent{
		Action:         models.EventPollNew,
		ConversationID: conversationID,
		Payload:        poll,
	})
	return message, poll, nil
}

func (f *Facade) Vote(pollID, userID, optionID string) (models.Poll, error) {
	return f.polls.VotePoll(pollID, userID, optionID)
}

func (f *Facade) AddPollOption(pollID, text string) (models.Poll, error) {
	return f.polls.AddPollOption(pollID, text)
}

func (f *Facade) EndPoll(pollID string) (models.Poll, error) {
	return f.polls.EndPoll(pollID)
}

func (f *Facade) GetPoll(pollID string) (models.Poll, error) {
	return f.polls.GetPoll(pollID)
}

func (f *Facade) PollPercentages(pollID string) (map[string]float64, error) {
	return f.polls.PollPercentages(pollID)
}

// Calls

func (f *Facade) StartCall(conversationID, initiatorID string, callType models.CallType) (models.CallSession, error) {
	return f.calls.NewCall(conversationID, initiatorID, callType)
}

func (f *Facade) MarkCallConnected(callID string) (models.CallSession, error) {
	return f.calls.MarkCallConnected(callID)
}

// EndCall terminates the session and appends its call_log entry. The two
// steps are atomic from the caller's side: if the append fails the call is
// still active.
func (f *Facade) EndCall(callID, actorID string) (models.Message, error) {
	_, logMessage, err := f.calls.EndCall(callID, actorID, f.reifyCall(actorID))
	if err != nil {
		return models.Message{}, err
	}
	return *logMessage, nil
}

func (f *Facade) JoinCall(callID, userID string) (models.CallSession, error) {
	return f.calls.JoinCall(callID, userID)
}

// LeaveCall drops the participant; when the last one leaves, the call ends
// and its call_log entry is appended on the leaver's behalf.
func (f *Facade) LeaveCall(callID, userID string) (models.CallSession, error) {
	session, _, err := f.calls.LeaveCall(callID, userID, f.reifyCall(userID))
	return session, err
}

func (f *Facade) SetMute(callID, userID string, value bool) (models.CallSession, error) {
	return f.calls.SetCallMute(callID, userID, value)
}

func (f *Facade) SetCamera(callID, userID string, value bool) (models.CallSession, error) {
	return f.calls.SetCallCamera(callID, userID, value)
}

func (f *Facade) SetCallMinimized(callID string, value bool) (models.CallSession, error) {
	return f.calls.SetCallMinimized(callID, value)
}

func (f *Facade) GetActiveCall(conversationID string) (models.CallSession, error) {
	return f.calls.GetOngoingCall(conversationID)
}

func (f *Facade) ParticipantsPage(callID string, pageIndex, pageSize int) ([]models.Participant, error) {
	return f.calls.ListCallParticipants(callID, pageIndex, pageSize)
}

func (f *Facade) reifyCall(actorID string) services.CommitFunc {
	return func(summary models.CallLogSummary) (models.Message, error) {
		return f.store.NewMessage(summary.ConversationID, actorID, models.MessageKindCallLog,
			services.EncodeBody(models.CallLogBody{
				CallType: summary.Type,
				Duration: summary.Duration,
				Outcome:  summary.Outcome,
			}))
	}
}

// Events

func (f *Facade) Subscribe(conversationID, clientID string) <-chan models.ChangeEvent {
	return f.bus.Subscribe(conversationID, clientID)
}

func (f *Facade) Unsubscribe(conversationID, clientID string) {
	f.bus.Unsubscribe(conversationID, clientID)
}

func (f *Facade) UnsubscribeAll(clientID string) {
	f.bus.UnsubscribeAll(clientID)
}
