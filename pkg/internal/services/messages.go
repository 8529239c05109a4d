package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/converse-im/converse/pkg/models"
)

var validate = validator.New()

// MessageStore keeps the canonical ordered log of every conversation.
// Entries are only ever appended or flagged in place; each conversation is
// its own consistency unit with its own lock.
type MessageStore struct {
	mu    sync.RWMutex
	convs map[string]*conversationLog
	index map[string]*conversationLog

	bus *EventBus
}

type conversationLog struct {
	mu       sync.Mutex
	id       string
	seq      uint64
	messages []*models.Message
	byID     map[string]*models.Message
}

func NewMessageStore(bus *EventBus) *MessageStore {
	return &MessageStore{
		convs: make(map[string]*conversationLog),
		index: make(map[string]*conversationLog),
		bus:   bus,
	}
}

func (s *MessageStore) conversation(id string) *conversationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.convs[id]; ok {
		return conv
	}
	conv := &conversationLog{id: id, byID: make(map[string]*models.Message)}
	s.convs[id] = conv
	return conv
}

func (s *MessageStore) lookup(messageID string) (*conversationLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.index[messageID]
	return conv, ok
}

// withMessage runs fn with the owning conversation locked. Mutations done
// inside fn are atomic with respect to every other command on the same
// conversation.
func (s *MessageStore) withMessage(messageID string, fn func(*models.Message) error) (models.Message, error) {
	conv, ok := s.lookup(messageID)
	if !ok {
		return models.Message{}, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	message := conv.byID[messageID]
	if err := fn(message); err != nil {
		return models.Message{}, err
	}
	return copyMessage(message), nil
}

// EncodeBody round-trips a typed payload body into the loose map shape the
// log stores, dropping any keys the kind does not define.
func EncodeBody(body any) map[string]any {
	var parsed map[string]any
	models.FitStruct(body, &parsed)
	return parsed
}

func fitPayload(kind models.MessageKind, payload map[string]any) (map[string]any, error) {
	var body any
	switch kind {
	case models.MessageKindText:
		body = &models.TextBody{}
	case models.MessageKindImage:
		body = &models.ImageBody{}
	case models.MessageKindDocument:
		body = &models.DocumentBody{}
	case models.MessageKindPoll:
		body = &models.PollBody{}
	case models.MessageKindCallLog:
		body = &models.CallLogBody{}
	case models.MessageKindSystem:
		body = &models.SystemBody{}
	default:
		return nil, fmt.Errorf("unknown message kind %s: %w", kind, models.ErrInvalidPayload)
	}

	models.FitStruct(payload, body)
	if err := validate.Struct(body); err != nil {
		return nil, fmt.Errorf("%s payload: %v: %w", kind, err, models.ErrInvalidPayload)
	}
	return EncodeBody(body), nil
}

// NewMessage appends one entry to the conversation log, assigning the next
// sequence number.
func (s *MessageStore) NewMessage(conversationID, senderID string, kind models.MessageKind, payload map[string]any) (models.Message, error) {
	fitted, err := fitPayload(kind, payload)
	if err != nil {
		return models.Message{}, err
	}

	conv := s.conversation(conversationID)
	conv.mu.Lock()
	conv.seq++
	message := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           kind,
		Seq:            conv.seq,
		CreatedAt:      time.Now(),
		Payload:        fitted,
	}
	conv.messages = append(conv.messages, message)
	conv.byID[message.ID] = message
	s.mu.Lock()
	s.index[message.ID] = conv
	s.mu.Unlock()
	out := copyMessage(message)
	conv.mu.Unlock()

	s.bus.Publish(models.ChangeEvent{
		Action:         models.EventMessageNew,
		ConversationID: conversationID,
		Payload:        out,
	})
	return out, nil
}

// EditMessage rewrites the text of a text message. Only the sender may edit,
// and only while the message is not deleted.
func (s *MessageStore) EditMessage(messageID, editorID, text string) (models.Message, error) {
	out, err := s.withMessage(messageID, func(message *models.Message) error {
		if message.Kind != models.MessageKindText {
			return fmt.Errorf("%s message: %w", message.Kind, models.ErrNotEditable)
		}
		if tombstoned(message) || hiddenFrom(message, editorID) {
			return fmt.Errorf("deleted message: %w", models.ErrNotEditable)
		}
		if message.SenderID != editorID {
			return fmt.Errorf("only the sender can edit: %w", models.ErrNotEditable)
		}
		fitted, err := fitPayload(models.MessageKindText, EncodeBody(models.TextBody{Text: text}))
		if err != nil {
			return err
		}
		message.Payload = fitted
		message.IsEdited = true
		return nil
	})
	if err != nil {
		return out, err
	}

	s.bus.Publish(models.ChangeEvent{
		Action:         models.EventMessageEdit,
		ConversationID: out.ConversationID,
		Payload:        out,
	})
	return out, nil
}

// DeleteMessage soft-deletes an entry. A for_everyone delete is reserved to
// the sender and clears the payload for every viewer; a for_sender delete
// may be issued by any participant and hides the entry from them alone.
func (s *MessageStore) DeleteMessage(messageID, actorID string, scope models.DeleteScope) (models.Message, error) {
	out, err := s.withMessage(messageID, func(message *models.Message) error {
		switch scope {
		case models.DeleteScopeForEveryone:
			if message.SenderID != actorID {
				return fmt.Errorf("only the sender can delete for everyone: %w", models.ErrForbidden)
			}
			message.IsDeleted = true
			message.DeleteScope = scope
			message.DeletedBy = actorID
			message.Payload = map[string]any{}
		case models.DeleteScopeForSender:
			if message.IsDeleted && message.DeleteScope == models.DeleteScopeForEveryone {
				// Already gone for every viewer, nothing left to hide.
				return nil
			}
			message.IsDeleted = true
			message.DeleteScope = scope
			message.DeletedBy = actorID
		default:
			return fmt.Errorf("unknown delete scope %s: %w", scope, models.ErrInvalidPayload)
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	s.bus.Publish(models.ChangeEvent{
		Action:         models.EventMessageDelete,
		ConversationID: out.ConversationID,
		Payload:        out,
	})
	return out, nil
}

// PinMessage sets the pin flag; repeating the same value is a no-op.
func (s *MessageStore) PinMessage(messageID string, pinned bool) (models.Message, error) {
	var changed bool
	out, err := s.withMessage(messageID, func(message *models.Message) error {
		changed = message.IsPinned != pinned
		message.IsPinned = pinned
		return nil
	})
	if err != nil {
		return out, err
	}

	if changed {
		s.bus.Publish(models.ChangeEvent{
			Action:         models.EventMessagePin,
			ConversationID: out.ConversationID,
			Payload:        out,
		})
	}
	return out, nil
}

// ListMessage pages the log newest-first for one viewer. The cursor is the
// sequence number of the last entry of the previous page; zero starts from
// the top. The next cursor is zero once the log is exhausted.
func (s *MessageStore) ListMessage(conversationID, viewerID string, cursor uint64, take int) ([]models.Message, uint64) {
	if pageCap := viper.GetInt("messaging.history_page_cap"); take <= 0 || take > pageCap {
		take = pageCap
	}

	conv := s.conversation(conversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	page := make([]models.Message, 0, take)
	var next uint64
	for i := len(conv.messages) - 1; i >= 0; i-- {
		message := conv.messages[i]
		if cursor > 0 && message.Seq >= cursor {
			continue
		}
		if hiddenFrom(message, viewerID) {
			continue
		}
		if len(page) == take {
			next = page[len(page)-1].Seq
			break
		}
		page = append(page, copyMessage(message))
	}
	return page, next
}

// ListPinned returns the pinned entries of a conversation in log order.
func (s *MessageStore) ListPinned(conversationID, viewerID string) []models.Message {
	conv := s.conversation(conversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	pinned := lo.Filter(conv.messages, func(message *models.Message, _ int) bool {
		return message.IsPinned && !hiddenFrom(message, viewerID)
	})
	return lo.Map(pinned, func(message *models.Message, _ int) models.Message {
		return copyMessage(message)
	})
}

// GetMessage fetches a single entry honoring the viewer's delete scope.
func (s *MessageStore) GetMessage(messageID, viewerID string) (models.Message, error) {
	return s.withMessage(messageID, func(message *models.Message) error {
		if hiddenFrom(message, viewerID) {
			return fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
		}
		return nil
	})
}

func (s *MessageStore) CountMessage(conversationID string) int {
	conv := s.conversation(conversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return len(conv.messages)
}

func hiddenFrom(message *models.Message, viewerID string) bool {
	return message.IsDeleted &&
		message.DeleteScope == models.DeleteScopeForSender &&
		message.DeletedBy == viewerID
}

// tombstoned reports a delete that applies to every viewer.
func tombstoned(message *models.Message) bool {
	return message.IsDeleted && message.DeleteScope == models.DeleteScopeForEveryone
}

func copyMessage(message *models.Message) models.Message {
	out := *message
	out.Payload = lo.Assign(map[string]any{}, message.Payload)
	if message.Reactions != nil {
		out.Reactions = make(map[string][]string, len(message.Reactions))
		for emoji, reactors := range message.Reactions {
			out.Reactions[emoji] = append([]string{}, reactors...)
		}
	}
	return out
}
