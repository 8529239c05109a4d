package services

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/converse-im/converse/pkg/models"
)

// ReactionAggregator maintains the emoji -> reactor sets carried by log
// entries. It piggybacks on the store's per-conversation locking, so a
// reaction toggle is atomic with every other mutation of the same
// conversation.
type ReactionAggregator struct {
	store *MessageStore
}

func NewReactionAggregator(store *MessageStore) *ReactionAggregator {
	return &ReactionAggregator{store: store}
}

// ReactMessage toggles userID under the given emoji: present removes,
// absent adds. A user may react with several distinct emojis at once; the
// bucket disappears with its last reactor.
func (s *ReactionAggregator) ReactMessage(messageID, userID, emoji string) (models.Message, error) {
	out, err := s.store.withMessage(messageID, func(message *models.Message) error {
		if tombstoned(message) || hiddenFrom(message, userID) {
			return fmt.Errorf("deleted message: %w", models.ErrNotEditable)
		}
		if message.Reactions == nil {
			message.Reactions = make(map[string][]string)
		}
		reactors := message.Reactions[emoji]
		if lo.Contains(reactors, userID) {
			reactors = lo.Without(reactors, userID)
		} else {
			reactors = append(reactors, userID)
		}
		if len(reactors) == 0 {
			delete(message.Reactions, emoji)
		} else {
			message.Reactions[emoji] = reactors
		}
		if len(message.Reactions) == 0 {
			message.Reactions = nil
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	s.store.bus.Publish(models.ChangeEvent{
		Action:         models.EventMessageReact,
		ConversationID: out.ConversationID,
		Payload:        out,
	})
	return out, nil
}

// ListReactors returns the current reactor set for an emoji; an unused
// emoji yields an empty set.
func (s *ReactionAggregator) ListReactors(messageID, emoji string) ([]string, error) {
	message, err := s.store.withMessage(messageID, func(*models.Message) error { return nil })
	if err != nil {
		return nil, err
	}
	if reactors, ok := message.Reactions[emoji]; ok {
		return reactors, nil
	}
	return []string{}, nil
}
