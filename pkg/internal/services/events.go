package services

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/converse-im/converse/pkg/models"
)

// EventBus fans change events out to in-process subscribers, one stream per
// (conversation, client). Delivery is fire-and-forget: a subscriber that
// stops draining loses events instead of stalling mutations, the same deal
// remote clients get from a push transport.
type EventBus struct {
	mu sync.Mutex
	// ConversationID -> client ID -> stream
	streams map[string]map[string]chan models.ChangeEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		streams: make(map[string]map[string]chan models.ChangeEvent),
	}
}

func (s *EventBus) Subscribe(conversationID, clientID string) <-chan models.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[conversationID]; !ok {
		s.streams[conversationID] = make(map[string]chan models.ChangeEvent)
	}
	if stream, ok := s.streams[conversationID][clientID]; ok {
		return stream
	}
	stream := make(chan models.ChangeEvent, viper.GetInt("events.stream_buffer"))
	s.streams[conversationID][clientID] = stream
	return stream
}

func (s *EventBus) Unsubscribe(conversationID, clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if streams, ok := s.streams[conversationID]; ok {
		if stream, ok := streams[clientID]; ok {
			close(stream)
			delete(streams, clientID)
		}
	}
}

func (s *EventBus) UnsubscribeAll(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, streams := range s.streams {
		if stream, ok := streams[clientID]; ok {
			close(stream)
			delete(streams, clientID)
		}
	}
}

func (s *EventBus) Publish(event models.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for clientID, stream := range s.streams[event.ConversationID] {
		select {
		case stream <- event:
		default:
			log.Warn().
				Str("client", clientID).
				Str("action", event.Action).
				Msg("Subscriber stream is full, dropping event...")
		}
	}
}
