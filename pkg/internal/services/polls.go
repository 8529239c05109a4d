package services

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/converse-im/converse/pkg/models"
)

const (
	pollMinOptions = 2
	pollMaxOptions = 5
)

// PollEngine owns poll state and vote aggregation. Every mutation holds the
// poll's own lock for the whole read-modify-write, which is what upholds
// the one-vote-per-user rule under concurrent voters.
type PollEngine struct {
	mu    sync.RWMutex
	polls map[string]*pollEntry

	bus *EventBus
}

type pollEntry struct {
	mu   sync.Mutex
	poll *models.Poll
}

func NewPollEngine(bus *EventBus) *PollEngine {
	return &PollEngine{
		polls: make(map[string]*pollEntry),
		bus:   bus,
	}
}

func (s *PollEngine) entry(pollID string) (*pollEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.polls[pollID]; ok {
		return entry, nil
	}
	return nil, fmt.Errorf("poll %s: %w", pollID, models.ErrNotFound)
}

func (s *PollEngine) withPoll(pollID string, fn func(*models.Poll) error) (models.Poll, error) {
	entry, err := s.entry(pollID)
	if err != nil {
		return models.Poll{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := fn(entry.poll); err != nil {
		return models.Poll{}, err
	}
	return copyPoll(entry.poll), nil
}

// NewPoll registers a poll with its initial options. Creation enforces the
// 2..5 bound; options added later are exempt.
func (s *PollEngine) NewPoll(conversationID, creatorID, question string, options []string) (models.Poll, error) {
	if len(options) < pollMinOptions || len(options) > pollMaxOptions {
		return models.Poll{}, fmt.Errorf("polls take %d to %d options, got %d: %w",
			pollMinOptions, pollMaxOptions, len(options), models.ErrInvalidPoll)
	}
	if len(question) == 0 {
		return models.Poll{}, fmt.Errorf("poll question is required: %w", models.ErrInvalidPoll)
	}

	poll := &models.Poll{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		CreatorID:      creatorID,
		Question:       question,
		Options: lo.Map(options, func(text string, _ int) models.PollOption {
			return models.PollOption{ID: uuid.NewString(), Text: text, Voters: []string{}}
		}),
	}

	s.mu.Lock()
	s.polls[poll.ID] = &pollEntry{poll: poll}
	s.mu.Unlock()

	return copyPoll(poll), nil
}

// BindMessage links the poll to the log entry that carries it. Used by the
// facade once the poll message has been appended.
func (s *PollEngine) BindMessage(pollID, messageID string) error {
	_, err := s.withPoll(pollID, func(poll *models.Poll) error {
		poll.MessageID = messageID
		return nil
	})
	return err
}

// DiscardPoll drops a poll whose carrier message never made it into the
// log, so a failed create leaves nothing behind.
func (s *PollEngine) DiscardPoll(pollID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.polls, pollID)
}

// VotePoll applies single-choice semantics: voting another option moves the
// vote, voting the held option retracts it.
func (s *PollEngine) VotePoll(pollID, userID, optionID string) (models.Poll, error) {
	out, err := s.withPoll(pollID, func(poll *models.Poll) error {
		if poll.HasEnded {
			return fmt.Errorf("poll %s: %w", pollID, models.ErrPollEnded)
		}

		target := -1
		for i, option := range poll.Options {
			if option.ID == optionID {
				target = i
				break
			}
		}
		if target < 0 {
			return fmt.Errorf("option %s: %w", optionID, models.ErrInvalidPoll)
		}

		retract := lo.Contains(poll.Options[target].Voters, userID)
		for i := range poll.Options {
			poll.Options[i].Voters = lo.Without(poll.Options[i].Voters, userID)
		}
		if !retract {
			poll.Options[target].Voters = append(poll.Options[target].Voters, userID)
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	s.bus.Publish(models.ChangeEvent{
		Action:         models.EventPollVote,
		ConversationID: out.ConversationID,
		Payload:        out,
	})
	return out, nil
}

// AddPollOption appends a zero-vote option. There is no hard upper bound
// after creation; past the soft cap it only logs a warning.
func (s *PollEngine) AddPollOption(pollID, text string) (models.Poll, error) {
	out, err := s.withPoll(pollID, func(poll *models.Poll) error {
		if poll.HasEnded {
			return fmt.Errorf("poll %s: %w", pollID, models.ErrPollEnded)
		}
		if len(text) == 0 {
			return fmt.Errorf("option text is required: %w", models.ErrInvalidPoll)
		}
		poll.Options = append(poll.Options, models.PollOption{
			ID:     uuid.NewString(),
			Text:   text,
			Voters: []string{},
		})
		if softCap := viper.GetInt("polls.option_soft_cap"); len(poll.Options) > softCap {
			log.Warn().
				Str("poll", poll.ID).
				Int("options", len(poll.Options)).
				Int("soft_cap", softCap).
				Msg("Poll grew past the option soft cap...")
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	s.bus.Publish(models.ChangeEvent{
		Action:         models.EventPollOption,
		ConversationID: out.ConversationID,
		Payload:        out,
	})
	return out, nil
}

// EndPoll marks the poll terminal; repeated calls are no-ops.
func (s *PollEngine) EndPoll(pollID string) (models.Poll, error) {
	var changed bool
	out, err := s.withPoll(pollID, func(poll *models.Poll) error {
		changed = !poll.HasEnded
		poll.HasEnded = true
		return nil
	})
	if err != nil {
		return out, err
	}

	if changed {
		s.bus.Publish(models.ChangeEvent{
			Action:         models.EventPollEnd,
			ConversationID: out.ConversationID,
			Payload:        out,
		})
	}
	return out, nil
}

func (s *PollEngine) GetPoll(pollID string) (models.Poll, error) {
	return s.withPoll(pollID, func(*models.Poll) error { return nil })
}

// PollPercentages reports each option's share of the vote as an exact
// float; rounding is the presentation layer's business. With no votes every
// option reports zero.
func (s *PollEngine) PollPercentages(pollID string) (map[string]float64, error) {
	poll, err := s.GetPoll(pollID)
	if err != nil {
		return nil, err
	}

	total := poll.TotalVotes()
	shares := make(map[string]float64, len(poll.Options))
	for _, option := range poll.Options {
		if total == 0 {
			shares[option.ID] = 0
			continue
		}
		shares[option.ID] = float64(len(option.Voters)) / float64(total) * 100
	}
	return shares, nil
}

func copyPoll(poll *models.Poll) models.Poll {
	out := *poll
	out.Options = lo.Map(poll.Options, func(option models.PollOption, _ int) models.PollOption {
		option.Voters = append([]string{}, option.Voters...)
		return option
	})
	return out
}
