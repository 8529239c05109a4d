package models

// Poll is owned one-to-one by a message of kind poll. Options are
// append-only; a voter holds at most one active vote across all options.
type Poll struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	MessageID      string       `json:"message_id"`
	CreatorID      string       `json:"creator_id"`
	Question       string       `json:"question"`
	Options        []PollOption `json:"options"`
	HasEnded       bool         `json:"has_ended"`
}

type PollOption struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Voters []string `json:"voters"`
}

// TotalVotes sums option voter counts; under the single-choice rule this
// equals the number of distinct voters.
func (v Poll) TotalVotes() int {
	var count int
	for _, option := range v.Options {
		count += len(option.Voters)
	}
	return count
}
