package domain

import "time"

// Pub/sub channels and the durable stream the engine writes to.
const (
	ChannelRounds   = "rounds"
	ChannelBets     = "bets"
	ChannelJackpots = "jackpots"
	StreamRounds    = "events:rounds"
)

type EventType string

const (
	EventMarketCreated    EventType = "market_created"
	EventRoundOpened      EventType = "round_opened"
	EventLockScheduled    EventType = "lock_scheduled"
	EventRoundLocked      EventType = "round_locked"
	EventOutcomeCommitted EventType = "outcome_committed"
	EventOutcomeRevealed  EventType = "outcome_revealed"
	EventRoundSettled     EventType = "round_settled"
	EventBetPlaced        EventType = "bet_placed"
	EventBetSettled       EventType = "bet_settled"
	EventCommunityJoined  EventType = "community_joined"
	EventCommunitySettled EventType = "community_settled"
	EventJackpotFunded    EventType = "jackpot_funded"
	EventJackpotClaimed   EventType = "jackpot_claimed"
	EventStreakUpdated    EventType = "streak_updated"
)

// Event is a lifecycle notification published after an operation commits.
type Event struct {
	Type     EventType `json:"type"`
	MarketID string    `json:"market_id"`
	Round    uint64    `json:"round,omitempty"`
	User     string    `json:"user,omitempty"`
	Status   string    `json:"status,omitempty"`
	Outcome  *Outcome  `json:"outcome,omitempty"`
	Amount   uint64    `json:"amount,omitempty"`
	Won      *bool     `json:"won,omitempty"`
	At       time.Time `json:"at"`
}

// Channel is the pub/sub channel an event is fanned out on.
func (e Event) Channel() string {
	switch e.Type {
	case EventBetPlaced, EventBetSettled, EventCommunityJoined, EventCommunitySettled, EventStreakUpdated:
		return ChannelBets
	case EventJackpotFunded, EventJackpotClaimed:
		return ChannelJackpots
	default:
		return ChannelRounds
	}
}
