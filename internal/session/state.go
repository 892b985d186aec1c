package session

import (
	"time"

	"github.com/google/uuid"
)

// State is a step of a single voice session.
type State int

const (
	Idle State = iota
	Joining
	Playing
	Leaving
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Playing:
		return "playing"
	case Leaving:
		return "leaving"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition is reported to the orchestrator's observer on every state change.
type Transition struct {
	SessionID uuid.UUID
	GuildID   string
	ChannelID string
	From      State
	To        State
	Err       error
}

// Session is a snapshot of one in-flight voice session.
type Session struct {
	ID        uuid.UUID `json:"id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
}
