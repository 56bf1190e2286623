package session

import (
	"context"
	"time"
)

// PlaybackStatus is the player's transport state at poll time.
type PlaybackStatus int

const (
	StatusStopped PlaybackStatus = iota
	StatusPlaying
	StatusPaused
)

func (s PlaybackStatus) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Observation is one snapshot of the player's state. Thumbnail is a lazy
// fetch of the raw embedded artwork; it may be nil when the player exposes
// none.
type Observation struct {
	Title  string
	Artist string
	Album  string

	Status   PlaybackStatus
	Position time.Duration
	Duration time.Duration

	Thumbnail func() []byte
}

// Observer reports the player's current session. The second return is
// false when no session is active.
type Observer interface {
	Poll(ctx context.Context) (Observation, bool, error)
}
