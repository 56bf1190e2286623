package session

import "time"

// Timeline anchors the current track to the wall clock. Start and End are
// unix seconds recomputed from the player's reported position every poll,
// so elapsed time keeps advancing between polls without drift. A zero
// Start means no track.
type Timeline struct {
	Start    int64
	End      int64
	Duration int64
	Playing  bool
	// PausedAt is the unix second playback paused at, zero while playing.
	PausedAt int64
}

// Update re-anchors the timeline from the player's reported position and
// duration.
func (tl *Timeline) Update(now time.Time, position, duration time.Duration) {
	tl.Start = now.Unix() - int64(position.Seconds())
	tl.Duration = int64(duration.Seconds())
	tl.End = tl.Start + tl.Duration
}

// Play marks the timeline as advancing again.
func (tl *Timeline) Play() {
	tl.Playing = true
	tl.PausedAt = 0
}

// Pause freezes the timeline. The first pause timestamp is kept across
// repeated pause polls so pause duration measures from the original stop.
func (tl *Timeline) Pause(now time.Time) {
	tl.Playing = false
	if tl.PausedAt == 0 {
		tl.PausedAt = now.Unix()
	}
}

// Elapsed returns seconds of playback so far, clamped to the track
// duration. While paused the pause timestamp is the reference instead of
// the clock.
func (tl *Timeline) Elapsed(now time.Time) int64 {
	if tl.Start == 0 {
		return 0
	}

	ref := now.Unix()
	if !tl.Playing && tl.PausedAt != 0 {
		ref = tl.PausedAt
	}
	if ref <= tl.Start {
		return 0
	}

	elapsed := ref - tl.Start
	if tl.Duration > 0 && elapsed > tl.Duration {
		elapsed = tl.Duration
	}
	return elapsed
}

// PausedFor returns how long playback has been continuously paused.
func (tl *Timeline) PausedFor(now time.Time) time.Duration {
	if tl.Playing || tl.PausedAt == 0 {
		return 0
	}
	if paused := now.Unix() - tl.PausedAt; paused > 0 {
		return time.Duration(paused) * time.Second
	}
	return 0
}

// Reset clears the timeline.
func (tl *Timeline) Reset() {
	*tl = Timeline{}
}
