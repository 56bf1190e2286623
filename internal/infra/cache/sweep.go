package cache

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/domain/track"
)

// reserved lists the configuration keys that sweeps and purges never touch.
var reserved = map[string]bool{
	RegionKey:        true,
	PresenceStateKey: true,
	LastFMStateKey:   true,
	SpotifyTokenKey:  true,
}

// SweepResult summarizes one maintenance pass over the store.
type SweepResult struct {
	Deleted   int
	Malformed int
}

// Sweep walks the whole store once and removes every record that is
// malformed or past its namespace expiry. It runs at startup, not
// per-request; readers handle per-key expiry on their own.
func Sweep(s Store, now time.Time) (SweepResult, error) {
	var res SweepResult
	var doomed []string

	err := s.Scan(func(key, value string) bool {
		if reserved[key] {
			return true
		}

		rec, err := track.ParseRecord(value)
		if err != nil {
			res.Malformed++
			doomed = append(doomed, key)
			return true
		}

		if rec.Expired(now, track.ExpiryForKey(key)) {
			doomed = append(doomed, key)
		}
		return true
	})
	if err != nil {
		return res, err
	}

	if len(doomed) > 0 {
		if err := s.BatchDelete(doomed); err != nil {
			return res, err
		}
	}
	res.Deleted = len(doomed)

	log.Info().
		Int("deleted", res.Deleted).
		Int("malformed", res.Malformed).
		Msg("Record sweep complete")
	return res, nil
}

// Purge removes every entry except the reserved configuration keys.
// It backs the user-facing "clear cache" action.
func Purge(s Store) (int, error) {
	var doomed []string
	err := s.Scan(func(key, _ string) bool {
		if !reserved[key] {
			doomed = append(doomed, key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	if len(doomed) > 0 {
		if err := s.BatchDelete(doomed); err != nil {
			return 0, err
		}
	}

	log.Info().Int("deleted", len(doomed)).Msg("Record cache purged")
	return len(doomed), nil
}
