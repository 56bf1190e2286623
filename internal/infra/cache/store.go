// Package cache provides the persistent key-value store backing artwork and
// link records. The store itself has no TTL concept; expiry is encoded in
// the stored value's timestamp prefix and enforced by readers.
package cache

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Reserved configuration keys that survive sweeps and purges.
const (
	RegionKey        = "config:region"
	PresenceStateKey = "config:discord"
	LastFMStateKey   = "config:lastfm"
	SpotifyTokenKey  = "config:spotify"
)

// Store is a durable ordered string-to-string map. All methods are safe for
// concurrent use. A nil Store is handled by callers as "caching disabled".
type Store interface {
	// Get returns the stored value or ErrNotFound. It does not interpret
	// the content.
	Get(key string) (string, error)

	// Put upserts a value.
	Put(key, value string) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error

	// Scan iterates all entries in key order until fn returns false.
	Scan(fn func(key, value string) bool) error

	// BatchDelete removes all given keys in one transaction.
	BatchDelete(keys []string) error

	// Close releases the underlying resources.
	Close() error
}
