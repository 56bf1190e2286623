// Package track defines track identities and the persisted artwork record
// format shared by the resolver, the session tracker and the cache sweep.
package track

import "strings"

// Separator joins the sanitized identity fields into a composite cache key.
// It is also the field delimiter inside stored record values, so it must
// never survive inside an individual field.
const Separator = "|"

// Key namespace prefixes. The plain image record lives under the bare
// composite key; everything else gets its own prefix.
const (
	PrefixAnimated    = "cadenzaAMAnim"
	PrefixAppleMusic  = "cadenzaAM"
	PrefixLastFMLink  = "cadenzaLFM"
	PrefixSpotifyLink = "cadenzaSP"
)

// Identity names a track as reported by the session observer. Two identities
// are equal iff all three fields match after sanitization.
type Identity struct {
	Title  string
	Artist string
	Album  string
}

// Empty reports whether the identity carries no usable metadata.
func (id Identity) Empty() bool {
	return id.Title == "" && id.Artist == "" && id.Album == ""
}

// Key returns the composite cache key for the bare image namespace.
// Link and animated records prepend their namespace prefix to this key.
func (id Identity) Key() string {
	return sanitize(id.Title) + Separator + sanitize(id.Artist) + Separator + sanitize(id.Album)
}

// Equal compares two identities by their sanitized composite keys.
func (id Identity) Equal(other Identity) bool {
	return id.Key() == other.Key()
}

func sanitize(field string) string {
	return strings.ReplaceAll(field, Separator, "/")
}
