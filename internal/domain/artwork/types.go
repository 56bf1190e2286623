// Package artwork resolves track artwork and provider links through a
// layered fallback: cached records first, then the Apple Music scraper,
// Last.fm, Spotify, and finally an Imgur upload of the player's own
// thumbnail.
package artwork

import "context"

// DefaultImage is the sentinel used when no artwork could be resolved
// from any source. It is never cached.
const DefaultImage = "default"

// Source labels recorded alongside resolved images.
const (
	SourceAppleMusic   = "Apple Music"
	SourceAnimated     = "Apple Music (Anim)"
	SourceSpotify      = "Spotify"
	SourceImgur        = "Imgur"
	SourceNone         = "none"
	SourceCacheExpired = "DB - expired"
	SourceCacheUnknown = "DB - unknown"
)

// Resolution is the outcome of one artwork pass for a track.
type Resolution struct {
	// Image is the artwork URL, or DefaultImage when nothing was found.
	Image string
	// Source says where Image came from. Cache hits are prefixed "DB".
	Source string

	// Provider permalinks for the track, empty when unknown.
	AMLink  string
	LFMLink string
	SPLink  string

	// Animated is set when Image is a cached animated artwork, meaning no
	// further animation processing is needed.
	Animated bool
}

// Uploader pushes raw image bytes to a public host.
type Uploader interface {
	Upload(ctx context.Context, image []byte) (string, error)
}

// passLog accumulates what happened during one resolution pass so it can
// be emitted as a single structured event.
type passLog struct {
	cacheHitImage  bool
	cacheHitAM     bool
	cacheHitLFM    bool
	cacheHitSP     bool
	imageExpired   bool
	amExpired      bool
	lfmExpired     bool
	spExpired      bool
	parseError     bool
	scraperUsed    bool
	lastfmUsed     bool
	spotifyUsed    bool
	imgurUsed      bool
	cacheWritten   bool
	amAvailable    bool
	lfmAvailable   bool
	spAvailable    bool
	cachedImageURL string
}
