package artwork

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/domain/track"
	"github.com/jmorand/cadenza/internal/infra/cache"
	"github.com/jmorand/cadenza/internal/infra/providers"
)

// Resolver runs the artwork fallback chain for one track at a time.
// Resolution order:
// 1. Cached records (animated artwork first, then static)
// 2. Apple Music scraper (artwork + track link)
// 3. Last.fm (track link only)
// 4. Spotify (artwork + track link)
// 5. Imgur upload of the player's own thumbnail
//
// A source lower in the chain never overwrites what a higher one already
// filled in.
type Resolver struct {
	store    cache.Store
	scraper  providers.Searcher
	lastfm   providers.Searcher
	spotify  providers.Searcher
	uploader Uploader

	now func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the resolver's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver. Any of store, searchers and uploader may
// be nil; the corresponding stage is skipped.
func NewResolver(store cache.Store, scraper, lastfm, spotify providers.Searcher, uploader Uploader, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		scraper:  scraper,
		lastfm:   lastfm,
		spotify:  spotify,
		uploader: uploader,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs a full pass for the track: cached records first, then the
// providers for whatever is still missing. thumb supplies the player's own
// thumbnail bytes for the Imgur fallback and may be nil.
func (r *Resolver) Resolve(ctx context.Context, id track.Identity, thumb func() []byte) Resolution {
	var res Resolution
	var pl passLog
	key := id.Key()

	if r.store != nil {
		r.loadImage(key, &res, &pl)
		r.loadLink(track.PrefixAppleMusic+key, &res.AMLink, &pl.cacheHitAM, &pl.amExpired, &pl)
		r.loadLink(track.PrefixLastFMLink+key, &res.LFMLink, &pl.cacheHitLFM, &pl.lfmExpired, &pl)
		r.loadLink(track.PrefixSpotifyLink+key, &res.SPLink, &pl.cacheHitSP, &pl.spExpired, &pl)
	}

	r.fetch(ctx, id, key, thumb, &res, &pl)
	r.logPass(id, res, pl)
	return res
}

// ForceResolve discards every cached record for the track and runs the
// provider chain from scratch.
func (r *Resolver) ForceResolve(ctx context.Context, id track.Identity, thumb func() []byte) Resolution {
	var res Resolution
	var pl passLog
	key := id.Key()

	log.Info().Str("title", id.Title).Str("artist", id.Artist).Str("album", id.Album).
		Msg("Forced artwork refresh requested")

	if r.store != nil {
		for _, k := range []string{
			key,
			track.PrefixAnimated + key,
			track.PrefixAppleMusic + key,
			track.PrefixLastFMLink + key,
			track.PrefixSpotifyLink + key,
		} {
			if err := r.store.Delete(k); err != nil {
				log.Warn().Str("key", k).Err(err).Msg("Failed to delete cached record")
			}
		}
	}

	r.fetch(ctx, id, key, thumb, &res, &pl)
	r.logPass(id, res, pl)
	return res
}

// fetch runs the provider stages, each gated on what is already resolved.
func (r *Resolver) fetch(ctx context.Context, id track.Identity, key string, thumb func() []byte, res *Resolution, pl *passLog) {
	r.fetchAppleMusic(ctx, id, key, res, pl)
	r.fetchLastFM(ctx, id, key, res, pl)
	r.fetchSpotify(ctx, id, key, res, pl)
	r.fetchImgur(ctx, key, thumb, res, pl)
}

// loadImage reads the image record, preferring the animated namespace.
func (r *Resolver) loadImage(key string, res *Resolution, pl *passLog) {
	fullKey := track.PrefixAnimated + key
	animated := true
	value, err := r.store.Get(fullKey)
	if errors.Is(err, cache.ErrNotFound) {
		fullKey = key
		animated = false
		value, err = r.store.Get(fullKey)
	}
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			log.Warn().Str("key", key).Err(err).Msg("Cache read failed")
		}
		return
	}

	pl.cacheHitImage = true

	rec, err := track.ParseRecord(value)
	if err != nil {
		log.Warn().Str("key", fullKey).Err(err).Msg("Deleting unparseable image record")
		r.store.Delete(fullKey)
		pl.parseError = true
		return
	}

	if rec.Expired(r.now(), track.ExpiryForKey(fullKey)) {
		r.store.Delete(fullKey)
		pl.imageExpired = true
		res.Source = SourceCacheExpired
		return
	}

	res.Image = rec.URL
	res.Animated = animated
	if rec.Source == "" {
		res.Source = SourceCacheUnknown
	} else {
		res.Source = "DB, " + rec.Source
	}
	pl.cachedImageURL = rec.URL
}

// loadLink reads one link record into target, deleting it when expired or
// unparseable.
func (r *Resolver) loadLink(fullKey string, target *string, hit, expired *bool, pl *passLog) {
	value, err := r.store.Get(fullKey)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			log.Warn().Str("key", fullKey).Err(err).Msg("Cache read failed")
		}
		return
	}

	*hit = true

	rec, err := track.ParseRecord(value)
	if err != nil {
		log.Warn().Str("key", fullKey).Err(err).Msg("Deleting unparseable link record")
		r.store.Delete(fullKey)
		pl.parseError = true
		return
	}

	if rec.Expired(r.now(), track.StaticExpiry) {
		r.store.Delete(fullKey)
		*expired = true
		return
	}

	*target = rec.URL
}

// fetchAppleMusic runs the scraper unless both the image and the Apple
// Music link are already known.
func (r *Resolver) fetchAppleMusic(ctx context.Context, id track.Identity, key string, res *Resolution, pl *passLog) {
	if r.scraper == nil {
		return
	}
	if res.Image != "" && res.AMLink != "" {
		return
	}
	pl.scraperUsed = true

	result, err := r.scraper.Search(ctx, id.Title, id.Artist, id.Album)
	if err != nil {
		return
	}

	if result.ImageURL != "" && res.Image == "" {
		r.put(key, track.NewRecord(r.now(), result.ImageURL, SourceAppleMusic), pl)
		res.Image = result.ImageURL
		res.Source = SourceAppleMusic
	}
	if result.URL != "" {
		r.put(track.PrefixAppleMusic+key, track.NewRecord(r.now(), result.URL, ""), nil)
		res.AMLink = result.URL
		pl.amAvailable = true
	}
}

// fetchLastFM fills in the Last.fm link if it is still missing.
func (r *Resolver) fetchLastFM(ctx context.Context, id track.Identity, key string, res *Resolution, pl *passLog) {
	if r.lastfm == nil || res.LFMLink != "" {
		return
	}
	pl.lastfmUsed = true

	result, err := r.lastfm.Search(ctx, id.Title, id.Artist, id.Album)
	if err != nil || result.URL == "" {
		return
	}

	r.put(track.PrefixLastFMLink+key, track.NewRecord(r.now(), result.URL, ""), nil)
	res.LFMLink = result.URL
	pl.lfmAvailable = true
}

// fetchSpotify runs only while something is still missing from the full
// image + Last.fm link + Apple Music link set.
func (r *Resolver) fetchSpotify(ctx context.Context, id track.Identity, key string, res *Resolution, pl *passLog) {
	if r.spotify == nil {
		return
	}
	if res.Image != "" && res.LFMLink != "" && res.AMLink != "" {
		return
	}
	pl.spotifyUsed = true

	result, err := r.spotify.Search(ctx, id.Title, id.Artist, id.Album)
	if err != nil {
		return
	}

	if result.ImageURL != "" && res.Image == "" {
		r.put(key, track.NewRecord(r.now(), result.ImageURL, SourceSpotify), pl)
		res.Image = result.ImageURL
		res.Source = SourceSpotify
	}
	if result.URL != "" {
		r.put(track.PrefixSpotifyLink+key, track.NewRecord(r.now(), result.URL, ""), nil)
		res.SPLink = result.URL
		pl.spAvailable = true
	}
}

// fetchImgur is the terminal fallback: upload the player's own thumbnail.
// Whatever happens, the image field is non-empty afterwards; DefaultImage
// marks total failure and is deliberately never cached.
func (r *Resolver) fetchImgur(ctx context.Context, key string, thumb func() []byte, res *Resolution, pl *passLog) {
	if r.uploader == nil || res.Image != "" {
		return
	}

	var data []byte
	if thumb != nil {
		data = thumb()
	}

	url := DefaultImage
	if len(data) > 0 {
		uploaded, err := r.uploader.Upload(ctx, data)
		if err != nil {
			log.Warn().Err(err).Msg("Imgur thumbnail upload failed")
		} else if uploaded != "" {
			url = uploaded
		}
	}

	if url != DefaultImage {
		pl.imgurUsed = true
		r.put(key, track.NewRecord(r.now(), url, SourceImgur), pl)
		res.Image = url
		res.Source = SourceImgur
		return
	}

	res.Image = DefaultImage
	res.Source = SourceNone
}

// RecordAnimated stores a freshly generated animated artwork URL and marks
// it as the track's image.
func (r *Resolver) RecordAnimated(id track.Identity, url string) {
	if r.store == nil || url == "" {
		return
	}
	key := track.PrefixAnimated + id.Key()
	rec := track.NewRecord(r.now(), url, SourceAnimated)
	if err := r.store.Put(key, rec.Encode()); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Failed to store animated record")
	}
}

func (r *Resolver) put(key string, rec track.Record, pl *passLog) {
	if r.store == nil {
		return
	}
	if err := r.store.Put(key, rec.Encode()); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Cache write failed")
		return
	}
	if pl != nil {
		pl.cacheWritten = true
	}
}

// logPass emits the whole pass as one structured event, tagged with a
// unique pass ID so interleaved passes stay distinguishable.
func (r *Resolver) logPass(id track.Identity, res Resolution, pl passLog) {
	event := log.Info().
		Str("passID", uuid.NewString()).
		Str("title", id.Title).
		Str("artist", id.Artist)

	addFlags(event, map[string]bool{
		"cacheHitImage": pl.cacheHitImage,
		"cacheHitAM":    pl.cacheHitAM,
		"cacheHitLFM":   pl.cacheHitLFM,
		"cacheHitSP":    pl.cacheHitSP,
		"imageExpired":  pl.imageExpired,
		"amExpired":     pl.amExpired,
		"lfmExpired":    pl.lfmExpired,
		"spExpired":     pl.spExpired,
		"parseError":    pl.parseError,
		"scraperUsed":   pl.scraperUsed,
		"lastfmUsed":    pl.lastfmUsed,
		"spotifyUsed":   pl.spotifyUsed,
		"imgurUsed":     pl.imgurUsed,
		"cacheWritten":  pl.cacheWritten,
	})

	event.
		Str("cachedURL", pl.cachedImageURL).
		Str("finalURL", res.Image).
		Str("source", res.Source).
		Msg("Artwork pass complete")
}

func addFlags(event *zerolog.Event, flags map[string]bool) {
	for name, value := range flags {
		if value {
			event.Bool(name, true)
		}
	}
}
