// Package providers contains the external artwork and link sources: the
// Apple Music web scraper, the Last.fm API, the Spotify API and the Imgur
// uploader. All searchers share the same resilient HTTP client and are
// wrapped in a circuit breaker so one flaky upstream cannot stall the
// per-track resolution pass.
package providers

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BrowserUserAgent is sent on scraping requests. Apple Music serves a
// reduced page to unknown agents.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const (
	requestTimeout = 10 * time.Second
	connectTimeout = 5 * time.Second
)

// Result is what a track search yields: a permalink to the track on the
// provider, and optionally a direct artwork image URL. Either field may be
// empty when the provider has nothing usable.
type Result struct {
	URL      string
	ImageURL string
}

// Empty reports whether the search produced nothing at all.
func (r Result) Empty() bool {
	return r.URL == "" && r.ImageURL == ""
}

// Searcher looks up a track on one provider.
type Searcher interface {
	// Name identifies the provider in logs and breaker names.
	Name() string

	// Search looks the track up. A no-match outcome is an empty Result
	// with a nil error; errors are reserved for transport failures.
	Search(ctx context.Context, title, artist, album string) (Result, error)
}

// NewHTTPClient builds the retrying HTTP client shared by all providers.
func NewHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = requestTimeout
	rc.HTTPClient.Transport = &http.Transport{
		DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
	}
	return rc.StandardClient()
}

type breakerSearcher struct {
	inner   Searcher
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps a searcher in a circuit breaker. While the breaker is
// open, searches fail fast with an empty result instead of hitting the
// upstream; the resolver treats that the same as a miss and falls through
// to the next source.
func WithBreaker(inner Searcher) Searcher {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &breakerSearcher{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *breakerSearcher) Name() string {
	return b.inner.Name()
}

func (b *breakerSearcher) Search(ctx context.Context, title, artist, album string) (Result, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Search(ctx, title, artist, album)
	})
	if err != nil {
		log.Warn().Str("provider", b.inner.Name()).Err(err).Msg("Provider search failed")
		return Result{}, err
	}
	return out.(Result), nil
}
