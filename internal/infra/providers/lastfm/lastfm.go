// Package lastfm implements the Last.fm web service client used for track
// link lookup, now-playing updates and scrobbling. Write calls are signed
// with the shared-secret scheme the service requires.
package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/domain/match"
	"github.com/jmorand/cadenza/internal/infra/providers"
)

const apiRoot = "https://ws.audioscrobbler.com/2.0/"

// searchLimit caps how many results track.search returns; only the first
// is ever considered.
const searchLimit = 5

// matchThreshold is the minimum per-field similarity for a search result
// to be trusted.
const matchThreshold = 50.0

// Client talks to the Last.fm API. SessionKey may be empty, in which case
// the write operations (now playing, scrobble) report themselves disabled.
type Client struct {
	apiKey     string
	secret     string
	sessionKey string
	baseURL    string
	client     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// New creates a Last.fm client.
func New(apiKey, secret, sessionKey string, client *http.Client, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		secret:     secret,
		sessionKey: sessionKey,
		baseURL:    apiRoot,
		client:     client,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether write operations can run.
func (c *Client) Enabled() bool {
	return c.apiKey != "" && c.secret != "" && c.sessionKey != ""
}

// Name implements providers.Searcher.
func (c *Client) Name() string {
	return "lastfm"
}

type searchResponse struct {
	Results struct {
		TrackMatches struct {
			Track []struct {
				Name   string `json:"name"`
				Artist string `json:"artist"`
				URL    string `json:"url"`
			} `json:"track"`
		} `json:"trackmatches"`
	} `json:"results"`
}

// Search looks the track up via track.search and returns its permalink.
// Last.fm never supplies usable artwork, so ImageURL is always empty. Only
// the top result is considered; it must clear the similarity gate on both
// title and artist.
func (c *Client) Search(ctx context.Context, title, artist, album string) (providers.Result, error) {
	query := url.Values{}
	query.Set("method", "track.search")
	query.Set("track", title)
	query.Set("artist", artist)
	query.Set("limit", strconv.Itoa(searchLimit))
	query.Set("format", "json")
	query.Set("api_key", c.apiKey)

	log.Debug().Str("title", title).Str("artist", artist).Msg("Performing Last.fm search")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return providers.Result{}, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return providers.Result{}, fmt.Errorf("perform search: %w", err)
	}
	defer resp.Body.Close()

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return providers.Result{}, fmt.Errorf("decode search response: %w", err)
	}

	tracks := parsed.Results.TrackMatches.Track
	if len(tracks) == 0 {
		return providers.Result{}, nil
	}

	top := tracks[0]
	if match.FieldSimilarity(top.Name, title) < matchThreshold ||
		match.FieldSimilarity(top.Artist, artist) < matchThreshold {
		return providers.Result{}, nil
	}

	if top.URL == "" {
		log.Warn().Str("title", top.Name).Str("artist", top.Artist).
			Msg("Last.fm result matched but has no URL")
		return providers.Result{}, nil
	}

	return providers.Result{URL: top.URL}, nil
}

// UpdateNowPlaying sets the user's now-playing track. Duration is the
// track length in seconds.
func (c *Client) UpdateNowPlaying(ctx context.Context, title, artist, album string, duration int64) error {
	if !c.Enabled() {
		return fmt.Errorf("lastfm: no session key")
	}

	params := map[string]string{
		"method":   "track.updateNowPlaying",
		"api_key":  c.apiKey,
		"artist":   artist,
		"track":    title,
		"album":    match.CleanAlbum(album),
		"duration": strconv.FormatInt(duration, 10),
		"sk":       c.sessionKey,
	}

	log.Debug().Str("title", title).Str("artist", artist).Int64("duration", duration).
		Msg("Updating Last.fm now playing")

	return c.signedPost(ctx, params)
}

// Scrobble records a finished listen. Start is the unix timestamp the
// track started playing.
func (c *Client) Scrobble(ctx context.Context, title, artist, album string, start int64) error {
	if !c.Enabled() {
		return fmt.Errorf("lastfm: no session key")
	}

	params := map[string]string{
		"method":    "track.scrobble",
		"api_key":   c.apiKey,
		"artist":    artist,
		"track":     title,
		"album":     match.CleanAlbum(album),
		"timestamp": strconv.FormatInt(start, 10),
		"sk":        c.sessionKey,
	}

	log.Debug().Str("title", title).Str("artist", artist).Int64("start", start).
		Msg("Scrobbling track")

	return c.signedPost(ctx, params)
}

// signedPost signs params, posts them as a form, and checks the XML status
// attribute in the response.
func (c *Client) signedPost(ctx context.Context, params map[string]string) error {
	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	form.Set("api_sig", c.sign(params))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if !strings.Contains(string(body), `lfm status="ok"`) {
		return fmt.Errorf("lastfm rejected %s: %s", params["method"], strings.TrimSpace(string(body)))
	}
	return nil
}

// sign computes the api_sig: all params concatenated as key+value in key
// order, then the shared secret, hashed with MD5.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(key)
		sb.WriteString(params[key])
	}
	sb.WriteString(c.secret)

	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
