// Package spotify implements a client-credentials Spotify Web API client
// for track search. Tokens are cached and refreshed lazily; an optional
// background loop keeps the token warm between searches.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/domain/match"
	"github.com/jmorand/cadenza/internal/infra/providers"
)

const (
	defaultTokenURL  = "https://accounts.spotify.com/api/token"
	defaultSearchURL = "https://api.spotify.com/v1/search"

	// tokenValidity is how long Spotify access tokens live; refreshes are
	// slightly ahead of expiry.
	tokenValidity   = 3600 * time.Second
	refreshInterval = 3550 * time.Second

	// matchThreshold is the minimum per-field similarity for a search
	// result to be trusted. Title, artist and album must all clear it.
	matchThreshold = 50.0

	// artworkSize is the album image edge length to pick from the result.
	artworkSize = 640
)

// TokenStore persists the access token across restarts as "token|epoch".
// The cache store satisfies it; a nil store keeps the token in memory only.
type TokenStore interface {
	Get(key string) (string, error)
	Put(key, value string) error
}

// Client is a Spotify Web API client using the client-credentials flow.
type Client struct {
	clientID     string
	clientSecret string
	client       *http.Client
	tokenURL     string
	searchURL    string
	store        TokenStore
	storeKey     string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	loaded      bool
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides the token and search URLs, for tests.
func WithEndpoints(tokenURL, searchURL string) Option {
	return func(c *Client) {
		c.tokenURL = tokenURL
		c.searchURL = searchURL
	}
}

// WithTokenStore reuses a persisted access token under the given key, so a
// restart within the token's lifetime skips the first token round trip.
func WithTokenStore(store TokenStore, key string) Option {
	return func(c *Client) {
		c.store = store
		c.storeKey = key
	}
}

// New creates a Spotify client. No network call is made until the first
// search or an explicit Start.
func New(clientID, clientSecret string, client *http.Client, opts ...Option) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
		tokenURL:     defaultTokenURL,
		searchURL:    defaultSearchURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements providers.Searcher.
func (c *Client) Name() string {
	return "spotify"
}

// Start runs a background refresh loop until ctx is cancelled, so searches
// rarely pay the token round trip.
func (c *Client) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.token(ctx); err != nil {
					log.Warn().Err(err).Msg("Spotify token refresh failed")
				}
			}
		}
	}()
}

// token returns a valid access token, requesting a new one if the cached
// token is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		c.loaded = true
		c.loadPersistedLocked()
	}
	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	validity := tokenValidity
	if parsed.ExpiresIn > 0 {
		validity = time.Duration(parsed.ExpiresIn) * time.Second
	}

	c.accessToken = parsed.AccessToken
	// Refresh a minute early rather than racing expiry.
	c.expiresAt = time.Now().Add(validity - time.Minute)
	c.persistLocked()
	log.Debug().Msg("Obtained new Spotify access token")
	return c.accessToken, nil
}

// loadPersistedLocked restores a "token|epoch" record, ignoring anything
// expired or malformed. Caller holds the lock.
func (c *Client) loadPersistedLocked() {
	if c.store == nil {
		return
	}

	value, err := c.store.Get(c.storeKey)
	if err != nil {
		return
	}
	token, epochStr, ok := strings.Cut(value, "|")
	if !ok || token == "" {
		return
	}
	epoch, err := strconv.ParseInt(epochStr, 10, 64)
	if err != nil || !time.Now().Before(time.Unix(epoch, 0)) {
		return
	}

	c.accessToken = token
	c.expiresAt = time.Unix(epoch, 0)
	log.Debug().Msg("Reusing persisted Spotify access token")
}

func (c *Client) persistLocked() {
	if c.store == nil {
		return
	}
	value := fmt.Sprintf("%s|%d", c.accessToken, c.expiresAt.Unix())
	if err := c.store.Put(c.storeKey, value); err != nil {
		log.Warn().Err(err).Msg("Failed to persist Spotify access token")
	}
}

type searchResponse struct {
	Tracks struct {
		Items []struct {
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Name   string `json:"name"`
				Images []struct {
					URL    string `json:"url"`
					Width  int    `json:"width"`
					Height int    `json:"height"`
				} `json:"images"`
			} `json:"album"`
			ExternalURLs struct {
				Spotify string `json:"spotify"`
			} `json:"external_urls"`
		} `json:"items"`
	} `json:"tracks"`
}

// Search looks the track up and returns its permalink plus the album's
// 640x640 artwork. The single result must clear the similarity gate on
// title, artist and album.
func (c *Client) Search(ctx context.Context, title, artist, album string) (providers.Result, error) {
	token, err := c.token(ctx)
	if err != nil {
		return providers.Result{}, err
	}

	var query strings.Builder
	if title != "" {
		query.WriteString(title + " ")
	}
	if artist != "" {
		query.WriteString("artist:" + artist + " ")
	}
	if album != "" {
		query.WriteString("album:" + album)
	}

	params := url.Values{}
	params.Set("q", strings.TrimSpace(query.String()))
	params.Set("type", "track")
	params.Set("limit", "1")

	log.Debug().Str("query", params.Get("q")).Msg("Performing Spotify search")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return providers.Result{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return providers.Result{}, fmt.Errorf("perform search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.Result{}, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return providers.Result{}, fmt.Errorf("decode search response: %w", err)
	}

	if len(parsed.Tracks.Items) == 0 {
		return providers.Result{}, nil
	}

	item := parsed.Tracks.Items[0]
	foundArtist := ""
	if len(item.Artists) > 0 {
		foundArtist = item.Artists[0].Name
	}

	if match.FieldSimilarity(item.Name, title) < matchThreshold ||
		match.FieldSimilarity(foundArtist, artist) < matchThreshold ||
		match.FieldSimilarity(match.CleanAlbum(item.Album.Name), match.CleanAlbum(album)) < matchThreshold {
		return providers.Result{}, nil
	}

	var out providers.Result
	out.URL = item.ExternalURLs.Spotify
	for _, image := range item.Album.Images {
		if image.Width == artworkSize && image.Height == artworkSize {
			out.ImageURL = image.URL
			break
		}
	}
	return out, nil
}
