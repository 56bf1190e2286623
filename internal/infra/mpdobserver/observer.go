// Package mpdobserver adapts an MPD server into the session observer
// contract, with reconnection on dropped control connections.
package mpdobserver

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/domain/session"
)

// Observer polls an MPD server and maps its status and current song onto
// session observations.
type Observer struct {
	mu       sync.Mutex
	client   *mpd.Client
	host     string
	port     int
	password string
}

// New creates an observer for the given MPD server. The connection is
// established lazily on the first poll.
func New(host string, port int, password string) *Observer {
	return &Observer{
		host:     host,
		port:     port,
		password: password,
	}
}

// Connect establishes the control connection.
func (o *Observer) Connect() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connectLocked()
}

func (o *Observer) connectLocked() error {
	addr := fmt.Sprintf("%s:%d", o.host, o.port)
	log.Info().Str("addr", addr).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to mpd: %w", err)
	}

	if o.password != "" {
		if err := client.Command("password %s", o.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("mpd authentication: %w", err)
		}
	}

	o.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

func (o *Observer) ensureConnected() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.client == nil {
		return o.connectLocked()
	}
	if err := o.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting")
		o.client.Close()
		o.client = nil
		return o.connectLocked()
	}
	return nil
}

// Close shuts the control connection down.
func (o *Observer) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.client != nil {
		err := o.client.Close()
		o.client = nil
		return err
	}
	return nil
}

// Poll implements session.Observer. A stopped player counts as no active
// session.
func (o *Observer) Poll(ctx context.Context) (session.Observation, bool, error) {
	if err := ctx.Err(); err != nil {
		return session.Observation{}, false, err
	}
	if err := o.ensureConnected(); err != nil {
		return session.Observation{}, false, err
	}

	o.mu.Lock()
	status, err := o.client.Status()
	if err != nil {
		o.mu.Unlock()
		return session.Observation{}, false, err
	}
	song, err := o.client.CurrentSong()
	o.mu.Unlock()
	if err != nil {
		return session.Observation{}, false, err
	}

	obs, active := observe(status, song)
	if !active {
		return session.Observation{}, false, nil
	}

	if uri := song["file"]; uri != "" {
		obs.Thumbnail = func() []byte { return o.embeddedArt(uri) }
	}
	return obs, true, nil
}

// observe maps MPD status and song attributes onto an observation.
func observe(status, song mpd.Attrs) (session.Observation, bool) {
	var playback session.PlaybackStatus
	switch status["state"] {
	case "play":
		playback = session.StatusPlaying
	case "pause":
		playback = session.StatusPaused
	default:
		return session.Observation{}, false
	}

	artist := song["AlbumArtist"]
	if artist == "" {
		artist = song["Artist"]
	}

	duration := attrSeconds(status["duration"])
	if duration == 0 {
		duration = attrSeconds(song["Time"])
	}

	return session.Observation{
		Title:    song["Title"],
		Artist:   artist,
		Album:    song["Album"],
		Status:   playback,
		Position: attrSeconds(status["elapsed"]),
		Duration: duration,
	}, true
}

func attrSeconds(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// embeddedArt fetches the song's embedded picture, falling back to the
// directory cover. Failures mean no thumbnail.
func (o *Observer) embeddedArt(uri string) []byte {
	if err := o.ensureConnected(); err != nil {
		return nil
	}

	o.mu.Lock()
	raw, err := o.client.ReadPicture(uri)
	if err != nil || len(raw) == 0 {
		raw, err = o.client.AlbumArt(uri)
	}
	o.mu.Unlock()

	if err != nil || len(raw) == 0 {
		log.Debug().Str("uri", uri).Msg("No embedded artwork available")
		return nil
	}
	return shrinkArt(raw)
}
