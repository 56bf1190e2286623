// Package main is the entry point for the Cadenza now-playing daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/domain/animate"
	"github.com/jmorand/cadenza/internal/domain/artwork"
	"github.com/jmorand/cadenza/internal/domain/session"
	"github.com/jmorand/cadenza/internal/infra/cache"
	"github.com/jmorand/cadenza/internal/infra/mpdobserver"
	"github.com/jmorand/cadenza/internal/infra/providers"
	"github.com/jmorand/cadenza/internal/infra/providers/applemusic"
	"github.com/jmorand/cadenza/internal/infra/providers/imgur"
	"github.com/jmorand/cadenza/internal/infra/providers/lastfm"
	"github.com/jmorand/cadenza/internal/infra/providers/spotify"
	"github.com/jmorand/cadenza/internal/platform/config"
	"github.com/jmorand/cadenza/internal/platform/worker"
	"github.com/jmorand/cadenza/internal/version"
)

const submissionWorkers = 2

func main() {
	configPath := flag.String("config", "", "Path to config file (default: cadenza.yaml in the usual locations)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *debug || cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Now-Playing Tracker & Artwork Daemon")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("region", cfg.Region).
		Str("mpd_host", cfg.MPD.Host).
		Int("mpd_port", cfg.MPD.Port).
		Dur("poll_interval", cfg.PollInterval).
		Bool("lastfm_configured", cfg.LastFM.APIKey != "").
		Bool("spotify_configured", cfg.Spotify.ClientID != "").
		Bool("imgur_configured", cfg.Imgur.ClientID != "").
		Msg("Configuration")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the record cache; a broken cache degrades to provider-only
	// resolution instead of aborting.
	var store cache.Store
	if db, err := cache.Open(cfg.CachePath); err != nil {
		log.Warn().Err(err).Str("path", cfg.CachePath).
			Msg("Record cache unavailable, continuing without it")
	} else {
		store = db
		defer db.Close()

		if result, err := cache.Sweep(store, time.Now()); err != nil {
			log.Warn().Err(err).Msg("Startup cache sweep failed")
		} else {
			log.Info().Int("deleted", result.Deleted).Int("malformed", result.Malformed).
				Msg("Startup cache sweep done")
		}
		if err := store.Put(cache.RegionKey, cfg.Region); err != nil {
			log.Warn().Err(err).Msg("Failed to persist storefront region")
		}
	}

	httpClient := providers.NewHTTPClient()

	// Providers, each behind a circuit breaker. Unconfigured ones stay
	// nil and their resolution stage is skipped.
	scraper := providers.WithBreaker(applemusic.New(cfg.Region, httpClient, applemusic.DefaultThreshold))

	var lastfmSearcher providers.Searcher
	var submitter session.Submitter
	lastfmClient := lastfm.New(cfg.LastFM.APIKey, cfg.LastFM.Secret, cfg.LastFM.SessionKey, httpClient)
	if cfg.LastFM.APIKey != "" {
		lastfmSearcher = providers.WithBreaker(lastfmClient)
	}
	if lastfmClient.Enabled() {
		submitter = lastfmClient
	} else {
		log.Info().Msg("Last.fm scrobbling disabled, missing credentials")
	}

	var spotifySearcher providers.Searcher
	if cfg.Spotify.ClientID != "" && cfg.Spotify.ClientSecret != "" {
		var spotifyOpts []spotify.Option
		if store != nil {
			spotifyOpts = append(spotifyOpts, spotify.WithTokenStore(store, cache.SpotifyTokenKey))
		}
		spotifyClient := spotify.New(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, httpClient, spotifyOpts...)
		spotifyClient.Start(ctx)
		spotifySearcher = providers.WithBreaker(spotifyClient)
	}

	var uploader artwork.Uploader
	if cfg.Imgur.ClientID != "" {
		uploader = imgur.New(cfg.Imgur.ClientID, httpClient)
	}

	resolver := artwork.NewResolver(store, scraper, lastfmSearcher, spotifySearcher, uploader)

	transcoder := animate.NewTranscoder(cfg.FFmpegPath)
	processor := animate.NewProcessor(httpClient, transcoder)

	observer := mpdobserver.New(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
	if err := observer.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MPD")
	}
	defer observer.Close()

	pool := worker.New(submissionWorkers)
	tracker := session.NewTracker(observer, resolver, processor, uploader, submitter,
		session.WithPool(pool))

	// Poll loop with signal-based shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	log.Info().Msg("Tracking started")
	tracker.Update(ctx)

	for {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			cancel()
			processor.Stop()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := pool.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Submission pool did not drain in time")
			}
			shutdownCancel()
			return
		case <-ticker.C:
			tracker.Update(ctx)
		}
	}
}
