// Package config loads the application configuration from a YAML file
// and CADENZA_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/jmorand/cadenza/internal/infra/providers/applemusic"
)

// Config is built once at startup and passed into component
// constructors; it is never mutated afterwards.
type Config struct {
	Region       string        `mapstructure:"region"`
	Debug        bool          `mapstructure:"debug"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CachePath    string        `mapstructure:"cache_path"`
	FFmpegPath   string        `mapstructure:"ffmpeg_path"`

	MPD     MPD     `mapstructure:"mpd"`
	LastFM  LastFM  `mapstructure:"lastfm"`
	Spotify Spotify `mapstructure:"spotify"`
	Imgur   Imgur   `mapstructure:"imgur"`
}

// MPD is the player connection.
type MPD struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// LastFM credentials. All three are needed for scrobbling; the link
// search only needs the API key pair.
type LastFM struct {
	APIKey     string `mapstructure:"api_key"`
	Secret     string `mapstructure:"secret"`
	SessionKey string `mapstructure:"session_key"`
}

// Spotify client-credentials pair.
type Spotify struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Imgur anonymous-upload credentials.
type Imgur struct {
	ClientID string `mapstructure:"client_id"`
}

// Load reads configuration from path, or from cadenza.yaml in the usual
// locations when path is empty. A missing file is not an error; defaults
// and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CADENZA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("cadenza")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cadenza")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if !applemusic.ValidRegion(cfg.Region) {
		log.Warn().Str("region", cfg.Region).Str("fallback", applemusic.DefaultRegion).
			Msg("Unknown storefront region, using default")
		cfg.Region = applemusic.DefaultRegion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region", applemusic.DefaultRegion)
	v.SetDefault("debug", false)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("cache_path", "cadenza.db")
	v.SetDefault("ffmpeg_path", "ffmpeg")

	v.SetDefault("mpd.host", "localhost")
	v.SetDefault("mpd.port", 6600)
	v.SetDefault("mpd.password", "")

	// Credential defaults exist so the matching environment variables
	// bind even without a config file.
	v.SetDefault("lastfm.api_key", "")
	v.SetDefault("lastfm.secret", "")
	v.SetDefault("lastfm.session_key", "")
	v.SetDefault("spotify.client_id", "")
	v.SetDefault("spotify.client_secret", "")
	v.SetDefault("imgur.client_id", "")
}
