package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmorand/cadenza/internal/platform/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cadenza.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
region: us
debug: true
poll_interval: 10s
cache_path: /var/lib/cadenza/cache.db
mpd:
  host: player.local
  port: 6601
  password: hunter2
lastfm:
  api_key: key
  secret: shh
  session_key: sk
spotify:
  client_id: sid
  client_secret: ssecret
imgur:
  client_id: iid
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Region != "us" || !cfg.Debug {
		t.Errorf("Top-level fields wrong: %+v", cfg)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if cfg.MPD.Host != "player.local" || cfg.MPD.Port != 6601 || cfg.MPD.Password != "hunter2" {
		t.Errorf("MPD config wrong: %+v", cfg.MPD)
	}
	if cfg.LastFM.APIKey != "key" || cfg.LastFM.SessionKey != "sk" {
		t.Errorf("LastFM config wrong: %+v", cfg.LastFM)
	}
	if cfg.Spotify.ClientID != "sid" || cfg.Imgur.ClientID != "iid" {
		t.Errorf("Provider credentials wrong")
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "debug: false\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Region != "ca" {
		t.Errorf("Default region = %q, want ca", cfg.Region)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("Default poll interval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.MPD.Host != "localhost" || cfg.MPD.Port != 6600 {
		t.Errorf("Default MPD config wrong: %+v", cfg.MPD)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("Default ffmpeg path = %q", cfg.FFmpegPath)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "region: us\n")

	t.Setenv("CADENZA_MPD_HOST", "envhost")
	t.Setenv("CADENZA_LASTFM_API_KEY", "envkey")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MPD.Host != "envhost" {
		t.Errorf("MPD host = %q, want the environment override", cfg.MPD.Host)
	}
	if cfg.LastFM.APIKey != "envkey" {
		t.Errorf("LastFM api key = %q, want the environment override", cfg.LastFM.APIKey)
	}
}

func TestLoadInvalidRegionFallsBack(t *testing.T) {
	path := writeConfig(t, "region: atlantis\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Region != "ca" {
		t.Errorf("Region = %q, want the default fallback", cfg.Region)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load should fail for an explicitly named missing file")
	}
}
