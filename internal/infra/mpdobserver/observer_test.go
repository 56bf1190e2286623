package mpdobserver

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/jmorand/cadenza/internal/domain/session"
)

func TestObservePlaying(t *testing.T) {
	status := mpd.Attrs{"state": "play", "elapsed": "42.5", "duration": "200.0"}
	song := mpd.Attrs{
		"Title":       "Golden Hour",
		"Artist":      "JVKE",
		"AlbumArtist": "JVKE",
		"Album":       "this is what ____ feels like",
		"file":        "music/jvke/golden-hour.flac",
	}

	obs, active := observe(status, song)
	if !active {
		t.Fatal("Expected an active session")
	}
	if obs.Status != session.StatusPlaying {
		t.Errorf("Status = %v, want playing", obs.Status)
	}
	if obs.Title != "Golden Hour" || obs.Artist != "JVKE" {
		t.Errorf("Metadata wrong: %+v", obs)
	}
	if obs.Position != 42500*time.Millisecond {
		t.Errorf("Position = %v, want 42.5s", obs.Position)
	}
	if obs.Duration != 200*time.Second {
		t.Errorf("Duration = %v, want 200s", obs.Duration)
	}
}

func TestObservePaused(t *testing.T) {
	obs, active := observe(mpd.Attrs{"state": "pause"}, mpd.Attrs{"Title": "x", "Artist": "y"})
	if !active || obs.Status != session.StatusPaused {
		t.Errorf("Expected an active paused session, got active=%v status=%v", active, obs.Status)
	}
}

func TestObserveStoppedIsInactive(t *testing.T) {
	if _, active := observe(mpd.Attrs{"state": "stop"}, mpd.Attrs{}); active {
		t.Error("Stopped player should count as no session")
	}
	if _, active := observe(mpd.Attrs{}, mpd.Attrs{}); active {
		t.Error("Missing state should count as no session")
	}
}

func TestObserveArtistFallback(t *testing.T) {
	obs, _ := observe(mpd.Attrs{"state": "play"}, mpd.Attrs{"Title": "x", "Artist": "Solo Artist"})
	if obs.Artist != "Solo Artist" {
		t.Errorf("Artist = %q, want the Artist tag when AlbumArtist is missing", obs.Artist)
	}
}

func TestObserveDurationFallback(t *testing.T) {
	// Older MPD versions only report the song's Time tag.
	obs, _ := observe(mpd.Attrs{"state": "play"}, mpd.Attrs{"Title": "x", "Artist": "y", "Time": "181"})
	if obs.Duration != 181*time.Second {
		t.Errorf("Duration = %v, want 181s from the Time tag", obs.Duration)
	}
}

func TestAttrSeconds(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"garbage", 0},
		{"-5", 0},
		{"3", 3 * time.Second},
		{"0.5", 500 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := attrSeconds(tc.in); got != tc.want {
			t.Errorf("attrSeconds(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPollUnreachableServer(t *testing.T) {
	o := New("localhost", 16600, "") // nothing listens here
	if _, _, err := o.Poll(context.Background()); err == nil {
		t.Error("Poll should fail when MPD is unreachable")
	}
}

func TestShrinkArtDownscales(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 1200, 900))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, big, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	out := shrinkArt(buf.Bytes())
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Shrunk artwork is not decodable: %v", err)
	}
	if w := img.Bounds().Dx(); w != 500 {
		t.Errorf("Width = %d, want 500", w)
	}
	if h := img.Bounds().Dy(); h != 375 {
		t.Errorf("Height = %d, want 375 preserving aspect ratio", h)
	}
}

func TestShrinkArtPassesSmallJpegThrough(t *testing.T) {
	small := image.NewRGBA(image.Rect(0, 0, 300, 300))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	if out := shrinkArt(buf.Bytes()); !bytes.Equal(out, buf.Bytes()) {
		t.Error("Small JPEG should pass through untouched")
	}
}

func TestShrinkArtKeepsUndecodableBytes(t *testing.T) {
	raw := []byte("not an image")
	if out := shrinkArt(raw); !bytes.Equal(out, raw) {
		t.Error("Undecodable input should be returned as-is")
	}
}
