package cache_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/jmorand/cadenza/internal/domain/track"
	"github.com/jmorand/cadenza/internal/infra/cache"
)

func TestSweepRemovesExpiredAndMalformed(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	fresh := fmt.Sprintf("%d|https://example.com/fresh.jpg|lastfm", now.Add(-time.Hour).Unix())
	stale := fmt.Sprintf("%d|https://example.com/stale.jpg|lastfm", now.Add(-track.StaticExpiry-time.Hour).Unix())
	future := fmt.Sprintf("%d|https://example.com/future.jpg", now.Add(48*time.Hour).Unix())

	entries := map[string]string{
		"fresh|artist|album":  fresh,
		"stale|artist|album":  stale,
		"future|artist|album": future,
		"broken|artist|album": "not-a-record",
	}
	for key, value := range entries {
		if err := db.Put(key, value); err != nil {
			t.Fatalf("Failed to put %q: %v", key, err)
		}
	}

	res, err := cache.Sweep(db, now)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if res.Deleted != 3 {
		t.Errorf("Expected 3 deletions, got %d", res.Deleted)
	}
	if res.Malformed != 1 {
		t.Errorf("Expected 1 malformed entry, got %d", res.Malformed)
	}

	if _, err := db.Get("fresh|artist|album"); err != nil {
		t.Errorf("Fresh record should survive the sweep: %v", err)
	}
	for _, key := range []string{"stale|artist|album", "future|artist|album", "broken|artist|album"} {
		if _, err := db.Get(key); err != cache.ErrNotFound {
			t.Errorf("Key %q should have been swept", key)
		}
	}
}

func TestSweepHonorsAnimatedExpiry(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	// Older than the static window but within the animated one.
	age := track.StaticExpiry + 24*time.Hour
	record := fmt.Sprintf("%d|https://example.com/art.gif", now.Add(-age).Unix())

	animKey := track.PrefixAnimated + "song|artist|album"
	if err := db.Put(animKey, record); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := db.Put("song|artist|album", record); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	if _, err := cache.Sweep(db, now); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if _, err := db.Get(animKey); err != nil {
		t.Errorf("Animated record should survive within its longer window: %v", err)
	}
	if _, err := db.Get("song|artist|album"); err != cache.ErrNotFound {
		t.Error("Static record past its window should have been swept")
	}
}

func TestSweepSkipsReservedKeys(t *testing.T) {
	db := openTestDB(t)

	for _, key := range []string{cache.RegionKey, cache.PresenceStateKey, cache.LastFMStateKey, cache.SpotifyTokenKey} {
		// Reserved values are plain settings, not timestamped records.
		if err := db.Put(key, "us"); err != nil {
			t.Fatalf("Failed to put %q: %v", key, err)
		}
	}

	res, err := cache.Sweep(db, time.Now())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if res.Deleted != 0 || res.Malformed != 0 {
		t.Errorf("Reserved keys must not be counted or deleted, got %+v", res)
	}

	for _, key := range []string{cache.RegionKey, cache.PresenceStateKey, cache.LastFMStateKey, cache.SpotifyTokenKey} {
		if _, err := db.Get(key); err != nil {
			t.Errorf("Reserved key %q should survive the sweep: %v", key, err)
		}
	}
}

func TestPurgeKeepsReservedKeys(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().Unix()

	if err := db.Put(cache.RegionKey, "de"); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := db.Put("song|artist|album", fmt.Sprintf("%d|https://example.com/a.jpg", now)); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := db.Put(track.PrefixAppleMusic+"song|artist|album", fmt.Sprintf("%d|https://music.example/a", now)); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	deleted, err := cache.Purge(db)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deletions, got %d", deleted)
	}

	if got, err := db.Get(cache.RegionKey); err != nil || got != "de" {
		t.Errorf("Region setting should survive a purge, got %q err %v", got, err)
	}
	if _, err := db.Get("song|artist|album"); err != cache.ErrNotFound {
		t.Error("Record should be gone after purge")
	}
}
