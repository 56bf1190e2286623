package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/domain/animate"
	"github.com/jmorand/cadenza/internal/domain/artwork"
	"github.com/jmorand/cadenza/internal/domain/track"
	"github.com/jmorand/cadenza/internal/platform/worker"
)

// Submission gates.
const (
	// maxNowPlayingAttempts and maxScrobbleAttempts cap retries before a
	// submission is permanently given up on.
	maxNowPlayingAttempts = 3
	maxScrobbleAttempts   = 3

	// minScrobbleTrack is the shortest track (seconds) eligible for
	// scrobbling.
	minScrobbleTrack = 30

	// A track scrobbles at 75% played, or unconditionally past 240s.
	scrobbleFraction = 0.75
	scrobbleCeiling  = 240

	// nowPlayingMinCycles debounces now-playing against transient
	// metadata right after a track change.
	nowPlayingMinCycles = 2

	// animationMinCycles delays the animated-artwork job so quickly
	// skipped tracks never start one.
	animationMinCycles = 3

	// pauseResetAfter treats a long pause as a fresh listening session
	// for now-playing purposes.
	pauseResetAfter = 10 * time.Minute
)

// Resolver is the artwork dependency of the tracker.
type Resolver interface {
	Resolve(ctx context.Context, id track.Identity, thumb func() []byte) artwork.Resolution
	ForceResolve(ctx context.Context, id track.Identity, thumb func() []byte) artwork.Resolution
	RecordAnimated(id track.Identity, url string)
}

// Animator is the animated-artwork pipeline dependency.
type Animator interface {
	Start()
	Stop()
	Submit(pageURL string)
	Status() animate.Status
	Get() []byte
}

// Submitter posts now-playing and scrobble events to the scrobbling
// service.
type Submitter interface {
	Enabled() bool
	UpdateNowPlaying(ctx context.Context, title, artist, album string, duration int64) error
	Scrobble(ctx context.Context, title, artist, album string, start int64) error
}

// Snapshot is an immutable copy of the tracker's state for consumers.
// Image falls back to the default placeholder when nothing resolved.
type Snapshot struct {
	Title  string
	Artist string
	Album  string

	Image    string
	Source   string
	AMLink   string
	LFMLink  string
	SPLink   string
	Animated bool

	HasTrack bool
	Playing  bool
	Start    int64
	End      int64
	Elapsed  int64
	Duration int64
}

// Tracker is the per-cycle state machine: it polls the observer, detects
// track changes, resolves artwork once per track, gates now-playing and
// scrobble submissions and drives the animated-artwork pipeline. Update
// is meant to be called from a single polling loop; Snapshot and
// ImageRefresh may be called from other goroutines.
type Tracker struct {
	observer  Observer
	resolver  Resolver
	animator  Animator
	uploader  artwork.Uploader
	submitter Submitter
	pool      *worker.Pool
	now       func() time.Time

	mu       sync.Mutex
	id       track.Identity
	timeline Timeline
	art      artwork.Resolution
	thumb    func() []byte

	cycles             int
	nowPlayingSet      bool
	nowPlayingAttempts int
	scrobbled          bool
	scrobbleAttempts   int
	triedAnimation     bool
	animationDone      bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces the tracker's time source, for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithPool runs submissions on the given pool instead of inline.
func WithPool(pool *worker.Pool) TrackerOption {
	return func(t *Tracker) {
		t.pool = pool
	}
}

// NewTracker wires the tracker's collaborators. animator, uploader and
// submitter may be nil; the corresponding features are skipped.
func NewTracker(observer Observer, resolver Resolver, animator Animator, uploader artwork.Uploader, submitter Submitter, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		observer:  observer,
		resolver:  resolver,
		animator:  animator,
		uploader:  uploader,
		submitter: submitter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update runs one tracking cycle.
func (t *Tracker) Update(ctx context.Context) {
	obs, active, err := t.observer.Poll(ctx)

	var tasks []func()

	t.mu.Lock()
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Failed to poll player session")
		t.reset()
	case !active:
		t.reset()
	default:
		tasks = t.update(ctx, obs)
	}
	t.mu.Unlock()

	for _, task := range tasks {
		t.dispatch(task)
	}
}

// update handles one observation. Caller holds the lock; returned tasks
// are run after it is released.
func (t *Tracker) update(ctx context.Context, obs Observation) []func() {
	now := t.now()

	t.updatePlayback(now, obs)
	t.maybeResetNowPlaying(now)

	if obs.Title == "" || obs.Artist == "" {
		log.Debug().Msg("Title or artist empty, assuming nothing is playing")
		t.reset()
		return nil
	}

	id := track.Identity{Title: obs.Title, Artist: obs.Artist, Album: obs.Album}
	if id.Equal(t.id) {
		tasks := t.steadyState(ctx, now)
		t.cycles++
		return tasks
	}

	t.trackChanged(ctx, id, obs)
	return nil
}

func (t *Tracker) updatePlayback(now time.Time, obs Observation) {
	wasPlaying := t.timeline.Playing
	if obs.Status == StatusPlaying {
		t.timeline.Play()
		if !wasPlaying {
			log.Info().Msg("Playback transitioned to playing")
		}
	} else {
		t.timeline.Pause(now)
		if wasPlaying {
			log.Info().Msg("Playback transitioned to paused")
		}
	}
	t.timeline.Update(now, obs.Position, obs.Duration)
}

// maybeResetNowPlaying re-arms the now-playing submission after a long
// pause so resuming counts as a fresh listening session. Scrobble
// counters are left alone.
func (t *Tracker) maybeResetNowPlaying(now time.Time) {
	paused := t.timeline.PausedFor(now)
	if paused < pauseResetAfter {
		return
	}
	if t.nowPlayingSet || t.nowPlayingAttempts > 0 {
		t.nowPlayingSet = false
		t.nowPlayingAttempts = 0
		log.Debug().Dur("pausedFor", paused).Msg("Reset now playing state after long pause")
	}
}

func (t *Tracker) steadyState(ctx context.Context, now time.Time) []func() {
	var tasks []func()

	canSubmit := t.submitter != nil && t.submitter.Enabled()

	if canSubmit && !t.nowPlayingSet && t.timeline.Playing && t.cycles >= nowPlayingMinCycles {
		t.nowPlayingSet = true
		tasks = append(tasks, t.nowPlayingTask(t.id, t.timeline.Duration))
	}

	elapsed := t.timeline.Elapsed(now)
	if canSubmit && !t.scrobbled && t.timeline.Duration > minScrobbleTrack &&
		(float64(elapsed)/float64(t.timeline.Duration) >= scrobbleFraction || elapsed > scrobbleCeiling) {
		t.scrobbled = true
		tasks = append(tasks, t.scrobbleTask(t.id, t.timeline.Start))
	}

	if t.animator != nil {
		if t.cycles >= animationMinCycles && !t.triedAnimation && t.art.AMLink != "" {
			t.triedAnimation = true
			t.animator.Start()
			t.animator.Submit(t.art.AMLink)
		} else if t.triedAnimation && !t.animationDone {
			t.pollAnimation(ctx)
		}
	}

	return tasks
}

// pollAnimation checks the pipeline each cycle once a job is in flight.
// A finished GIF is re-hosted and replaces the static image; either
// terminal status ends polling. Caller holds the lock.
func (t *Tracker) pollAnimation(ctx context.Context) {
	switch t.animator.Status() {
	case animate.StatusFinished:
		t.animationDone = true
		gif := t.animator.Get()
		t.animator.Stop()
		if len(gif) == 0 || t.uploader == nil {
			return
		}

		url, err := t.uploader.Upload(ctx, gif)
		if err != nil || url == "" {
			log.Warn().Err(err).Msg("Failed to upload animated artwork")
			return
		}

		t.art.Image = url
		t.art.Animated = true
		t.resolver.RecordAnimated(t.id, url)
		log.Info().Str("url", url).Msg("Animated artwork applied")
	case animate.StatusFailed:
		t.animationDone = true
		t.animator.Stop()
		log.Info().Msg("Animated artwork pipeline unsuccessful")
	}
}

func (t *Tracker) trackChanged(ctx context.Context, id track.Identity, obs Observation) {
	log.Info().
		Str("title", id.Title).
		Str("artist", id.Artist).
		Str("album", id.Album).
		Msg("Track changed")

	t.id = id
	t.art = artwork.Resolution{}
	t.thumb = obs.Thumbnail
	t.cycles = 0
	t.nowPlayingSet = false
	t.nowPlayingAttempts = 0
	t.scrobbled = false
	t.scrobbleAttempts = 0
	t.triedAnimation = false
	t.animationDone = false
	if t.animator != nil {
		t.animator.Stop()
	}

	t.art = t.resolver.Resolve(ctx, id, t.thumb)

	// A cached animated record already holds the finished GIF; the
	// pipeline must not run again within the record's expiry window.
	if t.art.Animated {
		t.triedAnimation = true
		t.animationDone = true
	}
}

// reset clears all state to "nothing playing". Caller holds the lock.
func (t *Tracker) reset() {
	if !t.id.Empty() {
		log.Debug().
			Str("title", t.id.Title).
			Str("artist", t.id.Artist).
			Msg("Resetting tracker state")
	}

	t.id = track.Identity{}
	t.art = artwork.Resolution{}
	t.thumb = nil
	t.timeline.Reset()
	t.cycles = 0
	t.nowPlayingSet = false
	t.nowPlayingAttempts = 0
	t.scrobbled = false
	t.scrobbleAttempts = 0
	t.triedAnimation = false
	t.animationDone = false
	if t.animator != nil {
		t.animator.Stop()
	}
}

// ImageRefresh drops every cached record for the current track and
// re-runs the full provider pass, restarting the animated-artwork job
// when its cycle threshold is already met.
func (t *Tracker) ImageRefresh(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.id.Empty() {
		log.Debug().Msg("Image refresh requested with no track")
		return
	}

	log.Info().
		Str("title", t.id.Title).
		Str("artist", t.id.Artist).
		Str("album", t.id.Album).
		Msg("Forced image refresh requested")

	t.triedAnimation = false
	t.animationDone = false
	t.art = t.resolver.ForceResolve(ctx, t.id, t.thumb)

	if t.animator != nil && t.cycles >= animationMinCycles && t.art.AMLink != "" {
		t.triedAnimation = true
		t.animator.Start()
		t.animator.Submit(t.art.AMLink)
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	image := t.art.Image
	if image == "" {
		image = artwork.DefaultImage
	}

	now := t.now()
	return Snapshot{
		Title:    t.id.Title,
		Artist:   t.id.Artist,
		Album:    t.id.Album,
		Image:    image,
		Source:   t.art.Source,
		AMLink:   t.art.AMLink,
		LFMLink:  t.art.LFMLink,
		SPLink:   t.art.SPLink,
		Animated: t.art.Animated,
		HasTrack: !t.id.Empty(),
		Playing:  t.timeline.Playing,
		Start:    t.timeline.Start,
		End:      t.timeline.End,
		Elapsed:  t.timeline.Elapsed(now),
		Duration: t.timeline.Duration,
	}
}

// dispatch runs a submission task, on the pool when one is configured.
func (t *Tracker) dispatch(task func()) {
	if t.pool == nil {
		task()
		return
	}
	if err := t.pool.Submit(task); err != nil {
		log.Warn().Err(err).Msg("Dropped submission task")
	}
}

// nowPlayingTask captures the submission by value; on failure the flag is
// re-armed so a later cycle retries, until the attempt cap.
func (t *Tracker) nowPlayingTask(id track.Identity, duration int64) func() {
	return func() {
		t.mu.Lock()
		stale := !id.Equal(t.id) || t.nowPlayingAttempts >= maxNowPlayingAttempts
		t.mu.Unlock()
		if stale {
			return
		}

		err := t.submitter.UpdateNowPlaying(context.Background(), id.Title, id.Artist, id.Album, duration)

		t.mu.Lock()
		defer t.mu.Unlock()
		if !id.Equal(t.id) {
			return
		}
		t.nowPlayingAttempts++
		if err != nil {
			log.Warn().Err(err).Str("title", id.Title).Msg("Now playing update failed")
			if t.nowPlayingAttempts < maxNowPlayingAttempts {
				t.nowPlayingSet = false
			}
		}
	}
}

func (t *Tracker) scrobbleTask(id track.Identity, start int64) func() {
	return func() {
		t.mu.Lock()
		stale := !id.Equal(t.id) || t.scrobbleAttempts >= maxScrobbleAttempts
		t.mu.Unlock()
		if stale {
			return
		}

		err := t.submitter.Scrobble(context.Background(), id.Title, id.Artist, id.Album, start)

		t.mu.Lock()
		defer t.mu.Unlock()
		if !id.Equal(t.id) {
			return
		}
		t.scrobbleAttempts++
		if err != nil {
			log.Warn().Err(err).Str("title", id.Title).Msg("Scrobble failed")
			if t.scrobbleAttempts < maxScrobbleAttempts {
				t.scrobbled = false
			}
		}
	}
}
