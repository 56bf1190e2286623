package animate

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/infra/providers/applemusic"
)

// Status reports where the current job stands.
type Status int

const (
	StatusInProgress Status = iota
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	default:
		return "in progress"
	}
}

// jobFunc runs one animated-artwork job for a track page URL. cancelled is
// polled throughout; a true result means the job was preempted and its
// output must be discarded.
type jobFunc func(ctx context.Context, pageURL string, cancelled func() bool) ([]byte, error)

// Processor runs animated-artwork jobs on a single background worker.
// Submitting a new job preempts the current one: each submission bumps a
// generation counter, long stages poll it, and results from stale
// generations are dropped. Only the latest submission can ever be
// observed through Status and Get.
type Processor struct {
	job jobFunc

	running atomic.Bool
	next    atomic.Uint64
	current atomic.Uint64
	// finished holds the generation whose result is ready; zero means none.
	finished atomic.Uint64
	failed   atomic.Bool

	mu            sync.Mutex
	cond          *sync.Cond
	hasJob        bool
	stopRequested bool
	currentURL    string
	result        []byte

	wg sync.WaitGroup
}

// Option configures a Processor.
type Option func(*Processor)

// WithJob replaces the job implementation, for tests.
func WithJob(job jobFunc) Option {
	return func(p *Processor) {
		p.job = job
	}
}

// NewProcessor creates a processor that scrapes the track page, picks an
// HLS variant and transcodes it with the given transcoder.
func NewProcessor(client *http.Client, transcoder *Transcoder, opts ...Option) *Processor {
	p := &Processor{}
	p.cond = sync.NewCond(&p.mu)
	p.job = func(ctx context.Context, pageURL string, cancelled func() bool) ([]byte, error) {
		return runPipeline(ctx, client, transcoder, pageURL, cancelled)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker. Starting an already running processor is a
// no-op.
func (p *Processor) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	p.stopRequested = false
	p.hasJob = false
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop()
	log.Debug().Msg("Animated artwork worker started")
}

// Stop shuts the worker down and waits for it to exit. Any in-flight job
// is abandoned.
func (p *Processor) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	p.mu.Lock()
	p.stopRequested = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	log.Debug().Msg("Animated artwork worker stopped")
}

// Submit queues a track page URL, preempting whatever job is running.
func (p *Processor) Submit(pageURL string) {
	gen := p.next.Add(1)

	p.mu.Lock()
	p.currentURL = pageURL
	p.current.Store(gen)
	p.finished.Store(0)
	p.failed.Store(false)
	p.result = nil
	p.hasJob = true
	p.cond.Signal()
	p.mu.Unlock()

	log.Debug().Str("url", pageURL).Uint64("generation", gen).Msg("Animated artwork job submitted")
}

// Status reports the state of the latest submission.
func (p *Processor) Status() Status {
	if p.failed.Load() {
		return StatusFailed
	}
	finished := p.finished.Load()
	if finished != 0 && finished == p.current.Load() {
		return StatusFinished
	}
	return StatusInProgress
}

// Get takes the finished GIF, leaving the slot empty. Returns nil when no
// result is ready.
func (p *Processor) Get() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.result
	p.result = nil
	return out
}

func (p *Processor) loop() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for !p.stopRequested && !p.hasJob {
			p.cond.Wait()
		}
		if p.stopRequested {
			p.mu.Unlock()
			return
		}
		url := p.currentURL
		gen := p.current.Load()
		p.hasJob = false
		p.mu.Unlock()

		cancelled := func() bool {
			return p.current.Load() != gen || !p.running.Load()
		}

		out, err := p.job(context.Background(), url, cancelled)
		if cancelled() {
			continue
		}

		p.mu.Lock()
		if err != nil || len(out) == 0 {
			p.result = nil
			p.failed.Store(true)
			if err != nil {
				log.Info().Err(err).Msg("Animated artwork job failed")
			} else {
				log.Info().Msg("No animated artwork available")
			}
		} else {
			p.result = out
			log.Info().Int("bytes", len(out)).Msg("Animated artwork ready")
		}
		p.finished.Store(gen)
		p.mu.Unlock()
	}
}

// runPipeline is the real job: page scrape, playlist fetch, variant pick,
// transcode. Preemption also cancels the context so in-flight HTTP requests
// and the ffmpeg process die promptly.
func runPipeline(ctx context.Context, client *http.Client, transcoder *Transcoder, pageURL string, cancelled func() bool) ([]byte, error) {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-watchDone:
				return
			case <-ticker.C:
				if cancelled() {
					stop()
					return
				}
			}
		}
	}()

	playlistURL, err := applemusic.AnimatedArtworkURL(ctx, client, pageURL)
	if err != nil {
		return nil, err
	}
	if playlistURL == "" {
		return nil, nil
	}
	if cancelled() {
		return nil, errCancelled
	}

	variants, err := FetchVariants(ctx, client, playlistURL)
	if err != nil {
		return nil, err
	}
	picked, ok := PickVariant(variants)
	if !ok {
		log.Info().Str("url", playlistURL).Msg("Playlist has no usable variants")
		return nil, nil
	}
	if cancelled() {
		return nil, errCancelled
	}

	log.Debug().Int("resolution", picked.Resolution).Uint64("bandwidth", picked.Bandwidth).
		Msg("Picked playlist variant")

	return transcoder.Transcode(ctx, picked, cancelled)
}
