package animate_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmorand/cadenza/internal/domain/animate"
)

func waitForStatus(t *testing.T, p *animate.Processor, want animate.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for status %v, still %v", want, p.Status())
}

func TestProcessorDeliversResult(t *testing.T) {
	want := []byte("gif bytes")
	p := animate.NewProcessor(nil, nil, animate.WithJob(
		func(ctx context.Context, pageURL string, cancelled func() bool) ([]byte, error) {
			if pageURL != "https://music.apple.com/ca/album/x" {
				t.Errorf("Unexpected page URL %q", pageURL)
			}
			return want, nil
		}))
	p.Start()
	defer p.Stop()

	p.Submit("https://music.apple.com/ca/album/x")
	waitForStatus(t, p, animate.StatusFinished)

	if got := p.Get(); !bytes.Equal(got, want) {
		t.Errorf("Get returned %q, want %q", got, want)
	}
	if got := p.Get(); got != nil {
		t.Errorf("Second Get should be empty, got %q", got)
	}
}

func TestProcessorPreemption(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})
	var once sync.Once

	p := animate.NewProcessor(nil, nil, animate.WithJob(
		func(ctx context.Context, pageURL string, cancelled func() bool) ([]byte, error) {
			started <- pageURL
			<-release
			return []byte(pageURL), nil
		}))
	p.Start()
	defer p.Stop()
	defer once.Do(func() { close(release) })

	p.Submit("first")
	select {
	case url := <-started:
		if url != "first" {
			t.Fatalf("Worker picked up %q before the second submission", url)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Worker never started the first job")
	}

	// The second submission lands while the first job is still blocked;
	// its result must be discarded.
	p.Submit("second")
	once.Do(func() { close(release) })

	waitForStatus(t, p, animate.StatusFinished)
	if got := p.Get(); string(got) != "second" {
		t.Errorf("Get returned %q, want the preempting job's result", got)
	}
}

func TestProcessorJobFailure(t *testing.T) {
	p := animate.NewProcessor(nil, nil, animate.WithJob(
		func(ctx context.Context, pageURL string, cancelled func() bool) ([]byte, error) {
			return nil, errors.New("ffmpeg exploded")
		}))
	p.Start()
	defer p.Stop()

	p.Submit("doomed")
	waitForStatus(t, p, animate.StatusFailed)

	if got := p.Get(); got != nil {
		t.Errorf("Failed job should leave no result, got %q", got)
	}
}

func TestProcessorNoArtworkIsFailure(t *testing.T) {
	p := animate.NewProcessor(nil, nil, animate.WithJob(
		func(ctx context.Context, pageURL string, cancelled func() bool) ([]byte, error) {
			return nil, nil
		}))
	p.Start()
	defer p.Stop()

	p.Submit("static-only")
	waitForStatus(t, p, animate.StatusFailed)
}

func TestProcessorSubmitResetsStatus(t *testing.T) {
	p := animate.NewProcessor(nil, nil, animate.WithJob(
		func(ctx context.Context, pageURL string, cancelled func() bool) ([]byte, error) {
			return nil, errors.New("nope")
		}))
	// Not started: submissions queue but never run, so the status stays
	// in progress.
	p.Submit("queued")
	if got := p.Status(); got != animate.StatusInProgress {
		t.Errorf("Fresh submission should be in progress, got %v", got)
	}
}

func TestProcessorStopIsIdempotent(t *testing.T) {
	p := animate.NewProcessor(nil, nil, animate.WithJob(
		func(ctx context.Context, pageURL string, cancelled func() bool) ([]byte, error) {
			return []byte("x"), nil
		}))
	p.Start()
	p.Stop()
	p.Stop()
	p.Start()
	p.Stop()
}
