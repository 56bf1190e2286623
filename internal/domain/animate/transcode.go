package animate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"os/exec"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/infra/providers"
)

// Transcode tuning. The loop detector compares 32x32 grayscale thumbnails
// of each frame against the first frame and cuts the stream once they
// converge again, so the resulting GIF loops seamlessly.
const (
	// DefaultFPS is the output frame rate.
	DefaultFPS = 15

	// DefaultWarmupFrames is how many frames are decoded before loop
	// detection starts; the opening frames are too close to the first one.
	DefaultWarmupFrames = 10

	// DefaultLoopThreshold is the maximum mean absolute pixel difference
	// for a frame to count as a loop match.
	DefaultLoopThreshold = 8.0

	// DefaultMaxFrames bounds the output when no loop point is found.
	DefaultMaxFrames = 600
)

const thumbEdge = 32

var errCancelled = fmt.Errorf("transcode cancelled")

// Transcoder decodes an HLS variant through an external ffmpeg process and
// assembles a looping GIF in memory.
type Transcoder struct {
	ffmpegPath    string
	fps           int
	warmupFrames  int
	maxFrames     int
	loopThreshold float64
}

// NewTranscoder creates a transcoder using the given ffmpeg binary.
func NewTranscoder(ffmpegPath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{
		ffmpegPath:    ffmpegPath,
		fps:           DefaultFPS,
		warmupFrames:  DefaultWarmupFrames,
		maxFrames:     DefaultMaxFrames,
		loopThreshold: DefaultLoopThreshold,
	}
}

// Transcode downloads and decodes the variant and returns GIF bytes.
// cancelled is polled between frames; when it reports true the ffmpeg
// process is killed and the job abandoned.
func (t *Transcoder) Transcode(ctx context.Context, variant Variant, cancelled func() bool) ([]byte, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-user_agent", providers.BrowserUserAgent,
		"-i", variant.URL,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", t.fps, variant.Resolution, variant.Resolution),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}

	cmd := exec.CommandContext(runCtx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	log.Debug().Str("url", variant.URL).Int("resolution", variant.Resolution).
		Msg("Started ffmpeg transcode")

	out, encodeErr := t.assemble(stdout, variant.Resolution, cancelled)

	// Loop detection usually stops before the stream ends; kill ffmpeg
	// rather than draining the rest.
	stop()
	waitErr := cmd.Wait()

	if encodeErr != nil {
		if encodeErr == errCancelled {
			return nil, encodeErr
		}
		return nil, fmt.Errorf("assemble gif: %w (ffmpeg: %s)", encodeErr, stderr.String())
	}
	// waitErr is expected when the process was killed mid-stream.
	_ = waitErr

	return out, nil
}

// assemble reads raw RGBA frames from r and encodes them into a GIF,
// stopping at the first detected loop point or the frame cap.
func (t *Transcoder) assemble(r io.Reader, resolution int, cancelled func() bool) ([]byte, error) {
	frameSize := resolution * resolution * 4
	buf := make([]byte, frameSize)

	delay := 100 / t.fps // GIF delays are in centiseconds
	anim := &gif.GIF{LoopCount: 0}
	detector := newLoopDetector(t.warmupFrames, t.loopThreshold)

	for frames := 0; frames < t.maxFrames; frames++ {
		if cancelled != nil && cancelled() {
			return nil, errCancelled
		}

		_, err := io.ReadFull(r, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read frame %d: %w", frames, err)
		}

		frame := &image.RGBA{
			Pix:    append([]byte(nil), buf...),
			Stride: resolution * 4,
			Rect:   image.Rect(0, 0, resolution, resolution),
		}

		if detector.loops(frame) {
			break
		}

		paletted := image.NewPaletted(frame.Rect, palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, frame.Rect, frame, image.Point{})
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)
	}

	if len(anim.Image) == 0 {
		return nil, fmt.Errorf("no frames decoded")
	}

	var out bytes.Buffer
	if err := gif.EncodeAll(&out, anim); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}

	log.Debug().Int("frames", len(anim.Image)).Int("bytes", out.Len()).Msg("Assembled looping gif")
	return out.Bytes(), nil
}

// loopDetector compares downscaled grayscale thumbnails against the first
// frame to find the point where the animation wraps around.
type loopDetector struct {
	warmup    int
	threshold float64
	first     []byte
	analyzed  int
}

func newLoopDetector(warmup int, threshold float64) *loopDetector {
	return &loopDetector{warmup: warmup, threshold: threshold}
}

// loops reports whether this frame closes the loop. The first frame is the
// reference; matching begins only after the warm-up window.
func (d *loopDetector) loops(frame image.Image) bool {
	thumb := grayThumb(frame)

	if d.first == nil {
		d.first = thumb
		d.analyzed++
		return false
	}

	if d.analyzed >= d.warmup && meanAbsDiff(d.first, thumb) <= d.threshold {
		return true
	}
	d.analyzed++
	return false
}

// grayThumb downscales a frame to a 32x32 grayscale fingerprint.
func grayThumb(frame image.Image) []byte {
	small := resize.Resize(thumbEdge, thumbEdge, frame, resize.Bilinear)

	out := make([]byte, thumbEdge*thumbEdge)
	for y := 0; y < thumbEdge; y++ {
		for x := 0; x < thumbEdge; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			// Rec. 601 luma, on 16-bit channel values.
			luma := (299*r + 587*g + 114*b) / 1000
			out[y*thumbEdge+x] = byte(luma >> 8)
		}
	}
	return out
}

func meanAbsDiff(a, b []byte) float64 {
	var sum uint64
	for i := range a {
		diff := int(a[i]) - int(b[i])
		if diff < 0 {
			diff = -diff
		}
		sum += uint64(diff)
	}
	return float64(sum) / float64(len(a))
}

