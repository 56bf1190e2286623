// Package animate turns Apple Music animated artwork into a looping GIF:
// scrape the track page for the HLS master playlist, pick a square H.264
// variant, decode frames through ffmpeg, cut the stream at the first loop
// point, and encode the result in memory.
package animate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jmorand/cadenza/internal/infra/providers"
)

// Square variants outside this resolution window are rejected; smaller
// ones look bad, larger ones waste transcode time for artwork-sized output.
const (
	minResolution = 800
	maxResolution = 1200
)

// Variant is one stream alternative from an HLS master playlist.
type Variant struct {
	URL        string
	Bandwidth  uint64
	Resolution int
}

// ParseVariants reads an HLS master playlist and keeps only the usable
// variants: H.264 (avc1) codec, square resolution inside the accepted
// window, and a declared bandwidth.
func ParseVariants(r io.Reader) ([]Variant, error) {
	var variants []Variant
	var attrLine string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			attrLine = line
			continue
		}
		if strings.HasPrefix(line, "#") || attrLine == "" {
			continue
		}

		// This line is the variant URI for the attribute line above.
		uri := line
		attrs := attrLine
		attrLine = ""

		if !strings.Contains(playlistAttr(attrs, "CODECS"), "avc1") {
			continue
		}

		resolution, ok := squareResolution(playlistAttr(attrs, "RESOLUTION"))
		if !ok {
			continue
		}

		bandwidth, err := strconv.ParseUint(playlistAttr(attrs, "BANDWIDTH"), 10, 64)
		if err != nil {
			continue
		}

		variants = append(variants, Variant{
			URL:        uri,
			Bandwidth:  bandwidth,
			Resolution: resolution,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}

	return variants, nil
}

// PickVariant selects the best variant: highest resolution, then highest
// bandwidth.
func PickVariant(variants []Variant) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}

	best := variants[0]
	for _, v := range variants[1:] {
		if v.Resolution > best.Resolution ||
			(v.Resolution == best.Resolution && v.Bandwidth > best.Bandwidth) {
			best = v
		}
	}
	return best, true
}

// FetchVariants downloads and parses the master playlist at url.
func FetchVariants(ctx context.Context, client *http.Client, url string) ([]Variant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build playlist request: %w", err)
	}
	req.Header.Set("User-Agent", providers.BrowserUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("playlist returned status %d", resp.StatusCode)
	}

	variants, err := ParseVariants(resp.Body)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("variants", len(variants)).Str("url", url).Msg("Parsed master playlist")
	return variants, nil
}

// playlistAttr extracts one attribute value from an #EXT-X-STREAM-INF
// attribute list, honoring quoted values.
func playlistAttr(line, key string) string {
	idx := strings.Index(line, key+"=")
	if idx < 0 {
		return ""
	}

	rest := line[idx+len(key)+1:]
	if strings.HasPrefix(rest, `"`) {
		rest = rest[1:]
		if end := strings.Index(rest, `"`); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	if end := strings.Index(rest, ","); end >= 0 {
		return rest[:end]
	}
	return rest
}

// squareResolution parses "WxH" and accepts only squares inside the
// resolution window.
func squareResolution(value string) (int, bool) {
	x := strings.Index(value, "x")
	if x < 0 {
		return 0, false
	}

	width, errW := strconv.Atoi(value[:x])
	height, errH := strconv.Atoi(value[x+1:])
	if errW != nil || errH != nil {
		return 0, false
	}
	if width != height {
		return 0, false
	}
	if height < minResolution || height > maxResolution {
		return 0, false
	}
	return height, true
}
