package applemusic

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/jmorand/cadenza/internal/infra/providers"
)

// AnimatedArtworkURL fetches an Apple Music track page and extracts the
// HLS playlist URL of its animated artwork, if the track has one. Returns
// an empty string with a nil error when the page has no video artwork.
func AnimatedArtworkURL(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", providers.BrowserUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch track page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("track page returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse track page: %w", err)
	}

	container := findDivWithClass(doc, "content-container")
	if container == nil {
		log.Debug().Str("url", pageURL).Msg("Track page has no content container")
		return "", nil
	}

	video := findDivWithClass(container, "video-artwork__container")
	if video == nil {
		log.Debug().Str("url", pageURL).Msg("Track has no animated artwork")
		return "", nil
	}

	// The playlist URL sits on the container's first child element.
	for child := video.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		if src := attrValue(child, "src"); src != "" {
			return src, nil
		}
	}
	return "", nil
}
