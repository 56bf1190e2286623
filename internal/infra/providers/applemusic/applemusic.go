// Package applemusic scrapes the Apple Music web search page. There is no
// public catalog API without a developer token, but the storefront search
// page carries everything needed: track permalinks and srcset artwork URLs
// that can be rewritten to an exact size.
package applemusic

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/jmorand/cadenza/internal/domain/match"
	"github.com/jmorand/cadenza/internal/infra/providers"
)

// TargetSize is the artwork size requested from Apple's image CDN by
// rewriting the size component of the srcset URL.
const TargetSize = "800x800bb-60"

// DefaultThreshold is the similarity gate for search-result matching.
const DefaultThreshold = 60.0

var (
	srcsetURLRe = regexp.MustCompile(`https?://[^ ,]+`)
	sizeRe      = regexp.MustCompile(`\d+x\d+bb-\d+`)
)

// Scraper searches one Apple Music storefront region.
type Scraper struct {
	region    string
	client    *http.Client
	threshold float64
}

// New creates a scraper for the given storefront region. The region must
// already be validated with ValidRegion.
func New(region string, client *http.Client, threshold float64) *Scraper {
	return &Scraper{
		region:    region,
		client:    client,
		threshold: threshold,
	}
}

// Name implements providers.Searcher.
func (s *Scraper) Name() string {
	return "applemusic"
}

// Search fetches the storefront search page for "title album artist" and
// scans the result list for the first entry whose title and artist both
// match the query.
func (s *Scraper) Search(ctx context.Context, title, artist, album string) (providers.Result, error) {
	term := url.QueryEscape(title + " " + album + " " + artist)
	searchURL := fmt.Sprintf("https://music.apple.com/%s/search?term=%s", s.region, term)

	log.Debug().Str("url", searchURL).Msg("Performing Apple Music search")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return providers.Result{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", providers.BrowserUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return providers.Result{}, fmt.Errorf("perform search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.Result{}, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return providers.Result{}, fmt.Errorf("parse search page: %w", err)
	}

	return s.extract(doc, title, artist), nil
}

func (s *Scraper) extract(doc *html.Node, title, artist string) providers.Result {
	searchRoot := findDivWithClass(doc, "desktop-search-page")
	if searchRoot == nil {
		log.Debug().Msg("Could not find search results container in Apple Music page")
		return providers.Result{}
	}

	item := s.findMatchingItem(searchRoot, title, artist)
	if item == nil {
		log.Debug().Msg("No matching track found in Apple Music results")
		return providers.Result{}
	}

	var out providers.Result
	if anchor := findDescendantWithAttr(item, "a", "data-testid", "click-action"); anchor != nil {
		out.URL = attrValue(anchor, "href")
	}
	if source := findDescendantWithAttr(item, "source", "type", "image/jpeg"); source != nil {
		out.ImageURL = rewriteArtworkURL(attrValue(source, "srcset"))
	}
	return out
}

// rewriteArtworkURL extracts the first URL from a srcset and pins its size
// component to TargetSize. A URL without a size component passes through
// untouched.
func rewriteArtworkURL(srcset string) string {
	raw := srcsetURLRe.FindString(srcset)
	if raw == "" {
		return ""
	}
	if !sizeRe.MatchString(raw) {
		return raw
	}
	return sizeRe.ReplaceAllString(raw, TargetSize)
}

// findMatchingItem walks the result list for the first li whose lockup
// title and subtitle both match the query.
func (s *Scraper) findMatchingItem(node *html.Node, title, artist string) *html.Node {
	for current := node; current != nil; current = current.NextSibling {
		if current.Type == html.ElementNode && current.Data == "li" && s.itemMatches(current, title, artist) {
			return current
		}
		if current.FirstChild != nil {
			if found := s.findMatchingItem(current.FirstChild, title, artist); found != nil {
				return found
			}
		}
	}
	return nil
}

func (s *Scraper) itemMatches(item *html.Node, title, artist string) bool {
	titleNode := findDescendantWithAttr(item, "", "data-testid", "track-lockup-title")
	artistNode := findDescendantWithAttr(item, "span", "data-testid", "track-lockup-subtitle")
	if titleNode == nil || artistNode == nil {
		return false
	}

	foundTitle := normalize(textContent(titleNode))
	foundArtist := normalize(textContent(artistNode))
	if foundTitle == "" || foundArtist == "" {
		return false
	}

	titleOK := match.FieldSimilarity(foundTitle, title) >= s.threshold ||
		strings.Contains(foundTitle, normalize(title))
	artistOK := match.FieldSimilarity(foundArtist, artist) >= s.threshold ||
		strings.Contains(foundArtist, normalize(artist))
	return titleOK && artistOK
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func attrValue(node *html.Node, name string) string {
	for _, attr := range node.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

// textContent collects the text of a node and all its descendants.
func textContent(node *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return sb.String()
}

// findDescendantWithAttr finds the first element (optionally restricted to
// tag) carrying attr=value, searching node and its siblings depth-first.
func findDescendantWithAttr(node *html.Node, tag, attr, value string) *html.Node {
	for current := node; current != nil; current = current.NextSibling {
		if current.Type == html.ElementNode && (tag == "" || current.Data == tag) {
			if attrValue(current, attr) == value {
				return current
			}
		}
		if current.FirstChild != nil {
			if found := findDescendantWithAttr(current.FirstChild, tag, attr, value); found != nil {
				return found
			}
		}
	}
	return nil
}

// findDivWithClass finds the first div whose class attribute contains the
// given class name.
func findDivWithClass(node *html.Node, class string) *html.Node {
	for current := node; current != nil; current = current.NextSibling {
		if current.Type == html.ElementNode && current.Data == "div" &&
			strings.Contains(attrValue(current, "class"), class) {
			return current
		}
		if current.FirstChild != nil {
			if found := findDivWithClass(current.FirstChild, class); found != nil {
				return found
			}
		}
	}
	return nil
}
