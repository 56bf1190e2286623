// Package match implements the fuzzy track matching shared by all provider
// adapters: normalized-case Levenshtein similarity with a substring
// short-circuit, combined into a weighted title/artist/album score.
package match

import "strings"

const (
	// DefaultThreshold is the generosity threshold (percent) that both the
	// weighted composite and the individual title/artist similarities must
	// clear for a candidate to be accepted.
	DefaultThreshold = 60.0

	// MinSubstringLen is the minimum normalized length for the
	// one-string-contains-the-other short-circuit. Shorter strings produce
	// too much edit-distance noise to trust containment.
	MinSubstringLen = 5

	// Composite weights. These add up to 1.
	titleWeight  = 0.4
	artistWeight = 0.4
	albumWeight  = 0.2
)

// Similarity returns a 0..100 similarity score between two strings:
// (maxLen - editDistance) / maxLen * 100, case-insensitive. Two empty
// strings are identical (100); one empty string scores 0.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 100.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	s1 := strings.ToLower(a)
	s2 := strings.ToLower(b)

	dist := float64(levenshtein(s1, s2))
	maxLen := float64(max(len(s1), len(s2)))
	return (maxLen - dist) / maxLen * 100.0
}

// FieldSimilarity applies the substring short-circuit before falling back
// to plain edit-distance similarity.
func FieldSimilarity(query, candidate string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(strings.TrimSpace(candidate))

	if len(q) >= MinSubstringLen && len(c) >= MinSubstringLen &&
		(strings.Contains(q, c) || strings.Contains(c, q)) {
		return 100.0
	}
	return Similarity(q, c)
}

// Candidate is one search result to score against the query.
type Candidate struct {
	Title  string
	Artist string
	Album  string
}

// Query is what the session observer reported.
type Query struct {
	Title  string
	Artist string
	Album  string
}

// Evaluate scores a candidate against a query. A candidate is accepted only
// when the weighted composite AND the individual title and artist scores all
// clear the threshold. Album comparison is lenient: single/EP suffixes are
// stripped first because album formatting varies widely across providers.
func Evaluate(q Query, c Candidate, threshold float64) bool {
	title := FieldSimilarity(q.Title, c.Title)
	artist := FieldSimilarity(q.Artist, c.Artist)
	album := FieldSimilarity(CleanAlbum(q.Album), CleanAlbum(c.Album))

	if title < threshold || artist < threshold {
		return false
	}

	composite := titleWeight*title + artistWeight*artist + albumWeight*album
	return composite >= threshold
}

// CleanAlbum strips the "- Single" / "- EP" style suffixes Apple Music and
// friends append to album names. All common dash variants are handled.
func CleanAlbum(album string) string {
	trimmed := strings.TrimSpace(album)
	for _, dash := range []string{"-", "–", "—"} {
		for _, kind := range []string{"Single", "EP"} {
			suffix := " " + dash + " " + kind
			if strings.HasSuffix(trimmed, suffix) {
				return strings.TrimSpace(strings.TrimSuffix(trimmed, suffix))
			}
		}
	}
	return trimmed
}

func levenshtein(s1, s2 string) int {
	len1, len2 := len(s1), len(s2)

	prev := make([]int, len2+1)
	curr := make([]int, len2+1)
	for j := 0; j <= len2; j++ {
		prev[j] = j
	}

	for i := 1; i <= len1; i++ {
		curr[0] = i
		for j := 1; j <= len2; j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len2]
}
