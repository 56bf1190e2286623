package match_test

import (
	"testing"

	"github.com/jmorand/cadenza/internal/domain/match"
)

func TestSimilarityBounds(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 100},
		{"x", "", 0},
		{"", "x", 0},
		{"Clarity", "Clarity", 100},
		{"CLARITY", "clarity", 100},
	}

	for _, tt := range tests {
		if got := match.Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilaritySymmetry(t *testing.T) {
	pairs := [][2]string{
		{"Night Owl", "Nite Owl"},
		{"Radiohead", "Radio head"},
		{"a", "xyz"},
		{"Los Angeles", "los angeles police dept."},
	}
	for _, p := range pairs {
		ab := match.Similarity(p[0], p[1])
		ba := match.Similarity(p[1], p[0])
		if ab != ba {
			t.Errorf("Similarity(%q, %q) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 100 {
			t.Errorf("Similarity(%q, %q) = %v out of [0,100]", p[0], p[1], ab)
		}
	}
}

func TestEvaluateWeightedThreshold(t *testing.T) {
	// Exact title and artist with a completely different album scores
	// 0.4*100 + 0.4*100 + 0.2*0 = 80, which passes the 60 gate.
	q := match.Query{Title: "Midnight City", Artist: "M83", Album: "Hurry Up, We're Dreaming"}
	c := match.Candidate{Title: "Midnight City", Artist: "M83", Album: "zzzzzzzzzzzzzz"}
	if !match.Evaluate(q, c, match.DefaultThreshold) {
		t.Error("exact title/artist with mismatched album should pass")
	}
}

func TestEvaluateIndividualGate(t *testing.T) {
	// Title similarity below the threshold must reject the candidate even
	// if artist and album are perfect (composite would be 72).
	q := match.Query{Title: "Midnight City", Artist: "M83", Album: "Hurry Up"}
	c := match.Candidate{Title: "qqqqqqqqqqqqq", Artist: "M83", Album: "Hurry Up"}
	if match.Evaluate(q, c, match.DefaultThreshold) {
		t.Error("candidate with failing title similarity should be rejected")
	}
}

func TestEvaluateSubstringShortCircuit(t *testing.T) {
	// "Blinding Lights" contains "Blinding Lights (Radio Edit)"? No, the
	// other way around: the candidate embeds the query, so containment
	// short-circuits title similarity to 100.
	q := match.Query{Title: "Blinding Lights", Artist: "The Weeknd", Album: "After Hours"}
	c := match.Candidate{Title: "Blinding Lights (Radio Edit)", Artist: "The Weeknd", Album: "After Hours"}
	if !match.Evaluate(q, c, match.DefaultThreshold) {
		t.Error("candidate whose title embeds the query title should pass")
	}
}

func TestCleanAlbum(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Nectar - Single", "Nectar"},
		{"Nectar — EP", "Nectar"},
		{"Nectar – Single", "Nectar"},
		{"Plain Album", "Plain Album"},
		{"Singular", "Singular"},
	}
	for _, tt := range tests {
		if got := match.CleanAlbum(tt.in); got != tt.want {
			t.Errorf("CleanAlbum(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
