package matching

import (
	"github.com/agnivade/levenshtein"
)

const (
	// MatchThreshold is the minimum similarity accepted as a fuzzy match
	MatchThreshold = 0.75

	// strongMatchScore lets the candidate scan stop early once a score
	// this high has been seen
	strongMatchScore = 0.80

	// firstWordScore is the synthetic similarity assigned by the
	// first-significant-word shortcut. A heuristic, not proof of identity.
	firstWordScore = 0.95

	// shortNameLimit bounds the inputs that get exact edit distance;
	// longer names use the approximate blend to avoid O(n*m) per candidate
	shortNameLimit = 15

	// affixWindow is how many leading/trailing characters the approximate
	// mode compares
	affixWindow = 10
)

// Similarity scores the closeness of two normalized names in [0,1].
// Symmetric, and 1.0 for identical inputs.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) <= shortNameLimit && len(rb) <= shortNameLimit {
		return editSimilarity(a, b, len(ra), len(rb))
	}
	return approxSimilarity(ra, rb)
}

// editSimilarity is classic Levenshtein similarity: (maxLen - dist) / maxLen
func editSimilarity(a, b string, la, lb int) float64 {
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	if dist > maxLen {
		dist = maxLen
	}
	return float64(maxLen-dist) / float64(maxLen)
}

// approxSimilarity blends character-set Jaccard similarity with prefix and
// suffix match ratios (0.6/0.2/0.2). Names whose lengths differ by more
// than half the longer length are rejected outright.
func approxSimilarity(a, b []rune) float64 {
	la, lb := len(a), len(b)
	longer, diff := la, la-lb
	if lb > la {
		longer, diff = lb, lb-la
	}
	if float64(diff) > float64(longer)*0.5 {
		return 0
	}

	return 0.6*jaccard(a, b) + 0.2*prefixRatio(a, b) + 0.2*suffixRatio(a, b)
}

// jaccard compares the character sets of both names
func jaccard(a, b []rune) float64 {
	setA := make(map[rune]struct{}, len(a))
	for _, r := range a {
		setA[r] = struct{}{}
	}
	setB := make(map[rune]struct{}, len(b))
	for _, r := range b {
		setB[r] = struct{}{}
	}

	intersection := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// prefixRatio is the share of matching positions among the first
// affixWindow characters
func prefixRatio(a, b []rune) float64 {
	window := affixWindow
	if len(a) < window {
		window = len(a)
	}
	if len(b) < window {
		window = len(b)
	}
	if window == 0 {
		return 0
	}

	matches := 0
	for i := 0; i < window; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(window)
}

// suffixRatio is the same comparison taken from the ends of both names
func suffixRatio(a, b []rune) float64 {
	window := affixWindow
	if len(a) < window {
		window = len(a)
	}
	if len(b) < window {
		window = len(b)
	}
	if window == 0 {
		return 0
	}

	matches := 0
	for i := 1; i <= window; i++ {
		if a[len(a)-i] == b[len(b)-i] {
			matches++
		}
	}
	return float64(matches) / float64(window)
}
