// Package fuzzy provides normalized string similarity for heuristic duplicate matching.
package fuzzy

import (
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Normalize lowercases s, collapses internal whitespace to single spaces and trims it.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity returns the Indel ratio of the normalized inputs:
// 2*LCS(a, b) / (len(a) + len(b)), measured in runes.
// Identical strings score 1.0 and strings sharing no characters score 0.0.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	total := utf8.RuneCountInString(na) + utf8.RuneCountInString(nb)
	if total == 0 {
		return 1.0
	}
	if na == nb {
		return 1.0
	}
	return float64(2*edlib.LCS(na, nb)) / float64(total)
}

// Matcher adapts Similarity to the heuristic-match port used by the dedup engine.
type Matcher struct{}

// Similarity implements the matcher port.
func (Matcher) Similarity(a, b string) float64 {
	return Similarity(a, b)
}
