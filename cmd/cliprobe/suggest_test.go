package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ── levenshtein tests ────────────────────────────────────────────────

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"abc", "abc", 0},
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"cat", "car", 1},  // substitution
		{"cat", "cats", 1}, // insertion
		{"cats", "cat", 1}, // deletion
		{"kitten", "sitting", 3},
		{"abc", "xyz", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q -> %q", tt.a, tt.b)
	}
}

func TestLevenshtein_Symmetric(t *testing.T) {
	assert.Equal(t, levenshtein("abc", "def"), levenshtein("def", "abc"))
}

// ── suggest tests ────────────────────────────────────────────────────

func TestSuggest_CategoryTypo(t *testing.T) {
	suggestions := suggest("securty", categoryNames())
	assert.NotEmpty(t, suggestions)
	assert.Equal(t, "security", suggestions[0])
}

func TestSuggest_CommandTypo(t *testing.T) {
	assert.Contains(t, suggest("analyse", commandNames), "analyze")
}

func TestSuggest_NoMatch(t *testing.T) {
	assert.Empty(t, suggest("zzzzzzzzzzzzzzzzzzz", categoryNames()))
}

func TestSuggest_MaxThree(t *testing.T) {
	suggestions := suggest("aax", []string{"aaa", "aab", "aac", "aad", "aae"})
	assert.Len(t, suggestions, 3)
	assert.Equal(t, []string{"aaa", "aab", "aac"}, suggestions)
}

func TestSuggest_ExactMatchExcluded(t *testing.T) {
	assert.Empty(t, suggest("basic", []string{"basic"}))
}

func TestSuggest_SortedByDistance(t *testing.T) {
	suggestions := suggest("multi-shel", categoryNames())
	if assert.NotEmpty(t, suggestions) {
		assert.Equal(t, "multi-shell", suggestions[0])
	}
	for i := 1; i < len(suggestions); i++ {
		assert.LessOrEqual(t,
			levenshtein("multi-shel", suggestions[i-1]),
			levenshtein("multi-shel", suggestions[i]))
	}
}

func TestSuggest_EmptyCandidates(t *testing.T) {
	assert.Empty(t, suggest("basic", nil))
}
