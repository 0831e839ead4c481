package catalog

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Document text weighting. Repeating a field raises its share of the
// embedding; these counts must match the text the model was tuned on.
const (
	titleRepeats   = 2
	genreRepeats   = 3
	keywordRepeats = 4

	// Plots must be longer than minPlotChars to be included, and are cut
	// at maxPlotChars characters.
	minPlotChars = 10
	maxPlotChars = 400
)

// DocumentText composes the text embedded for an item:
// title, genres and keywords repeated, a truncated plot, and a
// "<year> film rated <rating>" trailer when the year is known.
func DocumentText(it Item) string {
	var parts []string

	if it.Title != "" {
		parts = append(parts, repeat(it.Title, titleRepeats))
	}
	if g := it.GenreString(); g != "" {
		parts = append(parts, repeat(g, genreRepeats))
	}
	if k := it.KeywordString(); k != "" {
		parts = append(parts, repeat(k, keywordRepeats))
	}
	if utf8.RuneCountInString(it.Plot) > minPlotChars {
		parts = append(parts, truncateRunes(it.Plot, maxPlotChars))
	}
	if it.Year != "" {
		parts = append(parts, it.Year+" film rated "+formatRating(it.Rating))
	}

	return strings.Join(parts, " ")
}

// DocumentTexts returns DocumentText for every item in ordinal order.
func (c *Catalog) DocumentTexts() []string {
	texts := make([]string, len(c.items))
	for i, it := range c.items {
		texts[i] = DocumentText(it)
	}
	return texts
}

func repeat(s string, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return strings.Join(out, " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// formatRating renders whole ratings with one decimal ("8.0") and keeps
// the shortest exact form otherwise ("7.25").
func formatRating(r float64) string {
	s := strconv.FormatFloat(r, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
