// Package excerpt carves a bounded text window around a hitlist's token
// positions and marks query terms inside such a window. No other package
// of this module calls it: search results carry no snippet field, and
// neither the CLI nor the TUI renders excerpts. Grounded on
// internal/chunker/chunker.go's overlapping-window text splitting, adapted
// from "split a whole file into fixed windows" to "center a window on a
// specific token offset within already-tokenized text".
package excerpt

import "strings"

// DefaultRadius is the number of words kept on either side of a hit
// position, chosen to mirror the teacher's ~250-300 token default chunk
// size scaled down to a single-line search-result snippet.
const DefaultRadius = 12

// Window returns a snippet of words centered on positions[0], using words
// split from text on whitespace; later positions are not consulted. A first
// position outside the bounds of words is clamped to the nearest word. An
// empty positions slice or text produces an empty string.
func Window(text string, positions []int, radius int) string {
	if radius <= 0 {
		radius = DefaultRadius
	}
	words := strings.Fields(text)
	if len(words) == 0 || len(positions) == 0 {
		return ""
	}

	center := positions[0]
	if center < 0 {
		center = 0
	}
	if center >= len(words) {
		center = len(words) - 1
	}

	start := center - radius
	if start < 0 {
		start = 0
	}
	end := center + radius + 1
	if end > len(words) {
		end = len(words)
	}

	snippet := strings.Join(words[start:end], " ")
	if start > 0 {
		snippet = "… " + snippet
	}
	if end < len(words) {
		snippet = snippet + " …"
	}
	return snippet
}

// Highlight wraps every case-insensitive occurrence of any of terms in
// snippet with the given prefix/suffix markers (e.g. ANSI bold codes or
// "**"/"**" for markdown).
func Highlight(snippet string, terms []string, prefix, suffix string) string {
	if len(terms) == 0 {
		return snippet
	}
	words := strings.Fields(snippet)
	lowerTerms := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		lowerTerms[strings.ToLower(t)] = struct{}{}
	}
	for i, w := range words {
		trimmed := strings.Trim(w, ".,;:!?()[]{}\"'")
		if _, ok := lowerTerms[strings.ToLower(trimmed)]; ok {
			words[i] = prefix + w + suffix
		}
	}
	return strings.Join(words, " ")
}
