// Package token implements the two text-normalization modes the engine uses
// to turn raw text into an ordered sequence of lowercase tokens: a
// structured mode for walking JSON paper fields, and an unstructured mode
// for HTML body text and user queries.
package token

import (
	"strings"
	"unicode"
)

// Tokenize implements the structured normalizer. For each rune: if it is
// alphanumeric or its value is >= 128, it is lowercased and appended to the
// current word buffer; any other rune flushes the buffer (if non-empty) as a
// token and resets it. The final buffer is flushed at the end.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	var tokens []string
	var buf strings.Builder
	for _, r := range s {
		if isWordRune(r) {
			buf.WriteRune(toLowerRune(r))
			continue
		}
		if buf.Len() > 0 {
			tokens = append(tokens, buf.String())
			buf.Reset()
		}
	}
	if buf.Len() > 0 {
		tokens = append(tokens, buf.String())
	}
	return tokens
}

func isWordRune(r rune) bool {
	if r >= 128 {
		return true
	}
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	if r >= 128 {
		return unicode.ToLower(r)
	}
	return r
}

// Mode selects the punctuation-stripping rule for the unstructured
// normalizer, mirroring the two query variants of the original engine.
type Mode int

const (
	// ModeRPS strips punctuation entirely, except where it sits between two
	// digits (preserving "3.14", "1,000").
	ModeRPS Mode = iota
	// ModeHTML replaces punctuation with a space unless it sits between two
	// digits.
	ModeHTML
)

// TokenizeUnstructured implements the unstructured normalizer used for HTML
// body text and queries: newlines become spaces, punctuation is stripped or
// replaced with a space per mode (preserving punctuation surrounded by
// digits on both sides), whitespace is collapsed, the result is lowercased
// and split on single spaces.
func TokenizeUnstructured(s string, mode Mode) []string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	out := make([]rune, 0, len(runes))
	for i, r := range runes {
		if !isPunct(r) {
			out = append(out, r)
			continue
		}
		if digitBefore(runes, i) && digitAfter(runes, i) {
			out = append(out, r)
			continue
		}
		if mode == ModeHTML {
			out = append(out, ' ')
		}
		// ModeRPS drops the rune entirely.
	}
	collapsed := strings.Join(strings.Fields(strings.ToLower(string(out))), " ")
	if collapsed == "" {
		return nil
	}
	return strings.Split(collapsed, " ")
}

func digitBefore(runes []rune, i int) bool {
	return i > 0 && isDigit(runes[i-1])
}

func digitAfter(runes []rune, i int) bool {
	return i+1 < len(runes) && isDigit(runes[i+1])
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// TokenizeQueryPaper tokenizes a query the way paper-class documents are
// matched: punctuation fully stripped (the "rps" variant).
func TokenizeQueryPaper(s string) []string { return TokenizeUnstructured(s, ModeRPS) }

// TokenizeQueryHTML tokenizes a query the way HTML documents are matched:
// punctuation replaced with a space (the "html" variant).
func TokenizeQueryHTML(s string) []string { return TokenizeUnstructured(s, ModeHTML) }

// TokenizeEmbedding implements the semantic layer's text normalizer (spec
// §4.6), used only to turn query/document text into the words looked up in
// the word2vec/TF-IDF embedding tables. This is deliberately simpler than
// the keyword-query tokenizers above: lowercase, then drop every rune that
// isn't a-z, 0-9, or whitespace, with no digit-adjacency or hyphen
// exception — so "3.14" becomes "314" and "state-of-the-art" becomes
// "stateoftheart", a single token. Grounded on the ground truth's
// unconditional `re.sub(r'[^a-z0-9\s]', '', text.lower()).split()`.
func TokenizeEmbedding(s string) []string {
	lower := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	fields := strings.Fields(b.String())
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// isPunct reports whether r is neither alphanumeric, >= 128, nor whitespace —
// i.e. it is a candidate for stripping/replacement by the unstructured rule.
// Hyphen is treated as a word-joining character (never stripped, never a
// delimiter) so hyphenated tokens like "b-c" survive intact.
func isPunct(r rune) bool {
	if r >= 128 || r == '-' {
		return false
	}
	if r == ' ' || r == '\t' || r == '\r' {
		return false
	}
	if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
		return false
	}
	return true
}
