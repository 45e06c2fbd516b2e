// Package hitlist implements the two hitlist builders of spec.md §4.2/§4.3:
// a structured walk over a paper's JSON sections, and an HTML zone-aware
// walk over extracted page text. Grounded on
// _examples/original_source/FileHandler/file_handler.py's
// process_json_file for the paper path.
package hitlist

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/token"
)

// PaperSection names the fixed walk order used when building paper
// hitlists. title, abstract, and authors all feed the "golden zone" group
// (group 1); body_text feeds group 2; bib_entries/ref_entries/back_matter
// feed group 3.
type PaperSection int

// PaperDoc is the subset of a research-paper JSON document the hitlist
// builder walks. Field shapes mirror the original corpus's layout: abstract
// and body_text are paragraph lists, bib_entries/ref_entries are keyed
// maps, authors may be either plain strings or objects with string fields.
//
// bib_entries and ref_entries are kept as raw JSON rather than decoded into
// a Go map: Go randomizes map iteration order, but the walker's shared
// position counter must visit records in the same order every run (spec
// §4.2's fixed section order) — so these are walked key-by-key straight off
// the wire via orderedPairs instead.
type PaperDoc struct {
	Metadata struct {
		Title   string            `json:"title"`
		Authors []json.RawMessage `json:"authors"`
	} `json:"metadata"`
	Abstract   []struct{ Text string } `json:"abstract"`
	BodyText   []struct{ Text string } `json:"body_text"`
	BibEntries json.RawMessage         `json:"bib_entries"`
	RefEntries json.RawMessage         `json:"ref_entries"`
	BackMatter []struct{ Text string } `json:"back_matter"`
}

// rawPair is one key/value entry of a JSON object, in source order.
type rawPair struct {
	Key   string
	Value json.RawMessage
}

// orderedPairs decodes a JSON object's top-level entries preserving their
// original source order (encoding/json's map-based decoding does not).
// Returns nil for an empty/absent/malformed object rather than an error —
// callers treat a missing section the same as an empty one.
func orderedPairs(raw json.RawMessage) []rawPair {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	var out []rawPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return out
		}
		key, ok := keyTok.(string)
		if !ok {
			return out
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return out
		}
		out = append(out, rawPair{Key: key, Value: val})
	}
	return out
}

// ParsePaperDoc unmarshals raw JSON bytes into a PaperDoc. A malformed
// document is the caller's IngestMalformed condition.
func ParsePaperDoc(raw []byte) (*PaperDoc, error) {
	var p PaperDoc
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse paper document: %w", err)
	}
	return &p, nil
}

// walker accumulates per-word position lists and zone counters while
// walking a document section by section, in order, with a single running
// position counter shared across all sections.
type walker struct {
	pos       int
	positions map[string][]uint16
	group1    map[string]uint32
	group2    map[string]uint32
	group3    map[string]uint32
}

func newWalker() *walker {
	return &walker{
		positions: make(map[string][]uint16),
		group1:    make(map[string]uint32),
		group2:    make(map[string]uint32),
		group3:    make(map[string]uint32),
	}
}

// emit records one token occurrence into the given zone's counter and,
// subject to the position cap, the word's position list. The running
// position counter always advances, regardless of whether the cap was hit
// (spec §9: position cap gates the list, not the counters).
func (w *walker) emit(tok string, group map[string]uint32) {
	if len(w.positions[tok]) < doc.MaxPositions {
		w.positions[tok] = append(w.positions[tok], uint16(w.pos))
	}
	group[tok]++
	w.pos++
}

func (w *walker) emitAll(text string, group map[string]uint32) {
	for _, tok := range token.Tokenize(text) {
		w.emit(tok, group)
	}
}

// BuildPaper walks p in the fixed section order (title, abstract, authors,
// body_text, bib_entries titles, ref_entries text, back_matter) and returns
// a hitlist per word with non-zero total, plus the final document length.
func BuildPaper(docID doc.ID, p *PaperDoc) (map[string]doc.Hitlist, int) {
	w := newWalker()

	w.emitAll(p.Metadata.Title, w.group1)
	for _, a := range p.Abstract {
		w.emitAll(a.Text, w.group1)
	}
	for _, raw := range p.Metadata.Authors {
		walkAuthor(w, raw)
	}
	for _, b := range p.BodyText {
		w.emitAll(b.Text, w.group2)
	}
	for _, kv := range orderedPairs(p.BibEntries) {
		var entry struct{ Title string }
		if json.Unmarshal(kv.Value, &entry) == nil {
			w.emitAll(entry.Title, w.group3)
		}
	}
	for _, kv := range orderedPairs(p.RefEntries) {
		var entry struct{ Text string }
		if json.Unmarshal(kv.Value, &entry) == nil {
			w.emitAll(entry.Text, w.group3)
		}
	}
	for _, b := range p.BackMatter {
		w.emitAll(b.Text, w.group3)
	}

	docLength := w.pos
	out := make(map[string]doc.Hitlist)
	words := make(map[string]struct{})
	for word := range w.group1 {
		words[word] = struct{}{}
	}
	for word := range w.group2 {
		words[word] = struct{}{}
	}
	for word := range w.group3 {
		words[word] = struct{}{}
	}
	for word := range words {
		g1, g2, g3 := w.group1[word], w.group2[word], w.group3[word]
		total := g1 + g2 + g3
		if total == 0 {
			continue
		}
		counters := doc.NewPaperCounters()
		counters[doc.PaperGolden] = g1
		counters[doc.PaperBody] = g2
		counters[doc.PaperOther] = g3
		counters[doc.PaperTotal] = total
		counters[doc.PaperDocLength] = uint32(docLength)
		out[word] = doc.Hitlist{
			DocID:     docID,
			Positions: w.positions[word],
			Counters:  counters,
		}
	}
	return out, docLength
}

// walkAuthor tokenizes an author entry: a plain JSON string is tokenized
// directly, an object has every string-valued field tokenized in the
// object's original field order.
func walkAuthor(w *walker, raw json.RawMessage) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		w.emitAll(s, w.group1)
		return
	}
	for _, kv := range orderedPairs(raw) {
		var v string
		if json.Unmarshal(kv.Value, &v) == nil {
			w.emitAll(v, w.group1)
		}
	}
}
