// Package doc defines the document-identity and hitlist types shared across
// the engine. The one-character prefix on a DocID is the only run-time
// discriminator between document classes; Class and ClassOf model that as a
// small tagged variant rather than scattering prefix checks everywhere.
package doc

import (
	"fmt"
	"strconv"
	"strings"
)

// Class is the document class tag, dispatched on by scorers and hitlist
// builders.
type Class int

const (
	// ClassUnknown is the zero value; ClassOf returns it for malformed IDs.
	ClassUnknown Class = iota
	ClassHTML
	ClassPaper
)

func (c Class) String() string {
	switch c {
	case ClassHTML:
		return "html"
	case ClassPaper:
		return "paper"
	default:
		return "unknown"
	}
}

// ID is a typed document identifier: a one-character class prefix followed
// by a dense per-class integer assigned at ingest.
type ID string

// NewHTMLID formats the ID for the n-th HTML document.
func NewHTMLID(n int) ID { return ID(fmt.Sprintf("H%d", n)) }

// NewPaperID formats the ID for the n-th paper document.
func NewPaperID(n int) ID { return ID(fmt.Sprintf("P%d", n)) }

// Class reports the document class encoded in the ID's prefix.
func (id ID) Class() Class {
	if id == "" {
		return ClassUnknown
	}
	switch id[0] {
	case 'H':
		return ClassHTML
	case 'P':
		return ClassPaper
	default:
		return ClassUnknown
	}
}

// Num returns the dense integer suffix of the ID.
func (id ID) Num() (int, error) {
	if len(id) < 2 {
		return 0, fmt.Errorf("doc id %q: no numeric suffix", id)
	}
	return strconv.Atoi(string(id[1:]))
}

// TrimPrefix returns the ID's numeric suffix as a string, used as the key
// into reference tables keyed by raw numeric id (e.g. doc_id_to_url).
func (id ID) TrimPrefix() string {
	return strings.TrimLeft(string(id), "HP")
}

// HTML counter indices, per spec §3: [title, meta, heading, total, href,
// in_domain, in_url, doc_length].
const (
	HTMLTitle = iota
	HTMLMeta
	HTMLHeading
	HTMLTotal
	HTMLHref
	HTMLInDomain
	HTMLInURL
	HTMLDocLength
	htmlCounterLen
)

// Paper counter indices, per spec §3: [golden_zone, body, other, total,
// doc_length].
const (
	PaperGolden = iota
	PaperBody
	PaperOther
	PaperTotal
	PaperDocLength
	paperCounterLen
)

// NewHTMLCounters returns a zeroed HTML counter vector.
func NewHTMLCounters() []uint32 { return make([]uint32, htmlCounterLen) }

// NewPaperCounters returns a zeroed paper counter vector.
func NewPaperCounters() []uint32 { return make([]uint32, paperCounterLen) }

// MaxPositions is the cap on retained token positions per (word, document)
// hitlist; overflow positions are dropped but still counted.
const MaxPositions = 15

// Hitlist is a per-(word, document) record: an ordered, capped list of
// token positions and a class-specific fixed-length counter vector.
type Hitlist struct {
	DocID     ID
	Positions []uint16
	Counters  []uint32
}

// AddPosition appends pos to the position list iff it has fewer than
// MaxPositions entries. Returns whether it was appended.
func (h *Hitlist) AddPosition(pos int) bool {
	if len(h.Positions) >= MaxPositions {
		return false
	}
	h.Positions = append(h.Positions, uint16(pos))
	return true
}

// FirstPosition returns the first recorded position and true, or (0, false)
// if the position list is empty.
func (h Hitlist) FirstPosition() (int, bool) {
	if len(h.Positions) == 0 {
		return 0, false
	}
	return int(h.Positions[0]), true
}
