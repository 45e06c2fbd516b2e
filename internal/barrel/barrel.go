// Package barrel implements the per-barrel persistent inverted store
// (spec.md §4.4): a plain memory-mapped variant ("MMapBarrel") and the
// authoritative log-structured base+delta variant ("LSMBarrel") that
// supports append and compaction. Grounded on
// _examples/original_source/MMapBarrel/MMapBarrel.py and
// MMapBarrel/LSMBarrel.py for the algorithms, and
// _examples/go-mizu-mizu/blueprints/localbase/pkg/storage/driver/local/mmap_unix.go
// for the Go mmap handle lifecycle.
package barrel

import (
	"fmt"

	"github.com/screenager/bsearch/internal/doc"
)

const (
	postingsFile      = "postings.bin"
	offsetsFile       = "offsets.json"
	deltaPostingsFile = "delta_postings.bin"
	deltaOffsetsFile  = "delta_offsets.json"
)

// Store is the read side every barrel variant implements: fetch the
// posting list for a word index.
type Store interface {
	// Get returns the posting list for wordIndex. A word_index with no
	// base or delta record returns an empty, nil-error result.
	Get(wordIndex int) ([]doc.Hitlist, error)
	Close() error
}

// Appender is implemented by barrel variants that support incremental
// writes (LSMBarrel). MMapBarrel does not implement it — the plain variant
// is a read-only artifact of the offline build pipeline.
type Appender interface {
	AppendDelta(wordIndex int, postings []doc.Hitlist) error
}

// Compactor is implemented by barrel variants that support merging deltas
// into the base file.
type Compactor interface {
	Compact() error
}

// errCorrupt is wrapped into errors raised when an offsets table or posting
// blob fails to parse. Get itself returns (nil, nil) for an absent word
// index, matching the original's empty-list behavior — this is reserved for
// genuine decode failures.
var errCorrupt = fmt.Errorf("barrel: corrupt artifact")
