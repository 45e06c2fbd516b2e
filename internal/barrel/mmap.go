package barrel

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/wire"
)

// MMapBarrel is the plain, read-only memory-mapped variant built by the
// offline index pipeline: a single postings.bin file mapped whole, with a
// word_index -> (offset, length) offsets table. It has no append/compact
// operations — spec §9 names the LSM variant as authoritative for the
// running service; MMapBarrel is kept for completeness and for serving a
// barrel that has no pending writes at all.
type MMapBarrel struct {
	mu      sync.RWMutex
	dir     string
	file    *os.File
	mm      mmap.MMap
	offsets baseOffsets
}

// OpenMMapBarrel opens barrelDir's postings.bin/offsets.json. A missing
// postings.bin is treated as an empty barrel (offline pipeline may emit
// barrels with no base records yet).
func OpenMMapBarrel(barrelDir string) (*MMapBarrel, error) {
	offsets, err := loadBaseOffsets(filepath.Join(barrelDir, offsetsFile))
	if err != nil {
		return nil, err
	}

	b := &MMapBarrel{dir: barrelDir, offsets: offsets}

	f, err := os.Open(filepath.Join(barrelDir, postingsFile))
	if os.IsNotExist(err) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", postingsFile, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", postingsFile, err)
	}
	if info.Size() == 0 {
		b.file = f
		return b, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", postingsFile, err)
	}
	b.file, b.mm = f, m
	return b, nil
}

// Get returns the posting list decoded from the base file's mapped span
// for wordIndex, or an empty result if wordIndex has no base record.
func (b *MMapBarrel) Get(wordIndex int) ([]doc.Hitlist, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	span, ok := b.offsets[wordIndex]
	if !ok || b.mm == nil {
		return nil, nil
	}
	if span.Offset < 0 || span.Offset+span.Length > int64(len(b.mm)) {
		return nil, fmt.Errorf("%w: span %+v out of bounds (mmap len %d)", errCorrupt, span, len(b.mm))
	}
	blob := b.mm[span.Offset : span.Offset+span.Length]
	hitlists, err := wire.DecodePostingList(blob)
	if err != nil {
		return nil, fmt.Errorf("decode posting for word_index %d: %w", wordIndex, err)
	}
	return hitlists, nil
}

// Close unmaps the base file and closes its handle.
func (b *MMapBarrel) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.mm != nil {
		if err := b.mm.Unmap(); err != nil {
			errs = append(errs, err)
		}
		b.mm = nil
	}
	if b.file != nil {
		if err := b.file.Close(); err != nil {
			errs = append(errs, err)
		}
		b.file = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close barrel %s: %v", b.dir, errs)
	}
	return nil
}
