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

// LSMBarrel is the authoritative barrel variant (spec §9): an immutable
// mmap'd base file plus an append-only delta file, unioned on read and
// periodically merged by Compact. Grounded on
// _examples/original_source/MMapBarrel/LSMBarrel.py.
type LSMBarrel struct {
	mu  sync.RWMutex
	dir string

	baseFile *os.File
	baseMM   mmap.MMap
	base     baseOffsets

	deltaFile *os.File
	deltaMM   mmap.MMap
	delta     deltaOffsets
}

// OpenLSMBarrel opens (or creates, for the delta side) barrelDir's base and
// delta posting files.
func OpenLSMBarrel(barrelDir string) (*LSMBarrel, error) {
	if err := os.MkdirAll(barrelDir, 0o755); err != nil {
		return nil, fmt.Errorf("create barrel dir %s: %w", barrelDir, err)
	}

	base, err := loadBaseOffsets(filepath.Join(barrelDir, offsetsFile))
	if err != nil {
		return nil, err
	}
	delta, err := loadDeltaOffsets(filepath.Join(barrelDir, deltaOffsetsFile))
	if err != nil {
		return nil, err
	}

	b := &LSMBarrel{dir: barrelDir, base: base, delta: delta}

	if b.baseFile, b.baseMM, err = openMapped(filepath.Join(barrelDir, postingsFile), false); err != nil {
		return nil, fmt.Errorf("open base postings: %w", err)
	}
	if b.deltaFile, b.deltaMM, err = openMapped(filepath.Join(barrelDir, deltaPostingsFile), true); err != nil {
		return nil, fmt.Errorf("open delta postings: %w", err)
	}
	return b, nil
}

// openMapped opens path (creating an empty file if createIfMissing and it
// doesn't exist) and maps it read-only if it has non-zero size.
func openMapped(path string, createIfMissing bool) (*os.File, mmap.MMap, error) {
	flag := os.O_RDONLY
	if createIfMissing {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if os.IsNotExist(err) && !createIfMissing {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.Size() == 0 {
		return f, nil, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, m, nil
}

// Get concatenates the base record (if any) with every delta record (if
// any) for wordIndex — logical union of the two layers, per spec §4.4.
func (b *LSMBarrel) Get(wordIndex int) ([]doc.Hitlist, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getLocked(wordIndex)
}

func (b *LSMBarrel) getLocked(wordIndex int) ([]doc.Hitlist, error) {
	var out []doc.Hitlist

	if span, ok := b.base[wordIndex]; ok && b.baseMM != nil {
		blob, err := sliceSpan(b.baseMM, span)
		if err != nil {
			return nil, fmt.Errorf("base word_index %d: %w", wordIndex, err)
		}
		hitlists, err := wire.DecodePostingList(blob)
		if err != nil {
			return nil, fmt.Errorf("decode base word_index %d: %w", wordIndex, err)
		}
		out = append(out, hitlists...)
	}

	for _, span := range b.delta[wordIndex] {
		if b.deltaMM == nil {
			break
		}
		blob, err := sliceSpan(b.deltaMM, span)
		if err != nil {
			return nil, fmt.Errorf("delta word_index %d: %w", wordIndex, err)
		}
		hitlists, err := wire.DecodePostingList(blob)
		if err != nil {
			return nil, fmt.Errorf("decode delta word_index %d: %w", wordIndex, err)
		}
		out = append(out, hitlists...)
	}

	return out, nil
}

func sliceSpan(m mmap.MMap, span Span) ([]byte, error) {
	if span.Offset < 0 || span.Offset+span.Length > int64(len(m)) {
		return nil, fmt.Errorf("%w: span %+v out of bounds (mmap len %d)", errCorrupt, span, len(m))
	}
	return m[span.Offset : span.Offset+span.Length], nil
}

// AppendDelta serializes postings, appends the blob to the delta file,
// records its (offset, length) as a new entry for wordIndex, persists the
// offsets table (atomic rename), and remaps the delta file so subsequent
// reads see the new bytes. Per spec §4.4, multiple appends for the same
// word_index accumulate as separate records — no coalescing until
// compaction.
func (b *LSMBarrel) AppendDelta(wordIndex int, postings []doc.Hitlist) error {
	blob, err := wire.EncodePostingList(postings)
	if err != nil {
		return fmt.Errorf("encode delta for word_index %d: %w", wordIndex, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.unmapDeltaLocked(); err != nil {
		return fmt.Errorf("unmap delta before append: %w", err)
	}
	if b.deltaFile == nil {
		f, err := os.OpenFile(filepath.Join(b.dir, deltaPostingsFile), os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("open delta file: %w", err)
		}
		b.deltaFile = f
	}

	info, err := b.deltaFile.Stat()
	if err != nil {
		return fmt.Errorf("stat delta file: %w", err)
	}
	offset := info.Size()

	if _, err := b.deltaFile.WriteAt(blob, offset); err != nil {
		return fmt.Errorf("write delta append: %w", err)
	}
	if err := b.deltaFile.Sync(); err != nil {
		return fmt.Errorf("sync delta file: %w", err)
	}

	newDelta := cloneDeltaOffsets(b.delta)
	newDelta[wordIndex] = append(newDelta[wordIndex], Span{Offset: offset, Length: int64(len(blob))})
	if err := saveOffsets(filepath.Join(b.dir, deltaOffsetsFile), newDelta); err != nil {
		return fmt.Errorf("persist delta offsets: %w", err)
	}
	b.delta = newDelta

	return b.remapDeltaLocked()
}

func cloneDeltaOffsets(in deltaOffsets) deltaOffsets {
	out := make(deltaOffsets, len(in))
	for k, v := range in {
		spans := make([]Span, len(v))
		copy(spans, v)
		out[k] = spans
	}
	return out
}

func (b *LSMBarrel) unmapDeltaLocked() error {
	if b.deltaMM == nil {
		return nil
	}
	err := b.deltaMM.Unmap()
	b.deltaMM = nil
	return err
}

func (b *LSMBarrel) remapDeltaLocked() error {
	info, err := b.deltaFile.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	m, err := mmap.Map(b.deltaFile, mmap.RDONLY, 0)
	if err != nil {
		return err
	}
	b.deltaMM = m
	return nil
}

// Compact merges every word_index present in base or delta into a freshly
// written base file, then truncates the delta to empty. It holds the
// barrel's write lock for its whole run, so it waits for in-flight Get
// calls to finish and blocks new ones until the new base is mapped (spec
// §4.4).
func (b *LSMBarrel) Compact() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	indices := make(map[int]struct{})
	for idx := range b.base {
		indices[idx] = struct{}{}
	}
	for idx := range b.delta {
		indices[idx] = struct{}{}
	}

	merged := make(map[int][]doc.Hitlist, len(indices))
	for idx := range indices {
		hitlists, err := b.getLocked(idx)
		if err != nil {
			return fmt.Errorf("compact: read word_index %d: %w", idx, err)
		}
		merged[idx] = hitlists
	}

	if err := b.unmapBaseLocked(); err != nil {
		return fmt.Errorf("compact: unmap base: %w", err)
	}
	if b.baseFile != nil {
		if err := b.baseFile.Close(); err != nil {
			return fmt.Errorf("compact: close base file: %w", err)
		}
		b.baseFile = nil
	}

	newBase := make(baseOffsets, len(merged))
	basePath := filepath.Join(b.dir, postingsFile)
	tmp, err := os.CreateTemp(b.dir, ".tmp-base-*")
	if err != nil {
		return fmt.Errorf("compact: create temp base: %w", err)
	}
	tmpPath := tmp.Name()
	var cursor int64
	for idx, hitlists := range merged {
		blob, err := wire.EncodePostingList(hitlists)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("compact: encode word_index %d: %w", idx, err)
		}
		if _, err := tmp.Write(blob); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("compact: write word_index %d: %w", idx, err)
		}
		newBase[idx] = Span{Offset: cursor, Length: int64(len(blob))}
		cursor += int64(len(blob))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("compact: close temp base: %w", err)
	}
	if err := os.Rename(tmpPath, basePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("compact: rename new base: %w", err)
	}
	if err := saveOffsets(filepath.Join(b.dir, offsetsFile), newBase); err != nil {
		return fmt.Errorf("compact: persist base offsets: %w", err)
	}

	// Truncate delta to empty and write an empty delta offsets table.
	if err := b.unmapDeltaLocked(); err != nil {
		return fmt.Errorf("compact: unmap delta: %w", err)
	}
	if b.deltaFile != nil {
		if err := b.deltaFile.Truncate(0); err != nil {
			return fmt.Errorf("compact: truncate delta: %w", err)
		}
		if _, err := b.deltaFile.Seek(0, 0); err != nil {
			return fmt.Errorf("compact: seek delta: %w", err)
		}
	}
	if err := saveOffsets(filepath.Join(b.dir, deltaOffsetsFile), deltaOffsets{}); err != nil {
		return fmt.Errorf("compact: persist empty delta offsets: %w", err)
	}
	b.delta = deltaOffsets{}

	// Write the compaction-complete marker consumed by internal/watch.
	if err := atomicWrite(filepath.Join(b.dir, "compaction.complete"), []byte{}); err != nil {
		return fmt.Errorf("compact: write completion marker: %w", err)
	}

	// Reopen the base mmap.
	f, m, err := openMapped(basePath, false)
	if err != nil {
		return fmt.Errorf("compact: reopen base: %w", err)
	}
	b.baseFile, b.baseMM, b.base = f, m, newBase
	return nil
}

func (b *LSMBarrel) unmapBaseLocked() error {
	if b.baseMM == nil {
		return nil
	}
	err := b.baseMM.Unmap()
	b.baseMM = nil
	return err
}

// Close unmaps and closes both the base and delta files.
func (b *LSMBarrel) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if err := b.unmapBaseLocked(); err != nil {
		errs = append(errs, err)
	}
	if b.baseFile != nil {
		if err := b.baseFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.unmapDeltaLocked(); err != nil {
		errs = append(errs, err)
	}
	if b.deltaFile != nil {
		if err := b.deltaFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close barrel %s: %v", b.dir, errs)
	}
	return nil
}
