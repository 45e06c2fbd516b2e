// Package wire implements the compact, self-describing binary codec shared
// by barrel posting files, the word-cache snapshot, and the embedding-matrix
// file (spec.md §6). It is the same magic-byte-header +
// accumulate-first-error binaryWriter/binaryReader shape as
// internal/hnsw/persist.go, generalized from an HNSW graph to posting lists
// and raw float32 matrices.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/screenager/bsearch/internal/doc"
)

var magic = [4]byte{'B', 'S', 'R', 'C'}

const formatVersion = uint16(1)

// EncodePostingList serializes a slice of hitlists into the compact binary
// format used by base and delta posting records alike.
//
// Format:
//
//	[4]byte magic
//	uint16  version
//	uint32  count
//	--- per hitlist ---
//	uint16  docIDLen
//	byte    docID[docIDLen]
//	uint8   positionCount
//	uint16  position[positionCount]
//	uint8   counterCount
//	uint32  counter[counterCount]
func EncodePostingList(hitlists []doc.Hitlist) ([]byte, error) {
	var buf writeBuf
	w := &binaryWriter{w: &buf}

	w.write(magic)
	w.writeU16(formatVersion)
	writeHitlists(w, hitlists)
	if w.err != nil {
		return nil, fmt.Errorf("encode posting list: %w", w.err)
	}
	return buf.b, nil
}

func writeHitlists(w *binaryWriter, hitlists []doc.Hitlist) {
	w.writeU32(uint32(len(hitlists)))
	for _, h := range hitlists {
		id := []byte(h.DocID)
		w.writeU16(uint16(len(id)))
		w.write(id)
		w.writeU8(uint8(len(h.Positions)))
		for _, p := range h.Positions {
			w.writeU16(p)
		}
		w.writeU8(uint8(len(h.Counters)))
		for _, c := range h.Counters {
			w.writeU32(c)
		}
	}
}

func readHitlists(r *binaryReader) []doc.Hitlist {
	count := r.readU32()
	if r.err != nil {
		return nil
	}
	out := make([]doc.Hitlist, count)
	for i := range out {
		idLen := r.readU16()
		id := make([]byte, idLen)
		r.read(id)
		posCount := r.readU8()
		var positions []uint16
		if posCount > 0 {
			positions = make([]uint16, posCount)
		}
		for j := range positions {
			positions[j] = r.readU16()
		}
		counterCount := r.readU8()
		counters := make([]uint32, counterCount)
		for j := range counters {
			counters[j] = r.readU32()
		}
		out[i] = doc.Hitlist{DocID: doc.ID(id), Positions: positions, Counters: counters}
	}
	return out
}

// DecodePostingList deserializes a posting list previously written by
// EncodePostingList.
func DecodePostingList(b []byte) ([]doc.Hitlist, error) {
	r := &binaryReader{r: newReadBuf(b)}

	var gotMagic [4]byte
	r.read(&gotMagic)
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: bad magic bytes", ErrCorrupt)
	}
	version := r.readU16()
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	out := readHitlists(r)
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, r.err)
	}
	return out, nil
}

// ErrCorrupt is returned (wrapped) when a blob fails to decode — header
// mismatch, version mismatch, or a short read.
var ErrCorrupt = fmt.Errorf("wire: corrupt artifact")

// writeBuf is a minimal growable byte sink implementing io.Writer, avoiding
// a bytes.Buffer import for this hot path (matches the teacher's preference
// for small, direct helpers over a heavier abstraction).
type writeBuf struct{ b []byte }

func (w *writeBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

type readBuf struct {
	b   []byte
	pos int
}

func newReadBuf(b []byte) *readBuf { return &readBuf{b: b} }

func (r *readBuf) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

// binaryWriter wraps an io.Writer and accumulates the first error, exactly
// as internal/hnsw/persist.go's binaryWriter does.
type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) write(v interface{}) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}
func (bw *binaryWriter) writeU8(v uint8)   { bw.write(v) }
func (bw *binaryWriter) writeU16(v uint16) { bw.write(v) }
func (bw *binaryWriter) writeU32(v uint32) { bw.write(v) }
func (bw *binaryWriter) writeF32(v float32) { bw.write(v) }

// binaryReader wraps an io.Reader and accumulates the first error.
type binaryReader struct {
	r   io.Reader
	err error
}

func (br *binaryReader) read(v interface{}) {
	if br.err != nil {
		return
	}
	br.err = binary.Read(br.r, binary.LittleEndian, v)
}
func (br *binaryReader) readU8() uint8 {
	var v uint8
	br.read(&v)
	return v
}
func (br *binaryReader) readU16() uint16 {
	var v uint16
	br.read(&v)
	return v
}
func (br *binaryReader) readU32() uint32 {
	var v uint32
	br.read(&v)
	return v
}
func (br *binaryReader) readF32() float32 {
	var v float32
	br.read(&v)
	return v
}

// EncodeCacheSnapshot serializes the word-posting cache (word -> posting
// list) into a single blob, using the same per-hitlist layout as
// EncodePostingList.
func EncodeCacheSnapshot(entries map[string][]doc.Hitlist) ([]byte, error) {
	var buf writeBuf
	w := &binaryWriter{w: &buf}

	w.write(magic)
	w.writeU16(formatVersion)
	w.writeU32(uint32(len(entries)))
	for word, hitlists := range entries {
		wb := []byte(word)
		w.writeU16(uint16(len(wb)))
		w.write(wb)
		writeHitlists(w, hitlists)
	}
	if w.err != nil {
		return nil, fmt.Errorf("encode cache snapshot: %w", w.err)
	}
	return buf.b, nil
}

// DecodeCacheSnapshot deserializes a blob previously written by
// EncodeCacheSnapshot.
func DecodeCacheSnapshot(b []byte) (map[string][]doc.Hitlist, error) {
	r := &binaryReader{r: newReadBuf(b)}

	var gotMagic [4]byte
	r.read(&gotMagic)
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: bad magic bytes", ErrCorrupt)
	}
	if v := r.readU16(); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	wordCount := r.readU32()
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, r.err)
	}
	out := make(map[string][]doc.Hitlist, wordCount)
	for i := uint32(0); i < wordCount; i++ {
		wLen := r.readU16()
		wb := make([]byte, wLen)
		r.read(wb)
		out[string(wb)] = readHitlists(r)
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, r.err)
	}
	return out, nil
}

// EncodeFloat32Matrix serializes a row-major dense matrix for the
// embedding-matrix file.
func EncodeFloat32Matrix(rows [][]float32) ([]byte, error) {
	var buf writeBuf
	w := &binaryWriter{w: &buf}

	w.write(magic)
	w.writeU16(formatVersion)
	w.writeU32(uint32(len(rows)))
	dim := 0
	if len(rows) > 0 {
		dim = len(rows[0])
	}
	w.writeU32(uint32(dim))
	for _, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("encode matrix: ragged row (want dim %d, got %d)", dim, len(row))
		}
		for _, v := range row {
			w.writeF32(v)
		}
	}
	if w.err != nil {
		return nil, fmt.Errorf("encode matrix: %w", w.err)
	}
	return buf.b, nil
}

// DecodeFloat32Matrix deserializes a matrix previously written by
// EncodeFloat32Matrix.
func DecodeFloat32Matrix(b []byte) ([][]float32, error) {
	r := &binaryReader{r: newReadBuf(b)}

	var gotMagic [4]byte
	r.read(&gotMagic)
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: bad magic bytes", ErrCorrupt)
	}
	if v := r.readU16(); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	rowCount := r.readU32()
	dim := r.readU32()
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, r.err)
	}
	rows := make([][]float32, rowCount)
	for i := range rows {
		row := make([]float32, dim)
		for j := range row {
			row[j] = r.readF32()
		}
		rows[i] = row
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, r.err)
	}
	return rows, nil
}
