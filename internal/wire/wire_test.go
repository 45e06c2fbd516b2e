package wire

import (
	"reflect"
	"testing"

	"github.com/screenager/bsearch/internal/doc"
)

func TestPostingListRoundTrip(t *testing.T) {
	in := []doc.Hitlist{
		{DocID: "H0", Positions: []uint16{1, 4, 9}, Counters: []uint32{1, 0, 0, 1, 0, 0, 0, 40}},
		{DocID: "P3", Positions: nil, Counters: []uint32{2, 1, 0, 3, 50}},
	}
	b, err := EncodePostingList(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodePostingList(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestDecodePostingListBadMagic(t *testing.T) {
	if _, err := DecodePostingList([]byte{0, 0, 0, 0}); err == nil {
		t.Fatal("expected error for bad magic, got nil")
	}
}

func TestCacheSnapshotRoundTrip(t *testing.T) {
	in := map[string][]doc.Hitlist{
		"alpha": {{DocID: "H1", Positions: []uint16{0}, Counters: doc.NewHTMLCounters()}},
		"beta":  {{DocID: "P2", Positions: []uint16{3, 5}, Counters: doc.NewPaperCounters()}},
	}
	b, err := EncodeCacheSnapshot(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeCacheSnapshot(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestFloat32MatrixRoundTrip(t *testing.T) {
	in := [][]float32{
		{0.1, 0.2, 0.3},
		{1.0, -1.0, 0.5},
	}
	b, err := EncodeFloat32Matrix(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeFloat32Matrix(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestEncodeFloat32MatrixRaggedRowsRejected(t *testing.T) {
	_, err := EncodeFloat32Matrix([][]float32{{1, 2}, {1}})
	if err == nil {
		t.Fatal("expected error for ragged rows, got nil")
	}
}
