package related

import (
	"path/filepath"
	"testing"

	"github.com/screenager/bsearch/internal/doc"
)

func normalize(v []float32) []float32 {
	var sumSq float32
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return v
	}
	inv := float32(1) / sqrt32(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

func sqrt32(x float32) float32 {
	// Newton's method is overkill here; a handful of fixture vectors only
	// need a couple of iterations to converge well past float32 precision.
	guess := x
	for i := 0; i < 20; i++ {
		guess = 0.5 * (guess + x/guess)
	}
	return guess
}

func TestRelatedExcludesSelfAndRanksBySimilarity(t *testing.T) {
	idx := New(16, 200, 50)
	idx.Insert(doc.NewHTMLID(0), normalize([]float32{1, 0, 0}))
	idx.Insert(doc.NewHTMLID(1), normalize([]float32{0.9, 0.1, 0}))
	idx.Insert(doc.NewPaperID(0), normalize([]float32{0, 1, 0}))

	hits, err := idx.Related(doc.NewHTMLID(0), 2)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one related document")
	}
	for _, h := range hits {
		if h.DocID == doc.NewHTMLID(0) {
			t.Fatal("Related must not include the query document itself")
		}
	}
	if hits[0].DocID != doc.NewHTMLID(1) {
		t.Fatalf("closest related doc = %s, want %s", hits[0].DocID, doc.NewHTMLID(1))
	}
}

func TestRelatedUnknownDocumentErrors(t *testing.T) {
	idx := New(16, 200, 50)
	idx.Insert(doc.NewHTMLID(0), []float32{1, 0})
	if _, err := idx.Related(doc.NewHTMLID(99), 1); err == nil {
		t.Fatal("expected error for unindexed document")
	}
}

func TestQueryOnEmptyIndexReturnsNil(t *testing.T) {
	idx := New(16, 200, 50)
	if hits := idx.Query([]float32{1, 0}, 5); hits != nil {
		t.Fatalf("Query on empty index = %v, want nil", hits)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New(16, 200, 50)
	idx.Insert(doc.NewHTMLID(0), normalize([]float32{1, 0, 0}))
	idx.Insert(doc.NewHTMLID(1), normalize([]float32{0.8, 0.2, 0}))
	idx.Insert(doc.NewPaperID(3), normalize([]float32{0, 0, 1}))

	path := filepath.Join(t.TempDir(), "related.bin")
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != idx.Len() {
		t.Fatalf("loaded.Len() = %d, want %d", loaded.Len(), idx.Len())
	}

	hits, err := loaded.Related(doc.NewHTMLID(0), 1)
	if err != nil {
		t.Fatalf("Related on loaded index: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != doc.NewHTMLID(1) {
		t.Fatalf("Related on loaded index = %+v, want [%s]", hits, doc.NewHTMLID(1))
	}
}
