package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/semantic"
)

const testPaperJSON = `{
  "metadata": {"title": "Graph Theory Basics", "authors": ["Ada Lovelace"]},
  "abstract": [{"text": "graph theory fundamentals"}],
  "body_text": [{"text": "graph graph graph"}],
  "bib_entries": {},
  "ref_entries": {},
  "back_matter": []
}`

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func setupEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()

	mustWriteFile(t, filepath.Join(dir, "barrels_index.json"),
		`{"quantum": [0, 0], "entanglement": [0, 1], "graph": [0, 2]}`)
	mustWriteFile(t, filepath.Join(dir, "mappings", "doc_id_to_url.json"),
		`{"0": "http://example.com/quantum"}`)
	mustWriteFile(t, filepath.Join(dir, "semantic", "word2vec.txt"),
		"quantum 1.0 0.0\ngraph 0.0 1.0\nnovel 1.0 0.0\n")
	mustWriteFile(t, filepath.Join(dir, "semantic", "idf.json"),
		`{"quantum": 1.0, "graph": 1.0, "novel": 1.0}`)

	if err := semantic.SaveEmbeddingRows(filepath.Join(dir, "semantic", "html_embeddings.bin"), [][]float32{{1, 0}}); err != nil {
		t.Fatalf("seed html embeddings: %v", err)
	}

	cfg := DefaultConfig(dir)
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !e.semanticAvailable {
		t.Fatal("expected semantic layer to load")
	}
	return e, dir
}

func seedHTMLDoc(t *testing.T, e *Engine) {
	t.Helper()
	b := e.barrels[0]
	if b == nil {
		t.Fatal("expected barrel 0 to be open")
	}
	quantumHits := doc.Hitlist{DocID: doc.NewHTMLID(0), Counters: doc.NewHTMLCounters()}
	quantumHits.Counters[doc.HTMLTotal] = 2
	quantumHits.Counters[doc.HTMLDocLength] = 60
	quantumHits.AddPosition(5)
	quantumHits.AddPosition(50)

	entanglementHits := doc.Hitlist{DocID: doc.NewHTMLID(0), Counters: doc.NewHTMLCounters()}
	entanglementHits.Counters[doc.HTMLTotal] = 1
	entanglementHits.Counters[doc.HTMLDocLength] = 60
	entanglementHits.AddPosition(6)

	if err := b.AppendDelta(0, []doc.Hitlist{quantumHits}); err != nil {
		t.Fatalf("seed quantum posting: %v", err)
	}
	if err := b.AppendDelta(1, []doc.Hitlist{entanglementHits}); err != nil {
		t.Fatalf("seed entanglement posting: %v", err)
	}
}

func TestSearchFindsHTMLDocByKeywordIntersection(t *testing.T) {
	e, _ := setupEngine(t)
	seedHTMLDoc(t, e)

	results, err := e.Search(context.Background(), "quantum entanglement", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	if results[0].DocID != doc.NewHTMLID(0) {
		t.Fatalf("DocID = %v, want H0", results[0].DocID)
	}
	if results[0].KeywordScore <= 0 {
		t.Fatalf("expected positive keyword score, got %v", results[0].KeywordScore)
	}
}

func TestSearchFindsPaperDocAfterIngestAndMerge(t *testing.T) {
	e, _ := setupEngine(t)

	docID, err := e.IndexPaper(context.Background(), []byte(testPaperJSON), "http://example.org/paper")
	if err != nil {
		t.Fatalf("IndexPaper: %v", err)
	}
	if docID != "P0" {
		t.Fatalf("docID = %v, want P0", docID)
	}
	if err := e.MergeBarrel(0); err != nil {
		t.Fatalf("MergeBarrel: %v", err)
	}

	results, err := e.Search(context.Background(), "graph", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	if results[0].DocID != doc.NewPaperID(0) {
		t.Fatalf("DocID = %v, want P0", results[0].DocID)
	}
	if results[0].Title != "Graph Theory Basics" {
		t.Fatalf("Title = %q, want %q", results[0].Title, "Graph Theory Basics")
	}
}

func TestSearchFallsBackToSemanticWhenNoKeywordMatch(t *testing.T) {
	e, _ := setupEngine(t)
	seedHTMLDoc(t, e)

	// "novel" is absent from barrels_index.json, so no document can satisfy
	// the keyword intersection; the engine should fall back to pure
	// cosine-similarity ranking over the embedding matrix (which has one
	// HTML row, seeded identical to "quantum"/"novel"'s direction).
	results, err := e.Search(context.Background(), "novel", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected semantic fallback to return at least one result")
	}
	if results[0].KeywordScore != 0 {
		t.Fatalf("expected fallback result to carry no keyword score, got %v", results[0].KeywordScore)
	}
	if results[0].SemanticScore <= 0 {
		t.Fatalf("expected positive semantic score, got %v", results[0].SemanticScore)
	}
}

func TestSearchEmptyQueryReturnsEmptyList(t *testing.T) {
	e, _ := setupEngine(t)
	results, err := e.Search(context.Background(), "", SearchOptions{})
	if err != nil {
		t.Fatalf("Search(\"\") error = %v, want nil", err)
	}
	if len(results) != 0 {
		t.Fatalf("Search(\"\") = %+v, want empty list", results)
	}
}

func TestStateReflectsIngestedDocuments(t *testing.T) {
	e, _ := setupEngine(t)
	if _, err := e.IndexPaper(context.Background(), []byte(testPaperJSON), ""); err != nil {
		t.Fatalf("IndexPaper: %v", err)
	}
	st := e.State()
	if st.TotalDocuments != 1 {
		t.Fatalf("TotalDocuments = %d, want 1", st.TotalDocuments)
	}
	if !st.SemanticAvailable {
		t.Fatal("expected SemanticAvailable true")
	}
}

func TestRelatedExcludesSelfAndFindsNearestEmbedding(t *testing.T) {
	e, _ := setupEngine(t)

	e.IndexEmbedding(doc.NewHTMLID(0), []float32{1, 0, 0})
	e.IndexEmbedding(doc.NewHTMLID(1), []float32{0.9, 0.1, 0})
	e.IndexEmbedding(doc.NewHTMLID(2), []float32{0, 0, 1})

	hits, err := e.Related(doc.NewHTMLID(0), 1)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != doc.NewHTMLID(1) {
		t.Fatalf("Related(H0, 1) = %+v, want [H1]", hits)
	}
}

func TestCompactBarrelPreservesPostings(t *testing.T) {
	e, _ := setupEngine(t)
	seedHTMLDoc(t, e)

	if err := e.CompactBarrel(0); err != nil {
		t.Fatalf("CompactBarrel: %v", err)
	}

	results, err := e.Search(context.Background(), "quantum", SearchOptions{})
	if err != nil {
		t.Fatalf("Search after compact: %v", err)
	}
	if len(results) != 1 || results[0].DocID != doc.NewHTMLID(0) {
		t.Fatalf("Search after compact = %+v, want [H0]", results)
	}
}

func TestShutdownFlushesCacheAndMerges(t *testing.T) {
	e, dir := setupEngine(t)
	seedHTMLDoc(t, e)
	if _, err := e.IndexPaper(context.Background(), []byte(testPaperJSON), ""); err != nil {
		t.Fatalf("IndexPaper: %v", err)
	}
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mappings", "paper_info.json")); err != nil {
		t.Fatalf("expected paper_info.json to be persisted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "word_cache.bin")); err != nil {
		t.Fatalf("expected word cache snapshot to be written: %v", err)
	}
	if pending := e.PendingBarrels(); len(pending) != 0 {
		t.Fatalf("PendingBarrels after Shutdown = %v, want none", pending)
	}
}
