// Package semantic implements the dense semantic layer (spec §4.6): a
// stacked HTML-then-paper embedding matrix with precomputed row norms, a
// word2vec lookup, an IDF table, TF-IDF weighted query embedding, and a
// single matrix-vector cosine scoring pass. This layer stays pure Go over
// float32 slices — it is a static average, not a neural forward pass, so it
// is not built on the teacher's ONNX stack (see internal/neural for that
// enrichment). Grounded on
// _examples/original_source/engine/search_engine.py's
// _initialize_norms/compute_tf/query_to_embedding/get_semantic_scores.
package semantic

import (
	"fmt"
	"math"
	"sync"

	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/token"
)

// Model holds the immutable word2vec table and IDF map loaded at startup.
type Model struct {
	Vectors map[string][]float32
	IDF     map[string]float64
	Dim     int
}

// Lookup returns word's embedding vector and whether it is present in the
// vocabulary.
func (m *Model) Lookup(word string) ([]float32, bool) {
	v, ok := m.Vectors[word]
	return v, ok
}

// IDFFor returns word's IDF weight, 0 if absent from the table.
func (m *Model) IDFFor(word string) float64 { return m.IDF[word] }

// Matrix is the append-only, row-major dense embedding matrix: HTML rows
// first (in insertion order), then paper rows. Row i maps to doc ID H{i} if
// i < htmlCount else P{i - htmlCount} (spec §3). Protected by mu since
// ingest appends new paper rows concurrently with reads.
type Matrix struct {
	mu        sync.RWMutex
	rows      [][]float32
	norms     []float32
	htmlCount int
	dim       int
}

// NewMatrix stacks htmlRows atop paperRows (HTML first, per spec §3) and
// precomputes per-row L2 norms, clamping zero norms to 1.
func NewMatrix(htmlRows, paperRows [][]float32, dim int) *Matrix {
	rows := make([][]float32, 0, len(htmlRows)+len(paperRows))
	rows = append(rows, htmlRows...)
	rows = append(rows, paperRows...)
	m := &Matrix{rows: rows, htmlCount: len(htmlRows), dim: dim}
	m.norms = make([]float32, len(rows))
	for i, row := range rows {
		m.norms[i] = clampNorm(l2Norm(row))
	}
	return m
}

func clampNorm(n float32) float32 {
	if n == 0 {
		return 1
	}
	return n
}

func l2Norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// AppendPaperRow appends a new paper document's embedding to the end of the
// matrix (paper rows always come after all HTML rows) and recomputes its
// norm. No deletion is supported, matching spec §4.6.
func (m *Matrix) AppendPaperRow(row []float32) (rowIndex int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(row) != m.dim && m.dim != 0 {
		return 0, fmt.Errorf("append paper row: dim mismatch (want %d, got %d)", m.dim, len(row))
	}
	m.rows = append(m.rows, row)
	m.norms = append(m.norms, clampNorm(l2Norm(row)))
	return len(m.rows) - 1, nil
}

// HTMLCount returns the number of HTML rows at the front of the matrix.
func (m *Matrix) HTMLCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.htmlCount
}

// Split returns copies of the HTML and paper row blocks, for persisting the
// two embedding-matrix files back to disk at shutdown.
func (m *Matrix) Split() (htmlRows, paperRows [][]float32) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	htmlRows = make([][]float32, m.htmlCount)
	copy(htmlRows, m.rows[:m.htmlCount])
	paperRows = make([][]float32, len(m.rows)-m.htmlCount)
	copy(paperRows, m.rows[m.htmlCount:])
	return htmlRows, paperRows
}

// DocIDForRow maps a row index to a document ID per the prefix rule in
// spec §3.
func (m *Matrix) DocIDForRow(row int) doc.ID {
	m.mu.RLock()
	htmlCount := m.htmlCount
	m.mu.RUnlock()
	if row < htmlCount {
		return doc.NewHTMLID(row)
	}
	return doc.NewPaperID(row - htmlCount)
}

// ComputeTF returns term frequency (count/total) for each token in tokens.
func ComputeTF(tokens []string) map[string]float64 {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	total := float64(len(tokens))
	tf := make(map[string]float64, len(counts))
	if total == 0 {
		return tf
	}
	for word, n := range counts {
		tf[word] = float64(n) / total
	}
	return tf
}

// QueryEmbedding computes the TF-IDF weighted average embedding for tokens:
// for each token present in the vocabulary, accumulate
// tf*idf (idf 0 if absent) times its vector, weighted by tf*idf; return the
// weighted mean, or a zero vector if no token contributed.
func QueryEmbedding(m *Model, tokens []string) []float32 {
	tf := ComputeTF(tokens)
	sum := make([]float32, m.Dim)
	var weight float64
	for word, freq := range tf {
		vec, ok := m.Lookup(word)
		if !ok {
			continue
		}
		tfidf := freq * m.IDFFor(word)
		for i, x := range vec {
			sum[i] += float32(tfidf) * x
		}
		weight += tfidf
	}
	if weight == 0 {
		return make([]float32, m.Dim)
	}
	out := make([]float32, len(sum))
	for i, x := range sum {
		out[i] = x / float32(weight)
	}
	return out
}

// Scores computes the cosine similarity of a query against every row of
// the matrix in one pass, keyed by doc ID. query is raw text; Scores
// tokenizes it with token.TokenizeEmbedding. An empty query vector (zero
// IDF-weight across all tokens) yields an empty map, matching spec §4.6.
func Scores(m *Model, matrix *Matrix, query string) map[doc.ID]float64 {
	tokens := token.TokenizeEmbedding(query)
	qvec := QueryEmbedding(m, tokens)
	qnorm := l2Norm(qvec)
	if qnorm == 0 {
		return map[doc.ID]float64{}
	}
	normalized := make([]float32, len(qvec))
	for i, x := range qvec {
		normalized[i] = x / qnorm
	}

	matrix.mu.RLock()
	defer matrix.mu.RUnlock()

	out := make(map[doc.ID]float64, len(matrix.rows))
	for i, row := range matrix.rows {
		var dot float64
		for j, x := range row {
			if j >= len(normalized) {
				break
			}
			dot += float64(x) * float64(normalized[j])
		}
		sim := dot / float64(matrix.norms[i])
		var id doc.ID
		if i < matrix.htmlCount {
			id = doc.NewHTMLID(i)
		} else {
			id = doc.NewPaperID(i - matrix.htmlCount)
		}
		out[id] = sim
	}
	return out
}
