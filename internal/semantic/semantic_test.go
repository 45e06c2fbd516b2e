package semantic

import (
	"math"
	"testing"
)

func approxEqual(a, b, eps float64) bool { return math.Abs(a-b) < eps }

func TestQueryEmbeddingWeightedAverage(t *testing.T) {
	m := &Model{
		Vectors: map[string][]float32{
			"alpha": {1, 0},
			"beta":  {0, 1},
		},
		IDF: map[string]float64{
			"alpha": 2.0,
			"beta":  1.0,
		},
		Dim: 2,
	}
	vec := QueryEmbedding(m, []string{"alpha", "beta"})
	// tf(alpha)=0.5, tf(beta)=0.5; tfidf_alpha=1.0, tfidf_beta=0.5
	// sum = 1.0*(1,0) + 0.5*(0,1) = (1.0, 0.5); weight = 1.5
	wantX, wantY := float32(1.0/1.5), float32(0.5/1.5)
	if !approxEqual(float64(vec[0]), float64(wantX), 1e-4) || !approxEqual(float64(vec[1]), float64(wantY), 1e-4) {
		t.Fatalf("QueryEmbedding = %v, want (%v, %v)", vec, wantX, wantY)
	}
}

func TestQueryEmbeddingNoVocabMatchIsZero(t *testing.T) {
	m := &Model{Vectors: map[string][]float32{}, IDF: map[string]float64{}, Dim: 3}
	vec := QueryEmbedding(m, []string{"unknown"})
	for _, x := range vec {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", vec)
		}
	}
}

func TestScoresEmptyQueryYieldsEmptyMap(t *testing.T) {
	m := &Model{Vectors: map[string][]float32{}, IDF: map[string]float64{}, Dim: 2}
	matrix := NewMatrix([][]float32{{1, 0}}, nil, 2)
	scores := Scores(m, matrix, "")
	if len(scores) != 0 {
		t.Fatalf("expected empty scores map, got %v", scores)
	}
}

func TestScoresMatrixVectorCosine(t *testing.T) {
	m := &Model{
		Vectors: map[string][]float32{"graph": {1, 0}},
		IDF:     map[string]float64{"graph": 1.0},
		Dim:     2,
	}
	html := [][]float32{{1, 0}}    // H0: identical direction to query
	paper := [][]float32{{0, 1}}   // P0: orthogonal to query
	matrix := NewMatrix(html, paper, 2)

	scores := Scores(m, matrix, "graph")
	if got := scores["H0"]; !approxEqual(got, 1.0, 1e-6) {
		t.Fatalf("H0 score = %v, want ~1.0", got)
	}
	if got := scores["P0"]; !approxEqual(got, 0.0, 1e-6) {
		t.Fatalf("P0 score = %v, want ~0.0", got)
	}
}

func TestMatrixZeroNormClampedToOne(t *testing.T) {
	matrix := NewMatrix([][]float32{{0, 0}}, nil, 2)
	if matrix.norms[0] != 1 {
		t.Fatalf("expected zero norm clamped to 1, got %v", matrix.norms[0])
	}
}

func TestMatrixAppendPaperRowAndDocIDForRow(t *testing.T) {
	matrix := NewMatrix([][]float32{{1, 0}}, nil, 2)
	idx, err := matrix.AppendPaperRow([]float32{0, 1})
	if err != nil {
		t.Fatalf("AppendPaperRow: %v", err)
	}
	if matrix.DocIDForRow(idx) != "P0" {
		t.Fatalf("DocIDForRow(%d) = %v, want P0", idx, matrix.DocIDForRow(idx))
	}
	if matrix.DocIDForRow(0) != "H0" {
		t.Fatalf("DocIDForRow(0) = %v, want H0", matrix.DocIDForRow(0))
	}
}
