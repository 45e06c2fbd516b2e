// Package neural implements an optional cross-query reranking enrichment
// layered on top of the hybrid keyword/semantic ranking: a BGE-small-en-v1.5
// sentence encoder run through ONNX Runtime, scoring each candidate's
// excerpt against the query by cosine similarity. It is purely additive —
// the core scoring of internal/scoring and internal/semantic never depends
// on it — and degrades to "unavailable" when the model directory or the
// shared library is absent, matching spec §7's MissingOptionalArtifact
// policy. Grounded on internal/embed/embedder.go, generalized from
// "embed file chunks for storage" to "embed a query and a handful of
// candidate excerpts for on-demand reranking".
package neural

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	maxSeqLen    = 256
	embeddingDim = 384
	queryPrefix  = "Represent this sentence for searching relevant passages: "
)

// Reranker wraps an ONNX session and tokenizer used purely to re-score an
// already-retrieved candidate list; it never drives retrieval itself.
type Reranker struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
}

// Open loads the reranker model from modelDir (expects model.onnx and
// tokenizer.json), using ortLibPath as the ONNX Runtime shared library
// (empty string uses the system default). A missing model directory returns
// a "neural reranker unavailable" error; callers treat that nil,
// non-nil-error return as "feature unavailable" and fall back to
// keyword+semantic fusion alone.
func Open(modelDir, ortLibPath string, numThreads int) (*Reranker, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenPath := filepath.Join(modelDir, "tokenizer.json")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("neural reranker unavailable: %w", err)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, fmt.Errorf("neural reranker unavailable: %w", err)
	}

	if ortLibPath != "" {
		ort.SetSharedLibraryPath(ortLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set inter threads: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	return &Reranker{session: session, tokenizer: tk}, nil
}

// Close releases the ONNX session and tokenizer.
func (r *Reranker) Close() {
	if r.session != nil {
		r.session.Destroy()
	}
	if r.tokenizer != nil {
		r.tokenizer.Close()
	}
}

// Score embeds query (with the BGE asymmetric-retrieval instruction prefix)
// and every excerpt, returning their cosine similarities in input order.
func (r *Reranker) Score(query string, excerpts []string) ([]float32, error) {
	if len(excerpts) == 0 {
		return nil, nil
	}
	vecs, err := r.embed(append([]string{queryPrefix + query}, excerpts...))
	if err != nil {
		return nil, fmt.Errorf("embed query+excerpts: %w", err)
	}
	qvec := vecs[0]
	scores := make([]float32, len(excerpts))
	for i, v := range vecs[1:] {
		scores[i] = dot(qvec, v)
	}
	return scores, nil
}

// BenchmarkSingle embeds a single short text and returns phase timings for
// the bsearchctl bench command. Grounded on internal/embed/embedder.go's
// BenchmarkSingle, generalized from the file-chunk embedder's session to
// the reranker's.
func (r *Reranker) BenchmarkSingle(text string) (tokenize, inference, total time.Duration, err error) {
	t0 := time.Now()
	enc := r.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
	ids := enc.IDs
	if len(ids) > maxSeqLen {
		ids = ids[:maxSeqLen]
	}
	tokenize = time.Since(t0)

	ids64 := make([]int64, len(ids))
	mask64 := make([]int64, len(ids))
	flatType := make([]int64, len(ids))
	for j := range ids {
		ids64[j] = int64(ids[j])
		mask64[j] = 1
	}
	shape := ort.NewShape(1, int64(len(ids)))
	idsT, e2 := ort.NewTensor(shape, ids64)
	if e2 != nil {
		return 0, 0, 0, e2
	}
	defer idsT.Destroy()
	maskT, e2 := ort.NewTensor(shape, mask64)
	if e2 != nil {
		return 0, 0, 0, e2
	}
	defer maskT.Destroy()
	typT, e2 := ort.NewTensor(shape, flatType)
	if e2 != nil {
		return 0, 0, 0, e2
	}
	defer typT.Destroy()

	t1 := time.Now()
	outputs := []ort.Value{nil}
	if e2 := r.session.Run([]ort.Value{idsT, maskT, typT}, outputs); e2 != nil {
		return 0, 0, 0, e2
	}
	if outputs[0] != nil {
		outputs[0].Destroy()
	}
	inference = time.Since(t1)
	total = time.Since(t0)
	return tokenize, inference, total, nil
}

type encoded struct {
	ids  []int64
	mask []int64
}

func (r *Reranker) embed(texts []string) ([][]float32, error) {
	all := make([]encoded, len(texts))
	maxLen := 0
	for i, text := range texts {
		enc := r.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > maxSeqLen {
			ids = ids[:maxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j := range ids64 {
			ids64[j] = int64(ids[j])
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		all[i] = encoded{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("all inputs tokenized to zero length")
	}

	batchSize := len(texts)
	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, enc := range all {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()
	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := r.session.Run([]ort.Value{inputIDs, attnMask, typeIDs}, outputs); err != nil {
		return nil, fmt.Errorf("ort run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want *Tensor[float32])")
	}
	hidden := hiddenTensor.GetData()
	seqLen := int(hiddenTensor.GetShape()[1])

	vecs := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		vec := make([]float32, embeddingDim)
		base := i * seqLen * embeddingDim
		copy(vec, hidden[base:base+embeddingDim])
		l2Normalize(vec)
		vecs[i] = vec
	}
	return vecs, nil
}

func l2Normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-10 {
		return
	}
	inv := float32(1.0 / norm)
	for i := range v {
		v[i] *= inv
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
