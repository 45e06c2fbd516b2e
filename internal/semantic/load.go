package semantic

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/screenager/bsearch/internal/wire"
)

// LoadModel reads the word2vec table (a plain-text "word f1 f2 ... fD" per
// line format, the same shape gensim's save_word2vec_format writes) and the
// IDF map (a JSON object word -> float). Either file may be absent, which
// the caller should treat as MissingOptionalArtifact (spec §7): keyword-only
// serving with semantic_available=false.
func LoadModel(word2vecPath, idfPath string) (*Model, error) {
	vectors, dim, err := loadWord2Vec(word2vecPath)
	if err != nil {
		return nil, err
	}
	idf, err := loadIDF(idfPath)
	if err != nil {
		return nil, err
	}
	return &Model{Vectors: vectors, IDF: idf, Dim: dim}, nil
}

func loadWord2Vec(path string) (map[string][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open word2vec table %s: %w", path, err)
	}
	defer f.Close()

	vectors := make(map[string][]float32)
	dim := 0
	scanner := bufio.NewScanner(f)
	// Allow long lines: embeddings can exceed bufio's default 64KiB limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if first {
			first = false
			// A leading "<vocab> <dim>" header line (gensim's convention)
			// has exactly two fields; skip it.
			if len(fields) == 2 {
				if _, err1 := strconv.Atoi(fields[0]); err1 == nil {
					if d, err2 := strconv.Atoi(fields[1]); err2 == nil {
						dim = d
						continue
					}
				}
			}
		}
		if len(fields) < 2 {
			continue
		}
		word := fields[0]
		vec := make([]float32, 0, len(fields)-1)
		for _, tok := range fields[1:] {
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return nil, 0, fmt.Errorf("parse word2vec line for %q: %w", word, err)
			}
			vec = append(vec, float32(v))
		}
		if dim == 0 {
			dim = len(vec)
		}
		vectors[word] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan word2vec table %s: %w", path, err)
	}
	return vectors, dim, nil
}

func loadIDF(path string) (map[string]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read idf table %s: %w", path, err)
	}
	var idf map[string]float64
	if err := json.Unmarshal(raw, &idf); err != nil {
		return nil, fmt.Errorf("parse idf table %s: %w", path, err)
	}
	return idf, nil
}

// LoadEmbeddingRows reads a wire-encoded float32 matrix file (see
// internal/wire), used for both the HTML and paper embedding files.
func LoadEmbeddingRows(path string) ([][]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read embeddings %s: %w", path, err)
	}
	rows, err := wire.DecodeFloat32Matrix(raw)
	if err != nil {
		return nil, fmt.Errorf("decode embeddings %s: %w", path, err)
	}
	return rows, nil
}

// SaveEmbeddingRows writes rows with the same wire-encoded format, via an
// atomic rename.
func SaveEmbeddingRows(path string, rows [][]float32) error {
	blob, err := wire.EncodeFloat32Matrix(rows)
	if err != nil {
		return fmt.Errorf("encode embeddings: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-emb-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, path)
}
