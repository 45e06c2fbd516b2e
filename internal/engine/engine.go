// Package engine wires every subsystem into the service contract of
// spec.md §6: Search, IndexPaper, State, Shutdown. Structurally grounded on
// _examples/Tejas242-sift/internal/index/index.go's mutex-guarded composed
// index + Open/Stats lifecycle, generalized from a file-chunk index to the
// hybrid keyword+semantic document search engine.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/screenager/bsearch/internal/barrel"
	"github.com/screenager/bsearch/internal/barrelindex"
	"github.com/screenager/bsearch/internal/cache"
	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/ingest"
	"github.com/screenager/bsearch/internal/rank"
	"github.com/screenager/bsearch/internal/related"
	"github.com/screenager/bsearch/internal/scoring"
	"github.com/screenager/bsearch/internal/semantic"
)

// Config holds the data-root layout and tunables of spec §6.
type Config struct {
	DataDir               string
	CacheCapacity         int
	CacheAutoSaveInterval int
	DefaultSemanticWeight float64
	DefaultUseSemantic    bool
}

// DefaultConfig returns the spec-mandated defaults for a given data
// directory.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:               dataDir,
		CacheCapacity:         cache.DefaultCapacity,
		CacheAutoSaveInterval: cache.DefaultAutoSaveInterval,
		DefaultSemanticWeight: scoring.DefaultSemanticWeight,
		DefaultUseSemantic:    true,
	}
}

func (c Config) barrelsDir() string        { return filepath.Join(c.DataDir, "barrels") }
func (c Config) rankingsDir() string       { return filepath.Join(c.DataDir, "rankings") }
func (c Config) mappingsDir() string       { return filepath.Join(c.DataDir, "mappings") }
func (c Config) semanticDir() string       { return filepath.Join(c.DataDir, "semantic") }
func (c Config) barrelsIndexPath() string  { return filepath.Join(c.DataDir, "barrels_index.json") }
func (c Config) cacheSnapshotPath() string { return filepath.Join(c.DataDir, "word_cache.bin") }
func (c Config) statePath() string         { return filepath.Join(c.DataDir, "state.json") }
func (c Config) relatedIndexPath() string  { return filepath.Join(c.semanticDir(), "related.bin") }

// Engine is the top-level, concurrency-safe hybrid search engine.
type Engine struct {
	cfg Config

	barrelIndex *barrelindex.Index
	barrels     map[int]*barrel.LSMBarrel
	barrelsMu   sync.RWMutex

	cache   *cache.Cache
	overlay *ingest.Overlay
	pending *ingest.Pending

	tables    *rank.Tables
	paperInfo *ingest.PaperInfo

	model  *semantic.Model
	matrix *semantic.Matrix

	semanticAvailable bool

	// related is the optional "more like this" accelerator (SPEC_FULL §2):
	// populated by IndexEmbedding as callers compute neural-reranker
	// embeddings for ingested documents, queried by Related. Always
	// non-nil; an empty index just returns no neighbours.
	related *related.Index

	controller *ingest.Controller
}

// Open loads every immutable reference table, the barrel index, all
// barrels, the word-posting cache, and the semantic layer, per spec §5's
// startup load order. A missing semantic artifact degrades gracefully:
// Open still succeeds, with semantic_available=false; a corrupt barrel
// or offsets table aborts startup (ErrCorruptArtifact).
func Open(cfg Config) (*Engine, error) {
	for _, dir := range []string{cfg.DataDir, cfg.barrelsDir(), cfg.rankingsDir(), cfg.mappingsDir(), cfg.semanticDir(), filepath.Join(cfg.DataDir, "temp")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, wrapErr(ErrIngestIO, fmt.Errorf("create data dir %s: %w", dir, err))
		}
	}

	barrelIndex, err := barrelindex.Load(cfg.barrelsIndexPath())
	if err != nil {
		return nil, wrapErr(ErrCorruptArtifact, err)
	}

	barrels, err := openBarrels(cfg.barrelsDir(), barrelIndex)
	if err != nil {
		return nil, wrapErr(ErrCorruptArtifact, err)
	}

	wordCache, err := cache.Load(cfg.CacheCapacity, cfg.CacheAutoSaveInterval, cfg.cacheSnapshotPath())
	if err != nil {
		return nil, wrapErr(ErrCacheIO, err)
	}

	tables, err := rank.LoadTables(
		filepath.Join(cfg.rankingsDir(), "page_rank.json"),
		filepath.Join(cfg.rankingsDir(), "domain_rank.json"),
		filepath.Join(cfg.rankingsDir(), "citation_rank.json"),
		filepath.Join(cfg.mappingsDir(), "doc_id_to_url.json"),
	)
	if err != nil {
		return nil, wrapErr(ErrCorruptArtifact, err)
	}

	paperInfo, err := ingest.LoadPaperInfo(filepath.Join(cfg.mappingsDir(), "paper_info.json"))
	if err != nil {
		return nil, wrapErr(ErrCorruptArtifact, err)
	}

	state, err := ingest.LoadState(cfg.statePath())
	if err != nil {
		return nil, wrapErr(ErrCorruptArtifact, err)
	}

	e := &Engine{
		cfg:         cfg,
		barrelIndex: barrelIndex,
		barrels:     barrels,
		cache:       wordCache,
		overlay:     ingest.NewOverlay(),
		pending:     ingest.NewPending(),
		tables:      tables,
		paperInfo:   paperInfo,
	}

	model, matrix, available := loadSemantic(cfg)
	e.model, e.matrix, e.semanticAvailable = model, matrix, available

	e.related = loadRelated(cfg.relatedIndexPath())

	e.controller = ingest.NewController(cfg.DataDir, barrelIndex, e.overlay, e.pending, e.matrix, e.model, e.paperInfo, state)

	return e, nil
}

// loadRelated loads a persisted related-documents index, or returns a fresh
// empty one if the file is absent (spec §7's MissingOptionalArtifact
// policy — the related-documents operation is purely additive).
func loadRelated(path string) *related.Index {
	idx, err := related.Load(path)
	if err != nil {
		return related.New(related.DefaultM, related.DefaultEfConstruction, related.DefaultEfSearch)
	}
	return idx
}

func openBarrels(barrelsDir string, idx *barrelindex.Index) (map[int]*barrel.LSMBarrel, error) {
	barrelIDs := lookupAllBarrelIDs(idx)

	out := make(map[int]*barrel.LSMBarrel, len(barrelIDs))
	for _, id := range barrelIDs {
		dir := filepath.Join(barrelsDir, fmt.Sprintf("barrel_%d", id))
		b, err := barrel.OpenLSMBarrel(dir)
		if err != nil {
			return nil, fmt.Errorf("open barrel %d: %w", id, err)
		}
		out[id] = b
	}
	return out, nil
}

func lookupAllBarrelIDs(idx *barrelindex.Index) []int {
	seen := make(map[int]struct{})
	idx.Walk(func(_ string, e barrelindex.Entry) {
		seen[e.BarrelID] = struct{}{}
	})
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func loadSemantic(cfg Config) (*semantic.Model, *semantic.Matrix, bool) {
	model, err := semantic.LoadModel(
		filepath.Join(cfg.semanticDir(), "word2vec.txt"),
		filepath.Join(cfg.semanticDir(), "idf.json"),
	)
	if err != nil {
		return emptyModelAndMatrix()
	}
	htmlRows, err := semantic.LoadEmbeddingRows(filepath.Join(cfg.semanticDir(), "html_embeddings.bin"))
	if err != nil {
		htmlRows = nil
	}
	paperRows, err := semantic.LoadEmbeddingRows(filepath.Join(cfg.semanticDir(), "paper_embeddings.bin"))
	if err != nil {
		paperRows = nil
	}
	matrix := semantic.NewMatrix(htmlRows, paperRows, model.Dim)
	return model, matrix, true
}

func emptyModelAndMatrix() (*semantic.Model, *semantic.Matrix, bool) {
	model := &semantic.Model{Vectors: map[string][]float32{}, IDF: map[string]float64{}, Dim: 0}
	matrix := semantic.NewMatrix(nil, nil, 0)
	return model, matrix, false
}

// Stats is the state() service-contract response (spec §6).
type Stats struct {
	LastHTMLID        int  `json:"last_html_id"`
	LastJSONID        int  `json:"last_json_id"`
	TotalDocuments    int  `json:"total_documents"`
	CachedWords       int  `json:"cached_words"`
	SemanticAvailable bool `json:"semantic_available"`
	Initialized       bool `json:"initialized"`
}

// State returns the current engine counters.
func (e *Engine) State() Stats {
	s := e.controller.State()
	return Stats{
		LastHTMLID:        s.LastHTMLID,
		LastJSONID:        s.LastJSONID,
		TotalDocuments:    s.TotalDocuments,
		CachedWords:       e.cache.Len(),
		SemanticAvailable: e.semanticAvailable,
		Initialized:       true,
	}
}

// PendingBarrels returns every barrel with at least one un-merged overlay
// word, for the background merge scheduler in internal/lifecycle.
func (e *Engine) PendingBarrels() []int {
	return e.pending.BarrelIDs()
}

// IndexPaper delegates to the ingest controller.
func (e *Engine) IndexPaper(ctx context.Context, raw []byte, url string) (doc.ID, error) {
	id, err := e.controller.IndexPaper(ctx, raw, url)
	if err != nil {
		return "", wrapErr(classifyIngestErr(err), err)
	}
	return id, nil
}

func classifyIngestErr(err error) ErrKind {
	if strings.Contains(err.Error(), "ingest malformed") {
		return ErrIngestMalformed
	}
	return ErrIngestIO
}

// fetchPostings returns the union of cached/barrel-stored postings and any
// overlay entries for word (spec §4.5: overlay is never cached).
func (e *Engine) fetchPostings(word string) ([]doc.Hitlist, error) {
	var base []doc.Hitlist
	if cached, ok := e.cache.Get(word); ok {
		base = cached
	} else {
		entry, ok := e.barrelIndex.Lookup(word)
		if !ok {
			return e.overlay.Get(word), nil
		}
		e.barrelsMu.RLock()
		b := e.barrels[entry.BarrelID]
		e.barrelsMu.RUnlock()
		if b == nil {
			return e.overlay.Get(word), nil
		}
		postings, err := b.Get(entry.WordIndex)
		if err != nil {
			return nil, err
		}
		base = postings
		if shouldSnapshot := e.cache.Put(word, postings); shouldSnapshot {
			if err := e.cache.Snapshot(); err != nil {
				// CacheIOError (spec §7): log and continue, in-memory cache
				// remains valid.
				debugf("[cache] snapshot failed: %v", err)
			}
		}
	}
	overlay := e.overlay.Get(word)
	if len(overlay) == 0 {
		return base, nil
	}
	out := make([]doc.Hitlist, 0, len(base)+len(overlay))
	out = append(out, base...)
	out = append(out, overlay...)
	return out, nil
}

// MergeBarrel drains barrelID's pending overlay words into its delta
// store, matching spec §4.9's background-merge step.
func (e *Engine) MergeBarrel(barrelID int) error {
	e.barrelsMu.RLock()
	b := e.barrels[barrelID]
	e.barrelsMu.RUnlock()
	if b == nil {
		return fmt.Errorf("merge barrel %d: unknown barrel", barrelID)
	}
	for _, word := range e.pending.DrainWords(barrelID) {
		hitlists := e.overlay.Drain(word)
		if len(hitlists) == 0 {
			continue
		}
		entry, ok := e.barrelIndex.Lookup(word)
		if !ok {
			continue
		}
		if err := b.AppendDelta(entry.WordIndex, hitlists); err != nil {
			// Re-mark as pending for retry (spec §7: background merge
			// failures are logged and the barrel remains flagged).
			e.overlay.Add(word, hitlists[0])
			for _, h := range hitlists[1:] {
				e.overlay.Add(word, h)
			}
			e.pending.Mark(barrelID, word)
			return fmt.Errorf("merge barrel %d word %q: %w", barrelID, word, err)
		}
	}
	return nil
}

// IndexEmbedding records a document's neural-reranker embedding in the
// related-documents accelerator (SPEC_FULL §2). Callers compute the vector
// themselves (internal/neural.Reranker has no engine dependency) and push
// it in after a successful IndexPaper, or during an offline HTML-corpus
// build; this is a no-op with respect to the mandated keyword/semantic
// ranking path.
func (e *Engine) IndexEmbedding(id doc.ID, vec []float32) {
	e.related.Insert(id, vec)
}

// Related returns the k documents whose neural embeddings are nearest to
// id's, excluding id itself. Returns an error if id has no embedding on
// file (it was never passed to IndexEmbedding).
func (e *Engine) Related(id doc.ID, k int) ([]related.Hit, error) {
	return e.related.Related(id, k)
}

// CompactBarrel folds barrelID's delta file into a fresh base segment
// in-process (spec §4.6). The barrel itself remaps its own base mmap once
// the new segment is in place, so no further action is needed by the
// caller that ran the compaction; readers in OTHER processes pick up the
// change via ReopenBarrel once internal/watch notices the
// compaction.complete marker this writes.
func (e *Engine) CompactBarrel(barrelID int) error {
	e.barrelsMu.RLock()
	b := e.barrels[barrelID]
	e.barrelsMu.RUnlock()
	if b == nil {
		return fmt.Errorf("compact barrel %d: unknown barrel", barrelID)
	}
	return b.Compact()
}

// ReopenBarrel closes and re-opens barrelID's on-disk files, picking up a
// base segment written by a compaction that ran in a different process.
// Existing Search calls in flight keep using the old mmap until they
// return; only lookups started after the swap see the new one.
func (e *Engine) ReopenBarrel(barrelID int) error {
	dir := filepath.Join(e.cfg.barrelsDir(), fmt.Sprintf("barrel_%d", barrelID))
	fresh, err := barrel.OpenLSMBarrel(dir)
	if err != nil {
		return fmt.Errorf("reopen barrel %d: %w", barrelID, err)
	}

	e.barrelsMu.Lock()
	stale := e.barrels[barrelID]
	e.barrels[barrelID] = fresh
	e.barrelsMu.Unlock()

	if stale != nil {
		return stale.Close()
	}
	return nil
}

// Shutdown implements spec §4.9's shutdown flush: snapshot the word cache,
// drain every pending overlay into its barrel's delta (no compaction),
// persist the paper-info mapping, the embedding matrices (when the semantic
// layer is loaded) and the related index (when non-empty), then close every
// barrel. Engine state is not written here: the ingest controller already
// writes state.json after every successful ingest.
func (e *Engine) Shutdown(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(e.cache.Snapshot())

	for _, barrelID := range e.pending.BarrelIDs() {
		if err := ctx.Err(); err != nil {
			record(err)
			break
		}
		record(e.MergeBarrel(barrelID))
	}

	record(e.paperInfo.Save(filepath.Join(e.cfg.mappingsDir(), "paper_info.json")))

	if e.semanticAvailable {
		htmlRows, paperRows := e.matrix.Split()
		record(semantic.SaveEmbeddingRows(filepath.Join(e.cfg.semanticDir(), "html_embeddings.bin"), htmlRows))
		record(semantic.SaveEmbeddingRows(filepath.Join(e.cfg.semanticDir(), "paper_embeddings.bin"), paperRows))
	}

	if e.related.Len() > 0 {
		record(e.related.Save(e.cfg.relatedIndexPath()))
	}

	e.barrelsMu.Lock()
	for _, b := range e.barrels {
		record(b.Close())
	}
	e.barrelsMu.Unlock()

	return firstErr
}

func debugf(format string, args ...interface{}) {
	if os.Getenv("BSEARCH_DEBUG") != "1" {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
