// Package ingest implements the paper ingest controller (spec §4.9): doc-id
// assignment, temp-bytes persistence, hitlist routing into the temporary
// overlay and per-barrel pending-words set, flat-text extraction and
// embedding append, paper-info mapping, and per-ingest state persistence
// (SPEC_FULL §3.3). Grounded on
// _examples/original_source/engine/search_engine.py's index_new_rps,
// _load_state/save_state.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/screenager/bsearch/internal/barrelindex"
	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/hitlist"
	"github.com/screenager/bsearch/internal/rank"
	"github.com/screenager/bsearch/internal/semantic"
	"github.com/screenager/bsearch/internal/token"
)

// State tracks the dense id counters and total document count, persisted
// to state.json after every successful ingest (engine Shutdown does not
// write it again), so a crash between ingests loses at most the in-flight
// document (SPEC_FULL §3.3).
type State struct {
	LastHTMLID     int `json:"last_html_id"`
	LastJSONID     int `json:"last_json_id"`
	TotalDocuments int `json:"total_documents"`
}

// LoadState reads state.json, defaulting to zero values if absent.
func LoadState(path string) (State, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state %s: %w", path, err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("parse state %s: %w", path, err)
	}
	return s, nil
}

func saveState(path string, s State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return atomicWrite(path, b)
}

// PaperMeta is a paper's title/url, plus its title pre-normalized with the
// same normalizer the citation-rank table's keys use (rank.NormalizeTitle),
// so lookups never drift from ingest-time formatting (SPEC_FULL §3.1).
type PaperMeta struct {
	Title           string `json:"title"`
	NormalizedTitle string `json:"normalized_title"`
	URL             string `json:"url"`
}

// PaperInfo is the mutable paper_id -> PaperMeta mapping, updated on every
// paper ingest.
type PaperInfo struct {
	mu      sync.RWMutex
	byID    map[string]PaperMeta
}

// NewPaperInfo creates an empty mapping.
func NewPaperInfo() *PaperInfo { return &PaperInfo{byID: make(map[string]PaperMeta)} }

// LoadPaperInfo reads a previously persisted paper-info JSON file.
func LoadPaperInfo(path string) (*PaperInfo, error) {
	pi := NewPaperInfo()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return pi, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read paper info %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &pi.byID); err != nil {
		return nil, fmt.Errorf("parse paper info %s: %w", path, err)
	}
	return pi, nil
}

// Save persists the mapping as JSON via atomic rename.
func (pi *PaperInfo) Save(path string) error {
	pi.mu.RLock()
	b, err := json.Marshal(pi.byID)
	pi.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal paper info: %w", err)
	}
	return atomicWrite(path, b)
}

// Get returns the metadata for a paper's bare numeric id.
func (pi *PaperInfo) Get(numericID string) (PaperMeta, bool) {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	m, ok := pi.byID[numericID]
	return m, ok
}

func (pi *PaperInfo) set(numericID string, meta PaperMeta) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.byID[numericID] = meta
}

// Overlay is the in-memory word -> list-of-hitlists accumulated since the
// last merge into delta (spec §3's "temporary overlay").
type Overlay struct {
	mu    sync.Mutex
	words map[string][]doc.Hitlist
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay { return &Overlay{words: make(map[string][]doc.Hitlist)} }

// Add appends hl to word's overlay entry.
func (o *Overlay) Add(word string, hl doc.Hitlist) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.words[word] = append(o.words[word], hl)
}

// Get returns a copy of word's overlay hitlists (nil if none).
func (o *Overlay) Get(word string) []doc.Hitlist {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := o.words[word]
	out := make([]doc.Hitlist, len(v))
	copy(out, v)
	return out
}

// Drain removes and returns word's overlay entry, clearing it.
func (o *Overlay) Drain(word string) []doc.Hitlist {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := o.words[word]
	delete(o.words, word)
	return v
}

// Pending is the per-barrel set of words with overlay entries, driving
// merge scheduling (spec §3's "pending-additions set").
type Pending struct {
	mu       sync.Mutex
	byBarrel map[int]map[string]struct{}
}

// NewPending creates an empty pending-additions tracker.
func NewPending() *Pending { return &Pending{byBarrel: make(map[int]map[string]struct{})} }

// Mark records that barrelID has a pending overlay entry for word.
func (p *Pending) Mark(barrelID int, word string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.byBarrel[barrelID]
	if !ok {
		set = make(map[string]struct{})
		p.byBarrel[barrelID] = set
	}
	set[word] = struct{}{}
}

// BarrelIDs returns every barrel with at least one pending word.
func (p *Pending) BarrelIDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.byBarrel))
	for id, words := range p.byBarrel {
		if len(words) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// DrainWords returns and clears barrelID's pending word set.
func (p *Pending) DrainWords(barrelID int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := p.byBarrel[barrelID]
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	delete(p.byBarrel, barrelID)
	return out
}

// Controller implements the paper ingest path of spec §4.9.
type Controller struct {
	mu sync.Mutex

	dataDir     string
	barrelIndex *barrelindex.Index
	overlay     *Overlay
	pending     *Pending
	matrix      *semantic.Matrix
	model       *semantic.Model
	paperInfo   *PaperInfo

	state State
}

// NewController wires a Controller from its already-loaded collaborators.
func NewController(dataDir string, barrelIndex *barrelindex.Index, overlay *Overlay, pending *Pending, matrix *semantic.Matrix, model *semantic.Model, paperInfo *PaperInfo, state State) *Controller {
	return &Controller{
		dataDir:     dataDir,
		barrelIndex: barrelIndex,
		overlay:     overlay,
		pending:     pending,
		matrix:      matrix,
		model:       model,
		paperInfo:   paperInfo,
		state:       state,
	}
}

// State returns a copy of the current counters.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IndexPaper implements spec §4.9's paper ingest: allocate an id, persist
// raw bytes, build hitlists and route them into the overlay/pending sets,
// compute and append the document's embedding, update the paper-info
// mapping, and persist engine state. On any failure, no state mutation is
// retained — the id counter is not incremented, the matrix is not
// extended, and the overlay is not updated (spec §5's abort semantics).
func (c *Controller) IndexPaper(ctx context.Context, raw []byte, url string) (doc.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p, err := hitlist.ParsePaperDoc(raw)
	if err != nil {
		return "", fmt.Errorf("ingest malformed: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	newID := c.state.LastJSONID
	docID := doc.NewPaperID(newID)

	if err := c.persistTemp(docID, raw); err != nil {
		return "", fmt.Errorf("ingest io error: %w", err)
	}

	hitlists, _ := hitlist.BuildPaper(docID, p)
	for word, hl := range hitlists {
		entry, ok := c.barrelIndex.Lookup(word)
		if !ok {
			// Words absent from the barrel index are dropped from the
			// keyword path but still contribute to the semantic vector
			// below (spec §9 open question).
			continue
		}
		c.overlay.Add(word, hl)
		c.pending.Mark(entry.BarrelID, word)
	}

	flatText, err := hitlist.ExtractFlatText(raw)
	if err != nil {
		return "", fmt.Errorf("ingest malformed: extract text: %w", err)
	}
	tokens := token.TokenizeEmbedding(flatText)
	embedding := semantic.QueryEmbedding(c.model, tokens)
	if _, err := c.matrix.AppendPaperRow(embedding); err != nil {
		return "", fmt.Errorf("ingest io error: append embedding: %w", err)
	}

	title := p.Metadata.Title
	normalized := rank.NormalizeTitle(title)
	c.paperInfo.set(fmt.Sprintf("%d", newID), PaperMeta{Title: title, NormalizedTitle: normalized, URL: url})

	c.state.LastJSONID++
	c.state.TotalDocuments++
	if err := saveState(filepath.Join(c.dataDir, "state.json"), c.state); err != nil {
		return "", fmt.Errorf("ingest io error: persist state: %w", err)
	}

	return docID, nil
}

func (c *Controller) persistTemp(docID doc.ID, raw []byte) error {
	dir := filepath.Join(c.dataDir, "temp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	return atomicWrite(filepath.Join(dir, string(docID)+".json"), raw)
}

func atomicWrite(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, path)
}
