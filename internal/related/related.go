// Package related implements "find documents similar to this one" as an
// enrichment on top of the neural reranker's sentence embeddings: an HNSW
// approximate-nearest-neighbour graph over per-document vectors, queried by
// doc.ID rather than raw float32 slices. Grounded on internal/hnsw/hnsw.go,
// generalized from anonymous uint32 chunk ids to the engine's doc.ID space —
// callers Insert a document's neural embedding as it is ingested/reranked,
// then ask Related for its nearest neighbours.
package related

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/screenager/bsearch/internal/doc"
)

const (
	// DefaultM is the base number of bi-directional connections per node.
	DefaultM = 16
	// DefaultEfConstruction is the dynamic candidate list size during build.
	DefaultEfConstruction = 200
	// DefaultEfSearch is the dynamic candidate list size during query.
	DefaultEfSearch = 50
)

// Hit is one related-document result.
type Hit struct {
	DocID doc.ID
	Score float32 // cosine similarity in [0,1], vectors assumed pre-normalized
}

type node struct {
	neighbors [][]uint32
	vec       []float32
	docID     doc.ID
}

// Index is an HNSW graph keyed by doc.ID instead of raw integer ids, so
// document ingestion and "related to" queries never leak the internal
// node-numbering scheme.
type Index struct {
	mu             sync.RWMutex
	nodes          []node
	byDoc          map[doc.ID]uint32
	entryPoint     uint32
	maxLayer       int
	m              int
	efConstruction int
	efSearch       int
	ml             float64
	rng            *rand.Rand
}

// New creates an empty related-documents index.
func New(m, efConstruction, efSearch int) *Index {
	if m <= 0 {
		m = DefaultM
	}
	if efConstruction <= 0 {
		efConstruction = DefaultEfConstruction
	}
	if efSearch <= 0 {
		efSearch = DefaultEfSearch
	}
	return &Index{
		byDoc:          make(map[doc.ID]uint32),
		m:              m,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		ml:             1.0 / math.Log(float64(m)),
		rng:            rand.New(rand.NewSource(42)),
	}
}

// Len returns the number of indexed documents.
func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *Index) randomLevel() int {
	return int(math.Floor(-math.Log(g.rng.Float64()) * g.ml))
}

func sim(a, b []float32) float32 {
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

// Insert adds a document's pre-normalized embedding, or replaces it if the
// document was already indexed (by leaving the old node orphaned and
// appending a fresh one — the original implementation never deletes nodes,
// and a document re-embedded after an edit is rare enough that the modest
// space leak is an acceptable tradeoff over a full rebuild).
func (g *Index) Insert(id doc.ID, vec []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	newID := uint32(len(g.nodes))
	level := g.randomLevel()

	neighbors := make([][]uint32, level+1)
	for l := 0; l <= level; l++ {
		maxConn := g.m
		if l == 0 {
			maxConn = 2 * g.m
		}
		neighbors[l] = make([]uint32, 0, maxConn)
	}

	g.nodes = append(g.nodes, node{neighbors: neighbors, vec: vec, docID: id})
	g.byDoc[id] = newID

	if newID == 0 {
		g.entryPoint = 0
		g.maxLayer = level
		return
	}

	ep := g.entryPoint
	epLevel := g.maxLayer

	for lc := epLevel; lc > level; lc-- {
		ep = g.greedySearchLayer(vec, ep, lc)
	}

	for lc := min(level, epLevel); lc >= 0; lc-- {
		candidates := g.searchLayer(vec, ep, g.efConstruction, lc)
		selected := g.selectNeighbours(candidates, g.m)

		g.nodes[newID].neighbors[lc] = selected
		for _, nb := range selected {
			g.nodes[nb].neighbors[lc] = append(g.nodes[nb].neighbors[lc], newID)
			maxConn := g.m
			if lc == 0 {
				maxConn = 2 * g.m
			}
			if len(g.nodes[nb].neighbors[lc]) > maxConn {
				g.nodes[nb].neighbors[lc] = g.pruneNeighbours(nb, g.nodes[nb].neighbors[lc], maxConn)
			}
		}

		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > epLevel {
		g.entryPoint = newID
		g.maxLayer = level
	}
}

// Related returns the k nearest indexed documents to id, excluding id
// itself. Returns an error if id was never inserted.
func (g *Index) Related(id doc.ID, k int) ([]Hit, error) {
	g.mu.RLock()
	internalID, ok := g.byDoc[id]
	if !ok {
		g.mu.RUnlock()
		return nil, fmt.Errorf("related: unknown document %s", id)
	}
	vec := g.nodes[internalID].vec
	g.mu.RUnlock()

	hits := g.Query(vec, k+1)
	out := make([]Hit, 0, k)
	for _, h := range hits {
		if h.DocID == id {
			continue
		}
		out = append(out, h)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Query returns the k nearest indexed documents to an arbitrary
// pre-normalized vector (used to seed related-documents from a fresh
// embedding before it has been inserted, e.g. during ingest).
func (g *Index) Query(vec []float32, k int) []Hit {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.nodes) == 0 {
		return nil
	}

	ep := g.entryPoint
	epLevel := g.maxLayer
	for lc := epLevel; lc > 0; lc-- {
		ep = g.greedySearchLayer(vec, ep, lc)
	}

	ef := g.efSearch
	if k > ef {
		ef = k
	}
	candidates := g.searchLayer(vec, ep, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	hits := make([]Hit, len(candidates))
	for i, c := range candidates {
		hits[i] = Hit{DocID: g.nodes[c.id].docID, Score: c.dist}
	}
	return hits
}

type candidate struct {
	id   uint32
	dist float32
}

type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (g *Index) greedySearchLayer(query []float32, ep uint32, lc int) uint32 {
	best := ep
	bestSim := sim(query, g.nodes[ep].vec)

	changed := true
	for changed {
		changed = false
		if lc < len(g.nodes[best].neighbors) {
			for _, nb := range g.nodes[best].neighbors[lc] {
				s := sim(query, g.nodes[nb].vec)
				if s > bestSim {
					bestSim = s
					best = nb
					changed = true
				}
			}
		}
	}
	return best
}

func (g *Index) searchLayer(query []float32, ep uint32, ef, lc int) []candidate {
	visited := map[uint32]bool{ep: true}
	epSim := sim(query, g.nodes[ep].vec)

	C := &maxHeap{{id: ep, dist: epSim}}
	heap.Init(C)

	W := []candidate{{id: ep, dist: epSim}}
	worstSim := epSim

	minSimInW := func() float32 {
		m := W[0].dist
		for _, c := range W[1:] {
			if c.dist < m {
				m = c.dist
			}
		}
		return m
	}

	for C.Len() > 0 {
		c := heap.Pop(C).(candidate)
		if len(W) >= ef && c.dist < worstSim {
			break
		}
		if lc < len(g.nodes[c.id].neighbors) {
			for _, nb := range g.nodes[c.id].neighbors[lc] {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				s := sim(query, g.nodes[nb].vec)
				if len(W) < ef || s > worstSim {
					heap.Push(C, candidate{id: nb, dist: s})
					W = append(W, candidate{id: nb, dist: s})
					if len(W) > ef {
						minIdx := 0
						for i := 1; i < len(W); i++ {
							if W[i].dist < W[minIdx].dist {
								minIdx = i
							}
						}
						W[minIdx] = W[len(W)-1]
						W = W[:len(W)-1]
					}
					worstSim = minSimInW()
				}
			}
		}
	}

	for i := 0; i < len(W)-1; i++ {
		for j := i + 1; j < len(W); j++ {
			if W[j].dist > W[i].dist {
				W[i], W[j] = W[j], W[i]
			}
		}
	}
	return W
}

func (g *Index) selectNeighbours(candidates []candidate, m int) []uint32 {
	if len(candidates) <= m {
		ids := make([]uint32, len(candidates))
		for i, c := range candidates {
			ids[i] = c.id
		}
		return ids
	}
	ids := make([]uint32, m)
	for i := 0; i < m; i++ {
		ids[i] = candidates[i].id
	}
	return ids
}

func (g *Index) pruneNeighbours(id uint32, nbs []uint32, maxConn int) []uint32 {
	type scoredNb struct {
		id   uint32
		dist float32
	}
	scored := make([]scoredNb, len(nbs))
	for i, n := range nbs {
		scored[i] = scoredNb{id: n, dist: sim(g.nodes[id].vec, g.nodes[n].vec)}
	}
	for i := 0; i < len(scored)-1; i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[j].dist > scored[i].dist {
				scored[i], scored[j] = scored[j], scored[i]
			}
		}
	}
	if len(scored) > maxConn {
		scored = scored[:maxConn]
	}
	out := make([]uint32, len(scored))
	for i, s := range scored {
		out[i] = s.id
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
