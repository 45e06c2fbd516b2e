// Package barrelindex holds the immutable word -> (barrel_id, word_index)
// lookup table loaded from barrels_index.json at startup (spec §3/§4.4).
// The mapping is read-only for the lifetime of the process: words
// encountered during incremental ingest that are absent from this table are
// not added to it (spec §9's open question, answered "drop from the
// keyword path, keep in the semantic path" — see internal/ingest).
package barrelindex

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
)

// Entry is a word's location: which barrel holds its posting list, and its
// index within that barrel's offsets tables.
type Entry struct {
	BarrelID  int `json:"barrel_id"`
	WordIndex int `json:"word_index"`
}

// Index is the loaded, read-only word -> Entry table.
type Index struct {
	entries map[string]Entry
}

// Load reads barrels_index.json, whose on-disk shape is
// word -> [barrel_id, word_index].
func Load(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read barrels index %s: %w", path, err)
	}
	var wire map[string][2]int
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse barrels index %s: %w", path, err)
	}
	entries := make(map[string]Entry, len(wire))
	for word, pair := range wire {
		entries[word] = Entry{BarrelID: pair[0], WordIndex: pair[1]}
	}
	return &Index{entries: entries}, nil
}

// Lookup returns the barrel location for word and whether it is present.
func (idx *Index) Lookup(word string) (Entry, bool) {
	e, ok := idx.entries[word]
	return e, ok
}

// Contains reports whether word is present in the index.
func (idx *Index) Contains(word string) bool {
	_, ok := idx.entries[word]
	return ok
}

// Len returns the number of indexed words.
func (idx *Index) Len() int { return len(idx.entries) }

// Walk calls fn once per indexed word, in unspecified order. Used at
// startup to discover the full set of barrel directories to open.
func (idx *Index) Walk(fn func(word string, e Entry)) {
	for word, e := range idx.entries {
		fn(word, e)
	}
}

// ShardFor computes the deterministic barrel-assignment formula used by the
// offline index-build pipeline: hash(word) % numBarrels. It is exposed
// read-only for documentation/tooling purposes only — the running service
// never extends the barrel index at runtime (spec §9).
func ShardFor(word string, numBarrels int) int {
	if numBarrels <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return int(h.Sum32() % uint32(numBarrels))
}
