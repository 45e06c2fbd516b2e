package cache

import (
	"path/filepath"
	"testing"

	"github.com/screenager/bsearch/internal/doc"
)

func TestCacheGetPutHitMiss(t *testing.T) {
	c := New(2, 10, filepath.Join(t.TempDir(), "snap.bin"))

	if _, ok := c.Get("graph"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put("graph", []doc.Hitlist{{DocID: "H1"}})
	got, ok := c.Get("graph")
	if !ok || len(got) != 1 {
		t.Fatalf("Get(graph) = %v, %v", got, ok)
	}
}

func TestCacheEvictsLRU(t *testing.T) {
	c := New(2, 100, filepath.Join(t.TempDir(), "snap.bin"))
	c.Put("a", []doc.Hitlist{{DocID: "H1"}})
	c.Put("b", []doc.Hitlist{{DocID: "H2"}})
	c.Get("a") // touch a, making b the LRU
	c.Put("c", []doc.Hitlist{{DocID: "H3"}})

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted as LRU")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive (recently touched)")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected c to be present (just inserted)")
	}
}

func TestCacheSnapshotIntervalAndRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.bin")
	c := New(10, 2, path)

	if should := c.Put("a", []doc.Hitlist{{DocID: "H1"}}); should {
		t.Fatal("snapshot requested too early")
	}
	should := c.Put("b", []doc.Hitlist{{DocID: "H2"}})
	if !should {
		t.Fatal("expected snapshot requested at interval boundary")
	}
	if err := c.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	reloaded, err := Load(10, 2, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("reloaded.Len() = %d, want 2", reloaded.Len())
	}
	if _, ok := reloaded.Get("a"); !ok {
		t.Fatal("expected reloaded cache to contain a")
	}
}

func TestCacheLoadMissingFileIsEmpty(t *testing.T) {
	c, err := Load(10, 50, filepath.Join(t.TempDir(), "nonexistent.bin"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}
