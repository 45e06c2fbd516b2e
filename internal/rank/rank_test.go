package rank

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeTitle(t *testing.T) {
	cases := map[string]string{
		"A Study of (Graph) Theory [2021]": "a study of theory",
		"Deep-Learning: An Overview!":       "deep learning an overview",
		"  Spaces   Everywhere  ":           "spaces everywhere",
	}
	for in, want := range cases {
		if got := NormalizeTitle(in); got != want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadTablesMissingFilesDegradeToEmpty(t *testing.T) {
	dir := t.TempDir()
	tables, err := LoadTables(
		filepath.Join(dir, "missing1.json"),
		filepath.Join(dir, "missing2.json"),
		filepath.Join(dir, "missing3.json"),
		filepath.Join(dir, "missing4.json"),
	)
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	if tables.PageRankFor("http://example.com") != 0 {
		t.Fatal("expected 0 for missing page rank table")
	}
	if tables.DomainRankFor("http://example.com") != 0 {
		t.Fatal("expected 0 for missing domain rank table")
	}
}

func TestLoadTablesReadsValues(t *testing.T) {
	dir := t.TempDir()
	pageRankPath := filepath.Join(dir, "page_rank.json")
	if err := os.WriteFile(pageRankPath, []byte(`{"http://example.com/a": 1.5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	domainRankPath := filepath.Join(dir, "domain_rank.json")
	if err := os.WriteFile(domainRankPath, []byte(`{"example.com": 2.5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	tables, err := LoadTables(pageRankPath, domainRankPath, filepath.Join(dir, "none.json"), filepath.Join(dir, "none2.json"))
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	if got := tables.PageRankFor("http://example.com/a"); got != 1.5 {
		t.Fatalf("PageRankFor = %v, want 1.5", got)
	}
	if got := tables.DomainRankFor("http://example.com/a"); got != 2.5 {
		t.Fatalf("DomainRankFor = %v, want 2.5", got)
	}
}
