package hitlist

import (
	"testing"

	"github.com/screenager/bsearch/internal/doc"
)

const samplePaperJSON = `{
  "metadata": {
    "title": "Graph Theory",
    "authors": ["Ada Lovelace", {"name": "Alan Turing", "affiliation": "GCHQ"}]
  },
  "abstract": [{"text": "graph algorithms are fun"}],
  "body_text": [{"text": "graph traversal uses a queue"}],
  "bib_entries": {"b1": {"title": "On Graphs"}},
  "ref_entries": {"r1": {"text": "see graph appendix"}},
  "back_matter": [{"text": "acknowledgements to graph lab"}]
}`

func TestBuildPaperCounterConsistency(t *testing.T) {
	p, err := ParsePaperDoc([]byte(samplePaperJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	hitlists, docLength := BuildPaper(doc.NewPaperID(0), p)

	h, ok := hitlists["graph"]
	if !ok {
		t.Fatal(`expected a hitlist for "graph"`)
	}
	sum := h.Counters[doc.PaperGolden] + h.Counters[doc.PaperBody] + h.Counters[doc.PaperOther]
	if sum != h.Counters[doc.PaperTotal] {
		t.Fatalf("counter consistency: golden+body+other=%d, total=%d", sum, h.Counters[doc.PaperTotal])
	}
	if int(h.Counters[doc.PaperDocLength]) != docLength {
		t.Fatalf("doc_length mismatch: counter=%d, returned=%d", h.Counters[doc.PaperDocLength], docLength)
	}

	var prev = -1
	for _, pos := range h.Positions {
		if int(pos) <= prev {
			t.Fatalf("positions not strictly increasing: %v", h.Positions)
		}
		if int(pos) >= docLength {
			t.Fatalf("position %d >= doc_length %d", pos, docLength)
		}
		prev = int(pos)
	}
}

func TestBuildPaperDropsZeroTotalWords(t *testing.T) {
	p, err := ParsePaperDoc([]byte(samplePaperJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	hitlists, _ := BuildPaper(doc.NewPaperID(1), p)
	for word, h := range hitlists {
		if h.Counters[doc.PaperTotal] == 0 {
			t.Fatalf("word %q has zero total but was emitted", word)
		}
	}
}

func TestBuildPaperAuthorsFlattenStringFields(t *testing.T) {
	p, err := ParsePaperDoc([]byte(samplePaperJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	hitlists, _ := BuildPaper(doc.NewPaperID(2), p)
	if _, ok := hitlists["turing"]; !ok {
		t.Fatal(`expected "turing" tokenized from author object's name field`)
	}
	if _, ok := hitlists["gchq"]; !ok {
		t.Fatal(`expected "gchq" tokenized from author object's affiliation field`)
	}
	if _, ok := hitlists["lovelace"]; !ok {
		t.Fatal(`expected "lovelace" tokenized from plain-string author`)
	}
}

func TestBuildHTMLZonesAndSubstringFlags(t *testing.T) {
	in := HTMLInput{
		BodyText: "welcome to the example site about graphs and trees",
		Title:    "Example Graphs",
		Meta:     "graphs explained",
		Headings: "Graph Basics",
		Netloc:   "example.com",
		URLPath:  "/graphs/intro",
	}
	hitlists := BuildHTML(doc.NewHTMLID(7), in)

	h, ok := hitlists["graphs"]
	if !ok {
		t.Fatal(`expected a hitlist for "graphs"`)
	}
	if h.Counters[doc.HTMLTitle] == 0 {
		t.Fatal("expected title zone count > 0 for graphs")
	}
	if h.Counters[doc.HTMLMeta] == 0 {
		t.Fatal("expected meta zone count > 0 for graphs")
	}
	if h.Counters[doc.HTMLInDomain] != 0 {
		t.Fatal(`"graphs" should not be an in_domain substring of example.com`)
	}
	if h.Counters[doc.HTMLInURL] != 1 {
		t.Fatal(`"graphs" should be an in_url substring of /graphs/intro`)
	}
	if h.Counters[doc.HTMLHref] != 0 {
		t.Fatal("n_href must always be zero on this path")
	}

	example, ok := hitlists["example"]
	if !ok {
		t.Fatal(`expected a hitlist for "example"`)
	}
	if example.Counters[doc.HTMLInDomain] != 1 {
		t.Fatal(`"example" should be an in_domain substring of example.com`)
	}
}
