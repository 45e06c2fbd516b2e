package scoring

import (
	"testing"

	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/rank"
)

func emptyTables() *rank.Tables {
	return &rank.Tables{
		PageRank:     map[string]float64{},
		DomainRank:   map[string]float64{},
		CitationRank: map[string]float64{},
		DocIDToURL:   map[string]string{},
	}
}

func TestScoreHTMLClampRange(t *testing.T) {
	counters := doc.NewHTMLCounters()
	counters[doc.HTMLTitle] = 100
	counters[doc.HTMLTotal] = 100
	counters[doc.HTMLDocLength] = 100
	hl := doc.Hitlist{Counters: counters, Positions: []uint16{0}}
	score := ScoreHTML(hl, emptyTables(), "")
	if score < 1 || score > 80 {
		t.Fatalf("ScoreHTML = %d, want in [1, 80]", score)
	}
}

func TestScoreHTMLStaticRanksAdded(t *testing.T) {
	counters := doc.NewHTMLCounters()
	counters[doc.HTMLTitle] = 1
	counters[doc.HTMLTotal] = 1
	counters[doc.HTMLDocLength] = 10
	hl := doc.Hitlist{Counters: counters, Positions: []uint16{0}}

	tables := emptyTables()
	tables.PageRank["http://example.com"] = 5
	tables.DomainRank["example.com"] = 3

	withoutRank := ScoreHTML(hl, emptyTables(), "http://example.com")
	withRank := ScoreHTML(hl, tables, "http://example.com")
	if withRank-withoutRank != 8 {
		t.Fatalf("static rank delta = %d, want 8", withRank-withoutRank)
	}
}

func TestScorePaperCitationRankAdded(t *testing.T) {
	counters := doc.NewPaperCounters()
	counters[doc.PaperGolden] = 2
	counters[doc.PaperTotal] = 2
	counters[doc.PaperDocLength] = 20
	hl := doc.Hitlist{Counters: counters, Positions: []uint16{0}}

	tables := emptyTables()
	tables.CitationRank["a study of graphs"] = 7

	withoutRank := ScorePaper(hl, emptyTables(), "a study of graphs")
	withRank := ScorePaper(hl, tables, "a study of graphs")
	if withRank-withoutRank != 7 {
		t.Fatalf("citation rank delta = %d, want 7", withRank-withoutRank)
	}
}

func TestPhraseBonusTwoTokenMatch(t *testing.T) {
	// S2: "quantum entanglement" with positions {quantum: [5,50], entanglement: [6]}.
	// Phrase match length 2 -> bonus = L*(L-1)/2 = 1.
	tokenPositions := map[string][]int{
		"quantum":      {5, 50},
		"entanglement": {6},
	}
	bonus := PhraseBonus([]string{"quantum", "entanglement"}, tokenPositions)
	if bonus != 1 {
		t.Fatalf("PhraseBonus = %d, want 1", bonus)
	}
}

func TestPhraseBonusNoMatch(t *testing.T) {
	tokenPositions := map[string][]int{
		"alpha": {0},
		"beta":  {100},
	}
	if got := PhraseBonus([]string{"alpha", "beta"}, tokenPositions); got != 0 {
		t.Fatalf("PhraseBonus = %d, want 0", got)
	}
}

func TestPhraseBonusMultipleStartsSum(t *testing.T) {
	// Two independent runs of length 2 each contribute 1 -> total 2.
	tokenPositions := map[string][]int{
		"a": {0, 10},
		"b": {1, 11},
	}
	if got := PhraseBonus([]string{"a", "b"}, tokenPositions); got != 2 {
		t.Fatalf("PhraseBonus = %d, want 2", got)
	}
}

func TestFuseLinearCombination(t *testing.T) {
	got := Fuse(10, 0.5, 20)
	if got != 20 {
		t.Fatalf("Fuse(10, 0.5, 20) = %v, want 20", got)
	}
}

func TestFusionMonotonicity(t *testing.T) {
	// Invariant 10: with fixed keyword scores, increasing semantic_weight
	// never lowers the rank of the doc with the highest semantic score.
	keywordA, semA := 50.0, 0.9
	keywordB, semB := 50.0, 0.1

	for _, w := range []float64{0, 5, 20, 100} {
		scoreA := Fuse(keywordA, semA, w)
		scoreB := Fuse(keywordB, semB, w)
		if w > 0 && scoreA < scoreB {
			t.Fatalf("at weight %v, higher-semantic doc A (%v) ranked below B (%v)", w, scoreA, scoreB)
		}
	}
}
