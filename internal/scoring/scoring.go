// Package scoring implements the per-document-type keyword scorers, the
// phrase proximity bonus, and the linear keyword/semantic fusion (spec
// §4.7/§4.8). Grounded on
// _examples/original_source/engine/search_engine.py's
// score_html_files/rank_research_papers and the phrase-bonus loop inside
// search().
package scoring

import (
	"math"

	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/rank"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// ScoreHTML implements the HTML keyword scorer (spec §4.7). hitlist's
// counters must be the 8-element HTML vector.
func ScoreHTML(hitlist doc.Hitlist, tables *rank.Tables, docURL string) int {
	c := hitlist.Counters
	title := float64(c[doc.HTMLTitle])
	meta := float64(c[doc.HTMLMeta])
	heading := float64(c[doc.HTMLHeading])
	total := float64(c[doc.HTMLTotal])
	inDomain := c[doc.HTMLInDomain] != 0
	inURL := c[doc.HTMLInURL] != 0
	docLength := float64(c[doc.HTMLDocLength])
	if docLength == 0 {
		docLength = 1
	}

	score := minF(7.5*title, 15)
	if inDomain {
		score += 10
	}
	if inURL {
		score += 5
	}
	score += minF(3*heading, 9)
	score += minF(2*meta, 6)

	if pos, ok := hitlist.FirstPosition(); ok {
		score += 15 - minF(math.Floor(float64(pos)/7), 15)
	}

	bodyHits := math.Max(0, total-(title+heading+meta))
	density := total / docLength
	freqScore := minF(7*math.Log(1+bodyHits), 20)
	score += freqScore

	score *= 1 - density
	final := clamp(score, 1, 80)

	staticRank := tables.PageRankFor(docURL) + tables.DomainRankFor(docURL)
	return int(final + staticRank)
}

// ScorePaper implements the paper keyword scorer (spec §4.7). hitlist's
// counters must be the 5-element paper vector. normalizedTitle must already
// have rank.NormalizeTitle applied.
func ScorePaper(hitlist doc.Hitlist, tables *rank.Tables, normalizedTitle string) int {
	c := hitlist.Counters
	golden := float64(c[doc.PaperGolden])
	body := float64(c[doc.PaperBody])
	other := float64(c[doc.PaperOther])
	total := float64(c[doc.PaperTotal])
	docLength := float64(c[doc.PaperDocLength])
	if docLength == 0 {
		docLength = 1
	}

	score := minF(5*golden, 35)

	if pos, ok := hitlist.FirstPosition(); ok {
		score += 15 - minF(math.Floor(float64(pos)/15), 10)
	}

	density := total / docLength
	relevant := body + 0.1*other
	freqScore := minF(10*math.Log(1+relevant), 40)
	score += freqScore

	score *= 1 - density
	final := clamp(score, 1, 80)

	return int(final + tables.CitationRankFor(normalizedTitle))
}

// PhraseBonus implements the phrase proximity bonus (spec §4.7): for every
// occurrence of tokens[0]'s position, greedily match each subsequent token
// to a position within (0, 2] ahead of the current match; the matched
// prefix length L contributes L*(L-1)/2. tokenPositions maps each query
// token to its (ordered, ascending) recorded positions in this document.
func PhraseBonus(tokens []string, tokenPositions map[string][]int) int {
	if len(tokens) == 0 {
		return 0
	}
	starts := tokenPositions[tokens[0]]
	var bonus int
	for _, start := range starts {
		curr := start
		length := 1
		for _, tok := range tokens[1:] {
			next, found := firstWithinTwo(tokenPositions[tok], curr)
			if !found {
				break
			}
			curr = next
			length++
		}
		bonus += length * (length - 1) / 2
	}
	return bonus
}

// firstWithinTwo returns the first position in positions (assumed ascending)
// satisfying 0 < p - curr <= 2.
func firstWithinTwo(positions []int, curr int) (int, bool) {
	for _, p := range positions {
		if p-curr > 0 && p-curr <= 2 {
			return p, true
		}
	}
	return 0, false
}

// Mean returns the arithmetic mean of scores, 0 for an empty slice.
func Mean(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum int
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

// DefaultSemanticWeight is the spec-mandated default fusion weight.
const DefaultSemanticWeight = 20.0

// Fuse implements final_score = keyword_score + semantic_weight *
// semantic_score (spec §4.8).
func Fuse(keywordScore, semanticScore, semanticWeight float64) float64 {
	return keywordScore + semanticWeight*semanticScore
}
