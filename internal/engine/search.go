package engine

import (
	"context"
	"sort"

	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/scoring"
	"github.com/screenager/bsearch/internal/semantic"
	"github.com/screenager/bsearch/internal/token"
)

// Result is one scored document returned by Search.
type Result struct {
	DocID         doc.ID
	URL           string
	Title         string
	KeywordScore  float64
	SemanticScore float64
	FinalScore    float64
}

// SearchOptions tunes a single Search call; zero values fall back to the
// engine's configured defaults (spec §6).
type SearchOptions struct {
	Limit          int
	SemanticWeight float64
	UseSemanticPtr *bool
}

func (o SearchOptions) useSemantic(def bool) bool {
	if o.UseSemanticPtr != nil {
		return *o.UseSemanticPtr
	}
	return def
}

func (o SearchOptions) weight(def float64) float64 {
	if o.SemanticWeight != 0 {
		return o.SemanticWeight
	}
	return def
}

// postingsByToken fetches and indexes postings for a single query token by
// document id, so later stages can look up "does doc X have token T" and
// retrieve its positions in O(1).
type postingsByToken struct {
	token string
	byDoc map[doc.ID]doc.Hitlist
}

func (e *Engine) collectPostings(tokens []string) []postingsByToken {
	out := make([]postingsByToken, 0, len(tokens))
	for _, tok := range tokens {
		hitlists, err := e.fetchPostings(tok)
		if err != nil {
			debugf("[search] fetch postings for %q: %v", tok, err)
			continue
		}
		byDoc := make(map[doc.ID]doc.Hitlist, len(hitlists))
		for _, h := range hitlists {
			byDoc[h.DocID] = h
		}
		out = append(out, postingsByToken{token: tok, byDoc: byDoc})
	}
	return out
}

// intersectClass returns the set of document ids of the given class present
// in every token's posting map (spec §4.8: a keyword match requires every
// query token to appear in the document). An empty postings slice yields an
// empty set — no tokens means no keyword match.
func intersectClass(postings []postingsByToken, class doc.Class) map[doc.ID]struct{} {
	if len(postings) == 0 {
		return map[doc.ID]struct{}{}
	}
	candidates := make(map[doc.ID]struct{})
	for id := range postings[0].byDoc {
		if id.Class() == class {
			candidates[id] = struct{}{}
		}
	}
	for _, p := range postings[1:] {
		for id := range candidates {
			if _, ok := p.byDoc[id]; !ok {
				delete(candidates, id)
			}
		}
	}
	return candidates
}

func positionsFor(p postingsByToken, id doc.ID) []int {
	h, ok := p.byDoc[id]
	if !ok {
		return nil
	}
	out := make([]int, len(h.Positions))
	for i, pos := range h.Positions {
		out[i] = int(pos)
	}
	return out
}

// Search implements the hybrid ranking algorithm of spec §4.8: tokenize the
// query in both class-specific modes, keep only tokens present in the
// barrel index, intersect per class to find documents matching every query
// token, union across classes, and — if that union is empty and semantic
// scoring is enabled — fall back to semantic-only ranking. Each surviving
// document is scored by mean per-token keyword score plus a phrase-
// proximity bonus, fused with its semantic cosine similarity.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == "" {
		return []Result{}, nil
	}

	htmlTokens := filterKnown(token.TokenizeQueryHTML(query), e.barrelIndex.Contains)
	paperTokens := filterKnown(token.TokenizeQueryPaper(query), e.barrelIndex.Contains)

	htmlPostings := e.collectPostings(htmlTokens)
	paperPostings := e.collectPostings(paperTokens)

	htmlDocs := intersectClass(htmlPostings, doc.ClassHTML)
	paperDocs := intersectClass(paperPostings, doc.ClassPaper)

	useSemantic := opts.useSemantic(e.cfg.DefaultUseSemantic) && e.semanticAvailable
	weight := opts.weight(e.cfg.DefaultSemanticWeight)

	var semanticScores map[doc.ID]float64
	if useSemantic {
		semanticScores = semantic.Scores(e.model, e.matrix, query)
	}

	if len(htmlDocs) == 0 && len(paperDocs) == 0 {
		if !useSemantic {
			return []Result{}, nil
		}
		return e.semanticOnlyResults(semanticScores, opts.Limit), nil
	}

	results := make([]Result, 0, len(htmlDocs)+len(paperDocs))
	for id := range htmlDocs {
		results = append(results, e.scoreHTMLDoc(id, htmlTokens, htmlPostings, semanticScores, weight))
	}
	for id := range paperDocs {
		results = append(results, e.scorePaperDoc(id, paperTokens, paperPostings, semanticScores, weight))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func filterKnown(tokens []string, known func(string) bool) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if known(t) {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) scoreHTMLDoc(id doc.ID, tokens []string, postings []postingsByToken, semanticScores map[doc.ID]float64, weight float64) Result {
	url := e.tables.URLFor(id.TrimPrefix())

	perToken := make([]int, 0, len(postings))
	tokenPositions := make(map[string][]int, len(postings))
	for _, p := range postings {
		h, ok := p.byDoc[id]
		if !ok {
			continue
		}
		perToken = append(perToken, scoring.ScoreHTML(h, e.tables, url))
		tokenPositions[p.token] = positionsFor(p, id)
	}

	keyword := scoring.Mean(perToken) + float64(scoring.PhraseBonus(tokens, tokenPositions))
	semanticScore := semanticScores[id]
	return Result{
		DocID:         id,
		URL:           url,
		KeywordScore:  keyword,
		SemanticScore: semanticScore,
		FinalScore:    scoring.Fuse(keyword, semanticScore, weight),
	}
}

func (e *Engine) scorePaperDoc(id doc.ID, tokens []string, postings []postingsByToken, semanticScores map[doc.ID]float64, weight float64) Result {
	meta, _ := e.paperInfo.Get(id.TrimPrefix())

	perToken := make([]int, 0, len(postings))
	tokenPositions := make(map[string][]int, len(postings))
	for _, p := range postings {
		h, ok := p.byDoc[id]
		if !ok {
			continue
		}
		perToken = append(perToken, scoring.ScorePaper(h, e.tables, meta.NormalizedTitle))
		tokenPositions[p.token] = positionsFor(p, id)
	}

	keyword := scoring.Mean(perToken) + float64(scoring.PhraseBonus(tokens, tokenPositions))
	semanticScore := semanticScores[id]
	return Result{
		DocID:         id,
		URL:           meta.URL,
		Title:         meta.Title,
		KeywordScore:  keyword,
		SemanticScore: semanticScore,
		FinalScore:    scoring.Fuse(keyword, semanticScore, weight),
	}
}

// semanticOnlyResults builds a result list purely from cosine similarity,
// used when no document satisfies every keyword-mode query token (spec
// §4.8's fallback).
func (e *Engine) semanticOnlyResults(scores map[doc.ID]float64, limit int) []Result {
	results := make([]Result, 0, len(scores))
	for id, sim := range scores {
		if sim <= 0 {
			continue
		}
		r := Result{DocID: id, SemanticScore: sim, FinalScore: sim}
		if id.Class() == doc.ClassHTML {
			r.URL = e.tables.URLFor(id.TrimPrefix())
		} else {
			meta, _ := e.paperInfo.Get(id.TrimPrefix())
			r.URL, r.Title = meta.URL, meta.Title
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
