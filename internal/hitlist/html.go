package hitlist

import (
	"strings"

	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/token"
)

// HTMLInput holds the extracted zones a page is decomposed into before
// hitlist building: the full visible text, the <title>, the
// meta-description content, and the concatenated h1..h6 text. Domain and
// URL path drive the in_domain/in_url bits.
type HTMLInput struct {
	BodyText string
	Title    string
	Meta     string
	Headings string
	Netloc   string
	URLPath  string
}

// BuildHTML tokenizes the page's zones with the unstructured normalizer and
// emits one hitlist per token with the 8-element HTML counter vector
// (spec §4.3).
func BuildHTML(docID doc.ID, in HTMLInput) map[string]doc.Hitlist {
	bodyTokens := token.TokenizeUnstructured(in.BodyText, token.ModeHTML)
	titleSet := countSet(token.TokenizeUnstructured(in.Title, token.ModeHTML))
	metaSet := countSet(token.TokenizeUnstructured(in.Meta, token.ModeHTML))
	headingSet := countSet(token.TokenizeUnstructured(in.Headings, token.ModeHTML))

	positions := make(map[string][]uint16)
	total := make(map[string]uint32)
	for i, tok := range bodyTokens {
		if len(positions[tok]) < doc.MaxPositions {
			positions[tok] = append(positions[tok], uint16(i))
		}
		total[tok]++
	}

	docLength := len(bodyTokens)
	netloc := strings.ToLower(in.Netloc)
	urlPath := strings.ToLower(in.URLPath)

	out := make(map[string]doc.Hitlist, len(total))
	for tok, n := range total {
		counters := doc.NewHTMLCounters()
		counters[doc.HTMLTitle] = titleSet[tok]
		counters[doc.HTMLMeta] = metaSet[tok]
		counters[doc.HTMLHeading] = headingSet[tok]
		counters[doc.HTMLTotal] = n
		// n_href is reserved for future anchor-text accounting (spec §9
		// open question) and is always zero on this path.
		counters[doc.HTMLHref] = 0
		if netloc != "" && strings.Contains(netloc, tok) {
			counters[doc.HTMLInDomain] = 1
		}
		if urlPath != "" && strings.Contains(urlPath, tok) {
			counters[doc.HTMLInURL] = 1
		}
		counters[doc.HTMLDocLength] = uint32(docLength)
		out[tok] = doc.Hitlist{DocID: docID, Positions: positions[tok], Counters: counters}
	}
	return out
}

func countSet(tokens []string) map[string]uint32 {
	m := make(map[string]uint32, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}
