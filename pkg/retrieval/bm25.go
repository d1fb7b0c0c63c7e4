// Package retrieval ranks passages from a local document directory against
// a chat message and hands the best ones to the relay as context.
//
// Documents live under one directory per namespace. Each namespace is
// indexed lazily on first use with Okapi BM25 and kept in a bounded cache
// until its files change.
package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Passage is one searchable unit of a document.
type Passage struct {
	// Source is the document path relative to its namespace.
	Source string
	Text   string
}

// Hit is a ranked passage.
type Hit struct {
	Passage
	Score float64
}

// Index is an immutable BM25 index over passages.
type Index struct {
	passages []Passage
	freqs    []map[string]int
	lengths  []int
	docFreq  map[string]int
	avgLen   float64
}

// NewIndex tokenizes and indexes passages.
func NewIndex(passages []Passage) *Index {
	ix := &Index{
		passages: passages,
		freqs:    make([]map[string]int, len(passages)),
		lengths:  make([]int, len(passages)),
		docFreq:  make(map[string]int),
	}

	total := 0
	for i, p := range passages {
		tokens := Tokenize(p.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			ix.docFreq[t]++
		}
		ix.freqs[i] = tf
		ix.lengths[i] = len(tokens)
		total += len(tokens)
	}
	if len(passages) > 0 {
		ix.avgLen = float64(total) / float64(len(passages))
	}
	return ix
}

// Len returns the number of indexed passages.
func (ix *Index) Len() int {
	return len(ix.passages)
}

// Search returns up to topK passages with a positive score, best first.
// Equal scores keep document order.
func (ix *Index) Search(query string, topK int) []Hit {
	if topK <= 0 || len(ix.passages) == 0 {
		return nil
	}

	terms := uniqueTokens(query)
	if len(terms) == 0 {
		return nil
	}

	n := float64(len(ix.passages))
	hits := make([]Hit, 0, len(ix.passages))
	for i, tf := range ix.freqs {
		score := 0.0
		norm := bm25K1 * (1 - bm25B + bm25B*float64(ix.lengths[i])/ix.avgLen)
		for _, t := range terms {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			df := float64(ix.docFreq[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			score += idf * f * (bm25K1 + 1) / (f + norm)
		}
		if score > 0 {
			hits = append(hits, Hit{Passage: ix.passages[i], Score: score})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// Tokenize lower-cases s and splits it into runs of letters and digits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func uniqueTokens(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range Tokenize(s) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
