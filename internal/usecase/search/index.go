// Package search implements the in-memory full-text indexes used to map
// free-form names and units onto catalog records and offers.
package search

import (
	"math"
	"sort"
	"sync/atomic"
)

// Scoring weights
const (
	fuzzyWeightFactor = 0.8 // Fuzzy matches get 80% of normal weight
	fuzzyMinLength    = 5   // Only fuzzy match tokens of at least this many runes
	fuzzyEditDistance = 1
)

// Field describes one indexed field of a Schema
type Field struct {
	Name     string
	Analyzer Analyzer
	Boost    float64
	Fuzzy    bool
}

// Document is one indexed record. Stored is returned untouched with hits.
type Document struct {
	ID     string
	Fields map[string]string
	Stored any
}

// Hit is a ranked search result
type Hit struct {
	Document
	Score float64
}

type posting struct {
	doc int
	tf  int
}

// snapshot is an immutable, fully built index generation
type snapshot struct {
	docs     []Document
	postings map[string]map[string][]posting // field -> term -> postings
}

// Index is an OR-combined multi-field index. Rebuild replaces the content
// wholesale; readers observe either the previous or the new generation.
type Index struct {
	fields  []Field
	current atomic.Pointer[snapshot]
}

// NewIndex creates an empty index over the given fields
func NewIndex(fields ...Field) *Index {
	ix := &Index{fields: fields}
	ix.current.Store(&snapshot{postings: map[string]map[string][]posting{}})
	return ix
}

// Rebuild indexes docs into a fresh generation and publishes it atomically
func (ix *Index) Rebuild(docs []Document) {
	snap := &snapshot{
		docs:     make([]Document, len(docs)),
		postings: make(map[string]map[string][]posting, len(ix.fields)),
	}
	copy(snap.docs, docs)

	for _, f := range ix.fields {
		terms := make(map[string][]posting)
		for i, d := range snap.docs {
			text, ok := d.Fields[f.Name]
			if !ok || text == "" {
				continue
			}
			counts := make(map[string]int)
			var order []string
			for _, tok := range f.Analyzer.Tokens(text) {
				if counts[tok] == 0 {
					order = append(order, tok)
				}
				counts[tok]++
			}
			for _, tok := range order {
				terms[tok] = append(terms[tok], posting{doc: i, tf: counts[tok]})
			}
		}
		snap.postings[f.Name] = terms
	}

	ix.current.Store(snap)
}

// Len returns the number of documents in the published generation
func (ix *Index) Len() int {
	return len(ix.current.Load().docs)
}

// Search ranks documents matching any query term in any field. A limit of
// zero or less returns every match. Equal scores keep insertion order.
func (ix *Index) Search(query string, limit int) []Hit {
	snap := ix.current.Load()
	n := float64(len(snap.docs))
	if n == 0 {
		return nil
	}

	scores := make(map[int]float64)
	for _, f := range ix.fields {
		terms := snap.postings[f.Name]
		boost := f.Boost
		if boost == 0 {
			boost = 1
		}
		for _, qt := range f.Analyzer.Tokens(query) {
			if list, ok := terms[qt]; ok {
				addScores(scores, list, boost, n)
				continue
			}
			if !f.Fuzzy || len([]rune(qt)) < fuzzyMinLength {
				continue
			}
			var similar []string
			for term := range terms {
				if fuzzyTokenMatch(qt, term, fuzzyEditDistance) {
					similar = append(similar, term)
				}
			}
			sort.Strings(similar)
			for _, term := range similar {
				addScores(scores, terms[term], boost*fuzzyWeightFactor, n)
			}
		}
	}

	ranked := make([]int, 0, len(scores))
	for doc := range scores {
		ranked = append(ranked, doc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		return a < b
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	hits := make([]Hit, len(ranked))
	for i, doc := range ranked {
		hits[i] = Hit{Document: snap.docs[doc], Score: scores[doc]}
	}
	return hits
}

func addScores(scores map[int]float64, list []posting, boost, n float64) {
	idf := math.Log(1 + n/float64(len(list)))
	for _, p := range list {
		scores[p.doc] += boost * (1 + math.Log(float64(p.tf))) * idf
	}
}
