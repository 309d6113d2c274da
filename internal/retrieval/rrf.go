// Package retrieval answers a query with ranked, context-enriched chunks:
// vector search, keyword search, Reciprocal Rank Fusion of the two, and
// graph-walker annotation of each hit (spec §4.7).
package retrieval

import (
	"math"
	"sort"

	"codegraph/internal/store"
)

// DefaultRRFK is the smoothing constant in score(d) = sum(1 / (k + rank + 1))
// (spec §4.7; rank is 0-based, so the +1 matches a 1-based rank formulation).
const DefaultRRFK = 60

// fusedCandidate accumulates one chunk's per-method ranks before scoring.
type fusedCandidate struct {
	chunkID        string
	ranks          map[string]int
	vectorDistance float64
	hasVector      bool
}

// FusedHit is one chunk after RRF scoring, ready for walker annotation.
type FusedHit struct {
	ChunkID        string
	Score          float64
	Methods        []string
	VectorDistance float64
	HasVector      bool
}

// Fuse combines vector and keyword hit lists by Reciprocal Rank Fusion,
// breaking ties by higher vector similarity (lower distance) then chunk id
// (spec §4.7 step 2). Either input may be empty: fusing a single method's
// hits alone reduces to scoring by that method's rank.
func Fuse(vectorHits []store.VectorHit, keywordHits []store.KeywordHit, k int) []FusedHit {
	if k <= 0 {
		k = DefaultRRFK
	}
	candidates := make(map[string]*fusedCandidate)
	get := func(id string) *fusedCandidate {
		c, ok := candidates[id]
		if !ok {
			c = &fusedCandidate{chunkID: id, ranks: make(map[string]int)}
			candidates[id] = c
		}
		return c
	}

	for rank, h := range vectorHits {
		c := get(h.ChunkID)
		c.ranks["vector"] = rank
		c.vectorDistance = h.Distance
		c.hasVector = true
	}
	for rank, h := range keywordHits {
		c := get(h.ChunkID)
		c.ranks["keyword"] = rank
	}

	out := make([]FusedHit, 0, len(candidates))
	for _, c := range candidates {
		var score float64
		methods := make([]string, 0, len(c.ranks))
		for method, rank := range c.ranks {
			score += 1.0 / float64(k+rank+1)
			methods = append(methods, method)
		}
		sort.Strings(methods)
		out = append(out, FusedHit{
			ChunkID:        c.chunkID,
			Score:          score,
			Methods:        methods,
			VectorDistance: c.vectorDistance,
			HasVector:      c.hasVector,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		di, dj := distanceOrInf(out[i]), distanceOrInf(out[j])
		if di != dj {
			return di < dj
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func distanceOrInf(h FusedHit) float64 {
	if !h.HasVector {
		return math.Inf(1)
	}
	return h.VectorDistance
}
