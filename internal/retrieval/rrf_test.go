package retrieval

import (
	"testing"

	"codegraph/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuse_PrefersDocumentRankedInBothLists(t *testing.T) {
	vector := []store.VectorHit{{ChunkID: "a", Distance: 0.1}, {ChunkID: "b", Distance: 0.2}}
	keyword := []store.KeywordHit{{ChunkID: "b", Rank: 0.1}, {ChunkID: "c", Rank: 0.2}}

	hits := Fuse(vector, keyword, 60)
	require.Len(t, hits, 3)
	assert.Equal(t, "b", hits[0].ChunkID, "b ranks in both lists so it should score highest")
	assert.ElementsMatch(t, []string{"keyword", "vector"}, hits[0].Methods)
}

func TestFuse_TieBreaksByVectorDistanceThenID(t *testing.T) {
	// a ranks #0 in the vector list and b ranks #0 in the keyword list, so
	// both score 1/(60+1) and tie; the tie-break then orders them.
	vector := []store.VectorHit{{ChunkID: "a", Distance: 0.05}}
	keyword := []store.KeywordHit{{ChunkID: "b", Rank: 1.0}}

	hits := Fuse(vector, keyword, 60)
	require.Len(t, hits, 2)
	assert.InDelta(t, hits[0].Score, hits[1].Score, 1e-9)
	assert.Equal(t, "a", hits[0].ChunkID, "the vector hit has a finite distance and wins the tie-break")
}

func TestFuse_EmptyInputs(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, 60))
}

func TestFuse_DefaultsKWhenNonPositive(t *testing.T) {
	vector := []store.VectorHit{{ChunkID: "a", Distance: 0.1}}
	hits := Fuse(vector, nil, 0)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0/(DefaultRRFK+1), hits[0].Score, 1e-9)
}
