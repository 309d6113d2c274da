package retrieval

import (
	"context"
	"fmt"

	"codegraph/internal/embedding"
	"codegraph/internal/store"
	"codegraph/internal/walker"

	"golang.org/x/sync/errgroup"
)

// maxOutgoingDefinitions caps the symbols fetched per hit via calls/defines/
// references edges (spec §4.7 step 4).
const maxOutgoingDefinitions = 20

// Engine answers queries over a repository's active (or pinned) snapshot by
// running vector and/or keyword search, fusing by RRF, and annotating each
// hit with its structural neighborhood.
type Engine struct {
	store    store.Store
	provider embedding.Provider
	nav      *walker.Navigator
}

// New creates a retrieval Engine. provider may be nil if only the keyword
// strategy will ever be used (spec §4.7: "keyword search does not require
// an embedding provider to be functional").
func New(s store.Store, provider embedding.Provider) *Engine {
	return &Engine{store: s, provider: provider, nav: walker.NewNavigator(s)}
}

// Retrieve resolves the target snapshot, searches it by strategy, fuses
// hits, truncates to limit, and annotates each with walker context.
func (e *Engine) Retrieve(ctx context.Context, query, repoID, snapshotID string, limit int, strategy Strategy, filters store.SearchFilters) ([]RetrievedContext, error) {
	if snapshotID == "" {
		active, err := e.store.ActiveSnapshotOf(ctx, repoID)
		if err != nil {
			return nil, fmt.Errorf("active snapshot: %w", err)
		}
		if active == "" {
			return nil, nil
		}
		snapshotID = active
	}

	candidateLimit := limit * 2
	var vectorHits []store.VectorHit
	var keywordHits []store.KeywordHit

	switch strategy {
	case StrategyVector:
		hits, err := e.searchVector(ctx, query, candidateLimit, snapshotID, filters)
		if err != nil {
			return nil, err
		}
		vectorHits = hits
	case StrategyKeyword:
		hits, err := e.store.SearchFTS(ctx, query, candidateLimit, snapshotID, filters)
		if err != nil {
			return nil, fmt.Errorf("search fts: %w", err)
		}
		keywordHits = hits
	case StrategyHybrid:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			hits, err := e.searchVector(gctx, query, candidateLimit, snapshotID, filters)
			vectorHits = hits
			return err
		})
		g.Go(func() error {
			hits, err := e.store.SearchFTS(gctx, query, candidateLimit, snapshotID, filters)
			keywordHits = hits
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", strategy)
	}

	fused := Fuse(vectorHits, keywordHits, DefaultRRFK)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	out := make([]RetrievedContext, 0, len(fused))
	for _, hit := range fused {
		rc, err := e.annotate(ctx, hit, strategy)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

func (e *Engine) searchVector(ctx context.Context, query string, limit int, snapshotID string, filters store.SearchFilters) ([]store.VectorHit, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("vector search requires a configured embedding provider")
	}
	vectors, err := e.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.store.SearchVectors(ctx, vectors[0], limit, snapshotID, filters)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	return hits, nil
}

func (e *Engine) annotate(ctx context.Context, hit FusedHit, strategy Strategy) (RetrievedContext, error) {
	row, err := e.store.ChunkByID(ctx, hit.ChunkID)
	if err != nil {
		return RetrievedContext{}, fmt.Errorf("chunk by id %s: %w", hit.ChunkID, err)
	}

	rc := RetrievedContext{
		NodeID:          row.Chunk.ID,
		FilePath:        row.FilePath,
		StartLine:       row.Chunk.StartLine,
		EndLine:         row.Chunk.EndLine,
		Content:         row.Content,
		Score:           hit.Score,
		RetrievalMethod: strategy,
		SemanticLabels:  append(append([]string{}, row.Chunk.Metadata.Roles...), row.Chunk.Metadata.Tags...),
		Language:        row.Language,
	}

	if parent, err := e.nav.ReadParentChunk(ctx, hit.ChunkID); err == nil && parent != nil {
		rc.ParentContext = fmt.Sprintf("%s %s defined in %s (L%d)", parent.Chunk.Metadata.Kind, parent.Chunk.Metadata.Name, parent.FilePath, parent.Chunk.StartLine)
		rc.NavHints.ParentChunkID = parent.Chunk.ID
	}

	if deps, err := e.store.Neighbors(ctx, hit.ChunkID); err == nil {
		seen := make(map[string]bool)
		for _, edge := range deps {
			if len(rc.OutgoingDefinitions) >= maxOutgoingDefinitions {
				break
			}
			switch edge.Kind {
			case store.RelationCalls, store.RelationDefines, store.RelationReferences:
			default:
				continue
			}
			sym := edge.Metadata
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			rc.OutgoingDefinitions = append(rc.OutgoingDefinitions, sym)
		}
	}

	if prev, err := e.nav.ReadNeighborChunk(ctx, hit.ChunkID, walker.DirPrev); err == nil && prev != nil {
		rc.NavHints.PrevChunkID = prev.Chunk.ID
	}
	if next, err := e.nav.ReadNeighborChunk(ctx, hit.ChunkID, walker.DirNext); err == nil && next != nil {
		rc.NavHints.NextChunkID = next.Chunk.ID
	}

	return rc, nil
}
