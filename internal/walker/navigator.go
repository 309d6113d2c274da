package walker

import (
	"context"
	"fmt"

	"codegraph/internal/store"
)

// Navigator provides structural navigation and impact analysis over one
// snapshot's code property graph: linear scrolling, parent lookup, reverse
// and forward call graph traversal, and pipeline visualization.
type Navigator struct {
	store store.Store
}

// NewNavigator creates a Navigator over s.
func NewNavigator(s store.Store) *Navigator {
	return &Navigator{store: s}
}

// NeighborDirection selects which adjacent chunk ReadNeighborChunk returns.
type NeighborDirection string

const (
	DirNext NeighborDirection = "next"
	DirPrev NeighborDirection = "prev"
)

// ReadNeighborChunk returns the chunk immediately before or after chunkID in
// its owning file's byte order, or nil at a file boundary.
func (n *Navigator) ReadNeighborChunk(ctx context.Context, chunkID string, dir NeighborDirection) (*store.ChunkRow, error) {
	current, err := n.store.ChunkByID(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	siblings, err := n.store.SiblingChunks(ctx, current.Chunk.FileID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, c := range siblings {
		if c.ID == chunkID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, store.ErrNotFound
	}

	var neighborIdx int
	switch dir {
	case DirNext:
		neighborIdx = idx + 1
	case DirPrev:
		neighborIdx = idx - 1
	default:
		return nil, fmt.Errorf("invalid direction %q", dir)
	}
	if neighborIdx < 0 || neighborIdx >= len(siblings) {
		return nil, nil
	}
	return n.store.ChunkByID(ctx, siblings[neighborIdx].ID)
}

// ReadParentChunk returns chunkID's structural parent via its child_of
// edge, or nil if it has none (e.g. it is a file-level chunk).
func (n *Navigator) ReadParentChunk(ctx context.Context, chunkID string) (*store.ChunkRow, error) {
	parent, err := n.store.Parent(ctx, chunkID)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n.store.ChunkByID(ctx, parent.ID)
}

// AnalyzeImpact performs reverse call graph analysis: who references
// chunkID, up to limit results.
func (n *Navigator) AnalyzeImpact(ctx context.Context, chunkID string, limit int) ([]store.Edge, error) {
	edges, err := n.store.IncomingRefs(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(edges) > limit {
		edges = edges[:limit]
	}
	return edges, nil
}

// AnalyzeDependencies performs forward call graph analysis: what chunkID
// calls.
func (n *Navigator) AnalyzeDependencies(ctx context.Context, chunkID string) ([]store.Edge, error) {
	return n.store.OutgoingCalls(ctx, chunkID)
}

// PipelineNode is one node of the tree VisualizePipeline returns.
type PipelineNode struct {
	ChunkID  string
	File     string
	Relation string
	Symbol   string
	Children []*PipelineNode
}

// VisualizePipeline recursively traces outgoing calls from chunkID up to
// maxDepth, cutting cycles with a visited set carried through the traversal
// (spec §9).
func (n *Navigator) VisualizePipeline(ctx context.Context, chunkID string, maxDepth int) (*PipelineNode, error) {
	visited := make(map[string]bool)
	return n.walkPipeline(ctx, chunkID, 1, maxDepth, visited)
}

func (n *Navigator) walkPipeline(ctx context.Context, chunkID string, depth, maxDepth int, visited map[string]bool) (*PipelineNode, error) {
	if depth > maxDepth || visited[chunkID] {
		return nil, nil
	}
	visited[chunkID] = true

	calls, err := n.store.OutgoingCalls(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	const maxCallsPerNode = 10
	if len(calls) > maxCallsPerNode {
		calls = calls[:maxCallsPerNode]
	}

	root := &PipelineNode{ChunkID: chunkID}
	for _, e := range calls {
		targetID := e.TargetChunkID
		if targetID == "" {
			continue
		}
		var file string
		if row, err := n.store.ChunkByID(ctx, targetID); err == nil {
			file = row.FilePath
		}
		child := &PipelineNode{
			ChunkID:  targetID,
			File:     file,
			Relation: string(e.Kind),
			Symbol:   e.Metadata,
		}
		sub, err := n.walkPipeline(ctx, targetID, depth+1, maxDepth, visited)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			child.Children = sub.Children
		}
		root.Children = append(root.Children, child)
	}
	return root, nil
}
