package chunker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// MaxChunkBytes and ChunkTolerance bound the scope-aware splitter (spec §4.3,
// §6): nodes at or below MaxChunkBytes+ChunkTolerance are emitted whole;
// larger ones are split by descending into their semantically meaningful
// sub-nodes, and a node with no such sub-structure is emitted atomically and
// flagged oversize.
const (
	MaxChunkBytes   = 800
	ChunkTolerance  = 400
	structuralBlock = MaxChunkBytes // byte window for ungrammared languages
)

// RawChunk is one chunk extracted from a source file before storage.
type RawChunk struct {
	Kind        string
	Name        string
	Roles       []string
	Tags        []string
	Identifiers []string
	StartByte   int
	EndByte     int
	StartLine   int
	EndLine     int
	Oversize    bool
	ParentIndex int // index into the returned slice, or -1 for none
}

// ASTChunker parses source files using tree-sitter and extracts semantic,
// byte-precise chunks.
type ASTChunker struct {
	registry *Registry
}

// NewASTChunker creates a chunker backed by the given registry.
func NewASTChunker(r *Registry) *ASTChunker {
	return &ASTChunker{registry: r}
}

// Chunk parses src and returns its chunks in source order. If no grammar is
// registered for path's extension, it falls back to byte-window structural
// chunking (spec §4.3: "other languages get structural chunking only").
func (c *ASTChunker) Chunk(path string, src []byte) ([]RawChunk, error) {
	spec, lang := c.registry.Lookup(path)
	if spec == nil {
		return structuralChunks(src), nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	captures, err := runQuery(spec, tree, src, lang)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	if len(captures) == 0 {
		return structuralChunks(src), nil
	}

	forest := buildForest(captures)
	lineOffsets := computeLineOffsets(src)

	var out []RawChunk
	for _, root := range forest.roots {
		emitCapture(root, forest, src, lineOffsets, -1, &out)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartByte < out[j].StartByte })
	return out, nil
}

// capture is one query match: a chunkable node plus whichever role/tag/name
// captures fall within it.
type capture struct {
	kind        string
	name        string
	roles       []string
	tags        []string
	identifiers []string
	startByte   int
	endByte     int
}

func runQuery(spec *LanguageSpec, tree *sitter.Tree, src []byte, lang string) ([]capture, error) {
	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", lang, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	// One entry per @chunk capture, keyed by node, accumulating
	// whichever name/role/tag captures from the same match fall on it.
	var chunkNodes []*sitter.Node
	meta := make(map[*sitter.Node]*capture)

	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var chunkNode *sitter.Node
		for _, cap := range m.Captures {
			if q.CaptureNameForId(cap.Index) == "chunk" {
				chunkNode = cap.Node
				break
			}
		}
		if chunkNode == nil {
			continue
		}
		cp, ok := meta[chunkNode]
		if !ok {
			cp = &capture{
				kind:      chunkNode.Type(),
				startByte: int(chunkNode.StartByte()),
				endByte:   int(chunkNode.EndByte()),
			}
			meta[chunkNode] = cp
			chunkNodes = append(chunkNodes, chunkNode)
		}
		for _, cap := range m.Captures {
			capName := q.CaptureNameForId(cap.Index)
			switch {
			case capName == "name":
				cp.name = cap.Node.Content(src)
			case strings.HasPrefix(capName, "role."):
				cp.roles = append(cp.roles, strings.TrimPrefix(capName, "role."))
			case strings.HasPrefix(capName, "tag."):
				cp.tags = append(cp.tags, strings.TrimPrefix(capName, "tag."))
			}
		}
	}

	captures := make([]capture, 0, len(chunkNodes))
	for _, n := range chunkNodes {
		cp := meta[n]
		cp.identifiers = identifiersIn(n, src)
		cp.roles = append(cp.roles, deriveRoles(lang, cp.kind, cp.name, cp.tags)...)
		captures = append(captures, *cp)
	}
	return captures, nil
}

// deriveRoles attaches spec §4.3 semantic roles from simple name/kind
// heuristics, since the bundled tree-sitter bindings do not filter query
// predicates (so `#eq?`/`#match?` cannot be used reliably in .scm queries).
func deriveRoles(lang, kind, name string, tags []string) []string {
	var roles []string
	hasTag := func(t string) bool {
		for _, x := range tags {
			if x == t {
				return true
			}
		}
		return false
	}

	if name == "main" && (lang == "go" || lang == "python") {
		roles = append(roles, "entry_point")
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(name, "Test") || strings.HasPrefix(lower, "test_") || strings.HasPrefix(name, "test") {
		if hasTag("class") {
			roles = append(roles, "test_suite")
		} else {
			roles = append(roles, "test_case")
		}
	}
	if hasTag("class") && strings.Contains(lower, "schema") {
		roles = append(roles, "data_schema")
	}
	if strings.Contains(kind, "export") || strings.Contains(lower, "handler") || strings.Contains(lower, "route") {
		roles = append(roles, "api_endpoint")
	}
	return roles
}

// identifiersIn walks a node's subtree collecting `identifier`-typed leaf
// text, feeding Chunk.Metadata.Identifiers.
func identifiersIn(n *sitter.Node, src []byte) []string {
	var ids []string
	seen := make(map[string]bool)
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if strings.Contains(node.Type(), "identifier") {
			text := node.Content(src)
			if text != "" && !seen[text] {
				seen[text] = true
				ids = append(ids, text)
			}
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(n)
	return ids
}

// captureForest nests captures by byte-range containment: each capture's
// parent is the smallest other capture that strictly contains it.
type captureForest struct {
	children map[int][]int // index -> child indices
	roots    []int
	all      []capture
}

func buildForest(captures []capture) *captureForest {
	sort.SliceStable(captures, func(i, j int) bool {
		if captures[i].startByte != captures[j].startByte {
			return captures[i].startByte < captures[j].startByte
		}
		return (captures[i].endByte - captures[i].startByte) > (captures[j].endByte - captures[j].startByte)
	})

	f := &captureForest{children: make(map[int][]int), all: captures}
	parentOf := make([]int, len(captures))
	for i := range parentOf {
		parentOf[i] = -1
	}

	for i, c := range captures {
		best := -1
		for j, other := range captures {
			if j == i {
				continue
			}
			if other.startByte <= c.startByte && other.endByte >= c.endByte &&
				(other.endByte-other.startByte) > (c.endByte-c.startByte) {
				if best == -1 || (captures[best].endByte-captures[best].startByte) > (other.endByte-other.startByte) {
					best = j
				}
			}
		}
		parentOf[i] = best
	}

	for i, p := range parentOf {
		if p == -1 {
			f.roots = append(f.roots, i)
		} else {
			f.children[p] = append(f.children[p], i)
		}
	}
	return f
}

// emitCapture applies the spec §4.3 recursive rule: emit a capture whole if
// it fits the budget; otherwise descend into its nested captures, attaching
// them to parentIdx (the closest ancestor actually emitted as a chunk);
// a capture with no nested captures that still exceeds budget is emitted
// atomically and flagged oversize.
func emitCapture(i int, f *captureForest, src []byte, lineOffsets []int, parentIdx int, out *[]RawChunk) {
	c := f.all[i]
	size := c.endByte - c.startByte
	children := f.children[i]

	if size <= MaxChunkBytes+ChunkTolerance || len(children) == 0 {
		idx := appendChunk(out, c, lineOffsets, parentIdx, size > MaxChunkBytes+ChunkTolerance)
		for _, ci := range children {
			emitCapture(ci, f, src, lineOffsets, idx, out)
		}
		return
	}

	for _, ci := range children {
		emitCapture(ci, f, src, lineOffsets, parentIdx, out)
	}
}

func appendChunk(out *[]RawChunk, c capture, lineOffsets []int, parentIdx int, oversize bool) int {
	*out = append(*out, RawChunk{
		Kind:        c.kind,
		Name:        c.name,
		Roles:       c.roles,
		Tags:        c.tags,
		Identifiers: c.identifiers,
		StartByte:   c.startByte,
		EndByte:     c.endByte,
		StartLine:   lineForByte(lineOffsets, c.startByte),
		EndLine:     lineForByte(lineOffsets, c.endByte),
		Oversize:    oversize,
		ParentIndex: parentIdx,
	})
	return len(*out) - 1
}

// structuralChunks splits src into fixed byte windows with no grammar,
// matching spec §4.3's "other languages get structural chunking only".
func structuralChunks(src []byte) []RawChunk {
	if len(src) == 0 {
		return nil
	}
	lineOffsets := computeLineOffsets(src)
	var out []RawChunk
	for start := 0; start < len(src); start += structuralBlock {
		end := start + structuralBlock
		if end > len(src) {
			end = len(src)
		}
		out = append(out, RawChunk{
			Kind:        "block",
			StartByte:   start,
			EndByte:     end,
			StartLine:   lineForByte(lineOffsets, start),
			EndLine:     lineForByte(lineOffsets, end),
			ParentIndex: -1,
		})
	}
	return out
}

// computeLineOffsets returns, for each line index, the byte offset of its
// first character; lineForByte binary-searches it to derive 1-based line
// numbers from byte offsets (spec §4.3 "line ranges computed from byte
// ranges plus the file's newline positions").
func computeLineOffsets(src []byte) []int {
	offsets := []int{0}
	for i, b := range src {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func lineForByte(offsets []int, b int) int {
	lo, hi := 0, len(offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if offsets[mid] <= b {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
