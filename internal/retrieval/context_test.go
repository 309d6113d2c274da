package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetrievedContext_Render(t *testing.T) {
	rc := RetrievedContext{
		NodeID:              "chunk-1",
		FilePath:            "pkg/foo.go",
		StartLine:           10,
		EndLine:             20,
		Content:             "func Foo() {}",
		Language:            "Go",
		SemanticLabels:      []string{"function", "entry_point"},
		OutgoingDefinitions: []string{"Bar", "Baz"},
		NavHints: NavHints{
			ParentChunkID: "chunk-0",
			PrevChunkID:   "",
			NextChunkID:   "chunk-2",
		},
		ParentContext: "class Foo defined in pkg/foo.go (L5)",
	}

	out := rc.Render()
	assert.True(t, strings.HasPrefix(out, "FILE: pkg/foo.go > class Foo defined in pkg/foo.go (L5) (L10-20)"))
	assert.Contains(t, out, "LABELS: [function] [entry_point]")
	assert.Contains(t, out, "NODE ID: chunk-1")
	assert.Contains(t, out, "```go\nfunc Foo() {}\n```")
	assert.Contains(t, out, "RELATIONS:\n- Bar\n- Baz")
	assert.Contains(t, out, "SEMANTIC_PARENT_CHUNK: chunk-0")
	assert.Contains(t, out, "PREV_FILE_CHUNK: None")
	assert.Contains(t, out, "NEXT_FILE_CHUNK: chunk-2")
}

func TestRetrievedContext_Render_NoLabelsOrRelations(t *testing.T) {
	rc := RetrievedContext{NodeID: "c1", FilePath: "a.py", Content: "x = 1", Language: "python"}
	out := rc.Render()
	assert.Contains(t, out, "LABELS: [Code Block]")
	assert.NotContains(t, out, "RELATIONS:")
}

func TestRetrievedContext_Render_TruncatesRelations(t *testing.T) {
	rc := RetrievedContext{
		NodeID:   "c1",
		FilePath: "a.go",
		Content:  "x",
		OutgoingDefinitions: []string{"a", "b", "c", "d", "e", "f", "g"},
	}
	out := rc.Render()
	assert.Contains(t, out, "- ... (2 more)")
}
