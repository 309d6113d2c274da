package retrieval

import (
	"fmt"
	"strings"
)

// Strategy selects which search methods a Retrieve call runs.
type Strategy string

const (
	StrategyVector  Strategy = "vector"
	StrategyKeyword Strategy = "keyword"
	StrategyHybrid  Strategy = "hybrid"
)

// NavHints names the chunks adjacent to a hit for CLI/LLM navigation.
type NavHints struct {
	PrevChunkID   string
	NextChunkID   string
	ParentChunkID string
}

// RetrievedContext is one ranked, context-enriched search result (spec §4.7).
type RetrievedContext struct {
	NodeID               string
	FilePath             string
	StartLine            int
	EndLine              int
	Content              string
	Score                float64
	RetrievalMethod      Strategy
	SemanticLabels       []string
	ParentContext        string
	OutgoingDefinitions  []string
	Language             string
	NavHints             NavHints
}

// maxRenderedRelations caps the RELATIONS section, matching the teacher's
// "don't pollute the agent's prompt" budget (the cap itself is spec-sized to
// 5 lines before summarizing the remainder, same as the shown tail).
const maxRenderedRelations = 5

// Render produces the Markdown payload LLM callers consume: FILE/LABELS/
// NODE ID header, a fenced code block, an optional RELATIONS section, and a
// CODE NAVIGATION section with parent/prev/next hints.
func (c RetrievedContext) Render() string {
	var out []string

	path := c.FilePath
	if c.ParentContext != "" {
		path += " > " + c.ParentContext
	}

	labels := "[Code Block]"
	if len(c.SemanticLabels) > 0 {
		tags := make([]string, len(c.SemanticLabels))
		for i, l := range c.SemanticLabels {
			tags[i] = "[" + l + "]"
		}
		labels = strings.Join(tags, " ")
	}

	out = append(out, fmt.Sprintf("FILE: %s (L%d-%d)", path, c.StartLine, c.EndLine))
	out = append(out, fmt.Sprintf("LABELS: %s", labels))
	out = append(out, fmt.Sprintf("NODE ID: %s", c.NodeID))
	out = append(out, "")
	out = append(out, "```"+strings.ToLower(c.Language))
	out = append(out, c.Content)
	out = append(out, "```")

	if len(c.OutgoingDefinitions) > 0 {
		out = append(out, "")
		out = append(out, "RELATIONS:")
		shown := c.OutgoingDefinitions
		if len(shown) > maxRenderedRelations {
			shown = shown[:maxRenderedRelations]
		}
		for _, ref := range shown {
			out = append(out, "- "+ref)
		}
		if rest := len(c.OutgoingDefinitions) - len(shown); rest > 0 {
			out = append(out, fmt.Sprintf("- ... (%d more)", rest))
		}
	}

	out = append(out, "")
	out = append(out, "[CODE NAVIGATION]:")
	out = append(out, navLine("SEMANTIC_PARENT_CHUNK", c.NavHints.ParentChunkID))
	out = append(out, navLine("PREV_FILE_CHUNK", c.NavHints.PrevChunkID))
	out = append(out, navLine("NEXT_FILE_CHUNK", c.NavHints.NextChunkID))

	return strings.Join(out, "\n") + "\n"
}

func navLine(label, chunkID string) string {
	if chunkID == "" {
		return fmt.Sprintf("%s: None", label)
	}
	return fmt.Sprintf("%s: %s", label, chunkID)
}
