package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// PromptInput carries everything the prompt template needs for one chunk.
type PromptInput struct {
	RelPath   string
	Language  string
	Category  string
	Roles     []string
	Tags      []string
	DefinedBy []string // incoming symbol names referencing this chunk, if any
	Content   string
}

// BuildPrompt renders the stable prompt template (spec §4.6). Any change to
// this layout invalidates every cached vector_hash, which is the point: the
// hash is a cache key over exactly what the model sees.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[CONTEXT]\n")
	fmt.Fprintf(&b, "File: %s\n", in.RelPath)
	fmt.Fprintf(&b, "Language: %s\n", in.Language)
	fmt.Fprintf(&b, "Category: %s\n", in.Category)
	fmt.Fprintf(&b, "Role: %s\n", strings.Join(in.Roles, ", "))
	fmt.Fprintf(&b, "Tags: %s\n", strings.Join(in.Tags, ", "))
	fmt.Fprintf(&b, "Defines: %s\n", strings.Join(in.DefinedBy, ", "))
	fmt.Fprintf(&b, "\n[CODE]\n%s", in.Content)
	return b.String()
}

// VectorHash is the cache key: SHA-256 of the rendered prompt.
func VectorHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
