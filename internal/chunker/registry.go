package chunker

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec defines the tree-sitter grammar and semantic query for a
// language. A capture named exactly `chunk` marks a chunkable node, whose
// kind is its tree-sitter node type; `name` marks its identifier, and
// `role.<value>` / `tag.<value>` attach semantic metadata to the chunk
// capture of the same query match.
type LanguageSpec struct {
	Language   *sitter.Language
	Query      string
	Extensions []string
}

// Registry maps file extensions to language specs.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*LanguageSpec
	langs map[string]*LanguageSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*LanguageSpec),
		langs: make(map[string]*LanguageSpec),
	}
}

// Register adds a language spec under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[name] = spec
	for _, ext := range spec.Extensions {
		r.specs[ext] = spec
	}
}

// Lookup returns the spec for a file path based on its extension, or nil if
// no grammar is registered (caller falls back to structural chunking).
func (r *Registry) Lookup(path string) (spec *LanguageSpec, lang string) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[ext]
	if !ok {
		return nil, ext
	}
	for name, sp := range r.langs {
		if sp == s {
			return s, name
		}
	}
	return s, ext
}

// LanguageName returns the language name for a file path, or its bare
// extension if no grammar is registered.
func (r *Registry) LanguageName(path string) string {
	_, lang := r.Lookup(path)
	return lang
}
