package languages

import (
	"codegraph/internal/chunker"

	"github.com/smacker/go-tree-sitter/python"
)

// RegisterPython wires the Python grammar and its semantic query set:
// functions, classes, and their decorated forms.
func RegisterPython(r *chunker.Registry) {
	r.Register("python", &chunker.LanguageSpec{
		Language: python.GetLanguage(),
		Query: `
			(function_definition name: (identifier) @name) @tag.function @chunk
			(class_definition name: (identifier) @name) @tag.class @chunk
			(decorated_definition definition: (function_definition name: (identifier) @name)) @tag.function @chunk
			(decorated_definition definition: (class_definition name: (identifier) @name)) @tag.class @chunk
		`,
		Extensions: []string{"py", "pyi"},
	})
}
