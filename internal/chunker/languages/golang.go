package languages

import (
	"codegraph/internal/chunker"

	"github.com/smacker/go-tree-sitter/golang"
)

// RegisterGo wires the Go grammar and its semantic query set: functions,
// methods, and struct type declarations.
func RegisterGo(r *chunker.Registry) {
	r.Register("go", &chunker.LanguageSpec{
		Language: golang.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @tag.function @chunk
			(method_declaration name: (field_identifier) @name) @tag.method @chunk
			(type_declaration (type_spec name: (type_identifier) @name type: (struct_type))) @tag.class @chunk
			(type_declaration (type_spec name: (type_identifier) @name)) @chunk
		`,
		Extensions: []string{"go"},
	})
}
