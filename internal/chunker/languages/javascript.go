package languages

import (
	"codegraph/internal/chunker"

	"github.com/smacker/go-tree-sitter/javascript"
)

// RegisterJavaScript wires the JavaScript grammar and its semantic query
// set: functions, classes, methods, exported declarations, and arrow
// functions assigned to a name.
func RegisterJavaScript(r *chunker.Registry) {
	r.Register("javascript", &chunker.LanguageSpec{
		Language: javascript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @tag.function @chunk
			(class_declaration name: (identifier) @name) @tag.class @chunk
			(method_definition name: (property_identifier) @name) @tag.method @chunk
			(export_statement (function_declaration name: (identifier) @name)) @tag.function @chunk
			(export_statement (class_declaration name: (identifier) @name)) @tag.class @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @tag.function @chunk
		`,
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
	})
}
