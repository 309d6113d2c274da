package languages

import (
	"codegraph/internal/chunker"

	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// RegisterTypeScript wires the TypeScript grammar and its semantic query
// set: functions, classes, methods, interfaces, type aliases, exported
// declarations, and arrow functions assigned to a name.
func RegisterTypeScript(r *chunker.Registry) {
	r.Register("typescript", &chunker.LanguageSpec{
		Language: typescript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @tag.function @chunk
			(class_declaration name: (type_identifier) @name) @tag.class @chunk
			(method_definition name: (property_identifier) @name) @tag.method @chunk
			(export_statement (function_declaration name: (identifier) @name)) @tag.function @chunk
			(export_statement (class_declaration name: (type_identifier) @name)) @tag.class @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @tag.function @chunk
			(interface_declaration name: (type_identifier) @name) @tag.data_schema @chunk
			(type_alias_declaration name: (type_identifier) @name) @tag.data_schema @chunk
		`,
		Extensions: []string{"ts", "tsx"},
	})
}
