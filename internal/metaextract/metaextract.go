package metaextract

import "github.com/astdb-dev/astdb/internal/ast"

// FileBindings holds the imports and exports parsed once per file, so
// per-node extraction only has to take the subset that applies.
type FileBindings struct {
	Imports Result[ImportInfo]
	Exports Result[ExportInfo]
}

// ParseFileBindings parses a file's imports/exports exactly once; callers
// pass the result into Extract for every node in that file.
func ParseFileBindings(source []byte, language string) FileBindings {
	imports, exports := ParseImportsExports(source, language)
	return FileBindings{Imports: imports, Exports: exports}
}

// Extract builds the full Metadata for one classified node.
func Extract(n *ast.RawNode, source []byte, language, name string, scope []string, bindings FileBindings, maxDocstringLen int) ast.Metadata {
	return ast.Metadata{
		Language:         language,
		Scope:            append([]string(nil), scope...),
		Modifiers:        ExtractModifiers(n, name, language),
		Docstring:        ExtractDocstring(n, source, language, maxDocstringLen),
		Imports:          NodeImports(bindings.Imports.Values, n.Text),
		Exports:          NodeExports(bindings.Exports.Values, name),
		Annotations:      ExtractAnnotations(n, source, language),
		LanguageSpecific: LanguageSpecific(n, language),
	}
}
