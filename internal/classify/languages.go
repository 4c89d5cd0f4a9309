package classify

import "github.com/astdb-dev/astdb/internal/ast"

// LanguageSpec maps a language's concrete grammar node kinds onto the
// package's canonical ast.Kind values, and says where to find a
// declaration's name and which kinds push a new scope frame.
type LanguageSpec struct {
	Name string

	// KindMap maps a grammar node type (e.g. "function_declaration") to
	// its canonical ast.Kind.
	KindMap map[string]ast.Kind

	// ScopeKinds are the canonical kinds that introduce a named scope
	// frame (module, class, interface, function, method) when building
	// Metadata.Scope chains.
	ScopeKinds map[ast.Kind]bool

	// nameExtractor finds the declared identifier within a matched node.
	nameExtractor func(n *ast.RawNode) string
}

// Registry resolves a language name to its LanguageSpec.
type Registry struct {
	specs map[string]*LanguageSpec
}

// NewRegistry builds the registry with the languages astdb classifies:
// Go, JavaScript/JSX, TypeScript/TSX, and Python.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]*LanguageSpec)}
	r.register(goSpec())
	r.register(typeScriptSpec("typescript"))
	r.register(typeScriptSpec("tsx"))
	r.register(javaScriptSpec("javascript"))
	r.register(javaScriptSpec("jsx"))
	r.register(pythonSpec())
	return r
}

// portableKinds are the flat node kinds the regex fallback backend
// synthesizes. Merged into every language spec so a portable-parsed tree
// classifies the same way a native one does; tree-sitter grammars never
// emit these names (JavaScript's "function" expression aside, which maps
// identically anyway).
var portableKinds = map[string]ast.Kind{
	"file":       ast.KindFile,
	"function":   ast.KindFunction,
	"class":      ast.KindClass,
	"interface":  ast.KindInterface,
	"type-alias": ast.KindTypeAlias,
	"variable":   ast.KindVariable,
	"import":     ast.KindImport,
}

func (r *Registry) register(s *LanguageSpec) {
	for kind, canonical := range portableKinds {
		if _, ok := s.KindMap[kind]; !ok {
			s.KindMap[kind] = canonical
		}
	}
	r.specs[s.Name] = s
}

// Get returns the spec for language, or false if unsupported.
func (r *Registry) Get(language string) (*LanguageSpec, bool) {
	s, ok := r.specs[language]
	return s, ok
}

func goSpec() *LanguageSpec {
	return &LanguageSpec{
		Name: "go",
		KindMap: map[string]ast.Kind{
			"function_declaration":       ast.KindFunction,
			"method_declaration":         ast.KindMethod,
			"type_declaration":           ast.KindTypeAlias,
			"const_declaration":          ast.KindVariable,
			"var_declaration":            ast.KindVariable,
			"import_declaration":         ast.KindImport,
			"parameter_declaration":      ast.KindParameter,
			"if_statement":               ast.KindIfStatement,
			"interpreted_string_literal": ast.KindStringLiteral,
			"raw_string_literal":         ast.KindStringLiteral,
			"comment":                    ast.KindComment,
			"source_file":                ast.KindFile,
		},
		ScopeKinds: map[ast.Kind]bool{
			ast.KindFile: true, ast.KindFunction: true, ast.KindMethod: true,
		},
		nameExtractor: extractGoName,
	}
}

func typeScriptSpec(name string) *LanguageSpec {
	return &LanguageSpec{
		Name: name,
		KindMap: map[string]ast.Kind{
			"function_declaration":   ast.KindFunction,
			"method_definition":      ast.KindMethod,
			"class_declaration":      ast.KindClass,
			"interface_declaration":  ast.KindInterface,
			"type_alias_declaration": ast.KindTypeAlias,
			"lexical_declaration":    ast.KindVariable,
			"variable_declaration":   ast.KindVariable,
			"import_statement":       ast.KindImport,
			"required_parameter":     ast.KindParameter,
			"optional_parameter":     ast.KindParameter,
			"if_statement":           ast.KindIfStatement,
			"string":                 ast.KindStringLiteral,
			"template_string":        ast.KindStringLiteral,
			"comment":                ast.KindComment,
			"program":                ast.KindFile,
		},
		ScopeKinds: map[ast.Kind]bool{
			ast.KindFile: true, ast.KindClass: true, ast.KindInterface: true,
			ast.KindFunction: true, ast.KindMethod: true,
		},
		nameExtractor: extractTSJSName,
	}
}

func javaScriptSpec(name string) *LanguageSpec {
	spec := typeScriptSpec(name)
	delete(spec.KindMap, "interface_declaration")
	delete(spec.KindMap, "type_alias_declaration")
	spec.KindMap["function"] = ast.KindFunction
	return spec
}

func pythonSpec() *LanguageSpec {
	return &LanguageSpec{
		Name: "python",
		KindMap: map[string]ast.Kind{
			"function_definition":   ast.KindFunction,
			"class_definition":      ast.KindClass,
			"import_statement":      ast.KindImport,
			"import_from_statement": ast.KindImport,
			"if_statement":          ast.KindIfStatement,
			"string":                ast.KindStringLiteral,
			"comment":               ast.KindComment,
			"module":                ast.KindFile,
		},
		ScopeKinds: map[ast.Kind]bool{
			ast.KindFile: true, ast.KindClass: true, ast.KindFunction: true, ast.KindMethod: true,
		},
		nameExtractor: extractPythonName,
	}
}

func extractGoName(n *ast.RawNode) string {
	switch n.Kind {
	case "function_declaration":
		return firstChildOfKind(n, "identifier")
	case "method_declaration":
		return firstChildOfKind(n, "field_identifier")
	case "type_declaration":
		for _, child := range n.Children {
			if child.Kind == "type_spec" {
				if name := firstChildOfKind(child, "type_identifier"); name != "" {
					return name
				}
			}
		}
	case "const_declaration", "var_declaration":
		specKind := "const_spec"
		if n.Kind == "var_declaration" {
			specKind = "var_spec"
		}
		for _, child := range n.Children {
			if child.Kind == specKind {
				if name := firstChildOfKind(child, "identifier"); name != "" {
					return name
				}
			}
		}
	}
	return firstChildOfKind(n, "identifier")
}

func extractTSJSName(n *ast.RawNode) string {
	if n.Kind == "lexical_declaration" || n.Kind == "variable_declaration" {
		for _, child := range n.Children {
			if child.Kind == "variable_declarator" {
				if name := firstChildOfKind(child, "identifier"); name != "" {
					return name
				}
			}
		}
	}
	if name := firstChildOfKind(n, "identifier"); name != "" {
		return name
	}
	return firstChildOfKind(n, "type_identifier")
}

func extractPythonName(n *ast.RawNode) string {
	return firstChildOfKind(n, "identifier")
}

func firstChildOfKind(n *ast.RawNode, kind string) string {
	for _, child := range n.Children {
		if child.Kind == kind {
			return child.Text
		}
	}
	return ""
}
