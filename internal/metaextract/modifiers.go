package metaextract

import (
	"strings"

	"github.com/astdb-dev/astdb/internal/ast"
)

// modifierKinds maps a language to the grammar node kinds that, when
// present among a declaration's children, denote a syntactic modifier
// keyword (public/private/static/async/...), keyed by the modifier name
// that's recorded in Metadata.Modifiers.
var modifierKinds = map[string]map[string]string{
	"go": {
		"variadic_parameter_declaration": "variadic",
	},
	"typescript": {
		"public":    "public",
		"private":   "private",
		"protected": "protected",
		"static":    "static",
		"readonly":  "readonly",
		"abstract":  "abstract",
		"async":     "async",
		"override":  "override",
	},
	"tsx":        nil, // filled from typescript below
	"javascript": {"async": "async", "static": "static"},
	"jsx":        nil,
	"python":     {"async": "async"},
}

func init() {
	modifierKinds["tsx"] = modifierKinds["typescript"]
	modifierKinds["jsx"] = modifierKinds["javascript"]
}

// ExtractModifiers returns the recognized syntactic modifiers for a
// declaration plus the naming-convention modifiers its name implies:
// a leading underscore maps to "private", a dunder shape (Python) maps
// to "magic", and an exported (capitalized) Go identifier maps to
// "exported".
func ExtractModifiers(n *ast.RawNode, name, language string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(m string) {
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}

	table := modifierKinds[language]
	var walk func(node *ast.RawNode, depth int)
	walk = func(node *ast.RawNode, depth int) {
		if node == nil || depth > 2 {
			return
		}
		if table != nil {
			if mod, ok := table[node.Kind]; ok {
				add(mod)
			}
		}
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	walk(n, 0)

	switch language {
	case "python":
		if isDunder(name) {
			add("magic")
		} else if strings.HasPrefix(name, "_") {
			add("private")
		}
	case "javascript", "jsx", "typescript", "tsx":
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, "#") {
			add("private")
		}
	case "go":
		if name != "" {
			first := rune(name[0])
			if first >= 'A' && first <= 'Z' {
				add("exported")
			} else {
				add("unexported")
			}
		}
	}

	return out
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}
