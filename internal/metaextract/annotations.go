package metaextract

import (
	"strings"

	"github.com/astdb-dev/astdb/internal/ast"
)

// annotationKinds are the grammar node kinds that carry a decorator or
// annotation, per language: Python/TypeScript decorators are a direct
// child of the declaration; Go has no native annotation syntax (its
// "annotations" are magic comments like "//go:generate", handled in
// ExtractAnnotations via trimGoDirective).
var annotationKinds = map[string][]string{
	"python":     {"decorator"},
	"typescript": {"decorator"},
	"tsx":        {"decorator"},
}

// ExtractAnnotations collects decorator/annotation text from a node's
// direct children, or (Go) from "//go:" magic comments in its leading
// comment block.
func ExtractAnnotations(n *ast.RawNode, source []byte, language string) []string {
	var out []string

	for _, kind := range annotationKinds[language] {
		for _, child := range n.Children {
			if child.Kind == kind {
				out = append(out, child.Text)
			}
		}
	}

	if language == "go" {
		lines := precedingLines(source, n.Start.Byte)
		start := len(lines)
		for start > 0 && strings.HasPrefix(strings.TrimSpace(lines[start-1]), "//") {
			start--
		}
		for _, line := range lines[start:] {
			line = trimGoDirective(line)
			if line != "" {
				out = append(out, line)
			}
		}
	}

	return out
}

func trimGoDirective(line string) string {
	trimmed := line
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t') {
		trimmed = trimmed[1:]
	}
	const prefix = "//go:"
	if len(trimmed) > len(prefix) && trimmed[:len(prefix)] == prefix {
		return trimmed
	}
	return ""
}
