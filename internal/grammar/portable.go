package grammar

import (
	"context"
	"regexp"
	"sort"

	"github.com/astdb-dev/astdb/internal/ast"
)

// declPattern recognizes one top-level declaration line for a language: a
// regex whose match start is the declaration's byte offset and whose name
// capture group (index 1) is the declared identifier.
type declPattern struct {
	kind string
	re   *regexp.Regexp
}

// portableLanguages maps each supported language to an ordered list of
// declaration patterns, least specific last. This is deliberately coarse:
// the portable backend trades precision for always being available.
var portableLanguages = map[string][]declPattern{
	"go": {
		{"function", regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?(\w+)\s*\(`)},
		{"type-alias", regexp.MustCompile(`(?m)^type\s+(\w+)\s+(?:struct|interface)\b`)},
		{"variable", regexp.MustCompile(`(?m)^(?:var|const)\s+(\w+)\b`)},
		{"import", regexp.MustCompile(`(?m)^\s*"([^"]+)"`)},
	},
	"python": {
		{"function", regexp.MustCompile(`(?m)^\s*def\s+(\w+)\s*\(`)},
		{"class", regexp.MustCompile(`(?m)^\s*class\s+(\w+)\b`)},
		{"import", regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([\w.]+)`)},
	},
	"javascript": {
		{"function", regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*\(`)},
		{"class", regexp.MustCompile(`(?m)^\s*(?:export\s+)?class\s+(\w+)\b`)},
		{"variable", regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=`)},
		{"import", regexp.MustCompile(`(?m)^\s*import\s.*from\s+['"]([^'"]+)['"]`)},
	},
	"typescript": {
		{"function", regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*\(`)},
		{"class", regexp.MustCompile(`(?m)^\s*(?:export\s+)?class\s+(\w+)\b`)},
		{"interface", regexp.MustCompile(`(?m)^\s*(?:export\s+)?interface\s+(\w+)\b`)},
		{"type-alias", regexp.MustCompile(`(?m)^\s*(?:export\s+)?type\s+(\w+)\s*=`)},
		{"variable", regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*[:=]`)},
		{"import", regexp.MustCompile(`(?m)^\s*import\s.*from\s+['"]([^'"]+)['"]`)},
	},
}

func init() {
	portableLanguages["jsx"] = portableLanguages["javascript"]
	portableLanguages["tsx"] = portableLanguages["typescript"]
}

// PortableBackend recovers a shallow, single-level concrete tree with
// regexes and brace/indent counting. It never errors on an unsupported
// construct; it simply misses it. This is the backend of last resort,
// always available, used when the native tree-sitter backend cannot
// parse a language.
type PortableBackend struct{}

// NewPortableBackend constructs the fallback backend.
func NewPortableBackend() *PortableBackend { return &PortableBackend{} }

// Kind implements Backend.
func (b *PortableBackend) Kind() BackendKind { return BackendPortable }

// Capabilities implements Backend.
func (b *PortableBackend) Capabilities() []string {
	names := make([]string, 0, len(portableLanguages))
	for name := range portableLanguages {
		names = append(names, name)
	}
	return names
}

// Warmup is a no-op: the portable backend has no external state to verify.
func (b *PortableBackend) Warmup(ctx context.Context) error { return nil }

// Parse scans source line-by-line for declaration patterns and synthesizes
// a flat tree: one file-level root with one child RawNode per recognized
// declaration, its body extent found by counting braces (curly-brace
// languages) or dropping indentation (Python).
func (b *PortableBackend) Parse(ctx context.Context, source []byte, language string) (*ConcreteTree, error) {
	patterns, ok := portableLanguages[language]
	if !ok {
		patterns = nil
	}

	root := &ast.RawNode{
		Kind:  "file",
		Text:  string(source),
		Start: ast.Position{Line: 0, Column: 0, Byte: 0},
		End:   endPosition(source),
	}

	type match struct {
		kind   string
		name   string
		offset int
	}
	var matches []match
	for _, p := range patterns {
		for _, m := range p.re.FindAllSubmatchIndex(source, -1) {
			name := ""
			if len(m) >= 4 && m[2] >= 0 {
				name = string(source[m[2]:m[3]])
			}
			matches = append(matches, match{kind: p.kind, name: name, offset: m[0]})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].offset < matches[j].offset })

	for i, m := range matches {
		end := len(source)
		if i+1 < len(matches) {
			end = matches[i+1].offset
		}
		if language == "python" {
			end = pythonBlockEnd(source, m.offset, end)
		} else {
			end = braceBlockEnd(source, m.offset, end)
		}

		child := &ast.RawNode{
			Kind:  m.kind,
			Text:  string(source[m.offset:end]),
			Start: byteToPosition(source, m.offset),
			End:   byteToPosition(source, end),
		}
		if m.name != "" {
			// The regex captured the declared identifier; surface it the
			// way a grammar would, as a name-flagged child.
			nameNode := &ast.RawNode{
				Kind:      "identifier",
				Text:      m.name,
				FieldName: "name",
				Start:     child.Start,
				End:       child.Start,
			}
			child.Children = append(child.Children, nameNode)
			child.NamedChildren = append(child.NamedChildren, nameNode)
		}
		root.Children = append(root.Children, child)
		root.NamedChildren = append(root.NamedChildren, child)
	}

	return &ConcreteTree{Root: root, Source: source, Language: language, Backend: BackendPortable}, nil
}

// braceBlockEnd finds the matching closing brace for the first '{' at or
// after start, bounded by limit. If no brace is found before limit, the
// declaration is treated as a single statement ending at limit.
func braceBlockEnd(source []byte, start, limit int) int {
	open := -1
	for i := start; i < limit && i < len(source); i++ {
		if source[i] == '{' {
			open = i
			break
		}
		if source[i] == '\n' && i > start && limit-start > 0 {
			continue
		}
	}
	if open < 0 {
		return limit
	}

	depth := 0
	for i := open; i < len(source); i++ {
		switch source[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return limit
}

// pythonBlockEnd finds the end of an indented block by scanning forward
// until a non-blank line whose indentation is <= the declaration line's.
func pythonBlockEnd(source []byte, start, limit int) int {
	declIndent := lineIndent(source, start)
	pos := start
	for pos < len(source) {
		nl := indexByteFrom(source, pos, '\n')
		if nl < 0 {
			return len(source)
		}
		lineStart := nl + 1
		if lineStart >= limit || lineStart >= len(source) {
			return min(limit, len(source))
		}
		lineEnd := indexByteFrom(source, lineStart, '\n')
		if lineEnd < 0 {
			lineEnd = len(source)
		}
		line := source[lineStart:lineEnd]
		if len(trimLeft(line)) == 0 {
			pos = lineStart
			continue
		}
		if lineIndent(source, lineStart) <= declIndent {
			return lineStart
		}
		pos = lineStart
	}
	return min(limit, len(source))
}

func lineIndent(source []byte, offset int) int {
	lineStart := offset
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	n := 0
	for lineStart+n < len(source) && (source[lineStart+n] == ' ' || source[lineStart+n] == '\t') {
		n++
	}
	return n
}

func trimLeft(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

func indexByteFrom(source []byte, from int, c byte) int {
	for i := from; i < len(source); i++ {
		if source[i] == c {
			return i
		}
	}
	return -1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func byteToPosition(source []byte, offset int) ast.Position {
	line, col := 0, 0
	for i := 0; i < offset && i < len(source); i++ {
		if source[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return ast.Position{Line: line, Column: col, Byte: offset}
}

func endPosition(source []byte) ast.Position {
	return byteToPosition(source, len(source))
}
