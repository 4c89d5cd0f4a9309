// Package classify turns a grammar.ConcreteTree into the canonical Node
// shapes the rest of astdb operates on: it assigns each recognized grammar
// node its ast.Kind, builds the scope-stack chain leading to it, and
// computes its content-addressed identity.
package classify

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/astdb-dev/astdb/internal/ast"
	"github.com/astdb-dev/astdb/internal/fingerprint"
	"github.com/astdb-dev/astdb/internal/grammar"
)

// Classified is one recognized declaration: its canonical kind, name,
// source extent, the raw grammar node it came from, and the scope chain
// (outermost to innermost) of named frames enclosing it.
type Classified struct {
	ID       string
	Kind     ast.Kind
	Name     string
	FilePath string
	Start    ast.Position
	End      ast.Position
	Raw      *ast.RawNode
	Scope    []string

	// ParentID is the id of the nearest recognized ancestor, or "" for
	// the file root. Children are stored by id only; the metadata store
	// resolves the other direction.
	ParentID string
}

// Classifier walks concrete trees and produces Classified nodes.
type Classifier struct {
	registry *Registry
}

// New builds a Classifier with the default language registry.
func New() *Classifier {
	return &Classifier{registry: NewRegistry()}
}

// Classify walks tree and returns every recognized declaration in the
// file, in document order, plus an implicit root node for the file
// itself. Unrecognized grammar nodes are skipped; their text still
// contributes to their nearest recognized ancestor's SourceText.
func (c *Classifier) Classify(tree *grammar.ConcreteTree, filePath string) ([]Classified, error) {
	if tree == nil || tree.Root == nil {
		return nil, nil
	}

	spec, ok := c.registry.Get(tree.Language)
	if !ok {
		return nil, nil
	}

	var out []Classified
	var walk func(n *ast.RawNode, scope []string, scopeKinds []ast.Kind, parentID string)
	walk = func(n *ast.RawNode, scope []string, scopeKinds []ast.Kind, parentID string) {
		if n == nil {
			return
		}

		kind, recognized := spec.KindMap[n.Kind]
		nextScope, nextScopeKinds := scope, scopeKinds
		nextParent := parentID

		if recognized {
			// A language whose grammar uses one node kind for both free
			// functions and class methods (Python's function_definition)
			// relies on the enclosing scope frame, not the grammar kind,
			// to tell them apart.
			if kind == ast.KindFunction && len(scopeKinds) > 0 && scopeKinds[len(scopeKinds)-1] == ast.KindClass {
				kind = ast.KindMethod
			}

			name := extractName(n, spec)
			if kind == ast.KindFile && parentID == "" {
				// The file root's frame is labeled by the module it
				// represents, not a synthesized kind@offset name.
				name = fileStem(filePath)
			}
			ownLabel := name
			if ownLabel == "" {
				ownLabel = string(kind)
			}

			childKinds := childKindNames(n, spec)
			id := fingerprint.NodeID(filePath, string(kind), fingerprint.NormalizedShape(n.Kind, childKinds), n.Start.Byte)

			out = append(out, Classified{
				ID:       id,
				Kind:     kind,
				Name:     name,
				FilePath: filePath,
				Start:    n.Start,
				End:      n.End,
				Raw:      n,
				Scope:    append(append([]string(nil), scope...), ownLabel),
				ParentID: parentID,
			})
			nextParent = id

			if spec.ScopeKinds[kind] {
				nextScope = append(append([]string(nil), scope...), ownLabel)
				nextScopeKinds = append(append([]ast.Kind(nil), scopeKinds...), kind)
			}
		}

		for _, child := range n.Children {
			walk(child, nextScope, nextScopeKinds, nextParent)
		}
	}

	walk(tree.Root, nil, nil, "")
	return out, nil
}

// extractName resolves a node's display name in order: a child flagged
// with the "name" field, then the language's own identifier-shaped
// extractor, then a synthesized anonymous name.
func extractName(n *ast.RawNode, spec *LanguageSpec) string {
	for _, child := range n.Children {
		if child.FieldName == "name" {
			return child.Text
		}
	}

	if name := spec.nameExtractor(n); name != "" {
		return name
	}

	return anonymousName(n)
}

func anonymousName(n *ast.RawNode) string {
	return n.Kind + "@" + strconv.Itoa(n.Start.Byte)
}

func fileStem(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// childKindNames lists n's children's grammar kinds for NormalizedShape,
// excluding comments: the normalized shape covers comment-free structure
// only, so a comment added or removed inside a node must not change that
// node's content-addressed id.
func childKindNames(n *ast.RawNode, spec *LanguageSpec) []string {
	names := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		if spec.KindMap[c.Kind] == ast.KindComment {
			continue
		}
		names = append(names, c.Kind)
	}
	return names
}
