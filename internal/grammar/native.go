package grammar

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/astdb-dev/astdb/internal/ast"
	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

// NativeBackend parses source with the compiled tree-sitter grammars. It is
// the preferred backend whenever a language is registered.
type NativeBackend struct {
	mu        sync.RWMutex
	languages map[string]*sitter.Language
	digests   map[string]string
}

// NewNativeBackend registers the grammars the go-tree-sitter module ships:
// Go, JavaScript, Python, and TypeScript/TSX.
func NewNativeBackend() *NativeBackend {
	b := &NativeBackend{
		languages: make(map[string]*sitter.Language),
		digests:   make(map[string]string),
	}
	b.register("go", golang.GetLanguage())
	b.register("javascript", javascript.GetLanguage())
	b.register("jsx", javascript.GetLanguage())
	b.register("python", python.GetLanguage())
	b.register("typescript", typescript.GetLanguage())
	b.register("tsx", tsx.GetLanguage())
	return b
}

func (b *NativeBackend) register(name string, lang *sitter.Language) {
	b.languages[name] = lang
	b.digests[name] = grammarDigest(name, lang)
}

// Kind implements Backend.
func (b *NativeBackend) Kind() BackendKind { return BackendNative }

// Capabilities implements Backend.
func (b *NativeBackend) Capabilities() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.languages))
	for name := range b.languages {
		names = append(names, name)
	}
	return names
}

// Warmup verifies every registered grammar against its recorded digest
// before the backend is usable.
func (b *NativeBackend) Warmup(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for name, lang := range b.languages {
		if grammarDigest(name, lang) != b.digests[name] {
			return asterrors.GrammarDigestMismatch(name)
		}
	}
	return nil
}

// Parse implements Backend by delegating to tree-sitter and converting its
// concrete tree into the package's own RawNode representation.
func (b *NativeBackend) Parse(ctx context.Context, source []byte, language string) (*ConcreteTree, error) {
	b.mu.RLock()
	lang, ok := b.languages[language]
	b.mu.RUnlock()
	if !ok {
		return nil, asterrors.GrammarUnavailable(language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("grammar: native parse of %s: %w", language, err)
	}
	defer tree.Close()

	root := convertNode(tree.RootNode(), source)
	return &ConcreteTree{Root: root, Source: source, Language: language, Backend: BackendNative}, nil
}

func convertNode(n *sitter.Node, source []byte) *ast.RawNode {
	if n == nil {
		return nil
	}

	raw := &ast.RawNode{
		Kind: n.Type(),
		Text: n.Content(source),
		Start: ast.Position{
			Line:   int(n.StartPoint().Row),
			Column: int(n.StartPoint().Column),
			Byte:   int(n.StartByte()),
		},
		End: ast.Position{
			Line:   int(n.EndPoint().Row),
			Column: int(n.EndPoint().Column),
			Byte:   int(n.EndByte()),
		},
	}

	count := int(n.ChildCount())
	raw.Children = make([]*ast.RawNode, 0, count)
	for i := 0; i < count; i++ {
		child := n.Child(i)
		converted := convertNode(child, source)
		raw.Children = append(raw.Children, converted)
		if n.FieldNameForChild(i) != "" {
			converted.FieldName = n.FieldNameForChild(i)
		}
		if child.IsNamed() {
			raw.NamedChildren = append(raw.NamedChildren, converted)
		}
	}

	return raw
}

// grammarDigest fingerprints a registered grammar by its identifying
// metadata (name and node kind count), serving as the content
// address verified by Warmup.
func grammarDigest(name string, lang *sitter.Language) string {
	return fmt.Sprintf("%s:%d", name, lang.SymbolCount())
}
