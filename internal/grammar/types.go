// Package grammar implements the pluggable grammar runtime: a capability
// set {parse, capabilities, warmup} with native (tree-sitter) and portable
// (regex-based) backends, selected native -> portable -> fail.
package grammar

import (
	"context"

	"github.com/astdb-dev/astdb/internal/ast"
)

// BackendKind tags which implementation produced a ConcreteTree.
type BackendKind string

const (
	BackendNative   BackendKind = "native"
	BackendPortable BackendKind = "portable"
)

// ConcreteTree is the root of a parsed file's concrete syntax.
type ConcreteTree struct {
	Root     *ast.RawNode
	Source   []byte
	Language string
	Backend  BackendKind
}

// Backend is the capability set a grammar implementation exposes. The
// Registry decides once, in Warmup, whether the native backend is usable;
// per call it uses native when usable and supporting the language, and
// portable otherwise or when the native parse fails.
type Backend interface {
	// Parse returns a ConcreteTree for source, or an error if the language
	// is unsupported by this backend.
	Parse(ctx context.Context, source []byte, language string) (*ConcreteTree, error)

	// Capabilities reports the set of languages this backend can parse.
	Capabilities() []string

	// Warmup verifies the backend's grammars against their recorded
	// digests and prepares it for use. Called once at startup.
	Warmup(ctx context.Context) error

	// Kind identifies the backend for ConcreteTree.Backend and logging.
	Kind() BackendKind
}
