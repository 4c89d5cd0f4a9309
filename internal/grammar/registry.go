package grammar

import (
	"context"
	"log/slog"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

// Registry selects, per language, the best available backend: native if it
// warmed up successfully and supports the language, portable otherwise.
// Whether native is usable is decided once, in Warmup (design note 9's
// capability-set pattern); each Parse call still falls back to portable
// when the native parse returns an error.
type Registry struct {
	native   Backend
	portable Backend
	log      *slog.Logger

	nativeOK bool
}

// NewRegistry builds a Registry from explicit backends, so callers (and
// tests) can substitute fakes. Pass nil for native to force portable-only
// operation.
func NewRegistry(native, portable Backend, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{native: native, portable: portable, log: log}
}

// NewDefaultRegistry wires the tree-sitter backend and the regex fallback,
// the composition astdb ships by default.
func NewDefaultRegistry(log *slog.Logger) *Registry {
	return NewRegistry(NewNativeBackend(), NewPortableBackend(), log)
}

// Warmup verifies the native backend's grammar digests; a mismatch or
// missing native backend does not fail startup, it just disables native
// parsing for the process lifetime, falling back to portable.
func (r *Registry) Warmup(ctx context.Context) error {
	if r.portable == nil {
		return asterrors.New(asterrors.ErrCodeInvalidConfig, "grammar registry requires a portable backend", nil)
	}
	if err := r.portable.Warmup(ctx); err != nil {
		return err
	}

	if r.native == nil {
		return nil
	}
	if err := r.native.Warmup(ctx); err != nil {
		r.log.Warn("native grammar backend unavailable, falling back to portable", "error", err)
		r.nativeOK = false
		return nil
	}
	r.nativeOK = true
	return nil
}

// Parse selects native if it warmed up and supports language, else
// portable if it supports language, else returns ErrCodeGrammarUnavailable.
func (r *Registry) Parse(ctx context.Context, source []byte, language string) (*ConcreteTree, error) {
	if r.nativeOK && supports(r.native, language) {
		tree, err := r.native.Parse(ctx, source, language)
		if err == nil {
			return tree, nil
		}
		r.log.Warn("native parse failed, retrying with portable backend", "language", language, "error", err)
	}

	if r.portable != nil && supports(r.portable, language) {
		return r.portable.Parse(ctx, source, language)
	}

	return nil, asterrors.GrammarUnavailable(language)
}

// BackendFor reports which backend kind would service language right now,
// for diagnostics and tests.
func (r *Registry) BackendFor(language string) (BackendKind, bool) {
	if r.nativeOK && supports(r.native, language) {
		return BackendNative, true
	}
	if r.portable != nil && supports(r.portable, language) {
		return BackendPortable, true
	}
	return "", false
}

func supports(b Backend, language string) bool {
	if b == nil {
		return false
	}
	for _, l := range b.Capabilities() {
		if l == language {
			return true
		}
	}
	return false
}
