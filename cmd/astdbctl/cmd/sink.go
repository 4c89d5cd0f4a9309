package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/astdb-dev/astdb/internal/ast"
	"github.com/astdb-dev/astdb/internal/embedder"
	asterrors "github.com/astdb-dev/astdb/internal/errors"
	"github.com/astdb-dev/astdb/internal/events"
	"github.com/astdb-dev/astdb/internal/store"
	"github.com/astdb-dev/astdb/internal/vectordb"
)

// embeddingSink is the parse coordinator's sink: it turns every node
// delta into an embedding plus a façade write. It does not observe the
// façade's own events (a separate events.Sink, NopSink in this binary),
// so embedding a node never re-triggers itself through the façade.
type embeddingSink struct {
	embedder embedder.Embedder
	facade   *vectordb.Facade
	log      *slog.Logger
}

var _ events.Sink = (*embeddingSink)(nil)

// embeddable reports whether a node's kind deserves its own vector:
// named declarations do; structural or trivial nodes (file roots,
// comments, parameters, literals, imports, if-statements) are found
// through their enclosing declaration instead.
func embeddable(k ast.Kind) bool {
	switch k {
	case ast.KindFile, ast.KindComment, ast.KindStringLiteral,
		ast.KindParameter, ast.KindIfStatement, ast.KindImport, ast.KindOther:
		return false
	}
	return true
}

func (s *embeddingSink) OnNodeUpserted(ev events.NodeUpserted) {
	if !embeddable(ev.Node.Kind) {
		return
	}
	ctx := context.Background()
	vec, err := s.embedder.Embed(ctx, embedText(ev.Node))
	if err != nil {
		s.log.Warn("embed failed", "node_id", ev.Node.ID, "err", err)
		return
	}

	if _, err := s.facade.InsertVector(ctx, ev.Node.ID, vec, ev.Node); err != nil {
		if asterrors.GetCode(err) == asterrors.ErrCodeDuplicateNodeID {
			if err := s.facade.UpdateVector(ctx, store.VectorUpdate{NodeID: ev.Node.ID, Embedding: vec}); err != nil {
				s.log.Warn("update vector failed", "node_id", ev.Node.ID, "err", err)
			}
			return
		}
		s.log.Warn("insert vector failed", "node_id", ev.Node.ID, "err", err)
	}
}

func (s *embeddingSink) OnNodeRemoved(ev events.NodeRemoved) {
	if _, err := s.facade.DeleteVector(context.Background(), ev.NodeID); err != nil {
		s.log.Warn("delete vector failed", "node_id", ev.NodeID, "err", err)
	}
}

func (s *embeddingSink) OnParseError(ev events.ParseError) {
	s.log.Warn("parse error", "file", ev.FilePath, "err", ev.Err)
}

func (s *embeddingSink) OnIndexRebuilt(events.IndexRebuilt)         {}
func (s *embeddingSink) OnCacheInvalidated(events.CacheInvalidated) {}

// embedText builds the text fed to the embedder from a node's name,
// docstring, and source — the same material a reader would use to judge
// relevance, so the deterministic embedder's token/n-gram hashing has
// something meaningful to work with.
func embedText(node *ast.Node) string {
	var b strings.Builder
	b.WriteString(node.Name)
	if node.Metadata.Docstring != "" {
		b.WriteString("\n")
		b.WriteString(node.Metadata.Docstring)
	}
	b.WriteString("\n")
	b.WriteString(node.SourceText)
	return b.String()
}
