package parse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/astdb-dev/astdb/internal/ast"
	"github.com/astdb-dev/astdb/internal/classify"
	"github.com/astdb-dev/astdb/internal/events"
	"github.com/astdb-dev/astdb/internal/grammar"
	"github.com/astdb-dev/astdb/internal/metaextract"
	"github.com/astdb-dev/astdb/internal/significance"
)

// DefaultMaxFileSize is the largest file the coordinator will parse.
// Larger files are skipped, not errored, to avoid memory exhaustion on
// an accidentally-committed binary or data dump.
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

var extensionToLanguage = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "tsx",
	".js":   "javascript",
	".mjs":  "javascript",
	".jsx":  "jsx",
	".py":   "python",
}

// LanguageForPath returns the language inferred from path's extension, or
// "" if the extension is unrecognized.
func LanguageForPath(path string) string {
	return extensionToLanguage[strings.ToLower(filepath.Ext(path))]
}

// Config tunes the coordinator's behavior.
type Config struct {
	MaxFileSize        int64
	MaxDocstringLength int
	Significance       significance.Config
	Concurrency        int
}

// DefaultConfig returns the standard coordinator tuning.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:        DefaultMaxFileSize,
		MaxDocstringLength: metaextract.MaxDocstringLength,
		Significance:       significance.DefaultConfig(),
		Concurrency:        4,
	}
}

// Coordinator drives the parse pipeline per file and emits node deltas
// to a Sink as files are created, modified, or deleted.
type Coordinator struct {
	cfg        Config
	grammars   *grammar.Registry
	classifier *classify.Classifier
	digests    DigestStore
	sink       events.Sink
}

// New builds a Coordinator from its dependencies.
func New(cfg Config, grammars *grammar.Registry, classifier *classify.Classifier, digests DigestStore, sink events.Sink) *Coordinator {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.MaxDocstringLength == 0 {
		cfg.MaxDocstringLength = metaextract.MaxDocstringLength
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Coordinator{cfg: cfg, grammars: grammars, classifier: classifier, digests: digests, sink: sink}
}

// HandleEvents processes a batch of file events concurrently, bounded by
// cfg.Concurrency. A single file's failure does not abort the batch;
// only context cancellation stops the remaining files.
func (c *Coordinator) HandleEvents(ctx context.Context, fileEvents []FileEvent, read func(path string) ([]byte, error)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for _, ev := range fileEvents {
		ev := ev
		g.Go(func() error {
			if err := c.handleEvent(gctx, ev, read); err != nil {
				c.sink.OnParseError(events.ParseError{FilePath: ev.Path, Err: err, At: time.Now()})
			}
			return nil
		})
	}

	return g.Wait()
}

func (c *Coordinator) handleEvent(ctx context.Context, ev FileEvent, read func(path string) ([]byte, error)) error {
	switch ev.Operation {
	case OpDelete:
		return c.removeFile(ctx, ev.Path)
	default:
		content, err := read(ev.Path)
		if err != nil {
			return fmt.Errorf("parse: reading %s: %w", ev.Path, err)
		}
		return c.ProcessFile(ctx, ev.Path, content)
	}
}

// ProcessFile runs one file through the full pipeline: skip if the
// content hash is unchanged, parse-or-skip on grammar failure, classify,
// extract metadata, score significance, and emit the resulting deltas.
func (c *Coordinator) ProcessFile(ctx context.Context, path string, content []byte) error {
	if int64(len(content)) > c.cfg.MaxFileSize {
		return nil
	}

	hash := contentHash(content)

	previous, found, err := c.digests.GetFileDigest(ctx, path)
	if err != nil {
		return fmt.Errorf("parse: loading digest for %s: %w", path, err)
	}
	if found && previous.ContentHash == hash {
		return nil
	}

	language := LanguageForPath(path)
	if language == "" {
		return nil
	}

	tree, err := c.grammars.Parse(ctx, content, language)
	if err != nil {
		return fmt.Errorf("parse: grammar failure on %s: %w", path, err)
	}

	classified, err := c.classifier.Classify(tree, path)
	if err != nil {
		return fmt.Errorf("parse: classify failure on %s: %w", path, err)
	}

	bindings := metaextract.ParseFileBindings(content, language)

	newIDs := make(map[string]bool, len(classified))
	now := time.Now()

	nodes := make([]*ast.Node, 0, len(classified))
	childrenOf := make(map[string][]string)
	for _, cn := range classified {
		meta := metaextract.Extract(cn.Raw, content, language, cn.Name, cn.Scope, bindings, c.cfg.MaxDocstringLength)

		sigResult := significance.Calculate(significance.Input{
			Kind:         cn.Kind,
			Name:         cn.Name,
			FilePath:     path,
			ChildCount:   len(cn.Raw.Children),
			SourceLength: len(cn.Raw.Text),
			ScopeDepth:   len(cn.Scope),
			Modifiers:    meta.Modifiers,
			Docstring:    meta.Docstring,
			Exported:     containsString(meta.Modifiers, "exported"),
		}, c.cfg.Significance)

		nodes = append(nodes, &ast.Node{
			ID:           cn.ID,
			Kind:         cn.Kind,
			Name:         cn.Name,
			FilePath:     path,
			Start:        cn.Start,
			End:          cn.End,
			SourceText:   cn.Raw.Text,
			Metadata:     meta,
			Significance: sigResult.Significance,
			ParentID:     cn.ParentID,
		})
		if cn.ParentID != "" {
			childrenOf[cn.ParentID] = append(childrenOf[cn.ParentID], cn.ID)
		}
		newIDs[cn.ID] = true
	}

	for _, node := range nodes {
		node.ChildrenIDs = childrenOf[node.ID]
		c.sink.OnNodeUpserted(events.NodeUpserted{Node: node, FilePath: path, At: now})
	}

	if found {
		for _, oldID := range previous.NodeIDs {
			if !newIDs[oldID] {
				c.sink.OnNodeRemoved(events.NodeRemoved{NodeID: oldID, FilePath: path, At: now})
			}
		}
	}

	ids := make([]string, 0, len(newIDs))
	for id := range newIDs {
		ids = append(ids, id)
	}

	return c.digests.SaveFileDigest(ctx, FileDigest{
		Path:         path,
		ContentHash:  hash,
		LastParsedAt: now,
		NodeIDs:      ids,
	})
}

// removeFile retracts every node a deleted file contributed.
func (c *Coordinator) removeFile(ctx context.Context, path string) error {
	previous, found, err := c.digests.GetFileDigest(ctx, path)
	if err != nil {
		return fmt.Errorf("parse: loading digest for %s: %w", path, err)
	}
	if !found {
		return nil
	}

	now := time.Now()
	for _, id := range previous.NodeIDs {
		c.sink.OnNodeRemoved(events.NodeRemoved{NodeID: id, FilePath: path, At: now})
	}

	return c.digests.DeleteFileDigest(ctx, path)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
