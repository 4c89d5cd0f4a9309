package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/astdb-dev/astdb/internal/cache"
	"github.com/astdb-dev/astdb/internal/classify"
	"github.com/astdb-dev/astdb/internal/config"
	"github.com/astdb-dev/astdb/internal/embedder"
	"github.com/astdb-dev/astdb/internal/events"
	"github.com/astdb-dev/astdb/internal/grammar"
	"github.com/astdb-dev/astdb/internal/logging"
	"github.com/astdb-dev/astdb/internal/parse"
	"github.com/astdb-dev/astdb/internal/queryengine"
	"github.com/astdb-dev/astdb/internal/store"
	"github.com/astdb-dev/astdb/internal/vectordb"
	"github.com/astdb-dev/astdb/internal/vectorindex"
	"github.com/astdb-dev/astdb/internal/workspace"
)

// engine bundles the collaborator-assembled stack this binary exercises:
// a workspace-backed metadata store + HNSW façade, a multi-level cache,
// the query engine in front of it, and the grammar/classify/embed
// dependencies the parse subcommand needs. Nothing here is part of the
// core library; it is the composition a host application would own,
// trimmed to what these two subcommands need.
type engine struct {
	ws       *workspace.Workspace
	cfg      *config.Config
	metadata *store.SQLiteStore
	facade   *vectordb.Facade
	cacheMgr *cache.Manager
	query    *queryengine.Engine
	embed    embedder.Embedder
	registry *grammar.Registry
	classify *classify.Classifier
	log      *slog.Logger
	logClose func()
}

// openEngine assembles the stack rooted at projectRoot, creating the
// `.astdb/` layout if it doesn't exist yet.
func openEngine(ctx context.Context, projectRoot string) (*engine, error) {
	ws := workspace.Open(projectRoot)
	if err := ws.EnsureDirs(); err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.FilePath = ws.LogPath()
	log, logClose, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}

	cfg := config.NewConfig()

	metadata := &store.SQLiteStore{}
	if err := metadata.Initialize(ctx, store.Config{
		Path:         ws.MetadataDBPath(),
		Dimensions:   cfg.Index.Dimensions,
		PreferNative: cfg.Index.EnableNative,
		LockPath:     ws.LockPath(),
	}); err != nil {
		logClose()
		return nil, err
	}

	cacheMgr, err := cache.New(cache.Config{
		EnableL1:         cfg.Cache.L1Enabled,
		EnableL2:         cfg.Cache.L2Enabled,
		EnableL3:         cfg.Cache.L3Enabled,
		L1MaxEntries:     cfg.Cache.L1MaxEntries,
		L2Dir:            ws.L2DiskDir(),
		L3Path:           ws.L3CachePath(),
		DefaultTTL:       time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second,
		DisablePromotion: !cfg.Cache.PromotionEnabled,
		DisableWarming:   !cfg.Cache.WarmingEnabled,
	}, nil)
	if err != nil {
		_ = metadata.Shutdown(ctx)
		logClose()
		return nil, err
	}

	vdbCfg := vectordb.Config{
		Dimensions:     cfg.Index.Dimensions,
		MaxElements:    cfg.Index.MaxElements,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		Ef:             cfg.Index.Ef,
		Space:          vectorindex.Space(cfg.Index.Space),
		IndexFile:      ws.IndexBinPath(),
		IndexMetaFile:  ws.IndexMetaPath(),
		AutoSave:       cfg.Index.AutoSave,
		SaveIntervalS:  cfg.Index.SaveIntervalS,
	}
	// A rebuilt index makes every previously cached query result stale —
	// "query:.*" covers the whole fingerprint.QueryKey namespace;
	// Invalidate's matcher treats its argument as an anchored pattern,
	// not a glob.
	vdbCfg.OnIndexRebuild = func() {
		cacheMgr.Invalidate("index rebuilt", "query:.*", "vectordb rebuild")
	}

	facade, err := vectordb.Open(ctx, metadata, vdbCfg, events.NopSink{})
	if err != nil {
		_ = cacheMgr.Close()
		_ = metadata.Shutdown(ctx)
		logClose()
		return nil, err
	}

	queryEngine := queryengine.New(facade, cacheMgr, queryengine.Config{
		DefaultTopK: cfg.Search.TopK,
	})

	registry := grammar.NewDefaultRegistry(log)
	_ = registry.Warmup(ctx)

	return &engine{
		ws:       ws,
		cfg:      cfg,
		metadata: metadata,
		facade:   facade,
		cacheMgr: cacheMgr,
		query:    queryEngine,
		embed:    embedder.NewBoundedEmbedder(embedder.NewStaticEmbedder(cfg.Index.Dimensions), cfg.Embeddings.BatchSize),
		registry: registry,
		classify: classify.New(),
		log:      log,
		logClose: logClose,
	}, nil
}

// newCoordinator builds the parse coordinator for one run, wired to an
// embeddingSink that embeds and inserts/updates every upserted node and
// deletes every removed one.
func (e *engine) newCoordinator() *parse.Coordinator {
	sink := &embeddingSink{embedder: e.embed, facade: e.facade, log: e.log}
	return parse.New(parse.DefaultConfig(), e.registry, e.classify, &store.DigestAdapter{Store: e.metadata}, sink)
}

func (e *engine) Close(ctx context.Context) {
	_ = e.facade.Shutdown(ctx)
	_ = e.cacheMgr.Close()
	e.logClose()
}
