// Package vectordb is the vector database façade: it composes the SQLite
// metadata store (internal/store) and the in-memory HNSW index
// (internal/vectorindex), enforces the invariant that the two stay
// reconciled, and is the single component the rest of the engine talks to
// for inserts, updates, deletes, and k-NN search.
package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/astdb-dev/astdb/internal/ast"
	asterrors "github.com/astdb-dev/astdb/internal/errors"
	"github.com/astdb-dev/astdb/internal/events"
	"github.com/astdb-dev/astdb/internal/store"
	"github.com/astdb-dev/astdb/internal/vectorindex"
)

// Status is the façade's health/availability state, reported by GetStats
// and gating writes when in StatusError.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusRebuilding   Status = "rebuilding"
	StatusError        Status = "error"
)

// Config is the façade's configuration surface.
type Config struct {
	Dimensions     int
	MaxElements    int
	M              int
	EfConstruction int
	Ef             int
	Space          vectorindex.Space
	StorageFile    string
	IndexFile      string
	IndexMetaFile  string
	AutoSave       bool
	SaveIntervalS  int

	// OnIndexRebuild, when set, is invoked synchronously after a
	// successful Rebuild — the cache manager wires this to its
	// pattern-invalidation so a rebuilt index never serves stale hits.
	OnIndexRebuild func()
}

// Facade is the single entry point for vector database operations.
type Facade struct {
	mu sync.RWMutex

	metadata store.MetadataStore
	index    *vectorindex.Index
	cfg      Config
	sink     events.Sink

	status      Status
	lastSavedAt time.Time
	rebuildVer  uint32

	searchTotal  atomic.Int64
	searchMicros atomic.Int64

	saveStop chan struct{}
	saveWG   sync.WaitGroup
	saving   atomic.Bool
}

// New composes metadata and an already-built index into a façade. Use
// Open to construct both halves from Config and reconcile them against
// any on-disk state.
func New(metadata store.MetadataStore, index *vectorindex.Index, cfg Config, sink events.Sink) *Facade {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Facade{
		metadata: metadata,
		index:    index,
		cfg:      cfg,
		sink:     sink,
		status:   StatusInitializing,
	}
}

// Open initializes the metadata store at cfg.StorageFile, loads the index
// from cfg.IndexFile if present (building an empty one otherwise), and
// reconciles the two: if the index's label watermark disagrees with the
// metadata store's own label mappings, the façade refuses to start ready
// and reports StatusError — a mismatch means one half was modified without
// the other, and the prescribed recovery is Rebuild.
func Open(ctx context.Context, metadata store.MetadataStore, cfg Config, sink events.Sink) (*Facade, error) {
	f := New(metadata, nil, cfg, sink)

	if err := metadata.Initialize(ctx, store.Config{
		Path:         cfg.StorageFile,
		Dimensions:   cfg.Dimensions,
		PreferNative: true,
	}); err != nil {
		f.status = StatusError
		return nil, err
	}

	idxCfg := vectorindex.Config{
		Dimensions:     cfg.Dimensions,
		Space:          cfg.Space,
		M:              cfg.M,
		EfConstruction: cfg.EfConstruction,
		Ef:             cfg.Ef,
		MaxElements:    cfg.MaxElements,
	}

	var idx *vectorindex.Index
	var labelWatermark uint64
	if cfg.IndexFile != "" {
		loaded, watermark, err := vectorindex.Load(ctx, cfg.IndexFile, idxCfg)
		if err == nil {
			idx, labelWatermark = loaded, watermark
		} else if asterrors.GetCode(err) != asterrors.ErrCodeFileSystem {
			// A present-but-corrupt/incompatible file is an integrity
			// failure, not a missing-file miss; surface it.
			f.status = StatusError
			return nil, err
		}
	}
	if idx == nil {
		built, err := vectorindex.New(idxCfg)
		if err != nil {
			f.status = StatusError
			return nil, err
		}
		idx = built
	}

	mapping, err := metadata.GetLabelMappings(ctx)
	if err != nil {
		f.status = StatusError
		return nil, err
	}
	if labelWatermark != 0 && labelWatermark < mapping.NextLabel {
		f.status = StatusError
		return nil, asterrors.New(asterrors.ErrCodeCorruptMetadata,
			fmt.Sprintf("vectordb: index label watermark %d behind metadata store's %d", labelWatermark, mapping.NextLabel), nil)
	}

	f.index = idx
	f.status = StatusReady

	if cfg.AutoSave && cfg.SaveIntervalS > 0 && cfg.IndexFile != "" {
		f.saveStop = make(chan struct{})
		f.saveWG.Add(1)
		go f.saveLoop(time.Duration(cfg.SaveIntervalS) * time.Second)
	}
	return f, nil
}

// saveLoop persists the index periodically. A tick that arrives while a
// prior save is still in flight is skipped rather than queued.
func (f *Facade) saveLoop(interval time.Duration) {
	defer f.saveWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.saveStop:
			return
		case <-ticker.C:
			if !f.saving.CompareAndSwap(false, true) {
				continue
			}
			_ = f.Save(context.Background())
			f.saving.Store(false)
		}
	}
}

// InsertVector writes through to the metadata store first, then adds the
// assigned label to the index. A metadata failure never touches the
// index; an index failure after a successful metadata write is reported
// but the metadata row stands — the next Rebuild reconciles it.
func (f *Facade) InsertVector(ctx context.Context, nodeID string, embedding []float32, node *ast.Node) (uint64, error) {
	f.mu.Lock()

	if f.status == StatusError {
		f.mu.Unlock()
		return 0, asterrors.New(asterrors.ErrCodeNotInitialized, "vectordb: façade is in error status", nil)
	}

	label, err := f.metadata.InsertVector(ctx, store.VectorInsert{NodeID: nodeID, Embedding: embedding, Node: node})
	if err != nil {
		f.mu.Unlock()
		return 0, err
	}
	grown, err := f.growIndexLocked(ctx)
	if err == nil {
		err = f.index.Add(ctx, label, embedding)
	}
	sink := f.sink
	hook := f.cfg.OnIndexRebuild
	f.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if grown != nil {
		sink.OnIndexRebuilt(*grown)
		if hook != nil {
			hook()
		}
	}
	sink.OnNodeUpserted(events.NodeUpserted{Node: node, FilePath: node.FilePath, At: time.Now()})
	return label, nil
}

// growIndexLocked rebuilds the index into a larger allocation when the
// live count has reached the configured capacity. Called with f.mu held;
// a grown index is already swapped in when this returns, and the caller
// fires the returned rebuild event once the lock is released.
func (f *Facade) growIndexLocked(ctx context.Context) (*events.IndexRebuilt, error) {
	if f.index.Count() < f.index.Capacity() {
		return nil, nil
	}

	start := time.Now()
	previousCount := f.index.Count()
	// Called with f.mu held, so no writer can race the snapshot and the
	// inserted set needs no reconciling here.
	fresh, _, err := buildFromStore(ctx, f.metadata, f.cfg, f.index.Capacity()+1)
	if err != nil {
		return nil, err
	}

	previousVersion := f.rebuildVer
	f.index = fresh
	f.rebuildVer++
	return &events.IndexRebuilt{
		PreviousVersion: previousVersion,
		NewVersion:      f.rebuildVer,
		PreviousCount:   previousCount,
		NewCount:        fresh.Count(),
		DurationMS:      time.Since(start).Milliseconds(),
		At:              time.Now(),
	}, nil
}

// InsertVectors write-throughs a batch; per-item metadata failures are
// collected (store.BatchResult) and never roll back prior successes. Items
// that succeed in the metadata store but fail to reach the index are
// reported in the same failure list — a subsequent Rebuild repairs them.
func (f *Facade) InsertVectors(ctx context.Context, items []store.VectorInsert) (store.BatchResult, error) {
	f.mu.Lock()

	if f.status == StatusError {
		f.mu.Unlock()
		return store.BatchResult{}, asterrors.New(asterrors.ErrCodeNotInitialized, "vectordb: façade is in error status", nil)
	}

	result, err := f.metadata.InsertVectors(ctx, items)
	if err != nil {
		f.mu.Unlock()
		return result, err
	}

	failed := make(map[string]bool, len(result.Failures))
	for _, fail := range result.Failures {
		failed[fail.NodeID] = true
	}
	var upserted []events.NodeUpserted
	var grownEvents []events.IndexRebuilt
	for _, item := range items {
		if failed[item.NodeID] {
			continue
		}
		rec, err := f.metadata.GetVector(ctx, item.NodeID)
		if err != nil {
			continue
		}
		grown, err := f.growIndexLocked(ctx)
		if err == nil {
			if grown != nil {
				grownEvents = append(grownEvents, *grown)
			}
			err = f.index.Add(ctx, rec.Label, item.Embedding)
		}
		if err != nil {
			result.SuccessCount--
			result.FailureCount++
			result.Failures = append(result.Failures, store.ItemError{NodeID: item.NodeID, Err: err})
			continue
		}
		upserted = append(upserted, events.NodeUpserted{Node: item.Node, FilePath: item.Node.FilePath, At: time.Now()})
	}
	sink := f.sink
	hook := f.cfg.OnIndexRebuild
	f.mu.Unlock()

	for _, ev := range grownEvents {
		sink.OnIndexRebuilt(ev)
		if hook != nil {
			hook()
		}
	}
	for _, ev := range upserted {
		sink.OnNodeUpserted(ev)
	}
	return result, nil
}

// UpdateVector merges the patch into the metadata store, then — if the
// embedding changed — re-adds the vector to the index under its existing
// label (the index's Add replaces the prior graph node).
func (f *Facade) UpdateVector(ctx context.Context, update store.VectorUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status == StatusError {
		return asterrors.New(asterrors.ErrCodeNotInitialized, "vectordb: façade is in error status", nil)
	}

	if err := f.metadata.UpdateVector(ctx, update); err != nil {
		return err
	}
	if update.Embedding == nil {
		return nil
	}

	rec, err := f.metadata.GetVector(ctx, update.NodeID)
	if err != nil {
		return err
	}
	return f.index.Add(ctx, rec.Label, update.Embedding)
}

// DeleteVector removes the metadata row (if present) and tombstones the
// index entry under its former label. Mirrors the metadata store's
// no-op-if-absent contract.
func (f *Facade) DeleteVector(ctx context.Context, nodeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status == StatusError {
		return false, asterrors.New(asterrors.ErrCodeNotInitialized, "vectordb: façade is in error status", nil)
	}

	rec, err := f.metadata.GetVector(ctx, nodeID)
	if err != nil {
		if asterrors.GetCode(err) == asterrors.ErrCodeNotFound {
			return false, nil
		}
		return false, err
	}

	deleted, err := f.metadata.DeleteVector(ctx, nodeID)
	if err != nil {
		return false, err
	}
	if deleted {
		f.index.MarkDeleted(rec.Label)
		f.sink.OnNodeRemoved(events.NodeRemoved{NodeID: nodeID, FilePath: rec.Metadata.FilePath, At: time.Now()})
	}
	return deleted, nil
}

// SearchSimilar returns up to k nearest neighbors to query, sorted by
// ascending distance with ties broken by ascending label for determinism.
func (f *Facade) SearchSimilar(ctx context.Context, query []float32, k int, ef int) ([]ast.SearchResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.status == StatusError {
		return nil, asterrors.New(asterrors.ErrCodeNotInitialized, "vectordb: façade is in error status", nil)
	}

	start := time.Now()
	neighbors, err := f.index.Search(ctx, query, k, ef)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Label < neighbors[j].Label
	})

	mapping, err := f.metadata.GetLabelMappings(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ast.SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		nodeID, ok := mapping.LabelToNode[n.Label]
		if !ok {
			continue
		}
		meta, err := f.metadata.GetSearchMetadata(ctx, []string{nodeID})
		if err != nil {
			return nil, err
		}
		out = append(out, ast.SearchResult{
			NodeID:   nodeID,
			Distance: n.Distance,
			Score:    distanceToScore(n.Distance, f.cfg.Space),
			Metadata: meta[nodeID],
		})
	}

	f.recordSearch(time.Since(start))
	return out, nil
}

func (f *Facade) recordSearch(d time.Duration) {
	f.searchTotal.Add(1)
	f.searchMicros.Add(d.Microseconds())
}

// distanceToScore converts a raw distance into a [0,1] similarity score
// per the metric in use: l2 uses 1/(1+distance); cosine uses 1-distance
// clamped to [0,1]; ip uses sigmoid(-distance), i.e. 1/(1+e^d) — the
// negation keeps score decreasing as ip distance (1-dot) grows, since a
// plain sigmoid(distance) would rank worse matches higher.
func distanceToScore(distance float32, space vectorindex.Space) float64 {
	d := float64(distance)
	switch space {
	case vectorindex.SpaceL2:
		return 1.0 / (1.0 + d)
	case vectorindex.SpaceIP:
		return 1.0 / (1.0 + math.Exp(d))
	case vectorindex.SpaceCosine:
		fallthrough
	default:
		score := 1.0 - d
		if score < 0 {
			return 0
		}
		if score > 1 {
			return 1
		}
		return score
	}
}

// Status reports the façade's current health state.
func (f *Facade) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// IndexVersion reports the number of completed Rebuilds, used as the
// cache key's index_version component — a cache entry fingerprinted
// against a stale version is never treated as a hit for the new index.
func (f *Facade) IndexVersion() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rebuildVer
}

// Stats describes the façade's current state and counters.
type Stats struct {
	NodeCount       int
	IndexCount      int
	Dimensions      int
	StorageBytes    int64
	LastSaved       time.Time
	AverageSearchMS float64
	Status          Status
}

func (f *Facade) GetStats(ctx context.Context) (Stats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ms, err := f.metadata.GetStats(ctx)
	if err != nil {
		return Stats{}, err
	}

	var avg float64
	if total := f.searchTotal.Load(); total > 0 {
		avg = float64(f.searchMicros.Load()) / 1000.0 / float64(total)
	}

	return Stats{
		NodeCount:       ms.NodeCount,
		IndexCount:      f.index.Count(),
		Dimensions:      ms.Dimensions,
		StorageBytes:    ms.SizeBytes,
		LastSaved:       f.lastSavedAt,
		AverageSearchMS: avg,
		Status:          f.status,
	}, nil
}

// Save persists the index half to disk under the façade's configured
// paths. The metadata store persists on every call already (its
// guarantee is atomic-per-call), so Save only concerns the index.
func (f *Facade) Save(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.IndexFile == "" {
		return nil
	}
	mapping, err := f.metadata.GetLabelMappings(ctx)
	if err != nil {
		return err
	}
	if err := f.index.Save(ctx, f.cfg.IndexFile, f.cfg.IndexMetaFile, mapping.NextLabel); err != nil {
		return err
	}
	f.lastSavedAt = time.Now()
	return nil
}

// Shutdown stops the auto-save loop and closes the metadata store. The
// index has no separate resource to release beyond an in-memory graph
// the process exit reclaims.
func (f *Facade) Shutdown(ctx context.Context) error {
	if f.saveStop != nil {
		close(f.saveStop)
		f.saveWG.Wait()
		f.saveStop = nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata.Shutdown(ctx)
}
