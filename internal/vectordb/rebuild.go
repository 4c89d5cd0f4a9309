package vectordb

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
	"github.com/astdb-dev/astdb/internal/events"
	"github.com/astdb-dev/astdb/internal/store"
	"github.com/astdb-dev/astdb/internal/vectorindex"
)

// buildFromStore constructs a fresh index populated with every live
// vector from the metadata store, re-inserted in ascending label order,
// sized to at least minCapacity and at least 1.25x the live count. The
// returned set holds the labels that made it in, so a caller working off
// a possibly stale snapshot can reconcile writes that landed after it.
func buildFromStore(ctx context.Context, metadata store.MetadataStore, cfg Config, minCapacity int) (*vectorindex.Index, map[uint64]bool, error) {
	mapping, err := metadata.GetLabelMappings(ctx)
	if err != nil {
		return nil, nil, err
	}

	labels := make([]uint64, 0, len(mapping.LabelToNode))
	for label := range mapping.LabelToNode {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	capacity := minCapacity
	if want := int(float64(len(labels)) * 1.25); want > capacity {
		capacity = want
	}

	fresh, err := vectorindex.New(vectorindex.Config{
		Dimensions:     cfg.Dimensions,
		Space:          cfg.Space,
		M:              cfg.M,
		EfConstruction: cfg.EfConstruction,
		Ef:             cfg.Ef,
		MaxElements:    capacity,
	})
	if err != nil {
		return nil, nil, err
	}

	var mu sync.Mutex
	inserted := make(map[uint64]bool, len(labels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, label := range labels {
		label := label
		nodeID := mapping.LabelToNode[label]
		g.Go(func() error {
			rec, err := metadata.GetVector(gctx, nodeID)
			if err != nil {
				if asterrors.GetCode(err) == asterrors.ErrCodeNotFound {
					return nil // deleted between the mapping read and now
				}
				return err
			}
			if err := fresh.Add(gctx, label, rec.Embedding); err != nil {
				return err
			}
			mu.Lock()
			inserted[label] = true
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return fresh, inserted, nil
}

// Rebuild reconstructs the HNSW index from the metadata store: it
// allocates a fresh index sized to at least 1.25x the live count (and at
// least the configured MaxElements), re-inserts every
// live vector in ascending label order, and performs a single atomic
// pointer swap. Searches in flight when Rebuild starts complete against
// the old index; any search starting after the swap sees the new one —
// neither ever observes a half-rebuilt graph, since the swap itself is
// the only moment the façade's index pointer changes, and it changes
// under the same exclusive lock Insert/Update/Delete use.
//
// Rebuild is also the prescribed recovery from index corruption: a
// façade in StatusError can always Rebuild as long as the metadata store
// is intact, since this path never reads the old index.
func (f *Facade) Rebuild(ctx context.Context) error {
	start := time.Now()

	f.mu.Lock()
	if f.status != StatusError && f.status != StatusReady {
		f.mu.Unlock()
		return asterrors.New(asterrors.ErrCodeInvalidConfig, "vectordb: rebuild requires ready or error status", nil)
	}
	f.status = StatusRebuilding
	metadata := f.metadata
	cfg := f.cfg
	previousCount := 0
	if f.index != nil {
		previousCount = f.index.Count()
	}
	f.mu.Unlock()

	fresh, inserted, err := buildFromStore(ctx, metadata, cfg, cfg.MaxElements)
	if err != nil {
		f.revertStatusOnFailure()
		return err
	}

	f.mu.Lock()

	// Writes are not gated while the rebuild runs off its snapshot, so a
	// concurrent insert lands in the store and the soon-to-be-discarded
	// old index, and a concurrent delete tombstones only the old index.
	// Reconcile both against the store's current mapping before the swap;
	// writers are excluded now that the lock is held.
	current, err := metadata.GetLabelMappings(ctx)
	if err != nil {
		f.status = StatusError
		f.mu.Unlock()
		return err
	}
	for label, nodeID := range current.LabelToNode {
		if inserted[label] {
			continue
		}
		rec, err := metadata.GetVector(ctx, nodeID)
		if err != nil {
			if asterrors.GetCode(err) == asterrors.ErrCodeNotFound {
				continue
			}
			f.status = StatusError
			f.mu.Unlock()
			return err
		}
		if err := fresh.Add(ctx, label, rec.Embedding); err != nil {
			f.status = StatusError
			f.mu.Unlock()
			return err
		}
	}
	for label := range inserted {
		if _, live := current.LabelToNode[label]; !live {
			fresh.MarkDeleted(label)
		}
	}

	previousVersion := f.rebuildVer
	f.index = fresh
	f.rebuildVer++
	f.status = StatusReady
	hook := f.cfg.OnIndexRebuild
	sink := f.sink
	newVersion := f.rebuildVer
	f.mu.Unlock()

	sink.OnIndexRebuilt(events.IndexRebuilt{
		PreviousVersion: previousVersion,
		NewVersion:      newVersion,
		PreviousCount:   previousCount,
		NewCount:        fresh.Count(),
		DurationMS:      time.Since(start).Milliseconds(),
		At:              time.Now(),
	})
	if hook != nil {
		hook()
	}
	return nil
}

func (f *Facade) revertStatusOnFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = StatusError
}
