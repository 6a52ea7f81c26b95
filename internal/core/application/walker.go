package application

import (
	"context"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	bverrors "github.com/arkade-os/bvsnap/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// NodeSet is the working set collected by a single traversal.
type NodeSet[T any] struct {
	Handle         domain.ObjectID
	Target         domain.Checkpoint
	Meta           domain.RootMeta
	RootCheckpoint domain.Checkpoint
	Inners         map[uint64]*domain.InnerNode
	Leaves         map[uint64]*domain.LeafNode[T]
	// Effective holds the effective checkpoint of every resolved node.
	Effective map[uint64]domain.Checkpoint
	// Misses holds the keys that could not be resolved at their level.
	Misses map[uint64]domain.MissReason
	// Empty is set for a vector with no items and no root leaf.
	Empty bool
	// Fetches counts the store lookups issued for child nodes.
	Fetches int
}

func newNodeSet[T any](
	handle domain.ObjectID, target domain.Checkpoint,
	meta domain.RootMeta, rootCheckpoint domain.Checkpoint,
) *NodeSet[T] {
	return &NodeSet[T]{
		Handle:         handle,
		Target:         target,
		Meta:           meta,
		RootCheckpoint: rootCheckpoint,
		Inners:         make(map[uint64]*domain.InnerNode),
		Leaves:         make(map[uint64]*domain.LeafNode[T]),
		Effective:      make(map[uint64]domain.Checkpoint),
		Misses:         make(map[uint64]domain.MissReason),
	}
}

type fetchResult struct {
	record *domain.VersionedRecord
	err    error
}

type treeWalker[T any] struct {
	store   ports.VersionedObjectStore
	decoder *NodeDecoder[T]
	opts    Options
}

func newTreeWalker[T any](
	store ports.VersionedObjectStore, decoder *NodeDecoder[T], opts Options,
) *treeWalker[T] {
	return &treeWalker[T]{store, decoder, opts}
}

func (w *treeWalker[T]) walk(
	ctx context.Context, handle domain.ObjectID, target domain.Checkpoint,
) (*NodeSet[T], error) {
	rootMetadata := bverrors.RootMetadata{Handle: handle.String(), Checkpoint: uint64(target)}

	rootRecord, err := w.store.Get(ctx, handle, nil, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, bverrors.ROOT_FETCH_FAILED.Wrap(err).WithMetadata(rootMetadata)
	}
	if rootRecord == nil || rootRecord.ID != handle || rootRecord.EffectiveCheckpoint > target {
		return nil, bverrors.ROOT_NOT_FOUND.New(
			"no record for %s at or before checkpoint %d", handle, target,
		).WithMetadata(rootMetadata)
	}

	meta, err := w.decoder.DecodeRoot(*rootRecord)
	if err != nil {
		return nil, bverrors.MALFORMED_ROOT.Wrap(err).WithMetadata(rootMetadata)
	}

	set := newNodeSet[T](handle, target, meta, rootRecord.EffectiveCheckpoint)
	seen := map[uint64]struct{}{}
	level := []uint64{meta.RootKey}

	for depth := 0; depth <= int(meta.Depth); depth++ {
		isLeafLevel := depth == int(meta.Depth)

		keys := make([]uint64, 0, len(level))
		for _, key := range level {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		if len(keys) == 0 {
			break
		}

		if w.opts.MaxNodes > 0 && set.Fetches+len(keys) > w.opts.MaxNodes {
			return nil, bverrors.NODE_LIMIT_EXCEEDED.New(
				"reconstruction of %s needs more than %d nodes", handle, w.opts.MaxNodes,
			).WithMetadata(bverrors.NodeLimitMetadata{
				Handle:   handle.String(),
				MaxNodes: w.opts.MaxNodes,
				Level:    depth,
			})
		}

		results := w.fetchLevel(ctx, handle, target, keys)
		set.Fetches += len(keys)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := make([]uint64, 0)
		for i, key := range keys {
			res := results[i]
			if res.err != nil {
				log.WithError(res.err).Debugf(
					"failed to fetch node %d of %s at checkpoint %d", key, handle, target,
				)
				set.Misses[key] = domain.MissFetchFailed
				continue
			}
			if res.record == nil {
				set.Misses[key] = domain.MissNotFound
				continue
			}
			if !w.matchesRequest(*res.record, handle, key, target) {
				set.Misses[key] = domain.MissIdentityMismatch
				continue
			}

			if isLeafLevel {
				leaf, err := w.decoder.DecodeLeaf(*res.record, key, meta.MaxSliceSize)
				if err != nil {
					log.WithError(err).Debugf("failed to decode leaf %d of %s", key, handle)
					set.Misses[key] = domain.MissDecodeFailed
					continue
				}
				if leaf.Name != key {
					set.Misses[key] = domain.MissIdentityMismatch
					continue
				}
				set.Leaves[key] = leaf
			} else {
				inner, err := w.decoder.DecodeInner(*res.record, key)
				if err != nil {
					log.WithError(err).Debugf("failed to decode inner node %d of %s", key, handle)
					set.Misses[key] = domain.MissDecodeFailed
					continue
				}
				if inner.Name != key {
					set.Misses[key] = domain.MissIdentityMismatch
					continue
				}
				set.Inners[key] = inner
				next = append(next, inner.Vals...)
			}
			set.Effective[key] = res.record.EffectiveCheckpoint
		}

		level = next
	}

	if meta.IsEmpty() && set.Misses[meta.RootKey] == domain.MissNotFound {
		delete(set.Misses, meta.RootKey)
		set.Empty = true
	}

	return set, nil
}

// matchesRequest returns whether the record returned by the store is the
// node that was asked for.
func (w *treeWalker[T]) matchesRequest(
	record domain.VersionedRecord, handle domain.ObjectID, key uint64,
	target domain.Checkpoint,
) bool {
	if record.EffectiveCheckpoint > target {
		return false
	}
	if record.ID != w.opts.Locator.Locate(handle, key) {
		return false
	}
	return record.OwnedBy(&handle)
}

// fetchLevel resolves all the given keys, results are in the same order.
// Fetch failures are reported per key and never abort the level.
func (w *treeWalker[T]) fetchLevel(
	ctx context.Context, handle domain.ObjectID, target domain.Checkpoint,
	keys []uint64,
) []fetchResult {
	ids := make([]domain.ObjectID, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, w.opts.Locator.Locate(handle, key))
	}

	results := make([]fetchResult, len(keys))
	owner := handle

	g := &errgroup.Group{}
	g.SetLimit(w.opts.Concurrency)

	if batchStore, ok := w.store.(ports.BatchObjectStore); ok && w.opts.BatchSize > 0 {
		for start := 0; start < len(ids); start += w.opts.BatchSize {
			end := min(start+w.opts.BatchSize, len(ids))
			g.Go(func() error {
				records, err := batchStore.GetMany(ctx, ids[start:end], &owner, target)
				if err == nil {
					for i := start; i < end; i++ {
						results[i] = fetchResult{record: records[ids[i]]}
					}
					return nil
				}

				// Narrow a failed batch down to the keys that actually fail.
				log.WithError(err).WithField("handle", handle.String()).
					Debugf("batch fetch of %d nodes failed, fetching one by one", end-start)
				for i := start; i < end; i++ {
					if ctxErr := ctx.Err(); ctxErr != nil {
						results[i] = fetchResult{err: ctxErr}
						continue
					}
					record, err := w.store.Get(ctx, ids[i], &owner, target)
					results[i] = fetchResult{record, err}
				}
				return nil
			})
		}
		// nolint:errcheck
		g.Wait()
		return results
	}

	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = fetchResult{err: err}
				return nil
			}
			record, err := w.store.Get(ctx, id, &owner, target)
			results[i] = fetchResult{record, err}
			return nil
		})
	}
	// nolint:errcheck
	g.Wait()
	return results
}
