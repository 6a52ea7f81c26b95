package recordcache

import (
	"context"
	"fmt"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type cachedStore struct {
	store       ports.VersionedObjectStore
	generations ports.GenerationSource
	cache       ports.RecordCache
}

// NewCachedStore serves reads from the cache and falls back to the store on
// miss. Only found records are cached, so a miss or a failure is always
// asked again to the store. Cache failures are logged and never surfaced.
//
// Keys embed the store generation read at query time: once new records are
// added every older entry is unreachable and left to expire.
func NewCachedStore(
	store ports.VersionedObjectStore, generations ports.GenerationSource,
	cache ports.RecordCache,
) ports.BatchObjectStore {
	return &cachedStore{store, generations, cache}
}

func (s *cachedStore) Get(
	ctx context.Context, id domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	generation, ok := s.generation(ctx)
	if !ok {
		return s.store.Get(ctx, id, owner, atOrBefore)
	}

	key := cacheKey(generation, id, owner, atOrBefore)
	if record := s.cached(ctx, key); record != nil {
		return record, nil
	}

	record, err := s.store.Get(ctx, id, owner, atOrBefore)
	if err != nil || record == nil {
		return record, err
	}
	s.set(ctx, key, *record)
	return record, nil
}

func (s *cachedStore) GetMany(
	ctx context.Context, ids []domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (map[domain.ObjectID]*domain.VersionedRecord, error) {
	generation, cacheable := s.generation(ctx)

	records := make(map[domain.ObjectID]*domain.VersionedRecord, len(ids))
	missing := make([]domain.ObjectID, 0, len(ids))
	for _, id := range ids {
		if cacheable {
			if record := s.cached(ctx, cacheKey(generation, id, owner, atOrBefore)); record != nil {
				records[id] = record
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) <= 0 {
		return records, nil
	}

	var fetched map[domain.ObjectID]*domain.VersionedRecord
	if batchStore, ok := s.store.(ports.BatchObjectStore); ok {
		var err error
		fetched, err = batchStore.GetMany(ctx, missing, owner, atOrBefore)
		if err != nil {
			return nil, err
		}
	} else {
		fetched = make(map[domain.ObjectID]*domain.VersionedRecord, len(missing))
		for _, id := range missing {
			record, err := s.store.Get(ctx, id, owner, atOrBefore)
			if err != nil {
				return nil, fmt.Errorf("failed to get object %s: %w", id, err)
			}
			if record != nil {
				fetched[id] = record
			}
		}
	}

	for id, record := range fetched {
		if record == nil {
			continue
		}
		records[id] = record
		if cacheable {
			s.set(ctx, cacheKey(generation, id, owner, atOrBefore), *record)
		}
	}
	return records, nil
}

// generation returns false when the store generation is unknown, in which
// case the cache is bypassed.
func (s *cachedStore) generation(ctx context.Context) (uint64, bool) {
	generation, err := s.generations.Generation(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to get store generation, bypassing record cache")
		return 0, false
	}
	return generation, true
}

func (s *cachedStore) cached(ctx context.Context, key string) *domain.VersionedRecord {
	record, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warnf("failed to read record cache")
		return nil
	}
	return record
}

func (s *cachedStore) set(ctx context.Context, key string, record domain.VersionedRecord) {
	if err := s.cache.Set(ctx, key, record); err != nil {
		log.WithError(err).Warnf("failed to update record cache")
	}
}

func cacheKey(
	generation uint64, id domain.ObjectID, owner *domain.ObjectID, atOrBefore domain.Checkpoint,
) string {
	ownerStr := "*"
	if owner != nil {
		ownerStr = owner.String()
	}
	return fmt.Sprintf("%d:%s:%s:%d", generation, id, ownerStr, atOrBefore)
}
