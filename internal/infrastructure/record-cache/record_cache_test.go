package recordcache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	inmemorydb "github.com/arkade-os/bvsnap/internal/infrastructure/db/inmemory"
	recordcache "github.com/arkade-os/bvsnap/internal/infrastructure/record-cache"
	inmemorycache "github.com/arkade-os/bvsnap/internal/infrastructure/record-cache/inmemory"
	rediscache "github.com/arkade-os/bvsnap/internal/infrastructure/record-cache/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	lock          sync.Mutex
	records       map[domain.ObjectID]domain.VersionedRecord
	gets          int
	fail          bool
	generationErr error
}

func (s *countingStore) Generation(context.Context) (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return 0, s.generationErr
}

func (s *countingStore) Get(
	_ context.Context, id domain.ObjectID, owner *domain.ObjectID, atOrBefore domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.gets++
	if s.fail {
		return nil, fmt.Errorf("store unavailable")
	}
	record, ok := s.records[id]
	if !ok || record.EffectiveCheckpoint > atOrBefore || !record.OwnedBy(owner) {
		return nil, nil
	}
	return &record, nil
}

func TestRecordCacheImplementations(t *testing.T) {
	caches := map[string]func(t *testing.T) ports.RecordCache{
		"inmemory": func(t *testing.T) ports.RecordCache {
			return inmemorycache.NewRecordCache(100, time.Minute)
		},
		"redis": func(t *testing.T) ports.RecordCache {
			redisOpts, err := redis.ParseURL("redis://localhost:6379/0")
			require.NoError(t, err)
			rdb := redis.NewClient(redisOpts)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				t.Skipf("redis not reachable: %s", err)
			}
			return rediscache.NewRecordCache(rdb, time.Minute)
		},
	}

	for name, newCache := range caches {
		t.Run(name, func(t *testing.T) {
			cache := newCache(t)
			defer cache.Close()

			testRecordCache(t, cache)
		})
	}
}

func testRecordCache(t *testing.T, cache ports.RecordCache) {
	ctx := context.Background()
	owner := mustParseID(t, "0xa1")
	record := domain.VersionedRecord{
		ID:                  mustParseID(t, "0x5"),
		Version:             3,
		EffectiveCheckpoint: 30,
		Owner:               &owner,
		TypeTag:             "0xdee9::big_vector::Slice",
		Payload:             []byte(`{"name":"1"}`),
	}
	key := uuid.New().String()

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.Nil(t, got)

	err = cache.Set(ctx, key, record)
	require.NoError(t, err)

	got, err = cache.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, record, *got)
}

func TestInMemoryRecordCacheExpiration(t *testing.T) {
	ctx := context.Background()
	cache := inmemorycache.NewRecordCache(10, 10*time.Millisecond)
	defer cache.Close()

	err := cache.Set(ctx, "key", domain.VersionedRecord{Version: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := cache.Get(ctx, "key")
		return err == nil && got == nil
	}, time.Second, 5*time.Millisecond)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	owner := mustParseID(t, "0xa1")
	idA := mustParseID(t, "0x5")
	idB := mustParseID(t, "0x6")
	idC := mustParseID(t, "0x7")

	newStore := func() *countingStore {
		return &countingStore{records: map[domain.ObjectID]domain.VersionedRecord{
			idA: {ID: idA, Version: 1, EffectiveCheckpoint: 10, Owner: &owner},
			idB: {ID: idB, Version: 2, EffectiveCheckpoint: 20, Owner: &owner},
		}}
	}

	t.Run("hits bypass the store", func(t *testing.T) {
		store := newStore()
		cached := recordcache.NewCachedStore(store, store, inmemorycache.NewRecordCache(100, 0))

		for range 3 {
			record, err := cached.Get(ctx, idA, &owner, 15)
			require.NoError(t, err)
			require.NotNil(t, record)
			require.Equal(t, uint64(1), record.Version)
		}
		require.Equal(t, 1, store.gets)

		// Different checkpoint is a different key.
		_, err := cached.Get(ctx, idA, &owner, 16)
		require.NoError(t, err)
		require.Equal(t, 2, store.gets)
	})

	t.Run("misses and errors are not cached", func(t *testing.T) {
		store := newStore()
		cached := recordcache.NewCachedStore(store, store, inmemorycache.NewRecordCache(100, 0))

		for range 2 {
			record, err := cached.Get(ctx, idC, nil, 100)
			require.NoError(t, err)
			require.Nil(t, record)
		}
		require.Equal(t, 2, store.gets)

		store.fail = true
		_, err := cached.Get(ctx, idA, nil, 100)
		require.Error(t, err)

		store.fail = false
		record, err := cached.Get(ctx, idA, nil, 100)
		require.NoError(t, err)
		require.NotNil(t, record)
	})

	t.Run("get many mixes hits and misses", func(t *testing.T) {
		store := newStore()
		cached := recordcache.NewCachedStore(store, store, inmemorycache.NewRecordCache(100, 0))

		_, err := cached.Get(ctx, idA, nil, 25)
		require.NoError(t, err)
		require.Equal(t, 1, store.gets)

		records, err := cached.GetMany(ctx, []domain.ObjectID{idA, idB, idC}, nil, 25)
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, uint64(2), records[idB].Version)
		// idA is served from cache.
		require.Equal(t, 3, store.gets)

		records, err = cached.GetMany(ctx, []domain.ObjectID{idA, idB}, nil, 25)
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, 3, store.gets)
	})
}

func TestCachedStoreGeneration(t *testing.T) {
	ctx := context.Background()
	id := mustParseID(t, "0x5")
	owner := mustParseID(t, "0xa1")

	t.Run("records added later are visible", func(t *testing.T) {
		repo, err := inmemorydb.NewObjectRepository()
		require.NoError(t, err)
		err = repo.Add(ctx, domain.VersionedRecord{
			ID: id, Version: 1, EffectiveCheckpoint: 50, Owner: &owner,
		})
		require.NoError(t, err)

		cached := recordcache.NewCachedStore(repo, repo, inmemorycache.NewRecordCache(100, 0))

		record, err := cached.Get(ctx, id, nil, 100)
		require.NoError(t, err)
		require.NotNil(t, record)
		require.Equal(t, uint64(1), record.Version)

		// Backfill of a version older than the queried checkpoint.
		err = repo.Add(ctx, domain.VersionedRecord{
			ID: id, Version: 2, EffectiveCheckpoint: 80, Owner: &owner,
		})
		require.NoError(t, err)

		record, err = cached.Get(ctx, id, nil, 100)
		require.NoError(t, err)
		require.NotNil(t, record)
		require.Equal(t, uint64(2), record.Version)

		records, err := cached.GetMany(ctx, []domain.ObjectID{id}, nil, 100)
		require.NoError(t, err)
		require.Equal(t, uint64(2), records[id].Version)

		// Re-adding a stored version leaves the cache valid.
		generation, err := repo.Generation(ctx)
		require.NoError(t, err)
		err = repo.Add(ctx, domain.VersionedRecord{
			ID: id, Version: 2, EffectiveCheckpoint: 80, Owner: &owner,
		})
		require.NoError(t, err)
		sameGeneration, err := repo.Generation(ctx)
		require.NoError(t, err)
		require.Equal(t, generation, sameGeneration)
	})

	t.Run("unknown generation bypasses the cache", func(t *testing.T) {
		store := &countingStore{
			records: map[domain.ObjectID]domain.VersionedRecord{
				id: {ID: id, Version: 1, EffectiveCheckpoint: 10},
			},
			generationErr: fmt.Errorf("store unavailable"),
		}
		cached := recordcache.NewCachedStore(store, store, inmemorycache.NewRecordCache(100, 0))

		for range 2 {
			record, err := cached.Get(ctx, id, nil, 20)
			require.NoError(t, err)
			require.NotNil(t, record)
		}
		require.Equal(t, 2, store.gets)
	})
}

func mustParseID(t *testing.T, s string) domain.ObjectID {
	id, err := domain.ParseObjectID(s)
	require.NoError(t, err)
	return id
}
