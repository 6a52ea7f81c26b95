package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	rootTypeTag  = "0xdee9::big_vector::BigVector<0xdee9::order::Order>"
	innerTypeTag = "0x2::dynamic_field::Field<u64, 0xdee9::big_vector::Slice<u64>>"
	leafTypeTag  = "0x2::dynamic_field::Field<u64, 0xdee9::big_vector::Slice<0xdee9::order::Order>>"
)

var (
	testHandle = mustParseID("0xb1")
	poolID     = mustParseID("0xa1")
)

func mustParseID(s string) domain.ObjectID {
	id, err := domain.ParseObjectID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func decodeInt(raw json.RawMessage) (int, error) {
	var v int
	err := json.Unmarshal(raw, &v)
	return v, err
}

// memStore is a versioned object store backed by a map, safe for concurrent
// reads.
type memStore struct {
	lock    sync.RWMutex
	records map[domain.ObjectID][]domain.VersionedRecord
	gets    atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{records: make(map[domain.ObjectID][]domain.VersionedRecord)}
}

func (s *memStore) add(record domain.VersionedRecord) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.records[record.ID] = append(s.records[record.ID], record)
}

func (s *memStore) Get(
	_ context.Context, id domain.ObjectID, owner *domain.ObjectID, at domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	s.gets.Add(1)
	s.lock.RLock()
	defer s.lock.RUnlock()

	var found *domain.VersionedRecord
	for _, record := range s.records[id] {
		if record.EffectiveCheckpoint > at || !record.OwnedBy(owner) {
			continue
		}
		if found == nil || record.Version > found.Version {
			r := record
			found = &r
		}
	}
	return found, nil
}

// batchMemStore adds GetMany to memStore.
type batchMemStore struct {
	*memStore
	batches atomic.Int64
}

func (s *batchMemStore) GetMany(
	ctx context.Context, ids []domain.ObjectID, owner *domain.ObjectID, at domain.Checkpoint,
) (map[domain.ObjectID]*domain.VersionedRecord, error) {
	s.batches.Add(1)
	result := make(map[domain.ObjectID]*domain.VersionedRecord)
	for _, id := range ids {
		record, _ := s.memStore.Get(ctx, id, owner, at)
		if record != nil {
			result[id] = record
		}
	}
	return result, nil
}

// failingStore fails the lookups of the given ids.
type failingStore struct {
	*memStore
	failing map[domain.ObjectID]error
}

func (s *failingStore) Get(
	ctx context.Context, id domain.ObjectID, owner *domain.ObjectID, at domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	if err, ok := s.failing[id]; ok {
		return nil, err
	}
	return s.memStore.Get(ctx, id, owner, at)
}

// failingBatchStore fails every batch containing one of the failing ids.
type failingBatchStore struct {
	*failingStore
}

func (s *failingBatchStore) GetMany(
	ctx context.Context, ids []domain.ObjectID, owner *domain.ObjectID, at domain.Checkpoint,
) (map[domain.ObjectID]*domain.VersionedRecord, error) {
	result := make(map[domain.ObjectID]*domain.VersionedRecord)
	for _, id := range ids {
		record, err := s.Get(ctx, id, owner, at)
		if err != nil {
			return nil, err
		}
		if record != nil {
			result[id] = record
		}
	}
	return result, nil
}

type mockObjectStore struct {
	mock.Mock
}

func (m *mockObjectStore) Get(
	ctx context.Context, id domain.ObjectID, owner *domain.ObjectID, at domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	args := m.Called(ctx, id, owner, at)
	var record *domain.VersionedRecord
	if res := args.Get(0); res != nil {
		record = res.(*domain.VersionedRecord)
	}
	return record, args.Error(1)
}

// treeBuilder writes the nodes of a bigvector into a memStore.
type treeBuilder struct {
	t          *testing.T
	store      *memStore
	handle     domain.ObjectID
	checkpoint domain.Checkpoint
	versions   map[domain.ObjectID]uint64
}

func newTreeBuilder(t *testing.T) *treeBuilder {
	return &treeBuilder{
		t:          t,
		store:      newMemStore(),
		handle:     testHandle,
		checkpoint: 100,
		versions:   make(map[domain.ObjectID]uint64),
	}
}

// at sets the effective checkpoint of the nodes written next.
func (b *treeBuilder) at(checkpoint domain.Checkpoint) *treeBuilder {
	b.checkpoint = checkpoint
	return b
}

func (b *treeBuilder) write(id domain.ObjectID, typeTag string, owner *domain.ObjectID, payload string) {
	b.versions[id]++
	b.store.add(domain.VersionedRecord{
		ID:                  id,
		Version:             b.versions[id],
		EffectiveCheckpoint: b.checkpoint,
		Owner:               owner,
		TypeTag:             typeTag,
		Payload:             []byte(payload),
	})
}

func (b *treeBuilder) root(depth uint8, rootKey, length, maxSliceSize, maxFanOut uint64) *treeBuilder {
	payload := fmt.Sprintf(
		`{"id":{"id":"%s"},"depth":%d,"length":"%d","max_slice_size":"%d","max_fan_out":"%d","root_id":"%d","last_id":"%d"}`,
		b.handle, depth, length, maxSliceSize, maxFanOut, rootKey, rootKey,
	)
	owner := poolID
	b.write(b.handle, rootTypeTag, &owner, payload)
	return b
}

func (b *treeBuilder) inner(name uint64, vals ...uint64) *treeBuilder {
	strVals := make([]string, 0, len(vals))
	for _, v := range vals {
		strVals = append(strVals, fmt.Sprintf(`"%d"`, v))
	}
	payload := fmt.Sprintf(
		`{"id":{"id":"0x0"},"name":"%d","value":{"prev":"0","next":"0","keys":[],"vals":[%s]}}`,
		name, strings.Join(strVals, ","),
	)
	b.node(name, innerTypeTag, payload)
	return b
}

func (b *treeBuilder) leaf(name uint64, items ...int) *treeBuilder {
	return b.leafWithKeys(name, nil, items...)
}

func (b *treeBuilder) leafWithKeys(name uint64, keys []uint64, items ...int) *treeBuilder {
	strKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		strKeys = append(strKeys, fmt.Sprintf(`"%d"`, k))
	}
	strItems := make([]string, 0, len(items))
	for _, item := range items {
		strItems = append(strItems, fmt.Sprintf("%d", item))
	}
	payload := fmt.Sprintf(
		`{"id":{"id":"0x0"},"name":"%d","value":{"prev":"0","next":"0","keys":[%s],"vals":[%s]}}`,
		name, strings.Join(strKeys, ","), strings.Join(strItems, ","),
	)
	b.node(name, leafTypeTag, payload)
	return b
}

// node writes a raw payload for the given key.
func (b *treeBuilder) node(name uint64, typeTag, payload string) *treeBuilder {
	owner := b.handle
	b.write(b.nodeID(name), typeTag, &owner, payload)
	return b
}

func (b *treeBuilder) nodeID(name uint64) domain.ObjectID {
	return SuiDynamicFieldLocator{}.Locate(b.handle, name)
}

func (b *treeBuilder) reconstruct(
	target domain.Checkpoint, opts ...Option,
) (*Result[int], error) {
	return Reconstruct(context.Background(), b.store, b.handle, target, decodeInt, opts...)
}

func (b *treeBuilder) mustReconstruct(target domain.Checkpoint, opts ...Option) *Result[int] {
	res, err := b.reconstruct(target, opts...)
	require.NoError(b.t, err)
	require.NotNil(b.t, res)
	return res
}
