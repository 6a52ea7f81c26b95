package db_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/infrastructure/db"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockObjectRepository struct {
	mock.Mock
}

func (m *mockObjectRepository) Add(ctx context.Context, records ...domain.VersionedRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *mockObjectRepository) Get(
	ctx context.Context, id domain.ObjectID, owner *domain.ObjectID, atOrBefore domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	args := m.Called(ctx, id, owner, atOrBefore)
	var res *domain.VersionedRecord
	if a := args.Get(0); a != nil {
		res = a.(*domain.VersionedRecord)
	}
	return res, args.Error(1)
}

func (m *mockObjectRepository) GetMany(
	ctx context.Context, ids []domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (map[domain.ObjectID]*domain.VersionedRecord, error) {
	args := m.Called(ctx, ids, owner, atOrBefore)
	var res map[domain.ObjectID]*domain.VersionedRecord
	if a := args.Get(0); a != nil {
		res = a.(map[domain.ObjectID]*domain.VersionedRecord)
	}
	return res, args.Error(1)
}

func (m *mockObjectRepository) LatestCheckpoint(ctx context.Context) (domain.Checkpoint, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Checkpoint), args.Error(1)
}

func (m *mockObjectRepository) Generation(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockObjectRepository) Stats(
	ctx context.Context, owner *domain.ObjectID,
) (*domain.ObjectStats, error) {
	args := m.Called(ctx, owner)
	var res *domain.ObjectStats
	if a := args.Get(0); a != nil {
		res = a.(*domain.ObjectStats)
	}
	return res, args.Error(1)
}

func (m *mockObjectRepository) Close() {
	m.Called()
}

func TestRetryingStore(t *testing.T) {
	ctx := context.Background()
	id := randomID()
	record := newRecord(id, 1, 10, nil, `{}`)

	t.Run("recovers from transient failures", func(t *testing.T) {
		repo := &mockObjectRepository{}
		repo.On("Get", mock.Anything, id, (*domain.ObjectID)(nil), domain.Checkpoint(10)).
			Return(nil, fmt.Errorf("connection reset")).Twice()
		repo.On("Get", mock.Anything, id, (*domain.ObjectID)(nil), domain.Checkpoint(10)).
			Return(&record, nil).Once()

		store := db.NewRetryingStore(repo, 3, time.Millisecond)
		got, err := store.Get(ctx, id, nil, 10)
		require.NoError(t, err)
		require.Equal(t, &record, got)
		repo.AssertNumberOfCalls(t, "Get", 3)
	})

	t.Run("does not retry not found", func(t *testing.T) {
		repo := &mockObjectRepository{}
		repo.On("Get", mock.Anything, id, (*domain.ObjectID)(nil), domain.Checkpoint(10)).
			Return(nil, nil).Once()

		store := db.NewRetryingStore(repo, 3, time.Millisecond)
		got, err := store.Get(ctx, id, nil, 10)
		require.NoError(t, err)
		require.Nil(t, got)
		repo.AssertNumberOfCalls(t, "Get", 1)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		repo := &mockObjectRepository{}
		ids := []domain.ObjectID{id}
		repo.On("GetMany", mock.Anything, ids, (*domain.ObjectID)(nil), domain.Checkpoint(10)).
			Return(nil, fmt.Errorf("connection reset"))

		store := db.NewRetryingStore(repo, 2, time.Millisecond)
		got, err := store.GetMany(ctx, ids, nil, 10)
		require.ErrorContains(t, err, "connection reset")
		require.Nil(t, got)
		repo.AssertNumberOfCalls(t, "GetMany", 3)
	})

	t.Run("stops on canceled context", func(t *testing.T) {
		repo := &mockObjectRepository{}
		repo.On("Get", mock.Anything, id, (*domain.ObjectID)(nil), domain.Checkpoint(10)).
			Return(nil, fmt.Errorf("connection reset"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		store := db.NewRetryingStore(repo, 5, time.Second)
		_, err := store.Get(ctx, id, nil, 10)
		require.ErrorIs(t, err, context.Canceled)
		repo.AssertNumberOfCalls(t, "Get", 1)
	})

	t.Run("passes writes through", func(t *testing.T) {
		repo := &mockObjectRepository{}
		repo.On("Add", mock.Anything, []domain.VersionedRecord{record}).Return(nil).Once()
		repo.On("LatestCheckpoint", mock.Anything).Return(domain.Checkpoint(10), nil).Once()

		store := db.NewRetryingStore(repo, 2, time.Millisecond)
		require.NoError(t, store.Add(ctx, record))
		latest, err := store.LatestCheckpoint(ctx)
		require.NoError(t, err)
		require.Equal(t, domain.Checkpoint(10), latest)
		repo.AssertExpectations(t)
	})

	t.Run("zero retries returns the store", func(t *testing.T) {
		repo := &mockObjectRepository{}
		require.Same(t, repo, db.NewRetryingStore(repo, 0, time.Millisecond))
	})
}
