package application

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// manualScheduler runs the scheduled task only when tick is called.
type manualScheduler struct {
	task    func(ctx context.Context)
	started bool
	stopped bool
}

func (s *manualScheduler) Start() { s.started = true }
func (s *manualScheduler) Stop()  { s.stopped = true }
func (s *manualScheduler) ScheduleRecurring(task func(ctx context.Context)) error {
	s.task = task
	return nil
}
func (s *manualScheduler) tick() { s.task(context.Background()) }

type mockCheckpointSource struct {
	mock.Mock
}

func (m *mockCheckpointSource) LatestCheckpoint(ctx context.Context) (domain.Checkpoint, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Checkpoint), args.Error(1)
}

func TestWatcher(t *testing.T) {
	bidsHandle, asksHandle := mustParseID("0xb1d"), mustParseID("0xa5c")
	b := newTreeBuilder(t).at(10)
	writeSide(b, bidsHandle, orderJSONFor(orderIDFor(true, 100, 1), 10, 0))
	writeSide(b, asksHandle, orderJSONFor(orderIDFor(false, 110, 2), 10, 0))
	pools := []Pool{{Name: "test", Bids: bidsHandle, Asks: asksHandle, BaseDecimals: 9, QuoteDecimals: 6}}

	books, err := NewBookService(b.store, nil)
	require.NoError(t, err)

	checkpoints := &mockCheckpointSource{}
	checkpoints.On("LatestCheckpoint", mock.Anything).Return(domain.Checkpoint(20), nil).Twice()
	checkpoints.On("LatestCheckpoint", mock.Anything).Return(domain.Checkpoint(30), nil).Once()
	checkpoints.On("LatestCheckpoint", mock.Anything).
		Return(domain.Checkpoint(0), fmt.Errorf("store unavailable")).Once()

	lock := &sync.Mutex{}
	snapshots := make([]domain.Checkpoint, 0)
	onSnapshot := func(_ context.Context, pool Pool, book *OrderBook) {
		lock.Lock()
		defer lock.Unlock()
		require.Equal(t, "test", pool.Name)
		snapshots = append(snapshots, book.Checkpoint)
	}

	scheduler := &manualScheduler{}
	w, err := NewWatcher(books, checkpoints, scheduler, pools, onSnapshot)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.True(t, scheduler.started)

	scheduler.tick()
	scheduler.tick() // same checkpoint, skipped
	scheduler.tick()
	scheduler.tick() // error, skipped

	require.Equal(t, []domain.Checkpoint{20, 30}, snapshots)
	checkpoints.AssertExpectations(t)

	w.Stop()
	require.True(t, scheduler.stopped)
	scheduler.tick() // canceled, nothing happens
	require.Len(t, snapshots, 2)
}

func TestWatcherRetriesFailedSnapshots(t *testing.T) {
	b := newTreeBuilder(t).at(10)
	healthy := Pool{Name: "healthy", Bids: mustParseID("0xb1d"), Asks: mustParseID("0xa5c")}
	flaky := Pool{Name: "flaky", Bids: mustParseID("0xb2d"), Asks: mustParseID("0xa6c")}
	for _, pool := range []Pool{healthy, flaky} {
		writeSide(b, pool.Bids, orderJSONFor(orderIDFor(true, 100, 1), 10, 0))
		writeSide(b, pool.Asks, orderJSONFor(orderIDFor(false, 110, 2), 10, 0))
	}

	store := &failingStore{
		memStore: b.store,
		failing:  map[domain.ObjectID]error{flaky.Bids: fmt.Errorf("timeout")},
	}
	books, err := NewBookService(store, nil)
	require.NoError(t, err)

	checkpoints := &mockCheckpointSource{}
	checkpoints.On("LatestCheckpoint", mock.Anything).Return(domain.Checkpoint(20), nil)

	lock := &sync.Mutex{}
	snapshots := make(map[string][]domain.Checkpoint)
	onSnapshot := func(_ context.Context, pool Pool, book *OrderBook) {
		lock.Lock()
		defer lock.Unlock()
		snapshots[pool.Name] = append(snapshots[pool.Name], book.Checkpoint)
	}

	scheduler := &manualScheduler{}
	w, err := NewWatcher(books, checkpoints, scheduler, []Pool{healthy, flaky}, onSnapshot)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	scheduler.tick()
	require.Equal(t, []domain.Checkpoint{20}, snapshots[healthy.Name])
	require.Empty(t, snapshots[flaky.Name])

	// The store recovers before a new checkpoint lands.
	delete(store.failing, flaky.Bids)
	scheduler.tick()
	require.Equal(t, []domain.Checkpoint{20}, snapshots[healthy.Name])
	require.Equal(t, []domain.Checkpoint{20}, snapshots[flaky.Name])

	scheduler.tick()
	require.Len(t, snapshots[healthy.Name], 1)
	require.Len(t, snapshots[flaky.Name], 1)
}

func TestNewWatcherInvalid(t *testing.T) {
	books, err := NewBookService(newMemStore(), nil)
	require.NoError(t, err)
	pools := []Pool{{Name: "test"}}

	_, err = NewWatcher(nil, &mockCheckpointSource{}, &manualScheduler{}, pools, nil)
	require.Error(t, err)
	_, err = NewWatcher(books, nil, &manualScheduler{}, pools, nil)
	require.Error(t, err)
	_, err = NewWatcher(books, &mockCheckpointSource{}, nil, pools, nil)
	require.Error(t, err)
	_, err = NewWatcher(books, &mockCheckpointSource{}, &manualScheduler{}, nil, nil)
	require.Error(t, err)
}
