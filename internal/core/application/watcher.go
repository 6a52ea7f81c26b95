package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// SnapshotHandler is notified of every order book snapshot taken by the
// watcher.
type SnapshotHandler func(ctx context.Context, pool Pool, book *OrderBook)

type Watcher interface {
	Start() error
	Stop()
}

type watcher struct {
	books       BookService
	checkpoints ports.CheckpointSource
	scheduler   ports.SchedulerService
	pools       []Pool
	onSnapshot  SnapshotHandler

	lock sync.Mutex
	// last checkpoint successfully snapshotted, by pool name.
	lastCheckpoints map[string]domain.Checkpoint
	cancel          context.CancelFunc
}

// NewWatcher returns a watcher snapshotting the given pools at the latest
// checkpoint of the store every time the scheduler ticks. A pool is skipped
// when it was already snapshotted at that checkpoint, a failed snapshot is
// retried on the next tick.
func NewWatcher(
	books BookService, checkpoints ports.CheckpointSource,
	scheduler ports.SchedulerService, pools []Pool, onSnapshot SnapshotHandler,
) (Watcher, error) {
	if books == nil {
		return nil, fmt.Errorf("missing book service")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("missing checkpoint source")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	if len(pools) == 0 {
		return nil, fmt.Errorf("missing pools to watch")
	}
	if onSnapshot == nil {
		onSnapshot = func(context.Context, Pool, *OrderBook) {}
	}

	return &watcher{
		books:           books,
		checkpoints:     checkpoints,
		scheduler:       scheduler,
		pools:           pools,
		onSnapshot:      onSnapshot,
		lastCheckpoints: make(map[string]domain.Checkpoint, len(pools)),
	}, nil
}

func (w *watcher) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	if err := w.scheduler.ScheduleRecurring(func(tickCtx context.Context) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.onTick(tickCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule snapshots: %s", err)
	}

	w.scheduler.Start()
	log.Infof("watching %d pools", len(w.pools))
	return nil
}

func (w *watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.scheduler.Stop()
	log.Info("watcher stopped")
}

func (w *watcher) onTick(ctx context.Context) {
	// Ticks can overlap when a snapshot takes longer than the interval.
	if !w.lock.TryLock() {
		log.Debug("previous snapshot still in progress, skipping tick")
		return
	}
	defer w.lock.Unlock()

	checkpoint, err := w.checkpoints.LatestCheckpoint(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to get latest checkpoint, skipping...")
		return
	}
	if checkpoint == 0 {
		return
	}

	pending := make([]Pool, 0, len(w.pools))
	for _, pool := range w.pools {
		if checkpoint > w.lastCheckpoints[pool.Name] {
			pending = append(pending, pool)
		}
	}
	if len(pending) == 0 {
		return
	}

	snapshotted := make([]bool, len(pending))
	wg := &sync.WaitGroup{}
	for i, pool := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithError(fmt.Errorf("panic: %v", r)).Error("panic while taking snapshot")
				}
			}()

			book, err := w.books.Snapshot(ctx, pool, checkpoint)
			if err != nil {
				log.WithError(err).Warnf(
					"failed to snapshot pool %s at checkpoint %d, retrying on next tick",
					pool.Name, checkpoint,
				)
				return
			}
			w.onSnapshot(ctx, pool, book)
			snapshotted[i] = true
		}()
	}
	wg.Wait()

	for i, pool := range pending {
		if snapshotted[i] {
			w.lastCheckpoints[pool.Name] = checkpoint
		}
	}
}
