package checkpointscheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type Option func(*service)

func WithTickerInterval(interval time.Duration) Option {
	return func(s *service) {
		s.tickerInterval = interval
	}
}

// service runs the scheduled tasks every time the checkpoint source reports
// a new checkpoint.
type service struct {
	source         ports.CheckpointSource
	lock           sync.Locker
	tasks          []func(ctx context.Context)
	lastCheckpoint domain.Checkpoint
	tickerInterval time.Duration
	stopOnce       sync.Once
	ctx            context.Context
	cancel         context.CancelFunc
}

func NewScheduler(source ports.CheckpointSource, opts ...Option) (ports.SchedulerService, error) {
	if source == nil {
		return nil, fmt.Errorf("checkpoint source is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &service{
		source:         source,
		lock:           &sync.Mutex{},
		tasks:          make([]func(ctx context.Context), 0),
		tickerInterval: time.Second * 10,
		ctx:            ctx,
		cancel:         cancel,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (s *service) Start() {
	go func() {
		ticker := time.NewTicker(s.tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				tasks, err := s.dueTasks()
				if err != nil {
					log.Errorf("error fetching latest checkpoint: %s", err)
					continue
				}

				log.Debugf("running %d tasks", len(tasks))
				for _, task := range tasks {
					go task(s.ctx)
				}
			}
		}
	}()
}

func (s *service) Stop() {
	s.stopOnce.Do(s.cancel)
}

func (s *service) ScheduleRecurring(task func(ctx context.Context)) error {
	if task == nil {
		return fmt.Errorf("missing task")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.tasks = append(s.tasks, task)
	return nil
}

// dueTasks returns the tasks to run if the checkpoint advanced since the last
// tick.
func (s *service) dueTasks() ([]func(ctx context.Context), error) {
	checkpoint, err := s.source.LatestCheckpoint(s.ctx)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if checkpoint <= s.lastCheckpoint {
		return nil, nil
	}
	log.Debugf("checkpoint advanced from %d to %d", s.lastCheckpoint, checkpoint)
	s.lastCheckpoint = checkpoint

	tasks := make([]func(ctx context.Context), len(s.tasks))
	copy(tasks, s.tasks)
	return tasks, nil
}
