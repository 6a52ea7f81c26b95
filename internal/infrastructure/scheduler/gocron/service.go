package timescheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/ports"
	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

const defaultInterval = 30 * time.Second

type Option func(*service)

func WithInterval(interval time.Duration) Option {
	return func(s *service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

type service struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler(opts ...Option) ports.SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &service{
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  defaultInterval,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *service) ScheduleRecurring(task func(ctx context.Context)) error {
	if task == nil {
		return fmt.Errorf("missing task")
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		if s.ctx.Err() != nil {
			return
		}
		task(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule task: %w", err)
	}

	log.Debugf("scheduled recurring task every %s", s.interval)
	return nil
}
