package ports

import "context"

type SchedulerService interface {
	Start()
	Stop()
	// ScheduleRecurring registers a task to be run every time the scheduler
	// ticks, either on a fixed interval or whenever a new checkpoint lands.
	ScheduleRecurring(task func(ctx context.Context)) error
}
