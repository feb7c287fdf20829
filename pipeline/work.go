package pipeline

import "github.com/Tutortoise/live-detection-service/models"

// work is a unit consumed by the worker: either *configureWork or frameWork.
type work interface {
	isWork()
}

type configResult struct {
	status models.ConfigurationStatus
	err    error
}

// configureWork is shared by every Configure caller that arrives while it is
// still queued. waiters is guarded by Scheduler.mu.
type configureWork struct {
	id      string
	waiters []chan configResult
}

type frameWork struct {
	frame Frame
}

func (*configureWork) isWork() {}
func (frameWork) isWork() {}

// deliver hands r to every waiter. Waiter channels have capacity 1 and
// receive exactly once, so the worker never blocks on a caller that gave up.
func deliver(waiters []chan configResult, r configResult) {
	for _, ch := range waiters {
		ch <- r
	}
}
