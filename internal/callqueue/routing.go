package callqueue

// RoutingStrategy selects which of the free workers of a single tier gets a
// call. Tier order itself is fixed by the Dispatcher: the lowest capable tier
// with a free worker always wins.
type RoutingStrategy interface {
	SelectWorker(free []*Worker) *Worker
}

// FirstFree selects the first free worker in pool order
type FirstFree struct{}

// SelectWorker returns the first candidate, or nil
func (FirstFree) SelectWorker(free []*Worker) *Worker {
	if len(free) == 0 {
		return nil
	}
	return free[0]
}

// LongestIdleFirst selects the worker who has been free the longest
type LongestIdleFirst struct{}

// SelectWorker picks the free worker with the oldest state start time
func (LongestIdleFirst) SelectWorker(free []*Worker) *Worker {
	if len(free) == 0 {
		return nil
	}

	oldest := free[0]
	for _, w := range free[1:] {
		if w.stateStart.Before(oldest.stateStart) {
			oldest = w
		}
	}
	return oldest
}
