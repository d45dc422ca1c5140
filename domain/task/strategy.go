package task

// StatusUpdateStrategy decides whether a single task should be moved to a
// new status by the status updater.
type StatusUpdateStrategy interface {
	ShouldUpdate(t *Task) bool
}

// PastDueStrategy flags open tasks whose deadline has elapsed. It is the
// single definition of "overdue" shared by the lazy and bulk paths.
type PastDueStrategy struct {
	clock Clock
}

// NewPastDueStrategy creates a PastDueStrategy reading time from clock.
func NewPastDueStrategy(clock Clock) *PastDueStrategy {
	if clock == nil {
		clock = SystemClock
	}
	return &PastDueStrategy{clock: clock}
}

// ShouldUpdate reports whether t has a due date strictly before now and is NOT_DONE.
func (s *PastDueStrategy) ShouldUpdate(t *Task) bool {
	if t == nil || t.DueDateTime == nil {
		return false
	}
	return t.Status == StatusNotDone && t.DueDateTime.Before(s.clock())
}
