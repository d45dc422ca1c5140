// Package task provides the task entity, its lifecycle rules and the
// repository contract the rest of the application depends on.
package task

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	// StatusNotDone indicates the task is open.
	StatusNotDone Status = "NOT_DONE"
	// StatusDone indicates the task has been completed.
	StatusDone Status = "DONE"
	// StatusPastDue indicates the deadline elapsed while the task was open.
	StatusPastDue Status = "PAST_DUE"
)

// DefaultDescription is the description given to freshly created entities.
const DefaultDescription = "Undefined"

// IsValid returns true if the status is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotDone, StatusDone, StatusPastDue:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// Clock returns the current time. Validators and the status-update
// strategy read "now" through a Clock so tests can pin it.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now()
}

// Task is a unit of work tracked through the NOT_DONE/DONE/PAST_DUE lifecycle.
type Task struct {
	ID                 int64      `json:"id"`
	Description        string     `json:"description"`
	Status             Status     `json:"status"`
	CreationDateTime   time.Time  `json:"creationDateTime"`
	DueDateTime        *time.Time `json:"dueDateTime,omitempty"`
	CompletionDateTime *time.Time `json:"completionDateTime,omitempty"`
}

// New creates a task that has not been persisted yet.
func New(now time.Time) *Task {
	return &Task{
		Description:      DefaultDescription,
		Status:           StatusNotDone,
		CreationDateTime: now,
	}
}

// HasDeadline reports whether a due date is set.
func (t *Task) HasDeadline() bool {
	return t.DueDateTime != nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.DueDateTime = copyTime(t.DueDateTime)
	c.CompletionDateTime = copyTime(t.CompletionDateTime)
	return &c
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{id=%d, status=%s, description=%q}", t.ID, t.Status, t.Description)
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
