package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// TaskCreatedEvent is emitted when a new task is stored.
type TaskCreatedEvent struct {
	TaskID      int64      `json:"task_id"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDateTime *time.Time `json:"due_date_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TaskCreatedV1 is the typed event definition for task creation.
// Subject: events.task.v1.task-created
var TaskCreatedV1 = helper.EventDefinition[TaskCreatedEvent](
	"task", "TaskCreated", "v1",
)

// TaskDeletedEvent is emitted when one task, or all tasks, are deleted.
// TaskID is zero when All is set.
type TaskDeletedEvent struct {
	TaskID    int64     `json:"task_id"`
	All       bool      `json:"all"`
	DeletedAt time.Time `json:"deleted_at"`
}

// TaskDeletedV1 is the typed event definition for task deletion.
// Subject: events.task.v1.task-deleted
var TaskDeletedV1 = helper.EventDefinition[TaskDeletedEvent](
	"task", "TaskDeleted", "v1",
)

// TaskPastDueEvent is emitted when a read demotes a task to PAST_DUE.
type TaskPastDueEvent struct {
	TaskID      int64     `json:"task_id"`
	DueDateTime time.Time `json:"due_date_time"`
	DetectedAt  time.Time `json:"detected_at"`
}

// TaskPastDueV1 is the typed event definition for lazy PAST_DUE demotion.
// Subject: events.task.v1.task-past-due
var TaskPastDueV1 = helper.EventDefinition[TaskPastDueEvent](
	"task", "TaskPastDue", "v1",
)

// StatusSweepCompletedEvent is emitted after each successful scheduled sweep.
type StatusSweepCompletedEvent struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Updated    int64     `json:"updated"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// StatusSweepCompletedV1 is the typed event definition for sweep completion.
// Subject: events.scheduler.v1.status-sweep-completed
var StatusSweepCompletedV1 = helper.EventDefinition[StatusSweepCompletedEvent](
	"scheduler", "StatusSweepCompleted", "v1",
)
