package store

import (
	"time"

	"github.com/example/task-lifecycle/domain/task"
)

// taskRecord is the row layout of the tasks table.
type taskRecord struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement"`
	Description        string     `gorm:"size:1000;not null"`
	CreationDateTime   time.Time  `gorm:"column:creation_date_time;not null"`
	DueDateTime        *time.Time `gorm:"column:due_date_time;index:idx_tasks_status_due,priority:2"`
	CompletionDateTime *time.Time `gorm:"column:completion_date_time"`
	Status             string     `gorm:"size:16;not null;index:idx_tasks_status_due,priority:1"`
}

// TableName returns the table name for taskRecord.
func (taskRecord) TableName() string {
	return "tasks"
}

// toRecord maps a domain task to its row. Times are stored in UTC so that
// due-date comparisons in SQL are consistent across drivers.
func toRecord(t *task.Task) *taskRecord {
	return &taskRecord{
		ID:                 t.ID,
		Description:        t.Description,
		CreationDateTime:   t.CreationDateTime.UTC(),
		DueDateTime:        utcPtr(t.DueDateTime),
		CompletionDateTime: utcPtr(t.CompletionDateTime),
		Status:             string(t.Status),
	}
}

func (r *taskRecord) toDomain() *task.Task {
	return &task.Task{
		ID:                 r.ID,
		Description:        r.Description,
		Status:             task.Status(r.Status),
		CreationDateTime:   r.CreationDateTime.UTC(),
		DueDateTime:        utcPtr(r.DueDateTime),
		CompletionDateTime: utcPtr(r.CompletionDateTime),
	}
}

func toDomainList(records []taskRecord) []*task.Task {
	tasks := make([]*task.Task, 0, len(records))
	for i := range records {
		tasks = append(tasks, records[i].toDomain())
	}
	return tasks
}

func utcPtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	u := v.UTC()
	return &u
}
