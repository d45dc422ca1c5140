package task

import (
	"context"
	"time"
)

// Repository persists tasks. Implementations assign ids on first save.
//
// FindByID returns ErrNotFound when no row matches. Store failures are
// reported as errors matching ErrPersistence.
type Repository interface {
	Delete(ctx context.Context, t *Task) error
	DeleteAll(ctx context.Context) error
	FindAll(ctx context.Context, p Pageable) (*Page, error)
	FindByID(ctx context.Context, id int64) (*Task, error)
	// Save inserts a task without an id and updates the row of one with an
	// id. It never re-creates a deleted row: updating a missing id returns
	// ErrNotFound.
	Save(ctx context.Context, t *Task) (*Task, error)
	// SaveAll persists every task atomically: all rows commit or none do.
	SaveAll(ctx context.Context, tasks []*Task) ([]*Task, error)
	NewEntity() *Task
	FindByStatus(ctx context.Context, p Pageable, status Status) (*Page, error)
	// FindByStatusAndDueDateTimeBefore returns at most limit tasks in the
	// given status whose due date is strictly before the given time.
	FindByStatusAndDueDateTimeBefore(ctx context.Context, status Status, before time.Time, limit int) ([]*Task, error)
	// UpdateStatusForDueDateTimeAndOldStatus sets newStatus on every task in
	// oldStatus with a due date strictly before ts, at serializable
	// isolation, and returns the number of rows changed.
	UpdateStatusForDueDateTimeAndOldStatus(ctx context.Context, oldStatus, newStatus Status, ts time.Time) (int64, error)
	// UpdateStatusForIDs sets newStatus on the listed tasks that are still
	// in oldStatus with a due date strictly before ts, and returns the ids
	// it changed.
	UpdateStatusForIDs(ctx context.Context, ids []int64, oldStatus, newStatus Status, ts time.Time) ([]int64, error)
	// WithinTransaction runs fn against a repository bound to a single
	// serializable transaction. fn's error rolls the transaction back.
	WithinTransaction(ctx context.Context, fn func(tx Repository) error) error
}
