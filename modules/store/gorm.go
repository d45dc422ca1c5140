package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/task-lifecycle/domain/task"
	"gorm.io/gorm"
)

// GormRepository implements task.Repository on top of GORM.
type GormRepository struct {
	db    *gorm.DB
	clock task.Clock
}

// Compile-time interface check.
var _ task.Repository = (*GormRepository)(nil)

// NewGormRepository creates a repository using db. The clock feeds NewEntity.
func NewGormRepository(db *gorm.DB, clock task.Clock) *GormRepository {
	if clock == nil {
		clock = task.SystemClock
	}
	return &GormRepository{db: db, clock: clock}
}

// Migrate creates or updates the tasks table.
func (r *GormRepository) Migrate() error {
	if err := r.db.AutoMigrate(&taskRecord{}); err != nil {
		return task.WrapPersistence("migrate tasks table", err)
	}
	return nil
}

// Delete removes a task by its id.
func (r *GormRepository) Delete(ctx context.Context, t *task.Task) error {
	result := r.db.WithContext(ctx).Delete(&taskRecord{}, "id = ?", t.ID)
	if err := result.Error; err != nil {
		return task.WrapPersistence("delete task", err)
	}
	if result.RowsAffected == 0 {
		return task.ErrNotFound
	}
	return nil
}

// DeleteAll removes every task.
func (r *GormRepository) DeleteAll(ctx context.Context) error {
	err := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&taskRecord{}).Error
	return task.WrapPersistence("delete all tasks", err)
}

// FindAll returns one page of tasks ordered by id.
func (r *GormRepository) FindAll(ctx context.Context, p task.Pageable) (*task.Page, error) {
	return r.findPage(ctx, r.db.WithContext(ctx).Model(&taskRecord{}), p)
}

// FindByStatus returns one page of tasks in the given status.
func (r *GormRepository) FindByStatus(ctx context.Context, p task.Pageable, status task.Status) (*task.Page, error) {
	query := r.db.WithContext(ctx).Model(&taskRecord{}).Where("status = ?", string(status))
	return r.findPage(ctx, query, p)
}

func (r *GormRepository) findPage(_ context.Context, query *gorm.DB, p task.Pageable) (*task.Page, error) {
	p = p.Normalize()

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, task.WrapPersistence("count tasks", err)
	}

	var records []taskRecord
	err := query.Session(&gorm.Session{}).
		Order("id").
		Limit(p.Size).
		Offset(p.Offset()).
		Find(&records).Error
	if err != nil {
		return nil, task.WrapPersistence("find tasks", err)
	}

	return task.NewPage(toDomainList(records), total, p), nil
}

// FindByID retrieves a task by its id.
func (r *GormRepository) FindByID(ctx context.Context, id int64) (*task.Task, error) {
	var record taskRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, task.ErrNotFound
		}
		return nil, task.WrapPersistence("find task", err)
	}
	return record.toDomain(), nil
}

// Save inserts a task without an id and updates the row of a task with
// one. Updating a row that no longer exists returns task.ErrNotFound.
func (r *GormRepository) Save(ctx context.Context, t *task.Task) (*task.Task, error) {
	record := toRecord(t)
	if err := saveRecord(r.db.WithContext(ctx), record); err != nil {
		return nil, task.WrapPersistence("save task", err)
	}
	return record.toDomain(), nil
}

// SaveAll saves every task in one transaction.
func (r *GormRepository) SaveAll(ctx context.Context, tasks []*task.Task) ([]*task.Task, error) {
	if len(tasks) == 0 {
		return []*task.Task{}, nil
	}

	records := make([]*taskRecord, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, toRecord(t))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			if err := saveRecord(tx, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, task.WrapPersistence("save tasks", err)
	}

	saved := make([]*task.Task, 0, len(records))
	for _, record := range records {
		saved = append(saved, record.toDomain())
	}
	return saved, nil
}

// saveRecord creates a record without an id and updates one with an id in
// place. A missing row is reported as task.ErrNotFound.
func saveRecord(db *gorm.DB, record *taskRecord) error {
	if record.ID == 0 {
		return db.Create(record).Error
	}
	result := db.Model(&taskRecord{}).Where("id = ?", record.ID).Select("*").Updates(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return task.ErrNotFound
	}
	return nil
}

// NewEntity returns an unsaved task with default fields.
func (r *GormRepository) NewEntity() *task.Task {
	return task.New(r.clock())
}

// FindByStatusAndDueDateTimeBefore returns up to limit matching tasks.
func (r *GormRepository) FindByStatusAndDueDateTimeBefore(ctx context.Context, status task.Status, before time.Time, limit int) ([]*task.Task, error) {
	var records []taskRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_date_time IS NOT NULL AND due_date_time < ?", string(status), before.UTC()).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, task.WrapPersistence("find overdue tasks", err)
	}
	return toDomainList(records), nil
}

// UpdateStatusForDueDateTimeAndOldStatus runs a single set-based update in
// a serializable transaction. The WHERE clause re-checks status at commit
// time, so concurrent edits that already moved a row out of oldStatus are
// left alone.
func (r *GormRepository) UpdateStatusForDueDateTimeAndOldStatus(ctx context.Context, oldStatus, newStatus task.Status, ts time.Time) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&taskRecord{}).
			Where("status = ? AND due_date_time IS NOT NULL AND due_date_time < ?", string(oldStatus), ts.UTC()).
			Update("status", string(newStatus))
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	}, serializable())
	if err != nil {
		return 0, task.WrapPersistence("update task statuses", err)
	}
	return affected, nil
}

// UpdateStatusForIDs moves the listed tasks to newStatus when they are
// still in oldStatus with a due date strictly before ts, and returns the
// ids it changed. Rows edited or deleted since they were read are skipped.
func (r *GormRepository) UpdateStatusForIDs(ctx context.Context, ids []int64, oldStatus, newStatus task.Status, ts time.Time) ([]int64, error) {
	changed := []int64{}
	if len(ids) == 0 {
		return changed, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&taskRecord{}).
			Where("id IN ? AND status = ? AND due_date_time IS NOT NULL AND due_date_time < ?", ids, string(oldStatus), ts.UTC()).
			Order("id").
			Pluck("id", &changed).Error
		if err != nil || len(changed) == 0 {
			return err
		}
		return tx.Model(&taskRecord{}).
			Where("id IN ? AND status = ?", changed, string(oldStatus)).
			Update("status", string(newStatus)).Error
	}, serializable())
	if err != nil {
		return nil, task.WrapPersistence("update task statuses", err)
	}
	return changed, nil
}

// WithinTransaction runs fn against a repository bound to one transaction.
func (r *GormRepository) WithinTransaction(ctx context.Context, fn func(tx task.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx, clock: r.clock})
	}, serializable())
}

func serializable() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}
