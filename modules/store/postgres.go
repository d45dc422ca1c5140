package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/task-lifecycle/domain/task"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id                   BIGSERIAL PRIMARY KEY,
	description          TEXT        NOT NULL,
	creation_date_time   TIMESTAMPTZ NOT NULL,
	due_date_time        TIMESTAMPTZ,
	completion_date_time TIMESTAMPTZ,
	status               VARCHAR(16) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_due ON tasks (status, due_date_time);
`

const taskColumns = "id, description, creation_date_time, due_date_time, completion_date_time, status"

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements task.Repository with pgx.
type PostgresRepository struct {
	pool  *pgxpool.Pool
	db    DBTX
	clock task.Clock
}

// Compile-time interface check.
var _ task.Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool, clock task.Clock) *PostgresRepository {
	if clock == nil {
		clock = task.SystemClock
	}
	return &PostgresRepository{pool: pool, db: pool, clock: clock}
}

// Migrate creates the tasks table when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return task.WrapPersistence("migrate tasks table", err)
	}
	return nil
}

// Delete removes a task by its id.
func (r *PostgresRepository) Delete(ctx context.Context, t *task.Task) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM tasks WHERE id = $1", t.ID)
	if err != nil {
		return wrapPgError("delete task", err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

// DeleteAll removes every task.
func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, "DELETE FROM tasks"); err != nil {
		return wrapPgError("delete all tasks", err)
	}
	return nil
}

// FindAll returns one page of tasks ordered by id.
func (r *PostgresRepository) FindAll(ctx context.Context, p task.Pageable) (*task.Page, error) {
	p = p.Normalize()

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM tasks").Scan(&total); err != nil {
		return nil, wrapPgError("count tasks", err)
	}

	rows, err := r.db.Query(ctx,
		"SELECT "+taskColumns+" FROM tasks ORDER BY id LIMIT $1 OFFSET $2",
		p.Size, p.Offset())
	if err != nil {
		return nil, wrapPgError("find tasks", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, wrapPgError("find tasks", err)
	}
	return task.NewPage(tasks, total, p), nil
}

// FindByStatus returns one page of tasks in the given status.
func (r *PostgresRepository) FindByStatus(ctx context.Context, p task.Pageable, status task.Status) (*task.Page, error) {
	p = p.Normalize()

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM tasks WHERE status = $1", string(status)).Scan(&total); err != nil {
		return nil, wrapPgError("count tasks", err)
	}

	rows, err := r.db.Query(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE status = $1 ORDER BY id LIMIT $2 OFFSET $3",
		string(status), p.Size, p.Offset())
	if err != nil {
		return nil, wrapPgError("find tasks", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, wrapPgError("find tasks", err)
	}
	return task.NewPage(tasks, total, p), nil
}

// FindByID retrieves a task by its id.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*task.Task, error) {
	rows, err := r.db.Query(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id)
	if err != nil {
		return nil, wrapPgError("find task", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTask)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, task.ErrNotFound
		}
		return nil, wrapPgError("find task", err)
	}
	return t, nil
}

// Save inserts a task without an id and updates the row of a task with
// one. Updating a row that no longer exists returns task.ErrNotFound.
func (r *PostgresRepository) Save(ctx context.Context, t *task.Task) (*task.Task, error) {
	saved, err := r.save(ctx, r.db, t)
	if err != nil {
		return nil, wrapPgError("save task", err)
	}
	return saved, nil
}

func (r *PostgresRepository) save(ctx context.Context, db DBTX, t *task.Task) (*task.Task, error) {
	rec := toRecord(t)
	var rows pgx.Rows
	var err error
	if rec.ID == 0 {
		rows, err = db.Query(ctx,
			`INSERT INTO tasks (description, creation_date_time, due_date_time, completion_date_time, status)
			 VALUES ($1, $2, $3, $4, $5) RETURNING `+taskColumns,
			rec.Description, rec.CreationDateTime, rec.DueDateTime, rec.CompletionDateTime, rec.Status)
	} else {
		rows, err = db.Query(ctx,
			`UPDATE tasks SET
			   description = $2,
			   creation_date_time = $3,
			   due_date_time = $4,
			   completion_date_time = $5,
			   status = $6
			 WHERE id = $1
			 RETURNING `+taskColumns,
			rec.ID, rec.Description, rec.CreationDateTime, rec.DueDateTime, rec.CompletionDateTime, rec.Status)
	}
	if err != nil {
		return nil, err
	}
	saved, err := pgx.CollectExactlyOneRow(rows, scanTask)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	return saved, err
}

// SaveAll saves every task in one transaction.
func (r *PostgresRepository) SaveAll(ctx context.Context, tasks []*task.Task) ([]*task.Task, error) {
	if len(tasks) == 0 {
		return []*task.Task{}, nil
	}

	saved := make([]*task.Task, 0, len(tasks))
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		for _, t := range tasks {
			s, err := r.save(ctx, tx, t)
			if err != nil {
				return err
			}
			saved = append(saved, s)
		}
		return nil
	})
	if err != nil {
		return nil, wrapPgError("save tasks", err)
	}
	return saved, nil
}

// NewEntity returns an unsaved task with default fields.
func (r *PostgresRepository) NewEntity() *task.Task {
	return task.New(r.clock())
}

// FindByStatusAndDueDateTimeBefore returns up to limit matching tasks.
func (r *PostgresRepository) FindByStatusAndDueDateTimeBefore(ctx context.Context, status task.Status, before time.Time, limit int) ([]*task.Task, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE status = $1 AND due_date_time < $2 LIMIT $3",
		string(status), before.UTC(), limit)
	if err != nil {
		return nil, wrapPgError("find overdue tasks", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, wrapPgError("find overdue tasks", err)
	}
	return tasks, nil
}

// UpdateStatusForDueDateTimeAndOldStatus runs a single set-based update at
// serializable isolation.
func (r *PostgresRepository) UpdateStatusForDueDateTimeAndOldStatus(ctx context.Context, oldStatus, newStatus task.Status, ts time.Time) (int64, error) {
	var affected int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE tasks SET status = $1 WHERE status = $2 AND due_date_time < $3",
			string(newStatus), string(oldStatus), ts.UTC())
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, wrapPgError("update task statuses", err)
	}
	return affected, nil
}

// UpdateStatusForIDs moves the listed tasks to newStatus when they are
// still in oldStatus with a due date strictly before ts, and returns the
// ids it changed.
func (r *PostgresRepository) UpdateStatusForIDs(ctx context.Context, ids []int64, oldStatus, newStatus task.Status, ts time.Time) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}

	rows, err := r.db.Query(ctx,
		`UPDATE tasks SET status = $1
		 WHERE id = ANY($2) AND status = $3 AND due_date_time < $4
		 RETURNING id`,
		string(newStatus), ids, string(oldStatus), ts.UTC())
	if err != nil {
		return nil, wrapPgError("update task statuses", err)
	}
	changed, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrapPgError("update task statuses", err)
	}
	return changed, nil
}

// WithinTransaction runs fn against a repository bound to one serializable transaction.
func (r *PostgresRepository) WithinTransaction(ctx context.Context, fn func(tx task.Repository) error) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(&PostgresRepository{pool: r.pool, db: tx, clock: r.clock})
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && !errors.Is(err, task.ErrConflict) {
		return wrapPgError("commit transaction", err)
	}
	return err
}

// inTx starts a serializable transaction on the pool, or a savepoint when
// the repository is already bound to a transaction.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if tx, ok := r.db.(pgx.Tx); ok {
		return pgx.BeginFunc(ctx, tx, fn)
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
}

func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	return pgx.CollectRows(rows, scanTask)
}

func scanTask(row pgx.CollectableRow) (*task.Task, error) {
	var rec taskRecord
	if err := row.Scan(
		&rec.ID,
		&rec.Description,
		&rec.CreationDateTime,
		&rec.DueDateTime,
		&rec.CompletionDateTime,
		&rec.Status,
	); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// wrapPgError maps serialization failures to task.ErrConflict and wraps
// everything else as a persistence error.
func wrapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return &task.PersistenceError{Op: op, Err: fmt.Errorf("%w: %s", task.ErrConflict, pgErr.Message)}
	}
	return task.WrapPersistence(op, err)
}
