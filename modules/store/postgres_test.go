package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/example/task-lifecycle/domain/task"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestPool connects to $TASKS_TEST_DATABASE_URL or skips the test.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TASKS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping test: TASKS_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Skipf("Skipping test: database not available: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Skipping test: database ping failed: %v", err)
	}

	repo := NewPostgresRepository(pool, testClock)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		t.Fatalf("failed to migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE tasks RESTART IDENTITY"); err != nil {
		pool.Close()
		t.Fatalf("failed to clean up test data: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepository_CRUD(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewPostgresRepository(pool, testClock)
	ctx := context.Background()

	entity := repo.NewEntity()
	entity.Description = "ship release"
	entity.DueDateTime = ptr(testNow.Add(time.Hour))

	saved, err := repo.Save(ctx, entity)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("expected generated id")
	}

	saved.Status = task.StatusDone
	saved.CompletionDateTime = ptr(testNow)
	if _, err := repo.Save(ctx, saved); err != nil {
		t.Fatalf("Save() update error = %v", err)
	}

	found, err := repo.FindByID(ctx, saved.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found.Status != task.StatusDone {
		t.Errorf("expected DONE, got %s", found.Status)
	}

	if err := repo.Delete(ctx, found); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.FindByID(ctx, saved.ID); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresRepository_BulkUpdate(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewPostgresRepository(pool, testClock)
	ctx := context.Background()

	if _, err := repo.SaveAll(ctx, overdueFixture(repo)); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}

	n, err := repo.UpdateStatusForDueDateTimeAndOldStatus(ctx, task.StatusNotDone, task.StatusPastDue, testNow)
	if err != nil {
		t.Fatalf("UpdateStatusForDueDateTimeAndOldStatus() error = %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row updated, got %d", n)
	}

	page, err := repo.FindByStatus(ctx, task.Pageable{Size: 10}, task.StatusPastDue)
	if err != nil {
		t.Fatalf("FindByStatus() error = %v", err)
	}
	if page.TotalElements != 1 {
		t.Errorf("expected 1 PAST_DUE task, got %d", page.TotalElements)
	}
}

func TestPostgresRepository_DeletedTaskStaysDeleted(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewPostgresRepository(pool, testClock)
	ctx := context.Background()

	overdue := repo.NewEntity()
	overdue.DueDateTime = ptr(testNow.Add(-time.Minute))
	stale, err := repo.Save(ctx, overdue)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Delete(ctx, stale); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	stale.Status = task.StatusPastDue
	if _, err := repo.Save(ctx, stale); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("Save() error = %v, want ErrNotFound", err)
	}
	changed, err := repo.UpdateStatusForIDs(ctx, []int64{stale.ID}, task.StatusNotDone, task.StatusPastDue, testNow)
	if err != nil {
		t.Fatalf("UpdateStatusForIDs() error = %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("expected no rows changed, got %v", changed)
	}

	next, err := repo.Save(ctx, repo.NewEntity())
	if err != nil {
		t.Fatalf("Save() after delete error = %v", err)
	}
	if next.ID <= stale.ID {
		t.Errorf("expected a fresh id above %d, got %d", stale.ID, next.ID)
	}
}

func TestWrapPgError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantConflict bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001", Message: "could not serialize access"}, true},
		{"wrapped serialization failure", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapPgError("save task", tt.err)
			if !errors.Is(err, task.ErrPersistence) {
				t.Errorf("expected ErrPersistence, got %v", err)
			}
			if got := errors.Is(err, task.ErrConflict); got != tt.wantConflict {
				t.Errorf("errors.Is(ErrConflict) = %v, want %v", got, tt.wantConflict)
			}
		})
	}
}
