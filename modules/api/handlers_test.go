package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/example/task-lifecycle/domain/task"
	"github.com/example/task-lifecycle/modules/statusupdate"
	"github.com/example/task-lifecycle/modules/store"
	"github.com/example/task-lifecycle/modules/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func ptr(t time.Time) *time.Time { return &t }

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

type staticHealth mono.HealthStatus

func (h staticHealth) Health(context.Context) mono.HealthStatus {
	return mono.HealthStatus(h)
}

type failingSweeper struct{}

func (failingSweeper) UpdateStatusAll(context.Context) (statusupdate.Result, error) {
	return statusupdate.Result{}, domain.WrapPersistence("update task statuses", errors.New("locked"))
}

type testEnv struct {
	app  *fiber.App
	repo domain.Repository
	mod  *APIModule
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := store.NewGormRepository(db, testClock)
	require.NoError(t, repo.Migrate())

	updater := statusupdate.NewUpdater(repo, domain.NewPastDueStrategy(testClock), testClock,
		statusupdate.Config{Mode: statusupdate.ModeQueryPatch, BatchSize: 10}, &mockLogger{})
	service := task.NewService(repo, domain.NewRuleSets(testClock), updater, testClock, &mockLogger{})

	m := NewModule(3000, service, updater)
	return &testEnv{app: m.newApp(), repo: repo, mod: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) seed(t *testing.T, status domain.Status, due *time.Time) *domain.Task {
	t.Helper()
	tk := e.repo.NewEntity()
	tk.Description = "seeded"
	tk.Status = status
	tk.DueDateTime = due
	if status == domain.StatusDone {
		tk.CompletionDateTime = ptr(testNow.Add(-time.Hour))
	}
	saved, err := e.repo.Save(context.Background(), tk)
	require.NoError(t, err)
	return saved
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestAPI_CreateAndGet(t *testing.T) {
	env := setupTestApp(t)

	code, body := env.do(t, "POST", "/api/tasks/", map[string]any{
		"description": "write report",
		"status":      "NOT_DONE",
		"dueDateTime": testNow.Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, fiber.StatusCreated, code, string(body))
	created := decode[domain.Task](t, body)
	assert.NotZero(t, created.ID)
	assert.Equal(t, domain.StatusNotDone, created.Status)

	code, body = env.do(t, "GET", "/api/tasks/1", nil)
	require.Equal(t, fiber.StatusOK, code)
	got := decode[domain.Task](t, body)
	assert.Equal(t, "write report", got.Description)
}

func TestAPI_CreateRejectedExpiredDue(t *testing.T) {
	env := setupTestApp(t)

	code, body := env.do(t, "POST", "/api/tasks/", map[string]any{
		"description": "late",
		"status":      "NOT_DONE",
		"dueDateTime": testNow.Add(-time.Minute).Format(time.RFC3339),
	})
	assert.Equal(t, fiber.StatusBadRequest, code)
	errResp := decode[ErrorResponse](t, body)
	assert.Equal(t, "validation_error", errResp.Error)
	assert.Equal(t, "The task cannot be NOT_DONE with an expired due date and time.", errResp.Message)
}

func TestAPI_InvalidInput(t *testing.T) {
	env := setupTestApp(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"non numeric id", "GET", "/api/tasks/abc", nil, fiber.StatusBadRequest},
		{"zero id", "DELETE", "/api/tasks/0", nil, fiber.StatusBadRequest},
		{"missing task", "GET", "/api/tasks/42", nil, fiber.StatusNotFound},
		{"unknown status filter", "GET", "/api/tasks/?status=LATER", nil, fiber.StatusBadRequest},
		{"blank description", "POST", "/api/tasks/", map[string]any{"description": "", "status": "NOT_DONE"}, fiber.StatusBadRequest},
		{"past due requested", "POST", "/api/tasks/", map[string]any{"description": "x", "status": "PAST_DUE"}, fiber.StatusBadRequest},
		{"bad time format", "POST", "/api/tasks/", map[string]any{"description": "x", "status": "NOT_DONE", "dueDateTime": "tomorrow"}, fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code, string(body))
		})
	}
}

func TestAPI_GetCorrectsOverdueTask(t *testing.T) {
	env := setupTestApp(t)
	seeded := env.seed(t, domain.StatusNotDone, ptr(testNow.Add(-time.Minute)))

	code, body := env.do(t, "GET", "/api/tasks/1", nil)
	require.Equal(t, fiber.StatusOK, code)
	got := decode[domain.Task](t, body)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, domain.StatusPastDue, got.Status)
}

func TestAPI_List(t *testing.T) {
	env := setupTestApp(t)
	env.seed(t, domain.StatusNotDone, ptr(testNow.Add(-time.Minute)))
	env.seed(t, domain.StatusNotDone, nil)
	env.seed(t, domain.StatusDone, nil)

	code, body := env.do(t, "GET", "/api/tasks/?page=0&size=2", nil)
	require.Equal(t, fiber.StatusOK, code)
	page := decode[domain.Page](t, body)
	assert.Equal(t, int64(3), page.TotalElements)
	require.Len(t, page.Content, 2)
	assert.Equal(t, domain.StatusPastDue, page.Content[0].Status)

	code, body = env.do(t, "GET", "/api/tasks/?status=DONE", nil)
	require.Equal(t, fiber.StatusOK, code)
	page = decode[domain.Page](t, body)
	assert.Equal(t, int64(1), page.TotalElements)

	code, body = env.do(t, "GET", "/api/tasks/?page=9223372036854775807&size=2", nil)
	require.Equal(t, fiber.StatusOK, code, string(body))
	page = decode[domain.Page](t, body)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Empty(t, page.Content, "a page far past the end is empty, not the first page")
}

func TestAPI_UpdatePatchDelete(t *testing.T) {
	env := setupTestApp(t)
	env.seed(t, domain.StatusNotDone, nil)
	env.seed(t, domain.StatusDone, nil)

	code, body := env.do(t, "PUT", "/api/tasks/1", map[string]any{
		"description": "replaced",
		"status":      "NOT_DONE",
	})
	require.Equal(t, fiber.StatusOK, code, string(body))
	assert.Equal(t, "replaced", decode[domain.Task](t, body).Description)

	code, body = env.do(t, "PATCH", "/api/tasks/1", map[string]any{"status": "DONE"})
	require.Equal(t, fiber.StatusOK, code, string(body))
	patched := decode[domain.Task](t, body)
	assert.Equal(t, domain.StatusDone, patched.Status)
	assert.Equal(t, "replaced", patched.Description)

	code, body = env.do(t, "PUT", "/api/tasks/2", map[string]any{"description": "x", "status": "NOT_DONE"})
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "The task cannot be Done for this operation.", decode[ErrorResponse](t, body).Message)

	code, _ = env.do(t, "DELETE", "/api/tasks/2", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)

	env.seed(t, domain.StatusNotDone, nil)
	code, _ = env.do(t, "DELETE", "/api/tasks/3", nil)
	assert.Equal(t, fiber.StatusNoContent, code)

	code, _ = env.do(t, "DELETE", "/api/tasks/", nil)
	assert.Equal(t, fiber.StatusNoContent, code)

	code, body = env.do(t, "GET", "/api/tasks/", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Zero(t, decode[domain.Page](t, body).TotalElements)
}

func TestAPI_StatusSweep(t *testing.T) {
	env := setupTestApp(t)
	env.seed(t, domain.StatusNotDone, ptr(testNow.Add(-time.Minute)))
	env.seed(t, domain.StatusNotDone, ptr(testNow.Add(-2*time.Minute)))
	env.seed(t, domain.StatusNotDone, ptr(testNow.Add(time.Hour)))

	code, body := env.do(t, "POST", "/api/tasks/status-sweep", nil)
	require.Equal(t, fiber.StatusOK, code, string(body))
	res := decode[SweepResponse](t, body)
	assert.Equal(t, int64(2), res.Updated)
	assert.Equal(t, statusupdate.ModeQueryPatch, res.Mode)
	assert.NotEmpty(t, res.RunID)
}

func TestAPI_StatusSweepFailure(t *testing.T) {
	env := setupTestApp(t)
	env.mod.sweeper = failingSweeper{}
	env.app = env.mod.newApp()

	code, body := env.do(t, "POST", "/api/tasks/status-sweep", nil)
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Equal(t, "internal_error", decode[ErrorResponse](t, body).Error)
}

func TestAPI_Health(t *testing.T) {
	env := setupTestApp(t)
	env.mod.AddHealthCheck("store", staticHealth{Healthy: true, Message: "operational"})

	code, body := env.do(t, "GET", "/health", nil)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, body).Status)

	env.mod.AddHealthCheck("scheduler", staticHealth{Healthy: false, Message: "lock backend unavailable"})
	code, body = env.do(t, "GET", "/health", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", decode[HealthResponse](t, body).Status)
}

func TestAPIModule_Lifecycle(t *testing.T) {
	m := NewModule(0, nil, nil)
	assert.Equal(t, "api", m.Name())
	assert.Error(t, m.Start(context.Background()), "start requires a task service")
	assert.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.Health(context.Background()).Healthy)
}
