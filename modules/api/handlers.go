package api

import (
	"errors"
	"strconv"

	domain "github.com/example/task-lifecycle/domain/task"
	"github.com/example/task-lifecycle/modules/task"
	"github.com/gofiber/fiber/v2"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)

	tasks := app.Group("/api/tasks")
	tasks.Get("/", m.listTasks)
	tasks.Post("/", m.createTask)
	tasks.Delete("/", m.deleteAllTasks)
	tasks.Post("/status-sweep", m.statusSweep)
	tasks.Get("/:id", m.getTask)
	tasks.Put("/:id", m.updateTask)
	tasks.Patch("/:id", m.patchTask)
	tasks.Delete("/:id", m.deleteTask)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	status := "healthy"
	details := map[string]any{}
	for name, check := range m.checks {
		h := check.Health(c.UserContext())
		details[name] = map[string]any{
			"healthy": h.Healthy,
			"message": h.Message,
		}
		if !h.Healthy {
			status = "unhealthy"
		}
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(HealthResponse{Status: status, Details: details})
}

// listTasks handles GET /api/tasks?status=&page=&size=.
func (m *APIModule) listTasks(c *fiber.Ctx) error {
	p := domain.Pageable{
		Page: c.QueryInt("page", 0),
		Size: c.QueryInt("size", domain.DefaultPageSize),
	}

	var page *domain.Page
	var err error
	if status := c.Query("status"); status != "" {
		page, err = m.service.ListByStatus(c.UserContext(), p, domain.Status(status))
	} else {
		page, err = m.service.List(c.UserContext(), p)
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(page)
}

// getTask handles GET /api/tasks/:id.
func (m *APIModule) getTask(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	t, err := m.service.Get(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(t)
}

// createTask handles POST /api/tasks.
func (m *APIModule) createTask(c *fiber.Ctx) error {
	var req task.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	t, err := m.service.Create(c.UserContext(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// updateTask handles PUT /api/tasks/:id.
func (m *APIModule) updateTask(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	var req task.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	t, err := m.service.Update(c.UserContext(), id, req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(t)
}

// patchTask handles PATCH /api/tasks/:id.
func (m *APIModule) patchTask(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	var req task.PatchRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	t, err := m.service.Patch(c.UserContext(), id, req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(t)
}

// deleteTask handles DELETE /api/tasks/:id.
func (m *APIModule) deleteTask(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	if err := m.service.Delete(c.UserContext(), id); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// deleteAllTasks handles DELETE /api/tasks.
func (m *APIModule) deleteAllTasks(c *fiber.Ctx) error {
	if err := m.service.DeleteAll(c.UserContext()); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// statusSweep handles POST /api/tasks/status-sweep.
func (m *APIModule) statusSweep(c *fiber.Ctx) error {
	if m.sweeper == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "unavailable",
			Message: "Status updater not configured",
		})
	}

	res, err := m.sweeper.UpdateStatusAll(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(SweepResponse{Result: res, DurationMs: res.Duration.Milliseconds()})
}

func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func invalidID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "validation_error",
		Message: "Task ID must be a positive integer",
	})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request body",
	})
}

// errorResponse maps domain errors to HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: ve.Reason,
		})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Task not found",
		})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "conflict",
			Message: "Concurrent update, retry the request",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
