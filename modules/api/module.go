// Package api exposes the task service over HTTP with Fiber.
package api

import (
	"context"
	"fmt"
	"log"

	"github.com/example/task-lifecycle/modules/statusupdate"
	"github.com/example/task-lifecycle/modules/task"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Sweeper runs one bulk status update.
type Sweeper interface {
	UpdateStatusAll(ctx context.Context) (statusupdate.Result, error)
}

// HealthChecker is any component that reports its health.
type HealthChecker interface {
	Health(ctx context.Context) mono.HealthStatus
}

// APIModule serves the REST API.
type APIModule struct {
	app     *fiber.App
	port    int
	service *task.Service
	sweeper Sweeper
	checks  map[string]HealthChecker
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates an APIModule listening on port.
func NewModule(port int, service *task.Service, sweeper Sweeper) *APIModule {
	return &APIModule{
		port:    port,
		service: service,
		sweeper: sweeper,
		checks:  make(map[string]HealthChecker),
	}
}

// AddHealthCheck includes a component in GET /health.
func (m *APIModule) AddHealthCheck(name string, c HealthChecker) {
	m.checks[name] = c
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// newApp builds the Fiber application with all routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
	})
	app.Use(recover.New())
	m.setupRoutes(app)
	return app
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.service == nil {
		return fmt.Errorf("task service not set")
	}

	m.app = m.newApp()

	addr := fmt.Sprintf(":%d", m.port)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()

	log.Printf("[api] HTTP server started on %s", addr)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	return m.app.ShutdownWithContext(ctx)
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port": m.port,
		},
	}
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
