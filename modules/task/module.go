// Package task exposes the task use cases as a mono module: request-reply
// services over the embedded NATS bus plus lifecycle events.
package task

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/task-lifecycle/domain/task"
	"github.com/example/task-lifecycle/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// TaskModule provides task management services.
type TaskModule struct {
	service  *Service
	eventBus mono.EventBus
	logger   types.Logger
}

var _ mono.Module = (*TaskModule)(nil)
var _ mono.ServiceProviderModule = (*TaskModule)(nil)
var _ mono.EventEmitterModule = (*TaskModule)(nil)
var _ Notifier = (*TaskModule)(nil)

// NewModule creates a TaskModule and registers it as the service notifier.
func NewModule(service *Service, logger types.Logger) *TaskModule {
	m := &TaskModule{
		service: service,
		logger:  logger.WithModule("task"),
	}
	service.SetNotifier(m)
	return m
}

func (m *TaskModule) Name() string {
	return "task"
}

// Service returns the underlying use cases.
func (m *TaskModule) Service() *Service {
	return m.service
}

func (m *TaskModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

func (m *TaskModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TaskCreatedV1.ToBase(),
		events.TaskDeletedV1.ToBase(),
		events.TaskPastDueV1.ToBase(),
	}
}

// RegisterServices registers services.task.{create,get,list,update,patch,delete,delete-all}.
func (m *TaskModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "create", json.Unmarshal, json.Marshal, m.createTask,
	); err != nil {
		return fmt.Errorf("failed to register create service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "get", json.Unmarshal, json.Marshal, m.getTask,
	); err != nil {
		return fmt.Errorf("failed to register get service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "list", json.Unmarshal, json.Marshal, m.listTasks,
	); err != nil {
		return fmt.Errorf("failed to register list service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "update", json.Unmarshal, json.Marshal, m.updateTask,
	); err != nil {
		return fmt.Errorf("failed to register update service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "patch", json.Unmarshal, json.Marshal, m.patchTask,
	); err != nil {
		return fmt.Errorf("failed to register patch service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "delete", json.Unmarshal, json.Marshal, m.deleteTask,
	); err != nil {
		return fmt.Errorf("failed to register delete service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "delete-all", json.Unmarshal, json.Marshal, m.deleteAllTasks,
	); err != nil {
		return fmt.Errorf("failed to register delete-all service: %w", err)
	}

	m.logger.Info("Registered services", "services", "services.task.{create,get,list,update,patch,delete,delete-all}")
	return nil
}

func (m *TaskModule) Start(_ context.Context) error {
	if m.eventBus == nil {
		m.logger.Warn("Event bus not set, events will not be published")
	}
	m.logger.Info("Module started")
	return nil
}

func (m *TaskModule) Stop(_ context.Context) error {
	m.logger.Info("Module stopped")
	return nil
}

func (m *TaskModule) createTask(ctx context.Context, req CreateRequest, _ *mono.Msg) (domain.Task, error) {
	t, err := m.service.Create(ctx, req)
	if err != nil {
		return domain.Task{}, err
	}
	return *t, nil
}

func (m *TaskModule) getTask(ctx context.Context, req GetTaskRequest, _ *mono.Msg) (domain.Task, error) {
	t, err := m.service.Get(ctx, req.ID)
	if err != nil {
		return domain.Task{}, err
	}
	return *t, nil
}

func (m *TaskModule) listTasks(ctx context.Context, req ListTasksRequest, _ *mono.Msg) (ListTasksResponse, error) {
	p := domain.Pageable{Page: req.Page, Size: req.Size}

	var page *domain.Page
	var err error
	if req.Status != "" {
		page, err = m.service.ListByStatus(ctx, p, req.Status)
	} else {
		page, err = m.service.List(ctx, p)
	}
	if err != nil {
		return ListTasksResponse{}, err
	}
	return NewListTasksResponse(page), nil
}

func (m *TaskModule) updateTask(ctx context.Context, req UpdateTaskRequest, _ *mono.Msg) (domain.Task, error) {
	t, err := m.service.Update(ctx, req.ID, req.UpdateRequest)
	if err != nil {
		return domain.Task{}, err
	}
	return *t, nil
}

func (m *TaskModule) patchTask(ctx context.Context, req PatchTaskRequest, _ *mono.Msg) (domain.Task, error) {
	t, err := m.service.Patch(ctx, req.ID, req.PatchRequest)
	if err != nil {
		return domain.Task{}, err
	}
	return *t, nil
}

func (m *TaskModule) deleteTask(ctx context.Context, req DeleteTaskRequest, _ *mono.Msg) (DeleteTaskResponse, error) {
	if err := m.service.Delete(ctx, req.ID); err != nil {
		return DeleteTaskResponse{Deleted: false}, err
	}
	return DeleteTaskResponse{Deleted: true}, nil
}

func (m *TaskModule) deleteAllTasks(ctx context.Context, _ DeleteAllTasksRequest, _ *mono.Msg) (DeleteTaskResponse, error) {
	if err := m.service.DeleteAll(ctx); err != nil {
		return DeleteTaskResponse{Deleted: false}, err
	}
	return DeleteTaskResponse{Deleted: true}, nil
}

// TaskCreated publishes events.TaskCreatedV1. Publishing is best-effort.
func (m *TaskModule) TaskCreated(_ context.Context, t *domain.Task) {
	if m.eventBus == nil {
		return
	}
	event := events.TaskCreatedEvent{
		TaskID:      t.ID,
		Description: t.Description,
		Status:      string(t.Status),
		DueDateTime: t.DueDateTime,
		CreatedAt:   t.CreationDateTime,
	}
	if err := events.TaskCreatedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.WithError(err).Warn("Failed to publish TaskCreated event", "task_id", t.ID)
	}
}

// TaskDeleted publishes events.TaskDeletedV1.
func (m *TaskModule) TaskDeleted(_ context.Context, id int64, all bool) {
	if m.eventBus == nil {
		return
	}
	event := events.TaskDeletedEvent{
		TaskID:    id,
		All:       all,
		DeletedAt: m.service.clock(),
	}
	if err := events.TaskDeletedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.WithError(err).Warn("Failed to publish TaskDeleted event", "task_id", id)
	}
}

// TaskPastDue publishes events.TaskPastDueV1.
func (m *TaskModule) TaskPastDue(_ context.Context, t *domain.Task) {
	if m.eventBus == nil || t.DueDateTime == nil {
		return
	}
	event := events.TaskPastDueEvent{
		TaskID:      t.ID,
		DueDateTime: *t.DueDateTime,
		DetectedAt:  m.service.clock(),
	}
	if err := events.TaskPastDueV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.WithError(err).Warn("Failed to publish TaskPastDue event", "task_id", t.ID)
	}
}
