// Package notification records task lifecycle events received over the
// mono event bus.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/task-lifecycle/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// DefaultCapacity bounds the in-memory notification log.
const DefaultCapacity = 1000

// NotificationLog is one recorded notification.
type NotificationLog struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationModule consumes task and scheduler events.
type NotificationModule struct {
	notifications []NotificationLog
	capacity      int
	mu            sync.RWMutex
	logger        types.Logger
}

var _ mono.Module = (*NotificationModule)(nil)
var _ mono.EventConsumerModule = (*NotificationModule)(nil)

// NewModule creates a NotificationModule keeping at most capacity entries.
func NewModule(capacity int, logger types.Logger) *NotificationModule {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &NotificationModule{
		notifications: make([]NotificationLog, 0),
		capacity:      capacity,
		logger:        logger.WithModule("notification"),
	}
}

func (m *NotificationModule) Name() string {
	return "notification"
}

func (m *NotificationModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskCreatedV1, m.handleTaskCreated, m); err != nil {
		return fmt.Errorf("failed to register TaskCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskDeletedV1, m.handleTaskDeleted, m); err != nil {
		return fmt.Errorf("failed to register TaskDeleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskPastDueV1, m.handleTaskPastDue, m); err != nil {
		return fmt.Errorf("failed to register TaskPastDue consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.StatusSweepCompletedV1, m.handleSweepCompleted, m); err != nil {
		return fmt.Errorf("failed to register StatusSweepCompleted consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", "TaskCreated, TaskDeleted, TaskPastDue, StatusSweepCompleted")
	return nil
}

func (m *NotificationModule) handleTaskCreated(_ context.Context, event events.TaskCreatedEvent, _ *mono.Msg) error {
	m.logNotification(fmt.Sprint(event.TaskID), "task_created",
		fmt.Sprintf("New task %d '%s' created as %s", event.TaskID, event.Description, event.Status))
	return nil
}

func (m *NotificationModule) handleTaskDeleted(_ context.Context, event events.TaskDeletedEvent, _ *mono.Msg) error {
	if event.All {
		m.logNotification("*", "tasks_cleared", "All tasks deleted")
		return nil
	}
	m.logNotification(fmt.Sprint(event.TaskID), "task_deleted", fmt.Sprintf("Task %d deleted", event.TaskID))
	return nil
}

func (m *NotificationModule) handleTaskPastDue(_ context.Context, event events.TaskPastDueEvent, _ *mono.Msg) error {
	m.logNotification(fmt.Sprint(event.TaskID), "task_past_due",
		fmt.Sprintf("Task %d is past due since %s", event.TaskID, event.DueDateTime.Format(time.RFC3339)))
	return nil
}

func (m *NotificationModule) handleSweepCompleted(_ context.Context, event events.StatusSweepCompletedEvent, _ *mono.Msg) error {
	if event.Updated == 0 {
		return nil
	}
	m.logNotification(event.RunID, "status_sweep",
		fmt.Sprintf("Status sweep (%s) marked %d task(s) PAST_DUE", event.Mode, event.Updated))
	return nil
}

func (m *NotificationModule) logNotification(id, notificationType, message string) {
	m.logger.Info(message, "type", notificationType)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.notifications) >= m.capacity {
		m.notifications = m.notifications[1:]
	}
	m.notifications = append(m.notifications, NotificationLog{
		ID:        id,
		Type:      notificationType,
		Message:   message,
		Channel:   "event",
		Timestamp: time.Now(),
	})
}

// GetNotifications returns a copy of the recorded notifications, oldest first.
func (m *NotificationModule) GetNotifications() []NotificationLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]NotificationLog, len(m.notifications))
	copy(result, m.notifications)
	return result
}

func (m *NotificationModule) Start(_ context.Context) error {
	m.logger.Info("Module started - listening for task events")
	return nil
}

func (m *NotificationModule) Stop(_ context.Context) error {
	m.logger.Info("Module stopped")
	return nil
}
