package task

import (
	domain "github.com/example/task-lifecycle/domain/task"
)

// GetTaskRequest is the payload of services.task.get.
type GetTaskRequest struct {
	ID int64 `json:"id"`
}

// ListTasksRequest is the payload of services.task.list. An empty Status
// lists every task.
type ListTasksRequest struct {
	Status domain.Status `json:"status,omitempty"`
	Page   int           `json:"page"`
	Size   int           `json:"size"`
}

// ListTasksResponse is one page of tasks.
type ListTasksResponse struct {
	Tasks         []*domain.Task `json:"tasks"`
	TotalElements int64          `json:"totalElements"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
}

// UpdateTaskRequest is the payload of services.task.update.
type UpdateTaskRequest struct {
	ID int64 `json:"id"`
	UpdateRequest
}

// PatchTaskRequest is the payload of services.task.patch.
type PatchTaskRequest struct {
	ID int64 `json:"id"`
	PatchRequest
}

// DeleteTaskRequest is the payload of services.task.delete.
type DeleteTaskRequest struct {
	ID int64 `json:"id"`
}

// DeleteAllTasksRequest is the payload of services.task.delete-all.
type DeleteAllTasksRequest struct{}

// DeleteTaskResponse reports a deletion.
type DeleteTaskResponse struct {
	Deleted bool `json:"deleted"`
}

// NewListTasksResponse converts a page for transport.
func NewListTasksResponse(page *domain.Page) ListTasksResponse {
	return ListTasksResponse{
		Tasks:         page.Content,
		TotalElements: page.TotalElements,
		Page:          page.Number,
		Size:          page.Size,
	}
}
