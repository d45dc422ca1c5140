package api

import "github.com/example/task-lifecycle/modules/statusupdate"

// ErrorResponse is the HTTP body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the HTTP response for the health check.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// SweepResponse reports a manually triggered bulk status update.
type SweepResponse struct {
	statusupdate.Result
	DurationMs int64 `json:"durationMs"`
}
