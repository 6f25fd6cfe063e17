package domain

import (
	"context"
	"time"
)

// ExecutionState tracks a run through the executor's lifecycle.
type ExecutionState string

const (
	StateIdle      ExecutionState = "idle"
	StatePreparing ExecutionState = "preparing"
	StateRunning   ExecutionState = "running"
	StateCompleted ExecutionState = "completed"
	StateFailed    ExecutionState = "failed"
	StateTimedOut  ExecutionState = "timed_out"
)

// ExecutionRequest is one code submission. InlineRows, when non-empty, takes
// precedence over the store's active projection; FileName is advisory only.
type ExecutionRequest struct {
	Code       string           `json:"code"`
	FileName   string           `json:"fileName"`
	InlineRows []map[string]any `json:"fileData,omitempty"`
}

// ExecutionResult is the structured outcome of one run. Output may be
// partially populated even on failure: whatever was printed before the
// failure point is preserved.
type ExecutionResult struct {
	Success      bool            `json:"success"`
	State        ExecutionState  `json:"state"`
	Output       string          `json:"output"`
	Err          *Error          `json:"error,omitempty"`
	Elapsed      time.Duration   `json:"-"`
	PeakMemoryMB float64         `json:"memory_used_mb"`
	Libraries    map[string]bool `json:"libraries,omitempty"`
}

// CodeRunner executes one normalized code submission against the bound
// dataset under resource ceilings. Implementations never leak an
// unclassified failure: every error path maps into ExecutionResult.Err.
type CodeRunner interface {
	Execute(ctx context.Context, req ExecutionRequest) ExecutionResult
}
