package models

import "time"

// RunStatus is the lifecycle state of a run record.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused" // waiting on a human-review interrupt
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Run is the durable record of one orchestrated research run.
type Run struct {
	ID            string     `json:"id"`
	ThreadID      string     `json:"thread_id"`
	UserID        string     `json:"user_id,omitempty"`
	Status        RunStatus  `json:"status"`
	Input         string     `json:"input"`
	Route         string     `json:"route,omitempty"`
	FinalReport   string     `json:"final_report,omitempty"`
	Error         string     `json:"error,omitempty"`
	IsCancelled   bool       `json:"is_cancelled"`
	RevisionCount int        `json:"revision_count"`
	ToolCallCount int        `json:"tool_call_count"`
	TriggerID     string     `json:"trigger_id,omitempty"` // set when launched by a trigger
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ImageAttachment is an inline image supplied with the run input.
type ImageAttachment struct {
	MIME string `json:"mime"`
	Data string `json:"data"` // base64
	Name string `json:"name,omitempty"`
}

// CreateRunRequest contains fields for submitting a new run.
type CreateRunRequest struct {
	Input    string            `json:"input"`
	Images   []ImageAttachment `json:"images,omitempty"`
	UserID   string            `json:"user_id,omitempty"`
	ThreadID string            `json:"thread_id,omitempty"` // empty = new thread
	Config   map[string]any    `json:"config,omitempty"`    // run-config overrides
}

// RunFilters contains filtering options for listing runs.
type RunFilters struct {
	Status RunStatus `json:"status,omitempty"`
	UserID string    `json:"user_id,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// RunListResponse contains a paginated run list.
type RunListResponse struct {
	Runs       []*Run `json:"runs"`
	TotalCount int    `json:"total_count"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}
