package domain

import "time"

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypePublishItem retries the upload of an approved queue item
	TaskTypePublishItem TaskType = "publish_item"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a background job to be processed by workers.
// The only task type today is the publish retry; the queue keeps approved
// items moving without re-triggering human approval.
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies what kind of task this is
	Type TaskType `json:"type"`

	// Payload contains task-specific data.
	// For publish_item: {"item_id": "..."}
	Payload map[string]string `json:"payload"`

	// Status is the current state of the task
	Status TaskStatus `json:"status"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum retry count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// StartedAt is when processing began (nil if not started)
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when processing finished (nil if not complete)
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for backoff delays)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewPublishTask creates a retry task for an approved item.
func NewPublishTask(itemID string, maxAttempts int) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         TaskTypePublishItem,
		Payload:      map[string]string{"item_id": itemID},
		Status:       TaskStatusPending,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// CanRetry reports whether the task has attempts remaining.
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}
