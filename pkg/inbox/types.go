package inbox

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified.
const DefaultQueueName = "default"

// DefaultMaxAttempts is how many times a task runs before it is dead-lettered.
const DefaultMaxAttempts int16 = 5

// TaskStatus represents the status of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Task is a unit of deferred work.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	Name        string     `json:"name"`
	DedupeKey   string     `json:"dedupe_key,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Attempts    int16      `json:"attempts"`
	MaxAttempts int16      `json:"max_attempts"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// DeadLetter is a task that exhausted its attempts or failed permanently.
// It is kept for manual inspection and requeueing.
type DeadLetter struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Queue     string    `json:"queue"`
	Name      string    `json:"name"`
	DedupeKey string    `json:"dedupe_key,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	Error     string    `json:"error"`
	Attempts  int16     `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}
