package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Result represents the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Entry is a single audit log row.
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	UserID     uuid.UUID      `json:"user_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Result     Result         `json:"result"`
	Error      string         `json:"error,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Validate checks required fields.
func (e *Entry) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidEntry)
	}
	if e.UserID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrInvalidEntry)
	}
	return nil
}

// EntryOption decorates an entry before it is stored.
type EntryOption func(*Entry)

// WithUser sets the user the action belongs to.
func WithUser(id uuid.UUID) EntryOption {
	return func(e *Entry) { e.UserID = id }
}

// WithResource names the object acted upon.
func WithResource(resource, id string) EntryOption {
	return func(e *Entry) {
		e.Resource = resource
		e.ResourceID = id
	}
}

// WithMetadata attaches a key/value pair.
func WithMetadata(key string, value any) EntryOption {
	return func(e *Entry) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// Storage persists entries.
type Storage interface {
	Store(ctx context.Context, entries ...Entry) error
}

// Logger creates entries.
type Logger interface {
	Log(ctx context.Context, action string, opts ...EntryOption) error
	LogError(ctx context.Context, action string, err error, opts ...EntryOption) error
}
