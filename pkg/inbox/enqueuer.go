package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new tasks. CreateTask reports created=false,
// without error, when a task with the same dedupe key already exists.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) (bool, error)
}

// Enqueuer adds tasks to the inbox.
type Enqueuer struct {
	repo         EnqueuerRepository
	defaultQueue string
	maxAttempts  int16
	now          func() time.Time
}

// EnqueuerOption configures an Enqueuer.
type EnqueuerOption func(*Enqueuer)

// WithDefaultQueue sets the queue used when Enqueue is not given one.
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(e *Enqueuer) {
		if queue != "" {
			e.defaultQueue = queue
		}
	}
}

// WithDefaultMaxAttempts sets the attempt budget for new tasks.
func WithDefaultMaxAttempts(n int16) EnqueuerOption {
	return func(e *Enqueuer) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{
		repo:         repo,
		defaultQueue: DefaultQueueName,
		maxAttempts:  DefaultMaxAttempts,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	name        string
	dedupeKey   string
	maxAttempts int16
	delay       time.Duration
}

// WithQueue routes the task to a named queue.
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithTaskName overrides the name derived from the payload type.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithDedupeKey makes Enqueue a no-op when a task with the same key exists.
func WithDedupeKey(key string) EnqueueOption {
	return func(o *enqueueOptions) { o.dedupeKey = key }
}

// WithMaxAttempts sets the attempt budget (1-20).
func WithMaxAttempts(n int16) EnqueueOption {
	return func(o *enqueueOptions) {
		if n > 0 && n <= 20 {
			o.maxAttempts = n
		}
	}
}

// WithDelay postpones the first attempt.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// Enqueue stores payload as a new task. It returns false when the dedupe key
// was already taken, which callers treat as success.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (bool, error) {
	if payload == nil {
		return false, ErrPayloadNil
	}

	o := &enqueueOptions{
		queue:       e.defaultQueue,
		maxAttempts: e.maxAttempts,
	}
	for _, opt := range opts {
		opt(o)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return false, errors.Join(ErrPayloadMarshal, fmt.Errorf("payload of type %T: %w", payload, err))
	}

	name := o.name
	if name == "" {
		name = qualifiedStructName(payload)
	}

	now := e.now()
	task := &Task{
		ID:          uuid.New(),
		Queue:       o.queue,
		Name:        name,
		DedupeKey:   o.dedupeKey,
		Payload:     data,
		Status:      TaskStatusPending,
		MaxAttempts: o.maxAttempts,
		ScheduledAt: now.Add(o.delay),
		CreatedAt:   now,
	}

	created, err := e.repo.CreateTask(ctx, task)
	if err != nil {
		return false, errors.Join(ErrTaskCreate, fmt.Errorf("task %q in queue %q: %w", task.Name, task.Queue, err))
	}
	return created, nil
}
