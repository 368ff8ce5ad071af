package inbox

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements the inbox repositories in memory for tests and
// single-process development.
type MemoryStorage struct {
	mu     sync.Mutex
	tasks  map[uuid.UUID]*Task
	dedupe map[string]uuid.UUID
	dlq    []DeadLetter
	now    func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks:  make(map[uuid.UUID]*Task),
		dedupe: make(map[string]uuid.UUID),
		now:    time.Now,
	}
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) (bool, error) {
	if task == nil {
		return false, errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if task.DedupeKey != "" {
		if _, ok := ms.dedupe[task.DedupeKey]; ok {
			return false, nil
		}
	}
	if _, ok := ms.tasks[task.ID]; ok {
		return false, errors.New("task with this id already exists")
	}

	t := *task
	ms.tasks[t.ID] = &t
	if t.DedupeKey != "" {
		ms.dedupe[t.DedupeKey] = t.ID
	}
	return true, nil
}

func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if !slices.Contains(queues, t.Queue) {
			continue
		}
		switch t.Status {
		case TaskStatusPending:
			if t.ScheduledAt.After(now) {
				continue
			}
		case TaskStatusProcessing:
			// Reclaim tasks whose worker died.
			if t.LockedUntil == nil || t.LockedUntil.After(now) {
				continue
			}
		default:
			continue
		}
		if best == nil || t.ScheduledAt.Before(best.ScheduledAt) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	t := *best
	return &t, nil
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.claimed(taskID)
	if err != nil {
		return err
	}
	now := ms.now()
	t.Status = TaskStatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) RetryTask(_ context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.claimed(taskID)
	if err != nil {
		return err
	}
	t.Attempts++
	t.LastError = errorMsg
	t.Status = TaskStatusPending
	t.ScheduledAt = retryAt
	t.LockedUntil = nil
	t.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	ms.dlq = append(ms.dlq, DeadLetter{
		ID:        uuid.New(),
		TaskID:    t.ID,
		Queue:     t.Queue,
		Name:      t.Name,
		DedupeKey: t.DedupeKey,
		Payload:   t.Payload,
		Error:     errorMsg,
		Attempts:  t.Attempts + 1,
		FailedAt:  ms.now(),
	})
	delete(ms.tasks, taskID)
	if t.DedupeKey != "" {
		delete(ms.dedupe, t.DedupeKey)
	}
	return nil
}

// Task returns a copy of a live task.
func (ms *MemoryStorage) Task(taskID uuid.UUID) (Task, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, ok := ms.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Tasks returns copies of the live tasks with the given status.
func (ms *MemoryStorage) Tasks(status TaskStatus) []Task {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []Task
	for _, t := range ms.tasks {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	return out
}

// DeadLetters returns the dead-lettered tasks in failure order.
func (ms *MemoryStorage) DeadLetters() []DeadLetter {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return slices.Clone(ms.dlq)
}

func (ms *MemoryStorage) claimed(taskID uuid.UUID) (*Task, error) {
	t, ok := ms.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.Status != TaskStatusProcessing {
		return nil, ErrTaskNotClaimed
	}
	return t, nil
}
