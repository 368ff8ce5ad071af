package inbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/inbox"
)

func newTask(queue string, scheduledAt time.Time) *inbox.Task {
	return &inbox.Task{
		ID:          uuid.New(),
		Queue:       queue,
		Name:        "task",
		Payload:     []byte(`{}`),
		Status:      inbox.TaskStatusPending,
		MaxAttempts: 3,
		ScheduledAt: scheduledAt,
		CreatedAt:   scheduledAt,
	}
}

func TestMemoryStorage_ClaimOrderAndQueues(t *testing.T) {
	t.Parallel()

	s := inbox.NewMemoryStorage()
	ctx := context.Background()
	worker := uuid.New()
	now := time.Now()

	older := newTask("default", now.Add(-2*time.Second))
	newer := newTask("default", now.Add(-time.Second))
	future := newTask("default", now.Add(time.Hour))
	other := newTask("other", now.Add(-time.Hour))
	for _, task := range []*inbox.Task{newer, older, future, other} {
		_, err := s.CreateTask(ctx, task)
		require.NoError(t, err)
	}

	got, err := s.ClaimTask(ctx, worker, []string{"default"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
	assert.Equal(t, inbox.TaskStatusProcessing, got.Status)
	require.NotNil(t, got.LockedBy)
	assert.Equal(t, worker, *got.LockedBy)

	got, err = s.ClaimTask(ctx, worker, []string{"default"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	_, err = s.ClaimTask(ctx, worker, []string{"default"}, time.Minute)
	assert.ErrorIs(t, err, inbox.ErrNoTaskToClaim)
}

func TestMemoryStorage_ExpiredLockIsReclaimed(t *testing.T) {
	t.Parallel()

	s := inbox.NewMemoryStorage()
	ctx := context.Background()
	task := newTask("default", time.Now().Add(-time.Second))
	_, err := s.CreateTask(ctx, task)
	require.NoError(t, err)

	_, err = s.ClaimTask(ctx, uuid.New(), []string{"default"}, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	got, err := s.ClaimTask(ctx, uuid.New(), []string{"default"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}

func TestMemoryStorage_RetryCompleteAndDLQ(t *testing.T) {
	t.Parallel()

	s := inbox.NewMemoryStorage()
	ctx := context.Background()
	task := newTask("default", time.Now().Add(-time.Second))
	task.DedupeKey = "k1"
	_, err := s.CreateTask(ctx, task)
	require.NoError(t, err)

	assert.ErrorIs(t, s.CompleteTask(ctx, task.ID), inbox.ErrTaskNotClaimed)

	_, err = s.ClaimTask(ctx, uuid.New(), []string{"default"}, time.Minute)
	require.NoError(t, err)
	retryAt := time.Now().Add(time.Hour)
	require.NoError(t, s.RetryTask(ctx, task.ID, "boom", retryAt))

	got, ok := s.Task(task.ID)
	require.True(t, ok)
	assert.Equal(t, int16(1), got.Attempts)
	assert.Equal(t, "boom", got.LastError)
	assert.Equal(t, inbox.TaskStatusPending, got.Status)
	assert.True(t, retryAt.Equal(got.ScheduledAt))

	require.NoError(t, s.MoveToDLQ(ctx, task.ID, "gave up"))
	_, ok = s.Task(task.ID)
	assert.False(t, ok)

	dead := s.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, task.ID, dead[0].TaskID)
	assert.Equal(t, "gave up", dead[0].Error)
	assert.Equal(t, int16(2), dead[0].Attempts)

	// The dedupe key is released so a redelivery can be processed again.
	created, err := s.CreateTask(ctx, newTaskWithKey("k1"))
	require.NoError(t, err)
	assert.True(t, created)

	assert.ErrorIs(t, s.MoveToDLQ(ctx, uuid.New(), "x"), inbox.ErrTaskNotFound)
}

func newTaskWithKey(key string) *inbox.Task {
	t := newTask("default", time.Now())
	t.DedupeKey = key
	return t
}
