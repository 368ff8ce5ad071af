package inbox_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/inbox"
)

type workerFixture struct {
	storage *inbox.MemoryStorage
	enq     *inbox.Enqueuer
	worker  *inbox.Worker
}

func newWorkerFixture(t *testing.T, handlers ...inbox.Handler) workerFixture {
	t.Helper()

	storage := inbox.NewMemoryStorage()
	enq, err := inbox.NewEnqueuer(storage, inbox.WithDefaultMaxAttempts(3))
	require.NoError(t, err)

	w, err := inbox.NewWorker(storage,
		inbox.WithPullInterval(5*time.Millisecond),
		inbox.WithBackoff(time.Millisecond, 5*time.Millisecond),
		inbox.WithMaxConcurrentTasks(2),
	)
	require.NoError(t, err)
	w.RegisterHandlers(handlers...)

	return workerFixture{storage: storage, enq: enq, worker: w}
}

func (f workerFixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	run := f.worker.Run(ctx)
	go func() { done <- run() }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func TestWorker_Lifecycle(t *testing.T) {
	t.Parallel()

	_, err := inbox.NewWorker(nil)
	assert.ErrorIs(t, err, inbox.ErrRepositoryNil)

	w, err := inbox.NewWorker(inbox.NewMemoryStorage())
	require.NoError(t, err)
	assert.ErrorIs(t, w.Start(context.Background()), inbox.ErrNoHandlers)
	assert.ErrorIs(t, w.Stop(), inbox.ErrNotStarted)

	w.RegisterHandlers(inbox.NewTaskHandler(func(context.Context, testPayload) error { return nil }))
	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), inbox.ErrAlreadyStarted)
	require.NoError(t, w.Stop())
}

func TestWorker_ProcessesTask(t *testing.T) {
	t.Parallel()

	got := make(chan testPayload, 1)
	f := newWorkerFixture(t, inbox.NewTaskHandler(func(_ context.Context, p testPayload) error {
		got <- p
		return nil
	}))
	f.start(t)

	_, err := f.enq.Enqueue(context.Background(), testPayload{Message: "hello", Value: 1})
	require.NoError(t, err)

	select {
	case p := <-got:
		assert.Equal(t, "hello", p.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed")
	}

	assert.Eventually(t, func() bool {
		return len(f.storage.Tasks(inbox.TaskStatusCompleted)) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	f := newWorkerFixture(t, inbox.NewTaskHandler(func(context.Context, testPayload) error {
		if calls.Add(1) < 3 {
			return errors.New("provider unavailable")
		}
		return nil
	}))
	f.start(t)

	_, err := f.enq.Enqueue(context.Background(), testPayload{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		done := f.storage.Tasks(inbox.TaskStatusCompleted)
		return len(done) == 1 && done[0].Attempts == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, f.storage.DeadLetters())
}

func TestWorker_DeadLettersAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	f := newWorkerFixture(t, inbox.NewTaskHandler(func(context.Context, testPayload) error {
		calls.Add(1)
		return errors.New("still failing")
	}))
	f.start(t)

	_, err := f.enq.Enqueue(context.Background(), testPayload{}, inbox.WithDedupeKey("card:evt_9"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(f.storage.DeadLetters()) == 1 }, 2*time.Second, 5*time.Millisecond)

	dead := f.storage.DeadLetters()[0]
	assert.Equal(t, "still failing", dead.Error)
	assert.Equal(t, int16(3), dead.Attempts)
	assert.Equal(t, "card:evt_9", dead.DedupeKey)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorker_PermanentErrorSkipsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	f := newWorkerFixture(t, inbox.NewTaskHandler(func(context.Context, testPayload) error {
		calls.Add(1)
		return inbox.Permanent(errors.New("rail conflict"))
	}))
	f.start(t)

	_, err := f.enq.Enqueue(context.Background(), testPayload{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(f.storage.DeadLetters()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int16(1), f.storage.DeadLetters()[0].Attempts)
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	f := newWorkerFixture(t, inbox.NewTaskHandler(func(context.Context, testPayload) error {
		if calls.Add(1) == 1 {
			panic("nil map")
		}
		return nil
	}))
	f.start(t)

	_, err := f.enq.Enqueue(context.Background(), testPayload{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(f.storage.Tasks(inbox.TaskStatusCompleted)) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_MissingHandlerDeadLetters(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, inbox.NewNamedTaskHandler("known", func(context.Context, testPayload) error { return nil }))
	f.start(t)

	_, err := f.enq.Enqueue(context.Background(), testPayload{}, inbox.WithTaskName("unknown"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(f.storage.DeadLetters()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, f.storage.DeadLetters()[0].Error, "unknown")
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	base := errors.New("bad payload")
	err := inbox.Permanent(base)
	assert.True(t, inbox.IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, inbox.IsPermanent(base))
	assert.NoError(t, inbox.Permanent(nil))
}
