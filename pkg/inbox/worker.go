package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/metrics"
)

// WorkerRepository defines the storage operations the worker needs.
type WorkerRepository interface {
	// ClaimTask atomically claims the next due task, including tasks whose
	// lock expired because their worker died.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks the task as completed.
	CompleteTask(ctx context.Context, taskID uuid.UUID) error

	// RetryTask records the failure, increments attempts and reschedules the task.
	RetryTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error

	// MoveToDLQ moves the task to the dead letter queue.
	MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string) error
}

// Worker processes tasks from the inbox.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        2 * time.Minute,
		maxConcurrentTasks: 1,
		baseBackoff:        5 * time.Second,
		maxBackoff:         30 * time.Minute,
		logger:             logger.Discard(),
	}
	for _, opt := range opts {
		opt(options)
	}

	id := uuid.New()
	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     id,
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		baseBackoff:  options.baseBackoff,
		maxBackoff:   options.maxBackoff,
		logger:       options.logger.With(logger.Component("inbox"), slog.String("worker_id", id.String())),
		metrics:      options.metrics,
		now:          time.Now,
	}, nil
}

// RegisterHandlers registers task handlers. A later handler with the same
// name replaces the earlier one.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Start begins processing tasks in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels polling and waits for in-flight tasks.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.logger.Info("worker stopping, waiting for active tasks")
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

// Run returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()
					w.drain()
				}()
			default:
			}
		}
	}
}

// drain processes due tasks until the queue is empty or the worker stops.
func (w *Worker) drain() {
	for w.ctx.Err() == nil {
		processed, err := w.pullAndProcess()
		if err != nil && !errors.Is(err, ErrHandlerNotFound) {
			w.logger.Error("failed to process task", logger.Error(err))
		}
		if !processed {
			return
		}
	}
}

// pullAndProcess claims one task and runs it. It reports whether a task was claimed.
func (w *Worker) pullAndProcess() (bool, error) {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) || errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, errors.Join(ErrFailedToClaimTask, err)
	}
	if task == nil {
		return false, nil
	}
	return true, w.processTask(task)
}

func (w *Worker) processTask(task *Task) (retErr error) {
	start := w.now()
	log := w.logger.With(
		logger.TaskID(task.ID.String()),
		slog.String("task_name", task.Name),
		slog.String("queue", task.Queue),
	)

	// Tasks finish even when the worker is stopping; the lock bounds them.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), w.lockTimeout)
	defer cancel()
	ctx = logger.WithScope(ctx, logger.TaskID(task.ID.String()), slog.String("task_name", task.Name))

	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", slog.Any("panic", r))
			retErr = w.handleTaskFailure(ctx, log, task, fmt.Errorf("panic in handler: %v", r))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.Name]
	w.mu.RUnlock()
	if !ok {
		return w.handleMissingHandler(ctx, log, task)
	}

	if err := handler.Handle(ctx, task.Payload); err != nil {
		return w.handleTaskFailure(ctx, log, task, err)
	}

	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return errors.Join(ErrFailedToUpdateTaskStatus, err)
	}
	w.metrics.InboxTask(task.Name, "completed")
	log.Debug("task completed", slog.Duration("duration", w.now().Sub(start)))
	return nil
}

// handleMissingHandler dead-letters the task right away: retries cannot
// succeed until a handler is deployed.
func (w *Worker) handleMissingHandler(ctx context.Context, log *slog.Logger, task *Task) error {
	log.Error("no handler registered for task")
	if err := w.repo.MoveToDLQ(ctx, task.ID, ErrHandlerNotFound.Error()+": "+task.Name); err != nil {
		return errors.Join(ErrFailedToMoveToDLQ, err)
	}
	w.metrics.InboxTask(task.Name, "dead_letter")
	return ErrHandlerNotFound
}

func (w *Worker) handleTaskFailure(ctx context.Context, log *slog.Logger, task *Task, execErr error) error {
	attempt := task.Attempts + 1
	log = log.With(logger.RetryCount(int(attempt)), slog.Int("max_attempts", int(task.MaxAttempts)), logger.Error(execErr))

	if IsPermanent(execErr) || attempt >= task.MaxAttempts {
		if err := w.repo.MoveToDLQ(ctx, task.ID, execErr.Error()); err != nil {
			return errors.Join(ErrFailedToMoveToDLQ, err)
		}
		w.metrics.InboxTask(task.Name, "dead_letter")
		log.Error("task moved to dead letter queue")
		return nil
	}

	retryAt := w.now().Add(w.backoff(attempt))
	if err := w.repo.RetryTask(ctx, task.ID, execErr.Error(), retryAt); err != nil {
		return errors.Join(ErrFailedToUpdateTaskStatus, err)
	}
	w.metrics.InboxTask(task.Name, "retry")
	log.Warn("task failed, scheduled for retry", slog.Time("retry_at", retryAt))
	return nil
}

func (w *Worker) backoff(attempt int16) time.Duration {
	d := w.baseBackoff
	for i := int16(1); i < attempt; i++ {
		d *= 2
		if d >= w.maxBackoff {
			return w.maxBackoff
		}
	}
	return min(d, w.maxBackoff)
}
