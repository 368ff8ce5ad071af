package inbox

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/metrics"
)

// WorkerOption is a functional option for configuring a worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues             []string
	pullInterval       time.Duration
	lockTimeout        time.Duration
	maxConcurrentTasks int
	baseBackoff        time.Duration
	maxBackoff         time.Duration
	logger             *slog.Logger
	metrics            *metrics.Metrics
}

// WithQueues sets which queues the worker pulls from.
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithPullInterval sets how often idle slots poll for new tasks.
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets how long a claimed task stays invisible to other
// workers. It also bounds a single handler run.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithMaxConcurrentTasks sets the maximum number of concurrent tasks.
func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

// WithBackoff sets the retry delay: base doubled per failed attempt, capped at max.
func WithBackoff(base, max time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if base > 0 {
			o.baseBackoff = base
		}
		if max >= o.baseBackoff {
			o.maxBackoff = max
		}
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkerMetrics records task outcomes.
func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(o *workerOptions) { o.metrics = m }
}
