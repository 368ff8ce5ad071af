package inbox

import "time"

// Config holds worker settings.
type Config struct {
	PollInterval       time.Duration `env:"INBOX_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"INBOX_LOCK_TIMEOUT" envDefault:"2m"`
	MaxConcurrentTasks int           `env:"INBOX_MAX_CONCURRENT_TASKS" envDefault:"4"`
	MaxAttempts        int16         `env:"INBOX_MAX_ATTEMPTS" envDefault:"8"`
	BaseBackoff        time.Duration `env:"INBOX_BASE_BACKOFF" envDefault:"5s"`
	MaxBackoff         time.Duration `env:"INBOX_MAX_BACKOFF" envDefault:"30m"`
}

// WorkerOptions converts the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithPullInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
		WithBackoff(c.BaseBackoff, c.MaxBackoff),
	}
}
