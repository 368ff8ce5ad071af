package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type logger struct {
	storage            Storage
	requestIDExtractor func(context.Context) string
	now                func() time.Time
}

// Option configures the logger.
type Option func(*logger)

// WithRequestIDExtractor sets how the request id is read from context.
func WithRequestIDExtractor(fn func(context.Context) string) Option {
	return func(l *logger) {
		if fn != nil {
			l.requestIDExtractor = fn
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *logger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLogger creates a Logger writing to storage.
func NewLogger(storage Storage, opts ...Option) Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	l := &logger{
		storage: storage,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *logger) Log(ctx context.Context, action string, opts ...EntryOption) error {
	return l.store(ctx, action, ResultSuccess, nil, opts)
}

func (l *logger) LogError(ctx context.Context, action string, err error, opts ...EntryOption) error {
	return l.store(ctx, action, ResultFailure, err, opts)
}

func (l *logger) store(ctx context.Context, action string, result Result, cause error, opts []EntryOption) error {
	e := Entry{
		ID:        uuid.New(),
		Action:    action,
		Result:    result,
		CreatedAt: l.now().UTC(),
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if l.requestIDExtractor != nil {
		e.RequestID = l.requestIDExtractor(ctx)
	}
	for _, opt := range opts {
		opt(&e)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, e)
}

// Discard is a Logger that records nothing.
var Discard Logger = discard{}

type discard struct{}

func (discard) Log(context.Context, string, ...EntryOption) error            { return nil }
func (discard) LogError(context.Context, string, error, ...EntryOption) error { return nil }
