package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/inbox"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/metrics"
)

// MaxBodySize caps the accepted webhook payload.
const MaxBodySize int64 = 1 << 20

// Envelope is what an ingestor needs to know about an event before
// deferring it.
type Envelope struct {
	EventID   string
	EventType string
	UserID    uuid.UUID
	ProductID string
	// Task is enqueued for deferred processing. A nil Task acknowledges the
	// event without further work.
	Task any
}

// AuthFunc rejects requests that do not come from the provider.
type AuthFunc func(r *http.Request) error

// DecodeFunc parses (and, for signed payloads, verifies) the request body.
type DecodeFunc func(ctx context.Context, r *http.Request, body []byte) (*Envelope, error)

// Enqueuer stores tasks durably.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...inbox.EnqueueOption) (bool, error)
}

// Ingestor is the HTTP entry point for one provider's webhooks. It answers as
// soon as the event is stored; processing happens in the inbox worker.
type Ingestor struct {
	provider string
	auth     AuthFunc
	decode   DecodeFunc
	enqueuer Enqueuer
	queue    string
	maxBody  int64
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithAuth sets the request authenticator. Without it the decoder is
// responsible for verifying the payload.
func WithAuth(fn AuthFunc) Option {
	return func(i *Ingestor) { i.auth = fn }
}

// WithQueue routes tasks to a named inbox queue.
func WithQueue(queue string) Option {
	return func(i *Ingestor) { i.queue = queue }
}

// WithMaxBodySize overrides MaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxBody = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) { i.metrics = m }
}

func NewIngestor(provider string, decode DecodeFunc, enqueuer Enqueuer, opts ...Option) *Ingestor {
	if decode == nil || enqueuer == nil {
		panic("webhook: decoder and enqueuer cannot be nil")
	}
	i := &Ingestor{
		provider: provider,
		decode:   decode,
		enqueuer: enqueuer,
		queue:    inbox.DefaultQueueName,
		maxBody:  MaxBodySize,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With(logger.Component("webhook"), logger.Provider(provider))
	return i
}

func (i *Ingestor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if i.auth != nil {
		if err := i.auth(r); err != nil {
			i.reject(ctx, w, "unauthorized", err)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, i.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			i.reject(ctx, w, "too_large", errors.Join(fault.ErrValidation, ErrBodyTooLarge))
			return
		}
		i.reject(ctx, w, "read_failed", errors.Join(ErrFailedToRead, err))
		return
	}
	if len(body) == 0 {
		i.reject(ctx, w, "invalid", errors.Join(fault.ErrValidation, ErrEmptyBody))
		return
	}

	env, err := i.decode(ctx, r, body)
	if err != nil {
		i.reject(ctx, w, "invalid", err)
		return
	}

	log := i.logger.With(
		logger.EventID(env.EventID),
		logger.EventType(env.EventType),
		logger.UserID(env.UserID),
		logger.ProductID(env.ProductID),
	)
	log.InfoContext(ctx, "webhook received")

	if env.Task == nil {
		log.InfoContext(ctx, "webhook acknowledged without processing")
		i.metrics.WebhookReceived(i.provider, "ignored")
		writeReceived(w)
		return
	}

	created, err := i.enqueuer.Enqueue(ctx, env.Task,
		inbox.WithQueue(i.queue),
		inbox.WithDedupeKey(i.provider+":"+env.EventID),
	)
	if err != nil {
		// The provider retries on 5xx; nothing was applied yet.
		i.reject(ctx, w, "enqueue_failed", errors.Join(ErrEnqueueFailed, err))
		return
	}
	if !created {
		log.DebugContext(ctx, "duplicate webhook delivery")
		i.metrics.WebhookReceived(i.provider, "duplicate")
	} else {
		i.metrics.WebhookReceived(i.provider, "accepted")
	}
	writeReceived(w)
}

func (i *Ingestor) reject(ctx context.Context, w http.ResponseWriter, result string, err error) {
	status := statusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	i.logger.Log(ctx, level, "webhook rejected", slog.Int("status", status), logger.Error(err))

	if status == http.StatusUnauthorized {
		result = "unauthorized"
	}
	i.metrics.WebhookReceived(i.provider, result)
	writeError(w, status, http.StatusText(status))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, fault.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, fault.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeReceived(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
