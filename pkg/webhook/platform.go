package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/iap"
	"github.com/dmitrymomot/entitlements/pkg/inbox"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// PlatformTask is the inbox payload for a platform purchase event.
type PlatformTask struct {
	Event iap.EventPayload `json:"event"`
}

// EntitlementApplier applies normalized events.
type EntitlementApplier interface {
	Apply(ctx context.Context, ev entitlement.Event) (entitlement.Outcome, error)
}

// NewPlatformIngestor accepts platform webhooks authenticated with the shared
// bearer secret. An empty secret makes every request fail with 500.
func NewPlatformIngestor(secret string, enqueuer Enqueuer, opts ...Option) *Ingestor {
	opts = append([]Option{WithAuth(iap.Authenticator(secret))}, opts...)
	return NewIngestor("platform", DecodePlatform, enqueuer, opts...)
}

// DecodePlatform parses a platform body. Events the state machine does not
// handle, and events for users that cannot be resolved, are acknowledged
// without a task: the platform would only redeliver them.
func DecodePlatform(_ context.Context, _ *http.Request, body []byte) (*Envelope, error) {
	b, err := iap.Decode(body)
	if err != nil {
		return nil, err
	}
	p := b.Event

	env := &Envelope{
		EventID:   p.EventID(),
		EventType: p.Type,
		ProductID: p.ProductID,
	}
	ev, err := p.ToEvent()
	switch {
	case errors.Is(err, iap.ErrUnsupportedEvent), errors.Is(err, iap.ErrInvalidUserID):
		return env, nil
	case err != nil:
		return nil, err
	}
	env.UserID = ev.UserID
	env.Task = PlatformTask{Event: p}
	return env, nil
}

// PlatformHandler applies queued platform events.
func PlatformHandler(applier EntitlementApplier, log *slog.Logger) inbox.Handler {
	if log == nil {
		log = logger.Discard()
	}
	log = log.With(logger.Component("platform_processor"))

	return inbox.NewTaskHandler(func(ctx context.Context, t PlatformTask) error {
		ev, err := t.Event.ToEvent()
		if err != nil {
			return inbox.Permanent(err)
		}
		out, err := applier.Apply(ctx, ev)
		if err != nil {
			log.ErrorContext(ctx, "failed to apply platform event",
				logger.EventID(ev.ID),
				logger.EventType(string(ev.Type)),
				logger.UserID(ev.UserID),
				logger.Error(err))
			return classify(err)
		}
		if out.Skipped != nil {
			log.DebugContext(ctx, "platform event skipped",
				logger.EventID(ev.ID), logger.UserID(ev.UserID), logger.Error(out.Skipped))
		}
		return nil
	})
}
