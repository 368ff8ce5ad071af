package webhook

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/inbox"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// CardTask is the inbox payload for a verified card provider event.
type CardTask struct {
	Provider string            `json:"provider"`
	Event    billing.CardEvent `json:"event"`
}

// CardProcessor handles verified card events.
type CardProcessor interface {
	Process(ctx context.Context, ev billing.CardEvent) error
}

// NewCardIngestor accepts card provider webhooks. The provider verifies the
// signature while parsing, so no separate authenticator is installed.
func NewCardIngestor(provider billing.Provider, enqueuer Enqueuer, opts ...Option) *Ingestor {
	return NewIngestor(provider.Name(), DecodeCard(provider), enqueuer, opts...)
}

// DecodeCard verifies and normalizes a card provider payload.
func DecodeCard(provider billing.Provider) DecodeFunc {
	return func(ctx context.Context, r *http.Request, body []byte) (*Envelope, error) {
		ev, err := provider.ParseWebhook(ctx, body, r.Header.Get(provider.SignatureHeader()))
		if err != nil {
			return nil, err
		}
		if ev == nil {
			return &Envelope{EventType: "unhandled"}, nil
		}
		return &Envelope{
			EventID:   ev.ID,
			EventType: ev.Type,
			UserID:    ev.UserID,
			ProductID: ev.PriceID,
			Task:      CardTask{Provider: provider.Name(), Event: *ev},
		}, nil
	}
}

// CardHandler processes queued card events.
func CardHandler(processor CardProcessor, log *slog.Logger) inbox.Handler {
	if log == nil {
		log = logger.Discard()
	}
	log = log.With(logger.Component("card_processor"))

	return inbox.NewTaskHandler(func(ctx context.Context, t CardTask) error {
		if err := processor.Process(ctx, t.Event); err != nil {
			log.ErrorContext(ctx, "failed to process card event",
				logger.Provider(t.Provider),
				logger.EventID(t.Event.ID),
				logger.EventType(t.Event.Type),
				logger.UserID(t.Event.UserID),
				logger.CustomerID(t.Event.CustomerID),
				logger.Error(err))
			return classify(err)
		}
		return nil
	})
}
