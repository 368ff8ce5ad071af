package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// EntitlementApplier applies normalized events to the entitlement store.
type EntitlementApplier interface {
	Apply(ctx context.Context, ev entitlement.Event) (entitlement.Outcome, error)
}

// WebhookProcessor turns verified card events into record updates and
// entitlement transitions.
type WebhookProcessor struct {
	repo    Repository
	applier EntitlementApplier
	logger  *slog.Logger
}

func NewWebhookProcessor(repo Repository, applier EntitlementApplier, log *slog.Logger) *WebhookProcessor {
	if repo == nil || applier == nil {
		panic("billing: webhook processor dependencies cannot be nil")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &WebhookProcessor{
		repo:    repo,
		applier: applier,
		logger:  log.With(logger.Component("card_webhook")),
	}
}

// Process handles one card event. It is safe to call repeatedly with the same event.
func (p *WebhookProcessor) Process(ctx context.Context, ev CardEvent) error {
	switch ev.Type {
	case EventCheckoutCompleted, EventInvoicePaid, EventSubscriptionUpdated,
		EventSubscriptionDeleted, EventInvoicePaymentFailed:
	default:
		p.logger.DebugContext(ctx, "ignoring card event", logger.EventID(ev.ID), logger.EventType(ev.Type))
		return nil
	}

	userID, err := p.resolveUser(ctx, ev)
	if errors.Is(err, ErrMappingNotFound) {
		// The customer is not ours, or its owner deleted the account. Writing
		// would resurrect purged rows.
		p.logger.InfoContext(ctx, "ignoring card event for unmapped customer",
			logger.EventID(ev.ID),
			logger.EventType(ev.Type),
			logger.CustomerID(ev.CustomerID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	log := p.logger.With(
		logger.EventID(ev.ID),
		logger.EventType(ev.Type),
		logger.UserID(userID),
		logger.CustomerID(ev.CustomerID),
	)

	var eventType entitlement.EventType
	payment := entitlement.CardPayment{CustomerID: ev.CustomerID, SubscriptionID: ev.SubscriptionID}
	expires := ev.CurrentPeriodEnd

	switch ev.Type {
	case EventCheckoutCompleted:
		eventType = entitlement.EventInitialPurchase
		if ev.Mode == ModePayment {
			if err := p.repo.RecordOrder(ctx, Order{
				CustomerID:      ev.CustomerID,
				UserID:          userID,
				SessionID:       ev.SessionID,
				PaymentIntentID: ev.PaymentIntentID,
				AmountTotal:     ev.AmountTotal,
				Currency:        ev.Currency,
				Status:          "paid",
			}); err != nil {
				return err
			}
			// One-time purchases grant lifetime access.
			payment.SubscriptionID = ""
			expires = nil
		} else if err := p.upsertRecord(ctx, ev, StatusActive); err != nil {
			return err
		}

	case EventInvoicePaid:
		eventType = entitlement.EventRenewal
		if err := p.upsertRecord(ctx, ev, StatusActive); err != nil {
			return err
		}

	case EventSubscriptionUpdated:
		prev, err := p.repo.SubscriptionRecord(ctx, ev.CustomerID)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return err
		}
		if err := p.upsertRecord(ctx, ev, ev.Status); err != nil {
			return err
		}
		switch {
		case ev.CancelAtPeriodEnd:
			eventType = entitlement.EventCancellation
		case prev != nil && prev.CancelAtPeriodEnd:
			eventType = entitlement.EventUncancellation
		default:
			log.DebugContext(ctx, "subscription update without entitlement effect")
			return nil
		}

	case EventSubscriptionDeleted:
		eventType = entitlement.EventExpiration
		if err := p.upsertRecord(ctx, ev, StatusCanceled); err != nil {
			return err
		}

	case EventInvoicePaymentFailed:
		eventType = entitlement.EventBillingIssue
		if err := p.upsertRecord(ctx, ev, StatusPastDue); err != nil {
			return err
		}

	}

	_, err = p.applier.Apply(ctx, entitlement.Event{
		ID:         ev.ID,
		Type:       eventType,
		UserID:     userID,
		OccurredAt: ev.Created,
		ProductID:  ev.PriceID,
		ExpiresAt:  expires,
		Payment:    payment,
	})
	return err
}

// resolveUser maps the event to its owner through the customer mapping. The
// user id from provider metadata is never trusted on its own.
func (p *WebhookProcessor) resolveUser(ctx context.Context, ev CardEvent) (uuid.UUID, error) {
	if ev.CustomerID == "" {
		return uuid.Nil, errors.Join(fault.ErrValidation, ErrUnresolvedUser)
	}
	m, err := p.repo.MappingByCustomer(ctx, ev.CustomerID)
	if err != nil {
		return uuid.Nil, err
	}
	if ev.UserID != uuid.Nil && ev.UserID != m.UserID {
		p.logger.WarnContext(ctx, "card event metadata names another user",
			logger.EventID(ev.ID),
			logger.CustomerID(ev.CustomerID),
			logger.UserID(m.UserID),
		)
	}
	return m.UserID, nil
}

func (p *WebhookProcessor) upsertRecord(ctx context.Context, ev CardEvent, fallback SubscriptionStatus) error {
	status := ev.Status
	if status == "" {
		status = fallback
	}
	rec := SubscriptionRecord{
		CustomerID:        ev.CustomerID,
		SubscriptionID:    ev.SubscriptionID,
		Status:            status,
		PriceID:           ev.PriceID,
		CancelAtPeriodEnd: ev.CancelAtPeriodEnd,
		CurrentPeriodEnd:  ev.CurrentPeriodEnd,
	}
	if prev, err := p.repo.SubscriptionRecord(ctx, ev.CustomerID); err == nil {
		if rec.SubscriptionID == "" {
			rec.SubscriptionID = prev.SubscriptionID
		}
		if rec.PriceID == "" {
			rec.PriceID = prev.PriceID
		}
		if rec.CurrentPeriodEnd == nil {
			rec.CurrentPeriodEnd = prev.CurrentPeriodEnd
		}
		if ev.Type == EventInvoicePaymentFailed {
			// Invoices do not carry the cancellation flag.
			rec.CancelAtPeriodEnd = prev.CancelAtPeriodEnd
		}
	}
	return p.repo.UpsertSubscriptionRecord(ctx, rec)
}
