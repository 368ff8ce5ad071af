package cancellation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/iap"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/metrics"
)

// Request asks to cancel the caller's subscription.
type Request struct {
	UserID    uuid.UUID
	Immediate bool
}

// Result is returned to the client. CurrentPeriodEnd is in unix seconds.
type Result struct {
	Success           bool     `json:"success"`
	CancelAtPeriodEnd *bool    `json:"cancelAtPeriodEnd,omitempty"`
	CurrentPeriodEnd  *int64   `json:"currentPeriodEnd,omitempty"`
	ManageURL         string   `json:"manageUrl,omitempty"`
	Instructions      []string `json:"instructions,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// EntitlementService is the entitlement read and write path the coordinator uses.
type EntitlementService interface {
	Get(ctx context.Context, userID uuid.UUID) (*entitlement.Entitlement, error)
	Update(ctx context.Context, userID uuid.UUID, reason string, fn entitlement.MutateFunc) (*entitlement.Entitlement, error)
}

// Coordinator routes cancellation requests to the rail that bills the user.
type Coordinator struct {
	entitlements   EntitlementService
	repo           billing.Repository
	provider       billing.Provider
	allowImmediate bool
	retryDelay     time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithImmediateCancellation honours Request.Immediate. Leave it off in production.
func WithImmediateCancellation(allow bool) Option {
	return func(c *Coordinator) { c.allowImmediate = allow }
}

// WithRetryDelay sets the pause before the single provider retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.retryDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(entitlements EntitlementService, repo billing.Repository, provider billing.Provider, opts ...Option) *Coordinator {
	if entitlements == nil || repo == nil || provider == nil {
		panic("cancellation: dependencies cannot be nil")
	}
	c := &Coordinator{
		entitlements: entitlements,
		repo:         repo,
		provider:     provider,
		retryDelay:   fault.DefaultRetryDelay,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("cancellation"))
	return c
}

// Cancel stops the user's subscription from renewing, or ends it now when
// immediate cancellation is enabled and requested.
func (c *Coordinator) Cancel(ctx context.Context, req Request) (*Result, error) {
	e, err := c.entitlements.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, entitlement.ErrNotFound) {
			return nil, errors.Join(fault.ErrNotFound, ErrNoActiveSubscription)
		}
		return nil, err
	}

	// Checked before the rail: a premium record without one must not reach a provider.
	if e.IsPremium() && entitlement.KindOf(e.PaymentMethod) == entitlement.KindNone {
		c.logger.ErrorContext(ctx, "premium entitlement without payment method", logger.UserID(req.UserID))
		return nil, errors.Join(fault.ErrDataIntegrity, ErrInvalidState)
	}
	if !e.IsPremium() {
		return nil, errors.Join(fault.ErrNotFound, ErrNoActiveSubscription)
	}

	type outcome struct {
		res *Result
		err error
	}
	out := entitlement.MatchPaymentMethod(e.PaymentMethod,
		func() outcome {
			return outcome{err: errors.Join(fault.ErrDataIntegrity, ErrInvalidState)}
		},
		func(card entitlement.CardPayment) outcome {
			res, err := c.cancelCard(ctx, req, card)
			return outcome{res, err}
		},
		func(entitlement.PlatformPayment) outcome {
			c.metrics.Cancellation(string(entitlement.KindPlatform), "deep_link")
			return outcome{res: &Result{
				Success:      true,
				ManageURL:    iap.ManageSubscriptionsURL,
				Instructions: iap.ManualInstructions,
			}}
		},
	)
	return out.res, out.err
}

func (c *Coordinator) cancelCard(ctx context.Context, req Request, card entitlement.CardPayment) (*Result, error) {
	log := c.logger.With(logger.UserID(req.UserID), logger.CustomerID(card.CustomerID))

	sub, err := c.activeSubscription(ctx, req.UserID, card)
	if err != nil {
		return nil, err
	}
	log = log.With(logger.SubscriptionID(sub.ID))

	immediate := req.Immediate && c.allowImmediate
	if req.Immediate && !c.allowImmediate {
		log.WarnContext(ctx, "immediate cancellation requested but disabled, scheduling at period end")
	}

	if immediate {
		return c.cancelNow(ctx, log, req.UserID, sub)
	}
	return c.cancelAtPeriodEnd(ctx, log, req.UserID, sub)
}

func (c *Coordinator) cancelNow(ctx context.Context, log *slog.Logger, userID uuid.UUID, sub *billing.Subscription) (*Result, error) {
	canceled, err := c.retry(ctx, func(ctx context.Context) (*billing.Subscription, error) {
		return c.provider.CancelSubscription(ctx, sub.ID)
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to cancel subscription", logger.Error(err))
		return nil, err
	}

	c.updateRecord(ctx, log, canceled, billing.StatusCanceled)

	if _, err := c.entitlements.Update(ctx, userID, "cancellation.immediate", func(cur entitlement.Entitlement, exists bool) (entitlement.Entitlement, error) {
		if err := sameCard(cur, exists, sub); err != nil {
			return cur, err
		}
		cur.Status = entitlement.StatusFree
		cur.CancelAtPeriodEnd = false
		cur.BillingIssueAt = nil
		return cur, nil
	}); err != nil {
		log.ErrorContext(ctx, "subscription canceled but entitlement not updated", logger.Error(err))
		return nil, err
	}

	c.metrics.Cancellation(string(entitlement.KindCard), "immediate")
	log.InfoContext(ctx, "subscription canceled immediately")
	scheduled := false
	return &Result{Success: true, CancelAtPeriodEnd: &scheduled}, nil
}

func (c *Coordinator) cancelAtPeriodEnd(ctx context.Context, log *slog.Logger, userID uuid.UUID, sub *billing.Subscription) (*Result, error) {
	updated := sub
	if !sub.CancelAtPeriodEnd {
		var err error
		updated, err = c.retry(ctx, func(ctx context.Context) (*billing.Subscription, error) {
			return c.provider.ScheduleCancellation(ctx, sub.ID)
		})
		if err != nil {
			log.ErrorContext(ctx, "failed to schedule cancellation", logger.Error(err))
			return nil, err
		}
	}
	if updated.CurrentPeriodEnd == nil {
		updated.CurrentPeriodEnd = sub.CurrentPeriodEnd
	}

	c.updateRecord(ctx, log, updated, "")

	stored, err := c.entitlements.Update(ctx, userID, "cancellation.scheduled", func(cur entitlement.Entitlement, exists bool) (entitlement.Entitlement, error) {
		if err := sameCard(cur, exists, sub); err != nil {
			return cur, err
		}
		cur.CancelAtPeriodEnd = true
		if updated.CurrentPeriodEnd != nil {
			t := *updated.CurrentPeriodEnd
			cur.CurrentPeriodEnd = &t
		}
		return cur, nil
	})
	if err != nil {
		log.ErrorContext(ctx, "cancellation scheduled but entitlement not updated", logger.Error(err))
		return nil, err
	}

	c.metrics.Cancellation(string(entitlement.KindCard), "period_end")
	log.InfoContext(ctx, "subscription cancellation scheduled")

	scheduled := true
	res := &Result{Success: true, CancelAtPeriodEnd: &scheduled}
	if stored.CurrentPeriodEnd != nil {
		unix := stored.CurrentPeriodEnd.Unix()
		res.CurrentPeriodEnd = &unix
	}
	return res, nil
}

// activeSubscription finds the subscription to cancel: the one on the
// entitlement, else the local record, else whatever the provider lists for
// the customer. It must exist and not be canceled.
func (c *Coordinator) activeSubscription(ctx context.Context, userID uuid.UUID, card entitlement.CardPayment) (*billing.Subscription, error) {
	customerID := card.CustomerID
	if customerID == "" {
		if m, err := c.repo.ActiveMapping(ctx, userID); err == nil {
			customerID = m.CustomerID
		}
	}

	subID := card.SubscriptionID
	if subID == "" && customerID != "" {
		if rec, err := c.repo.SubscriptionRecord(ctx, customerID); err == nil {
			subID = rec.SubscriptionID
		}
	}

	if subID == "" {
		if customerID == "" {
			return nil, errors.Join(fault.ErrNotFound, ErrNoActiveSubscription)
		}
		subs, err := c.retryList(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if len(subs) == 0 {
			return nil, errors.Join(fault.ErrNotFound, ErrNoActiveSubscription)
		}
		return &subs[0], nil
	}

	sub, err := c.retry(ctx, func(ctx context.Context) (*billing.Subscription, error) {
		return c.provider.GetSubscription(ctx, subID)
	})
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, errors.Join(fault.ErrNotFound, ErrNoActiveSubscription, err)
		}
		return nil, err
	}
	if sub.Status.IsCanceled() {
		return nil, errors.Join(fault.ErrNotFound, ErrNoActiveSubscription)
	}
	return sub, nil
}

// updateRecord mirrors the provider answer locally. The webhook that follows
// writes the same values, so a failure here is only logged.
func (c *Coordinator) updateRecord(ctx context.Context, log *slog.Logger, sub *billing.Subscription, status billing.SubscriptionStatus) {
	if sub.CustomerID == "" {
		return
	}
	rec := billing.SubscriptionRecord{
		CustomerID:        sub.CustomerID,
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		PriceID:           sub.PriceID,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
	}
	if status != "" {
		rec.Status = status
	}
	if err := c.repo.UpsertSubscriptionRecord(ctx, rec); err != nil {
		log.WarnContext(ctx, "failed to update subscription record", logger.Error(err))
	}
}

func (c *Coordinator) retry(ctx context.Context, fn func(context.Context) (*billing.Subscription, error)) (*billing.Subscription, error) {
	var out *billing.Subscription
	err := fault.RetryOnceWithDelay(ctx, c.retryDelay, func(ctx context.Context) error {
		s, err := fn(ctx)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func (c *Coordinator) retryList(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	var out []billing.Subscription
	err := fault.RetryOnceWithDelay(ctx, c.retryDelay, func(ctx context.Context) error {
		subs, err := c.provider.ListActiveSubscriptions(ctx, customerID)
		if err != nil {
			return err
		}
		out = subs
		return nil
	})
	return out, err
}

// sameCard guards the write against a rail switch that happened while the
// provider call was in flight.
func sameCard(cur entitlement.Entitlement, exists bool, sub *billing.Subscription) error {
	if !exists {
		return errors.Join(fault.ErrNotFound, ErrNoActiveSubscription)
	}
	card, ok := cur.PaymentMethod.(entitlement.CardPayment)
	if !ok || (card.SubscriptionID != "" && card.SubscriptionID != sub.ID) {
		return errors.Join(fault.ErrConflict, ErrRailChanged)
	}
	return nil
}
