package accountdeletion

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/metrics"
)

// Orchestrator tears down everything a user owns across both payment rails.
type Orchestrator struct {
	entitlements EntitlementService
	identities   IdentityStore
	repo         billing.Repository
	provider     billing.Provider
	tables       []ChildTable
	retryDelay   time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Orchestrator)

// WithChildTables sets the user-owned tables cleared in step 4.
func WithChildTables(tables ...ChildTable) Option {
	return func(o *Orchestrator) { o.tables = append(o.tables, tables...) }
}

func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(entitlements EntitlementService, identities IdentityStore, repo billing.Repository, provider billing.Provider, opts ...Option) *Orchestrator {
	if entitlements == nil || identities == nil || repo == nil || provider == nil {
		panic("accountdeletion: dependencies cannot be nil")
	}
	o := &Orchestrator{
		entitlements: entitlements,
		identities:   identities,
		repo:         repo,
		provider:     provider,
		retryDelay:   fault.DefaultRetryDelay,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(logger.Component("accountdeletion"))
	return o
}

// Delete runs the deletion procedure for userID. Only the entitlement and
// identity steps abort; every other failure is recorded in the report as a
// warning. Running Delete again after a *StepError finishes the job.
func (o *Orchestrator) Delete(ctx context.Context, userID uuid.UUID) (*Report, error) {
	log := o.logger.With(logger.UserID(userID))
	report := &Report{UserID: userID, PaymentMethod: entitlement.KindNone}

	// 1. A missing row means the rail is none, which keeps retries idempotent.
	var pm entitlement.PaymentMethod
	e, err := o.entitlements.Get(ctx, userID)
	switch {
	case err == nil:
		pm = e.PaymentMethod
		report.PaymentMethod = entitlement.KindOf(pm)
	case errors.Is(err, entitlement.ErrNotFound):
	default:
		// The rail is unknown, so card cleanup falls back to the mappings.
		log.WarnContext(ctx, "failed to read payment method", logger.Error(err))
		report.warn(StepReadPaymentMethod, "", err)
	}

	// 2 and 3.
	entitlement.MatchPaymentMethod(pm,
		func() struct{} {
			o.cleanupCard(ctx, log, report, "")
			return struct{}{}
		},
		func(card entitlement.CardPayment) struct{} {
			o.cleanupCard(ctx, log, report, card.CustomerID)
			return struct{}{}
		},
		func(entitlement.PlatformPayment) struct{} {
			log.InfoContext(ctx, "platform purchase left with the store, no remote action")
			// A user may have abandoned a card checkout before buying in-app.
			o.cleanupCard(ctx, log, report, "")
			return struct{}{}
		},
	)

	// 4.
	o.deleteChildRows(ctx, log, report)

	// 5.
	if err := o.entitlements.Delete(ctx, userID); err != nil {
		return report, o.abort(ctx, log, StepDeleteEntitlement, err)
	}
	o.metrics.DeletionStep(string(StepDeleteEntitlement), "ok")

	// 6.
	if err := o.identities.Delete(ctx, userID); err != nil {
		return report, o.abort(ctx, log, StepDeleteIdentity, err)
	}
	o.metrics.DeletionStep(string(StepDeleteIdentity), "ok")

	log.InfoContext(ctx, "account deleted",
		slog.String("payment_method", string(report.PaymentMethod)),
		slog.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}

func (o *Orchestrator) abort(ctx context.Context, log *slog.Logger, step Step, err error) error {
	o.metrics.DeletionStep(string(step), "failed")
	log.ErrorContext(ctx, "account deletion aborted", logger.Step(string(step)), logger.Error(err))
	return &StepError{Step: step, Err: err}
}

// cleanupCard runs when the rail is card or when any mapping exists. The
// latter covers a user who started a checkout and never paid.
func (o *Orchestrator) cleanupCard(ctx context.Context, log *slog.Logger, report *Report, customerID string) {
	var customers []string
	if customerID != "" {
		customers = append(customers, customerID)
	}

	mappings, err := o.repo.MappingsForUser(ctx, report.UserID)
	if err != nil {
		log.WarnContext(ctx, "failed to list customer mappings", logger.Error(err))
		report.warn(StepDeleteCardRecords, "", err)
	}
	for _, m := range mappings {
		if !slices.Contains(customers, m.CustomerID) {
			customers = append(customers, m.CustomerID)
		}
	}
	if len(customers) == 0 {
		return
	}

	for _, id := range customers {
		clog := log.With(logger.CustomerID(id))
		o.cancelSubscriptions(ctx, clog, report, id)

		err := fault.RetryOnceWithDelay(ctx, o.retryDelay, func(ctx context.Context) error {
			return o.provider.DeleteCustomer(ctx, id)
		})
		switch {
		case err == nil:
			report.DeletedCustomers = append(report.DeletedCustomers, id)
			o.metrics.DeletionStep(string(StepDeleteCustomer), "ok")
		case errors.Is(err, fault.ErrNotFound):
			o.metrics.DeletionStep(string(StepDeleteCustomer), "ok")
		default:
			clog.WarnContext(ctx, "failed to delete provider customer", logger.Error(err))
			report.warn(StepDeleteCustomer, id, err)
			o.metrics.DeletionStep(string(StepDeleteCustomer), "warning")
		}

		if err := o.repo.DeleteSubscriptionRecord(ctx, id); err != nil {
			clog.WarnContext(ctx, "failed to delete subscription record", logger.Error(err))
			report.warn(StepDeleteCardRecords, id, err)
		}
		if err := o.repo.DeleteOrders(ctx, id); err != nil {
			clog.WarnContext(ctx, "failed to delete orders", logger.Error(err))
			report.warn(StepDeleteCardRecords, id, err)
		}
	}

	if err := o.repo.DeleteMappings(ctx, report.UserID); err != nil {
		log.WarnContext(ctx, "failed to delete customer mappings", logger.Error(err))
		report.warn(StepDeleteCardRecords, "", err)
		o.metrics.DeletionStep(string(StepDeleteCardRecords), "warning")
		return
	}
	o.metrics.DeletionStep(string(StepDeleteCardRecords), "ok")
}

func (o *Orchestrator) cancelSubscriptions(ctx context.Context, log *slog.Logger, report *Report, customerID string) {
	var subs []billing.Subscription
	err := fault.RetryOnceWithDelay(ctx, o.retryDelay, func(ctx context.Context) error {
		var err error
		subs, err = o.provider.ListActiveSubscriptions(ctx, customerID)
		return err
	})
	if err != nil {
		log.WarnContext(ctx, "failed to list subscriptions", logger.Error(err))
		report.warn(StepCancelSubscriptions, customerID, err)
		o.metrics.DeletionStep(string(StepCancelSubscriptions), "warning")
		return
	}

	result := "ok"
	for _, sub := range subs {
		if sub.Status.IsCanceled() {
			continue
		}
		err := fault.RetryOnceWithDelay(ctx, o.retryDelay, func(ctx context.Context) error {
			_, err := o.provider.CancelSubscription(ctx, sub.ID)
			return err
		})
		if err != nil {
			log.WarnContext(ctx, "failed to cancel subscription", logger.SubscriptionID(sub.ID), logger.Error(err))
			report.warn(StepCancelSubscriptions, sub.ID, err)
			result = "warning"
			continue
		}
		report.CanceledSubscriptions = append(report.CanceledSubscriptions, sub.ID)
	}
	o.metrics.DeletionStep(string(StepCancelSubscriptions), result)
}

func (o *Orchestrator) deleteChildRows(ctx context.Context, log *slog.Logger, report *Report) {
	result := "ok"
	for _, t := range o.tables {
		n, err := t.Rows.DeleteUser(ctx, report.UserID)
		if err != nil {
			log.WarnContext(ctx, "failed to delete child rows", slog.String("table", t.Name), logger.Error(err))
			report.warn(StepDeleteChildRows, t.Name, err)
			result = "warning"
			continue
		}
		if n > 0 {
			if report.DeletedRows == nil {
				report.DeletedRows = make(map[string]int64)
			}
			report.DeletedRows[t.Name] += n
		}
	}
	o.metrics.DeletionStep(string(StepDeleteChildRows), result)
}
