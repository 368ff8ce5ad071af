package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/audit"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/metrics"
	"github.com/dmitrymomot/entitlements/pkg/notify"
)

// Outcome reports what Apply did with an event.
type Outcome struct {
	// Applied is false when the event was skipped; Skipped then holds the reason.
	Applied     bool
	Skipped     error
	Previous    Entitlement
	Entitlement Entitlement
}

// Service is the write and read path for entitlements.
type Service struct {
	store     Store
	publisher notify.Publisher
	audit     audit.Logger
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithPublisher(p notify.Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithAuditLogger(l audit.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.audit = l
		}
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. It panics when store is nil.
func NewService(store Store, opts ...ServiceOption) *Service {
	if store == nil {
		panic("entitlement: store cannot be nil")
	}
	s := &Service{
		store:     store,
		publisher: notify.Discard,
		audit:     audit.Discard,
		logger:    logger.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("entitlement"))
	return s
}

// Get returns the stored record or ErrNotFound.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Entitlement, error) {
	return s.store.Get(ctx, userID)
}

// Query returns the client view. Users without a record are free.
func (s *Service) Query(ctx context.Context, userID uuid.UUID) (View, error) {
	e, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return FreeView(), nil
		}
		return View{}, err
	}
	return e.View(), nil
}

// errSkip aborts Mutate without writing.
var errSkip = errors.New("skip")

// Apply runs ev through Transition inside an atomic store mutation.
// Duplicate, stale and foreign-rail events are logged and reported as skipped
// with a nil error.
func (s *Service) Apply(ctx context.Context, ev Event) (Outcome, error) {
	var (
		out     Outcome
		skipped error
	)

	log := s.logger.With(
		logger.EventID(ev.ID),
		logger.EventType(string(ev.Type)),
		logger.UserID(ev.UserID),
		logger.Provider(string(KindOf(ev.Payment))),
	)

	stored, err := s.store.Mutate(ctx, ev.UserID, func(current Entitlement, _ bool) (Entitlement, error) {
		out.Previous = current
		next, err := Transition(current, ev)
		if IsIgnorable(err) {
			skipped = err
			return current, errSkip
		}
		return next, err
	})

	switch {
	case errors.Is(err, errSkip):
		out.Skipped = skipped
		out.Entitlement = out.Previous
		log.InfoContext(ctx, "entitlement event skipped", slog.String("reason", skipped.Error()))
		s.metrics.EventApplied(string(ev.Type), "skipped")
		return out, nil
	case err != nil:
		log.ErrorContext(ctx, "failed to apply entitlement event", logger.Error(err))
		s.metrics.EventApplied(string(ev.Type), "failed")
		_ = s.audit.LogError(ctx, "entitlement."+string(ev.Type), err,
			audit.WithUser(ev.UserID),
			audit.WithResource("event", ev.ID))
		return out, err
	}

	out.Applied = true
	out.Entitlement = *stored
	s.metrics.EventApplied(string(ev.Type), "applied")

	log.InfoContext(ctx, "entitlement event applied",
		slog.String("status", string(stored.Status)),
		slog.Bool("cancel_at_period_end", stored.CancelAtPeriodEnd))

	if err := s.audit.Log(ctx, "entitlement."+string(ev.Type),
		audit.WithUser(ev.UserID),
		audit.WithResource("event", ev.ID),
		audit.WithMetadata("status", string(stored.Status)),
		audit.WithMetadata("payment_method", string(KindOf(stored.PaymentMethod))),
	); err != nil {
		log.WarnContext(ctx, "failed to write audit entry", logger.Error(err))
	}

	if Changed(out.Previous, out.Entitlement) {
		s.publish(ctx, out.Entitlement, string(ev.Type))
	}
	return out, nil
}

// Update is the write path for coordinators acting on behalf of a user.
// fn receives the current record (exists=false for a fresh one). A change
// notification tagged with reason is published when the view changed.
//
// The write counts as an event at the current time: provider events that
// occurred before it are stale afterwards.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, reason string, fn MutateFunc) (*Entitlement, error) {
	var previous Entitlement
	stored, err := s.store.Mutate(ctx, userID, func(current Entitlement, exists bool) (Entitlement, error) {
		previous = current
		next, err := fn(current, exists)
		if err != nil {
			return next, err
		}
		if now := s.now().UTC(); now.After(next.LastEventAt) {
			next.LastEventAt = now
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, reason,
		audit.WithUser(userID),
		audit.WithMetadata("status", string(stored.Status)),
		audit.WithMetadata("cancel_at_period_end", stored.CancelAtPeriodEnd),
	); err != nil {
		s.logger.WarnContext(ctx, "failed to write audit entry", logger.UserID(userID), logger.Error(err))
	}

	if Changed(previous, *stored) {
		s.publish(ctx, *stored, reason)
	}
	return stored, nil
}

// Delete removes the record. Missing records are not an error.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID) error {
	return s.store.Delete(ctx, userID)
}

// publish announces the current state of e. Failures are logged only:
// clients fall back to the cache TTL.
func (s *Service) publish(ctx context.Context, e Entitlement, reason string) {
	change := notify.Change{
		UserID:             e.UserID,
		Status:             string(e.Status),
		PaymentMethod:      string(KindOf(e.PaymentMethod)),
		CancelsAtPeriodEnd: e.CancelAtPeriodEnd,
		Reason:             reason,
		At:                 s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.WarnContext(ctx, "failed to publish entitlement change",
			logger.UserID(e.UserID), logger.Error(err))
	}
}

// Changed reports whether the client-visible view differs between a and b.
func Changed(a, b Entitlement) bool {
	va, vb := a.View(), b.View()
	if va.Status != vb.Status ||
		va.PaymentMethod != vb.PaymentMethod ||
		va.CancelsAtPeriodEnd != vb.CancelsAtPeriodEnd ||
		va.BillingIssue != vb.BillingIssue ||
		va.ProductID != vb.ProductID {
		return true
	}
	switch {
	case va.RenewalDate == nil && vb.RenewalDate == nil:
		return false
	case va.RenewalDate == nil || vb.RenewalDate == nil:
		return true
	}
	return !va.RenewalDate.Equal(*vb.RenewalDate)
}
