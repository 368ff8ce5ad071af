package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/metrics"
)

// CheckoutRequest is the client's purchase intent.
type CheckoutRequest struct {
	PriceID    string       `json:"priceId" validate:"required,max=255"`
	Mode       CheckoutMode `json:"mode" validate:"required,oneof=subscription payment"`
	SuccessURL string       `json:"successUrl" validate:"required,url"`
	CancelURL  string       `json:"cancelUrl" validate:"required,url"`
	Email      string       `json:"-"`
}

// EntitlementReader reads the current entitlement of a user.
type EntitlementReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*entitlement.Entitlement, error)
}

// CheckoutService creates hosted checkout sessions on the card rail.
// It owns customer creation and migration between provider environments.
type CheckoutService struct {
	catalog      *Catalog
	repo         Repository
	provider     Provider
	entitlements EntitlementReader
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// CheckoutOption configures a CheckoutService.
type CheckoutOption func(*CheckoutService)

func WithCheckoutLogger(l *slog.Logger) CheckoutOption {
	return func(s *CheckoutService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithCheckoutMetrics(m *metrics.Metrics) CheckoutOption {
	return func(s *CheckoutService) { s.metrics = m }
}

func NewCheckoutService(catalog *Catalog, repo Repository, provider Provider, entitlements EntitlementReader, opts ...CheckoutOption) *CheckoutService {
	if repo == nil || provider == nil || entitlements == nil {
		panic("billing: checkout service dependencies cannot be nil")
	}
	s := &CheckoutService{
		catalog:      catalog,
		repo:         repo,
		provider:     provider,
		entitlements: entitlements,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("checkout"), logger.Provider(provider.Name()))
	return s
}

// CreateSession validates the request against the allow-list, resolves the
// user's provider customer and creates the session. Nothing is retried here.
func (s *CheckoutService) CreateSession(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*Session, error) {
	log := s.logger.With(logger.UserID(userID), logger.ProductID(req.PriceID))

	session, err := s.createSession(ctx, userID, req)
	if err != nil {
		result := "failed"
		if errors.Is(err, fault.ErrValidation) || errors.Is(err, fault.ErrConflict) {
			result = "rejected"
			log.WarnContext(ctx, "checkout rejected", logger.Error(err))
		} else {
			log.ErrorContext(ctx, "checkout failed", logger.Error(err))
		}
		s.metrics.CheckoutCreated(result)
		return nil, err
	}

	s.metrics.CheckoutCreated("created")
	log.InfoContext(ctx, "checkout session created", slog.String("session_id", session.ID))
	return session, nil
}

func (s *CheckoutService) createSession(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*Session, error) {
	if userID == uuid.Nil {
		return nil, errors.Join(fault.ErrAuthentication, entitlement.ErrMissingUserID)
	}
	price, err := s.catalog.Check(req.PriceID, req.Mode)
	if err != nil {
		return nil, err
	}
	if !validRedirect(req.SuccessURL) || !validRedirect(req.CancelURL) {
		return nil, errors.Join(fault.ErrValidation, ErrInvalidCheckout, errors.New("success and cancel urls must be absolute"))
	}
	if err := s.checkRail(ctx, userID, req.Mode); err != nil {
		return nil, err
	}

	customerID, err := s.resolveCustomer(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, SessionParams{
		UserID:     userID,
		CustomerID: customerID,
		PriceID:    price.ID,
		Mode:       req.Mode,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToCreateSession, err)
	}
	return session, nil
}

// checkRail refuses a purchase that would leave two rails renewing.
func (s *CheckoutService) checkRail(ctx context.Context, userID uuid.UUID, mode CheckoutMode) error {
	e, err := s.entitlements.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, entitlement.ErrNotFound) {
			return nil
		}
		return err
	}
	if !e.IsPremium() || e.CancelAtPeriodEnd {
		return nil
	}
	return entitlement.MatchPaymentMethod(e.PaymentMethod,
		func() error {
			return errors.Join(fault.ErrDataIntegrity, entitlement.ErrPremiumWithoutPayment)
		},
		func(entitlement.CardPayment) error {
			if mode == ModeSubscription {
				return errors.Join(fault.ErrConflict, ErrAlreadySubscribed)
			}
			return nil
		},
		func(entitlement.PlatformPayment) error {
			return errors.Join(fault.ErrConflict, ErrAlreadySubscribed, entitlement.ErrRailConflict)
		},
	)
}

func (s *CheckoutService) resolveCustomer(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (string, error) {
	m, err := s.repo.ActiveMapping(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrMappingNotFound) {
			return s.createCustomer(ctx, userID, req)
		}
		return "", err
	}

	exists, err := s.provider.CustomerExists(ctx, m.CustomerID)
	if err != nil {
		return "", err
	}
	if !exists {
		s.logger.WarnContext(ctx, "customer missing in current provider environment, replacing",
			logger.UserID(userID),
			logger.CustomerID(m.CustomerID),
			slog.String("mapping_environment", m.Environment),
			slog.String("provider_environment", s.provider.Environment()))
		return s.replaceCustomer(ctx, userID, m, req)
	}

	if err := s.ensurePlaceholder(ctx, m.CustomerID, req); err != nil {
		return "", err
	}
	return m.CustomerID, nil
}

// createCustomer creates a customer and its mapping. When persisting fails,
// everything created on the way is removed and a retryable error returned.
func (s *CheckoutService) createCustomer(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (string, error) {
	customerID, err := s.provider.CreateCustomer(ctx, CustomerParams{UserID: userID, Email: req.Email})
	if err != nil {
		return "", errors.Join(ErrFailedToCreateCustomer, err)
	}

	placeholder := req.Mode == ModeSubscription
	if placeholder {
		if err := s.repo.UpsertSubscriptionRecord(ctx, SubscriptionRecord{
			CustomerID: customerID,
			Status:     StatusNotStarted,
			PriceID:    req.PriceID,
		}); err != nil {
			s.compensate(ctx, customerID, false)
			return "", fault.Transient(err)
		}
	}

	m, created, err := s.repo.InsertMapping(ctx, userID, customerID, s.provider.Environment())
	if err != nil {
		s.compensate(ctx, customerID, placeholder)
		return "", fault.Transient(errors.Join(ErrFailedToPersistMapping, err))
	}
	if !created {
		// A concurrent checkout won; use its customer.
		s.logger.InfoContext(ctx, "concurrent checkout created the mapping first",
			logger.UserID(userID), logger.CustomerID(m.CustomerID))
		s.compensate(ctx, customerID, placeholder)
		if err := s.ensurePlaceholder(ctx, m.CustomerID, req); err != nil {
			return "", err
		}
	}
	return m.CustomerID, nil
}

// replaceCustomer migrates the user to a new customer in the current
// environment. The new customer is removed only if the mapping update fails.
func (s *CheckoutService) replaceCustomer(ctx context.Context, userID uuid.UUID, old *CustomerMapping, req CheckoutRequest) (string, error) {
	customerID, err := s.provider.CreateCustomer(ctx, CustomerParams{UserID: userID, Email: req.Email})
	if err != nil {
		return "", errors.Join(fault.ErrProviderStateMismatch, ErrFailedToCreateCustomer, err)
	}

	m, err := s.repo.ReplaceMapping(ctx, userID, old.CustomerID, customerID, s.provider.Environment())
	if err != nil {
		s.compensate(ctx, customerID, false)
		return "", fault.Transient(errors.Join(fault.ErrProviderStateMismatch, ErrFailedToPersistMapping, err))
	}
	if m.CustomerID != customerID {
		s.compensate(ctx, customerID, false)
	}

	if err := s.ensurePlaceholder(ctx, m.CustomerID, req); err != nil {
		return "", err
	}
	return m.CustomerID, nil
}

// ensurePlaceholder writes a not_started record for subscription checkouts
// unless the customer already has one.
func (s *CheckoutService) ensurePlaceholder(ctx context.Context, customerID string, req CheckoutRequest) error {
	if req.Mode != ModeSubscription {
		return nil
	}
	_, err := s.repo.SubscriptionRecord(ctx, customerID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return err
	}
	return s.repo.UpsertSubscriptionRecord(ctx, SubscriptionRecord{
		CustomerID: customerID,
		Status:     StatusNotStarted,
		PriceID:    req.PriceID,
	})
}

// compensate removes a customer created by this request. Failures are logged:
// an orphaned provider customer without a mapping is harmless.
func (s *CheckoutService) compensate(ctx context.Context, customerID string, placeholder bool) {
	ctx = context.WithoutCancel(ctx)
	if placeholder {
		if err := s.repo.DeleteSubscriptionRecord(ctx, customerID); err != nil {
			s.logger.ErrorContext(ctx, "failed to delete placeholder subscription record",
				logger.CustomerID(customerID), logger.Error(err))
		}
	}
	if err := s.provider.DeleteCustomer(ctx, customerID); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete orphaned customer",
			logger.CustomerID(customerID), logger.Error(err))
	}
}

func validRedirect(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
