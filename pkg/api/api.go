package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/accountdeletion"
	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/cancellation"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/identity"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/metrics"
	"github.com/dmitrymomot/entitlements/pkg/notify"
)

type EntitlementQuerier interface {
	Query(ctx context.Context, userID uuid.UUID) (entitlement.View, error)
}

type CheckoutCreator interface {
	CreateSession(ctx context.Context, userID uuid.UUID, req billing.CheckoutRequest) (*billing.Session, error)
}

type Canceler interface {
	Cancel(ctx context.Context, req cancellation.Request) (*cancellation.Result, error)
}

type AccountDeleter interface {
	Delete(ctx context.Context, userID uuid.UUID) (*accountdeletion.Report, error)
}

// IdentityReader supplies the caller's email for checkout prefill.
type IdentityReader interface {
	Get(ctx context.Context, id uuid.UUID) (*identity.Identity, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps wires the router. The domain services and Authenticate are required.
type Deps struct {
	Entitlements EntitlementQuerier
	Checkout     CheckoutCreator
	Cancellation Canceler
	Deletion     AccountDeleter
	Changes      notify.Subscriber
	Identities   IdentityReader

	Authenticate func(http.Handler) http.Handler
	RateLimit    func(http.Handler) http.Handler

	CardWebhook     http.Handler
	PlatformWebhook http.Handler

	HealthChecks map[string]HealthCheck
	Metrics      *metrics.Metrics
	Logger       *slog.Logger

	// Heartbeat is the SSE keep-alive period. Defaults to 25s.
	Heartbeat time.Duration
}

// API serves the entitlement HTTP interface.
type API struct {
	deps      Deps
	validator *validator.Validate
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewRouter validates deps and builds the chi router.
func NewRouter(deps Deps) (http.Handler, error) {
	if deps.Entitlements == nil || deps.Checkout == nil || deps.Cancellation == nil ||
		deps.Deletion == nil || deps.Changes == nil || deps.Authenticate == nil {
		return nil, ErrMissingDependency
	}
	a := &API{
		deps:      deps,
		validator: newValidator(),
		logger:    deps.Logger,
		heartbeat: deps.Heartbeat,
	}
	if a.logger == nil {
		a.logger = logger.Discard()
	}
	a.logger = a.logger.With(logger.Component("api"))
	if a.heartbeat <= 0 {
		a.heartbeat = 25 * time.Second
	}
	return a.routes(), nil
}

func (a *API) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.accessLog)

	r.Get("/healthz", a.health)
	r.Method(http.MethodGet, "/metrics", a.deps.Metrics.Handler())

	if a.deps.CardWebhook != nil {
		r.Method(http.MethodPost, "/webhooks/card", a.deps.CardWebhook)
	}
	if a.deps.PlatformWebhook != nil {
		r.Method(http.MethodPost, "/webhooks/platform", a.deps.PlatformWebhook)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(a.deps.Authenticate)
		if a.deps.RateLimit != nil {
			r.Use(a.deps.RateLimit)
		}

		r.Post("/checkout", a.createCheckout)
		r.Get("/entitlement", a.getEntitlement)
		r.Get("/entitlement/events", a.streamChanges)
		r.Get("/subscription/actions", a.subscriptionActions)
		r.Post("/subscription/cancel", a.cancelSubscription)
		r.Delete("/account", a.deleteAccount)
	})

	return r
}

// accessLog logs one line per request once the handler returns.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.logger.InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (a *API) caller(r *http.Request) (uuid.UUID, error) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, errors.Join(fault.ErrAuthentication, ErrNoCaller)
	}
	return userID, nil
}
