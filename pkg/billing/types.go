package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckoutMode selects between a recurring subscription and a one-time payment.
type CheckoutMode string

const (
	ModeSubscription CheckoutMode = "subscription"
	ModePayment      CheckoutMode = "payment"
)

func (m CheckoutMode) Valid() bool {
	return m == ModeSubscription || m == ModePayment
}

// SubscriptionStatus mirrors the provider subscription status. NotStarted is
// the local placeholder written before a checkout session exists.
type SubscriptionStatus string

const (
	StatusNotStarted        SubscriptionStatus = "not_started"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
	StatusCanceled          SubscriptionStatus = "canceled"
)

// IsCanceled reports whether the subscription can no longer renew or be cancelled.
func (s SubscriptionStatus) IsCanceled() bool {
	return s == StatusCanceled || s == StatusIncompleteExpired
}

// Card event types. Providers translate their own vocabulary into these.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
)

// CustomerParams describes a provider customer to create.
type CustomerParams struct {
	UserID uuid.UUID
	Email  string
}

// SessionParams describes a hosted checkout session.
type SessionParams struct {
	UserID     uuid.UUID
	CustomerID string
	PriceID    string
	Mode       CheckoutMode
	SuccessURL string
	CancelURL  string
}

// Session is a created hosted checkout session.
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// Subscription is the provider's view of a subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            SubscriptionStatus
	PriceID           string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
}

// CardEvent is a verified card-provider webhook normalized to one vocabulary.
// It is queued as is, so every field is serializable.
type CardEvent struct {
	ID                string             `json:"id"`
	Type              string             `json:"type"`
	ProviderType      string             `json:"provider_type"`
	Created           time.Time          `json:"created"`
	UserID            uuid.UUID          `json:"user_id"`
	CustomerID        string             `json:"customer_id"`
	SubscriptionID    string             `json:"subscription_id,omitempty"`
	PriceID           string             `json:"price_id,omitempty"`
	Mode              CheckoutMode       `json:"mode,omitempty"`
	SessionID         string             `json:"session_id,omitempty"`
	PaymentIntentID   string             `json:"payment_intent_id,omitempty"`
	AmountTotal       int64              `json:"amount_total,omitempty"`
	Currency          string             `json:"currency,omitempty"`
	Status            SubscriptionStatus `json:"status,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end,omitempty"`
	CurrentPeriodEnd  *time.Time         `json:"current_period_end,omitempty"`
}

// Provider is the card payment provider boundary.
// Errors worth retrying are joined with fault.ErrTransient.
type Provider interface {
	Name() string
	// Environment names the credential environment, e.g. "test" or "live".
	Environment() string

	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	// CustomerExists reports false for customers unknown to the current environment.
	CustomerExists(ctx context.Context, customerID string) (bool, error)
	DeleteCustomer(ctx context.Context, customerID string) error

	CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error)

	// GetSubscription returns ErrSubscriptionMissing when the id is unknown.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	// ListActiveSubscriptions returns every subscription of the customer that is not canceled.
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	// CancelSubscription ends the subscription now.
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	// ScheduleCancellation stops renewal at the end of the paid period.
	ScheduleCancellation(ctx context.Context, subscriptionID string) (*Subscription, error)

	// SignatureHeader is the request header carrying the webhook signature.
	SignatureHeader() string
	// ParseWebhook verifies the signature and normalizes the payload.
	// Events outside the card vocabulary return a nil event and no error.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*CardEvent, error)
}
