package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/customer"
	"github.com/stripe/stripe-go/v83/subscription"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/dmitrymomot/entitlements/pkg/fault"
)

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// StripeProvider implements Provider on top of stripe-go.
type StripeProvider struct {
	webhookSecret string
	environment   string
}

// NewStripeProvider configures the global Stripe key. One provider per process.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.Join(fault.ErrConfiguration, ErrMissingAPIKey)
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.Join(fault.ErrConfiguration, ErrMissingWebhookKey)
	}
	stripe.Key = cfg.SecretKey

	env := "live"
	if strings.Contains(cfg.SecretKey, "_test_") {
		env = "test"
	}
	return &StripeProvider{webhookSecret: cfg.WebhookSecret, environment: env}, nil
}

func (p *StripeProvider) Name() string        { return "stripe" }
func (p *StripeProvider) Environment() string { return p.environment }

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

func (p *StripeProvider) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	cp := &stripe.CustomerParams{}
	cp.Context = ctx
	if params.Email != "" {
		cp.Email = stripe.String(params.Email)
	}
	cp.AddMetadata("user_id", params.UserID.String())

	c, err := customer.New(cp)
	if err != nil {
		return "", stripeError(err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CustomerExists(_ context.Context, customerID string) (bool, error) {
	c, err := customer.Get(customerID, nil)
	if err != nil {
		if isStripeMissing(err) {
			return false, nil
		}
		return false, stripeError(err)
	}
	return !c.Deleted, nil
}

func (p *StripeProvider) DeleteCustomer(_ context.Context, customerID string) error {
	if _, err := customer.Del(customerID, nil); err != nil {
		if isStripeMissing(err) {
			return nil
		}
		return stripeError(err)
	}
	return nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	sp := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(params.Mode)),
		Customer:          stripe.String(params.CustomerID),
		ClientReferenceID: stripe.String(params.UserID.String()),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(params.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	sp.Context = ctx
	sp.AddMetadata("user_id", params.UserID.String())
	sp.AddMetadata("price_id", params.PriceID)
	if params.Mode == ModeSubscription {
		sp.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": params.UserID.String()},
		}
	}

	s, err := session.New(sp)
	if err != nil {
		return nil, stripeError(err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) GetSubscription(_ context.Context, subscriptionID string) (*Subscription, error) {
	s, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		if isStripeMissing(err) {
			return nil, errors.Join(fault.ErrNotFound, ErrSubscriptionMissing)
		}
		return nil, stripeError(err)
	}
	return fromStripeSubscription(s), nil
}

func (p *StripeProvider) ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	lp := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	lp.Context = ctx

	var out []Subscription
	it := subscription.List(lp)
	for it.Next() {
		s := fromStripeSubscription(it.Subscription())
		if !s.Status.IsCanceled() {
			out = append(out, *s)
		}
	}
	if err := it.Err(); err != nil {
		if isStripeMissing(err) {
			return nil, nil
		}
		return nil, stripeError(err)
	}
	return out, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	cp := &stripe.SubscriptionCancelParams{}
	cp.Context = ctx
	s, err := subscription.Cancel(subscriptionID, cp)
	if err != nil {
		if isStripeMissing(err) {
			return nil, errors.Join(fault.ErrNotFound, ErrSubscriptionMissing)
		}
		return nil, stripeError(err)
	}
	return fromStripeSubscription(s), nil
}

func (p *StripeProvider) ScheduleCancellation(ctx context.Context, subscriptionID string) (*Subscription, error) {
	up := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	up.Context = ctx
	s, err := subscription.Update(subscriptionID, up)
	if err != nil {
		if isStripeMissing(err) {
			return nil, errors.Join(fault.ErrNotFound, ErrSubscriptionMissing)
		}
		return nil, stripeError(err)
	}
	return fromStripeSubscription(s), nil
}

func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*CardEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(fault.ErrAuthentication, ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, errors.Join(fault.ErrValidation, ErrInvalidPayload)
	}

	ev := &CardEvent{
		ID:           event.ID,
		Type:         string(event.Type),
		ProviderType: string(event.Type),
		Created:      time.Unix(event.Created, 0).UTC(),
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		err = decodeStripeSession(event.Data.Raw, ev)
	case EventInvoicePaid, EventInvoicePaymentFailed:
		err = decodeStripeInvoice(event.Data.Raw, ev)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		err = decodeStripeSubscription(event.Data.Raw, ev)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(fault.ErrValidation, ErrInvalidPayload, err)
	}
	return ev, nil
}

type stripeSessionPayload struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentIntent     string            `json:"payment_intent"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

func decodeStripeSession(raw json.RawMessage, ev *CardEvent) error {
	var s stripeSessionPayload
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s.Customer == "" {
		return errors.New("checkout session without customer")
	}
	ev.CustomerID = s.Customer
	ev.SubscriptionID = s.Subscription
	ev.SessionID = s.ID
	ev.PaymentIntentID = s.PaymentIntent
	ev.AmountTotal = s.AmountTotal
	ev.Currency = s.Currency
	ev.Mode = CheckoutMode(s.Mode)
	ev.PriceID = s.Metadata["price_id"]
	ev.UserID = parseUserID(s.Metadata["user_id"], s.ClientReferenceID)
	if ev.Mode == ModeSubscription {
		ev.Status = StatusActive
	}
	return nil
}

type stripeInvoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
			Pricing *struct {
				PriceDetails *struct {
					Price string `json:"price"`
				} `json:"price_details"`
			} `json:"pricing"`
		} `json:"data"`
	} `json:"lines"`
}

func decodeStripeInvoice(raw json.RawMessage, ev *CardEvent) error {
	var inv stripeInvoicePayload
	if err := json.Unmarshal(raw, &inv); err != nil {
		return err
	}
	if inv.Customer == "" {
		return errors.New("invoice without customer")
	}
	ev.CustomerID = inv.Customer
	ev.SubscriptionID = inv.Subscription
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if ev.SubscriptionID == "" {
			ev.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription
		}
		ev.UserID = parseUserID(inv.Parent.SubscriptionDetails.Metadata["user_id"])
	}
	for _, line := range inv.Lines.Data {
		if line.Period.End > 0 {
			ev.CurrentPeriodEnd = unixTime(line.Period.End)
		}
		if line.Pricing != nil && line.Pricing.PriceDetails != nil && ev.PriceID == "" {
			ev.PriceID = line.Pricing.PriceDetails.Price
		}
	}
	return nil
}

type stripeSubscriptionPayload struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CancelAt          int64             `json:"cancel_at"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func decodeStripeSubscription(raw json.RawMessage, ev *CardEvent) error {
	var s stripeSubscriptionPayload
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s.Customer == "" || s.ID == "" {
		return errors.New("subscription without id or customer")
	}
	ev.CustomerID = s.Customer
	ev.SubscriptionID = s.ID
	ev.Status = SubscriptionStatus(s.Status)
	ev.CancelAtPeriodEnd = s.CancelAtPeriodEnd || s.CancelAt > 0
	ev.UserID = parseUserID(s.Metadata["user_id"])

	periodEnd := s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		ev.PriceID = s.Items.Data[0].Price.ID
		if s.Items.Data[0].CurrentPeriodEnd > 0 {
			periodEnd = s.Items.Data[0].CurrentPeriodEnd
		}
	}
	if periodEnd > 0 {
		ev.CurrentPeriodEnd = unixTime(periodEnd)
	}
	return nil
}

func fromStripeSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		Status:            SubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd || s.CancelAt > 0,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			out.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}
	return out
}

func isStripeMissing(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && (se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound)
}

// stripeError marks network failures, rate limiting and 5xx as transient.
func stripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fault.Transient(fmt.Errorf("stripe: %w", err))
	}
	if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError {
		return fault.Transient(fmt.Errorf("stripe: %w", err))
	}
	return fmt.Errorf("stripe: %w", err)
}

func parseUserID(candidates ...string) uuid.UUID {
	for _, c := range candidates {
		if id, err := uuid.Parse(c); err == nil && id != uuid.Nil {
			return id
		}
	}
	return uuid.Nil
}

func unixTime(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}
