package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"

	"github.com/dmitrymomot/entitlements/pkg/fault"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	// CheckoutURL is the approved domain page hosting Paddle.js checkout.
	CheckoutURL string `env:"PADDLE_CHECKOUT_URL"`
}

// PaddleProvider implements Provider for Paddle Billing.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleProvider creates a Paddle provider for the sandbox or production environment.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.Join(fault.ErrConfiguration, ErrMissingAPIKey)
	}
	if config.WebhookSecret == "" {
		return nil, errors.Join(fault.ErrConfiguration, ErrMissingWebhookKey)
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		config.Environment = "production"
		client, err = paddle.New(config.APIKey)
	default:
		return nil, errors.Join(fault.ErrConfiguration, fmt.Errorf("invalid paddle environment: %s", config.Environment))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

func (p *PaddleProvider) Name() string        { return "paddle" }
func (p *PaddleProvider) Environment() string { return strings.ToLower(p.config.Environment) }

func (p *PaddleProvider) SignatureHeader() string { return "Paddle-Signature" }

func (p *PaddleProvider) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	if params.Email == "" {
		return "", errors.Join(fault.ErrValidation, errors.New("paddle customers require an email"))
	}
	c, err := p.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email:      params.Email,
		CustomData: paddle.CustomData{"user_id": params.UserID.String()},
	})
	if err != nil {
		return "", paddleError(err)
	}
	return c.ID, nil
}

func (p *PaddleProvider) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	c, err := p.client.CustomersClient.GetCustomer(ctx, &paddle.GetCustomerRequest{CustomerID: customerID})
	if err != nil {
		if isPaddleMissing(err) {
			return false, nil
		}
		return false, paddleError(err)
	}
	return c.Status != paddle.StatusArchived, nil
}

// DeleteCustomer archives the customer. Paddle has no hard delete.
func (p *PaddleProvider) DeleteCustomer(ctx context.Context, customerID string) error {
	_, err := p.client.CustomersClient.UpdateCustomer(ctx, &paddle.UpdateCustomerRequest{
		CustomerID: customerID,
		Status:     paddle.NewPatchField(paddle.StatusArchived),
	})
	if err != nil && !isPaddleMissing(err) {
		return paddleError(err)
	}
	return nil
}

// CreateCheckoutSession creates a transaction; its checkout URL opens the
// Paddle overlay for that transaction.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  params.PriceID,
		Quantity: 1,
	})

	req := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(params.CustomerID),
		CustomData: paddle.CustomData{
			"user_id":     params.UserID.String(),
			"price_id":    params.PriceID,
			"mode":        string(params.Mode),
			"success_url": params.SuccessURL,
			"cancel_url":  params.CancelURL,
		},
	}
	if p.config.CheckoutURL != "" {
		req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(p.config.CheckoutURL)}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, paddleError(err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil {
		return nil, errors.New("no checkout URL returned from paddle")
	}
	return &Session{ID: tx.ID, URL: *tx.Checkout.URL}, nil
}

func (p *PaddleProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	s, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		if isPaddleMissing(err) {
			return nil, errors.Join(fault.ErrNotFound, ErrSubscriptionMissing)
		}
		return nil, paddleError(err)
	}
	return fromPaddleSubscription(s), nil
}

func (p *PaddleProvider) ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	res, err := p.client.SubscriptionsClient.ListSubscriptions(ctx, &paddle.ListSubscriptionsRequest{
		CustomerID: []string{customerID},
	})
	if err != nil {
		return nil, paddleError(err)
	}

	var out []Subscription
	err = res.Iter(ctx, func(s *paddle.Subscription) (bool, error) {
		sub := fromPaddleSubscription(s)
		if !sub.Status.IsCanceled() {
			out = append(out, *sub)
		}
		return true, nil
	})
	if err != nil {
		return nil, paddleError(err)
	}
	return out, nil
}

func (p *PaddleProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return p.cancel(ctx, subscriptionID, paddle.EffectiveFromImmediately)
}

func (p *PaddleProvider) ScheduleCancellation(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return p.cancel(ctx, subscriptionID, paddle.EffectiveFromNextBillingPeriod)
}

func (p *PaddleProvider) cancel(ctx context.Context, subscriptionID string, from paddle.EffectiveFrom) (*Subscription, error) {
	s, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionID,
		EffectiveFrom:  paddle.PtrTo(from),
	})
	if err != nil {
		if isPaddleMissing(err) {
			return nil, errors.Join(fault.ErrNotFound, ErrSubscriptionMissing)
		}
		return nil, paddleError(err)
	}
	return fromPaddleSubscription(s), nil
}

// ParseWebhook verifies the Paddle-Signature header and normalizes the event.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*CardEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil || !valid {
		return nil, errors.Join(fault.ErrAuthentication, ErrInvalidSignature, err)
	}

	var envelope struct {
		EventID    string          `json:"event_id"`
		EventType  string          `json:"event_type"`
		OccurredAt time.Time       `json:"occurred_at"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, errors.Join(fault.ErrValidation, ErrInvalidPayload, err)
	}

	ev := &CardEvent{
		ID:           envelope.EventID,
		ProviderType: envelope.EventType,
		Created:      envelope.OccurredAt.UTC(),
	}

	switch {
	case strings.HasPrefix(envelope.EventType, "transaction."):
		err = decodePaddleTransaction(envelope.EventType, envelope.Data, ev)
	case strings.HasPrefix(envelope.EventType, "subscription."):
		err = decodePaddleSubscription(envelope.EventType, envelope.Data, ev)
	}
	if err != nil {
		return nil, errors.Join(fault.ErrValidation, ErrInvalidPayload, err)
	}
	if ev.Type == "" {
		return nil, nil
	}
	return ev, nil
}

type paddleTransactionPayload struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer_id"`
	SubscriptionID string            `json:"subscription_id"`
	Origin         string            `json:"origin"`
	CurrencyCode   string            `json:"currency_code"`
	CustomData     map[string]string `json:"custom_data"`
	BillingPeriod  *struct {
		EndsAt time.Time `json:"ends_at"`
	} `json:"billing_period"`
	Items []struct {
		PriceID string `json:"price_id"`
		Price   *struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
	Details *struct {
		Totals *struct {
			GrandTotal string `json:"grand_total"`
		} `json:"totals"`
	} `json:"details"`
}

func decodePaddleTransaction(eventType string, raw json.RawMessage, ev *CardEvent) error {
	var tx paddleTransactionPayload
	if err := json.Unmarshal(raw, &tx); err != nil {
		return err
	}

	switch eventType {
	case "transaction.completed":
		switch {
		case tx.SubscriptionID == "":
			ev.Type = EventCheckoutCompleted
			ev.Mode = ModePayment
		case tx.Origin == "subscription_recurring":
			ev.Type = EventInvoicePaid
		default:
			ev.Type = EventCheckoutCompleted
			ev.Mode = ModeSubscription
			ev.Status = StatusActive
		}
	case "transaction.payment_failed":
		if tx.SubscriptionID == "" {
			return nil
		}
		ev.Type = EventInvoicePaymentFailed
	default:
		return nil
	}

	if tx.CustomerID == "" {
		return errors.New("transaction without customer")
	}
	ev.CustomerID = tx.CustomerID
	ev.SubscriptionID = tx.SubscriptionID
	ev.SessionID = tx.ID
	ev.Currency = tx.CurrencyCode
	ev.UserID = parseUserID(tx.CustomData["user_id"])
	ev.PriceID = tx.CustomData["price_id"]
	if ev.PriceID == "" && len(tx.Items) > 0 {
		ev.PriceID = tx.Items[0].PriceID
		if ev.PriceID == "" && tx.Items[0].Price != nil {
			ev.PriceID = tx.Items[0].Price.ID
		}
	}
	if tx.BillingPeriod != nil && !tx.BillingPeriod.EndsAt.IsZero() {
		end := tx.BillingPeriod.EndsAt.UTC()
		ev.CurrentPeriodEnd = &end
	}
	if tx.Details != nil && tx.Details.Totals != nil {
		_, _ = fmt.Sscan(tx.Details.Totals.GrandTotal, &ev.AmountTotal)
	}
	return nil
}

type paddleSubscriptionPayload struct {
	ID                   string            `json:"id"`
	CustomerID           string            `json:"customer_id"`
	Status               string            `json:"status"`
	CustomData           map[string]string `json:"custom_data"`
	CurrentBillingPeriod *struct {
		EndsAt time.Time `json:"ends_at"`
	} `json:"current_billing_period"`
	ScheduledChange *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	Items []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
}

func decodePaddleSubscription(eventType string, raw json.RawMessage, ev *CardEvent) error {
	var s paddleSubscriptionPayload
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}

	switch eventType {
	case "subscription.updated", "subscription.resumed", "subscription.paused":
		ev.Type = EventSubscriptionUpdated
	case "subscription.canceled":
		ev.Type = EventSubscriptionDeleted
	case "subscription.past_due":
		ev.Type = EventInvoicePaymentFailed
	default:
		return nil
	}

	if s.ID == "" || s.CustomerID == "" {
		return errors.New("subscription without id or customer")
	}
	ev.CustomerID = s.CustomerID
	ev.SubscriptionID = s.ID
	ev.Status = mapPaddleStatus(s.Status)
	ev.UserID = parseUserID(s.CustomData["user_id"])
	ev.CancelAtPeriodEnd = s.ScheduledChange != nil && s.ScheduledChange.Action == "cancel"
	if len(s.Items) > 0 {
		ev.PriceID = s.Items[0].Price.ID
	}
	if s.CurrentBillingPeriod != nil && !s.CurrentBillingPeriod.EndsAt.IsZero() {
		end := s.CurrentBillingPeriod.EndsAt.UTC()
		ev.CurrentPeriodEnd = &end
	}
	return nil
}

func fromPaddleSubscription(s *paddle.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		CustomerID:        s.CustomerID,
		Status:            mapPaddleStatus(string(s.Status)),
		CancelAtPeriodEnd: s.ScheduledChange != nil && s.ScheduledChange.Action == paddle.ScheduledChangeActionCancel,
	}
	if len(s.Items) > 0 {
		out.PriceID = s.Items[0].Price.ID
	}
	if s.CurrentBillingPeriod != nil {
		if end, err := time.Parse(time.RFC3339, s.CurrentBillingPeriod.EndsAt); err == nil {
			end = end.UTC()
			out.CurrentPeriodEnd = &end
		}
	}
	return out
}

func mapPaddleStatus(status string) SubscriptionStatus {
	switch strings.ToLower(status) {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "paused":
		return StatusPaused
	case "canceled", "cancelled":
		return StatusCanceled
	default:
		return SubscriptionStatus(status)
	}
}

func isPaddleMissing(err error) bool {
	var pe *paddleerr.Error
	return errors.As(err, &pe) && pe.Status == http.StatusNotFound
}

func paddleError(err error) error {
	var pe *paddleerr.Error
	if !errors.As(err, &pe) {
		return fault.Transient(fmt.Errorf("paddle: %w", err))
	}
	if pe.Status == http.StatusTooManyRequests || pe.Status >= http.StatusInternalServerError {
		return fault.Transient(fmt.Errorf("paddle: %w", err))
	}
	return fmt.Errorf("paddle: %w", err)
}
