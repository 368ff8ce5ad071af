package iap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
)

// Platform event types.
const (
	TypeInitialPurchase     = "INITIAL_PURCHASE"
	TypeNonRenewingPurchase = "NON_RENEWING_PURCHASE"
	TypeRenewal             = "RENEWAL"
	TypeProductChange       = "PRODUCT_CHANGE"
	TypeCancellation        = "CANCELLATION"
	TypeUncancellation      = "UNCANCELLATION"
	TypeExpiration          = "EXPIRATION"
	TypeBillingIssue        = "BILLING_ISSUE"
	TypeTest                = "TEST"
)

// WebhookBody is the request body posted by the platform.
type WebhookBody struct {
	Event EventPayload `json:"event"`
}

// EventPayload is a single platform purchase event.
type EventPayload struct {
	ID                    string `json:"id,omitempty"`
	Type                  string `json:"type"`
	AppUserID             string `json:"app_user_id"`
	OriginalAppUserID     string `json:"original_app_user_id"`
	ProductID             string `json:"product_id"`
	PeriodType            string `json:"period_type"`
	PurchasedAtMs         int64  `json:"purchased_at_ms"`
	ExpirationAtMs        *int64 `json:"expiration_at_ms,omitempty"`
	EventTimestampMs      int64  `json:"event_timestamp_ms,omitempty"`
	Store                 string `json:"store"`
	Environment           string `json:"environment"`
	TransactionID         string `json:"transaction_id,omitempty"`
	OriginalTransactionID string `json:"original_transaction_id,omitempty"`
}

// Decode parses a webhook body. The event type is required.
func Decode(data []byte) (*WebhookBody, error) {
	var body WebhookBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, errors.Join(fault.ErrValidation, ErrInvalidPayload, err)
	}
	if body.Event.Type == "" {
		return nil, errors.Join(fault.ErrValidation, ErrInvalidPayload, errors.New("missing event type"))
	}
	return &body, nil
}

// UserID resolves the subject user: app_user_id first, then
// original_app_user_id. Anonymous platform ids do not resolve.
func (p EventPayload) UserID() (uuid.UUID, error) {
	for _, candidate := range []string{p.AppUserID, p.OriginalAppUserID} {
		if id, err := uuid.Parse(candidate); err == nil && id != uuid.Nil {
			return id, nil
		}
	}
	return uuid.Nil, errors.Join(fault.ErrValidation, ErrInvalidUserID)
}

// EventID is the platform event id, or a key derived from the type,
// transaction and purchase time when the platform did not send one.
func (p EventPayload) EventID() string {
	if p.ID != "" {
		return p.ID
	}
	tx := p.TransactionID
	if tx == "" {
		tx = p.OriginalTransactionID
	}
	return p.Type + ":" + tx + ":" + strconv.FormatInt(p.PurchasedAtMs, 10)
}

// OccurredAt is the event timestamp, falling back to the purchase time.
func (p EventPayload) OccurredAt() time.Time {
	if p.EventTimestampMs > 0 {
		return time.UnixMilli(p.EventTimestampMs).UTC()
	}
	if p.PurchasedAtMs > 0 {
		return time.UnixMilli(p.PurchasedAtMs).UTC()
	}
	return time.Time{}
}

// ToEvent maps the payload onto the entitlement state machine.
func (p EventPayload) ToEvent() (entitlement.Event, error) {
	var kind entitlement.EventType
	switch p.Type {
	case TypeInitialPurchase, TypeNonRenewingPurchase:
		kind = entitlement.EventInitialPurchase
	case TypeRenewal, TypeProductChange:
		kind = entitlement.EventRenewal
	case TypeCancellation:
		kind = entitlement.EventCancellation
	case TypeUncancellation:
		kind = entitlement.EventUncancellation
	case TypeExpiration:
		kind = entitlement.EventExpiration
	case TypeBillingIssue:
		kind = entitlement.EventBillingIssue
	default:
		return entitlement.Event{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, p.Type)
	}

	userID, err := p.UserID()
	if err != nil {
		return entitlement.Event{}, err
	}

	original := p.OriginalTransactionID
	if original == "" {
		original = p.TransactionID
	}

	ev := entitlement.Event{
		ID:         p.EventID(),
		Type:       kind,
		UserID:     userID,
		OccurredAt: p.OccurredAt(),
		ProductID:  p.ProductID,
		Payment: entitlement.PlatformPayment{
			OriginalTransactionID: original,
			TransactionID:         p.TransactionID,
			CustomerID:            p.AppUserID,
		},
	}
	if p.ExpirationAtMs != nil && *p.ExpirationAtMs > 0 {
		t := time.UnixMilli(*p.ExpirationAtMs).UTC()
		ev.ExpiresAt = &t
	}
	return ev, nil
}
