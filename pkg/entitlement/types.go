package entitlement

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/fault"
)

// Status is the access decision for a user.
type Status string

const (
	StatusFree    Status = "free"
	StatusPremium Status = "premium"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusFree || s == StatusPremium
}

// Entitlement is the authoritative per-user record.
type Entitlement struct {
	UserID            uuid.UUID
	Status            Status
	PaymentMethod     PaymentMethod
	ProductID         string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	BillingIssueAt    *time.Time
	TotalUsageCount   int64

	// LastEventID and LastEventAt describe the newest provider event applied
	// to this record. They drive deduplication and the ordering guard.
	LastEventID string
	LastEventAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns the default record for a user that never paid.
func New(userID uuid.UUID) Entitlement {
	return Entitlement{
		UserID:        userID,
		Status:        StatusFree,
		PaymentMethod: NoPayment{},
	}
}

// IsPremium reports whether the user currently has premium access.
func (e Entitlement) IsPremium() bool {
	return e.Status == StatusPremium
}

// Validate checks the record invariants. A premium record must name a payment
// rail, and that rail must carry its provider identifier.
func (e Entitlement) Validate() error {
	if e.UserID == uuid.Nil {
		return errors.Join(fault.ErrValidation, ErrMissingUserID)
	}
	if !e.Status.Valid() {
		return errors.Join(fault.ErrDataIntegrity, ErrUnknownStatus)
	}
	if e.Status == StatusPremium && KindOf(e.PaymentMethod) == KindNone {
		return errors.Join(fault.ErrDataIntegrity, ErrPremiumWithoutPayment)
	}
	if err := validatePaymentMethod(e.PaymentMethod); err != nil {
		return errors.Join(fault.ErrDataIntegrity, err)
	}
	return nil
}

// View is the read model returned to clients.
type View struct {
	Status             Status            `json:"status"`
	PaymentMethod      PaymentMethodKind `json:"paymentMethod"`
	RenewalDate        *time.Time        `json:"renewalDate,omitempty"`
	CancelsAtPeriodEnd bool              `json:"cancelsAtPeriodEnd"`
	BillingIssue       bool              `json:"billingIssue,omitempty"`
	ProductID          string            `json:"productId,omitempty"`
}

// FreeView is the answer for users without a record.
func FreeView() View {
	return View{Status: StatusFree, PaymentMethod: KindNone}
}

// View projects the record into its client-facing shape.
func (e Entitlement) View() View {
	v := View{
		Status:             e.Status,
		PaymentMethod:      KindOf(e.PaymentMethod),
		CancelsAtPeriodEnd: e.CancelAtPeriodEnd,
		BillingIssue:       e.BillingIssueAt != nil,
		ProductID:          e.ProductID,
	}
	if e.Status == StatusPremium && e.CurrentPeriodEnd != nil {
		t := *e.CurrentPeriodEnd
		v.RenewalDate = &t
	}
	return v
}
