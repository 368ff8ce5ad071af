package accountdeletion

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

// Step identifies a stage of the deletion procedure.
type Step string

const (
	StepReadPaymentMethod   Step = "read_payment_method"
	StepCancelSubscriptions Step = "cancel_subscriptions"
	StepDeleteCustomer      Step = "delete_customer"
	StepDeleteCardRecords   Step = "delete_card_records"
	StepDeleteChildRows     Step = "delete_child_rows"
	StepDeleteEntitlement   Step = "delete_entitlement"
	StepDeleteIdentity      Step = "delete_identity"
)

// Warning is a failure the procedure logged and continued past.
type Warning struct {
	Step   Step   `json:"step"`
	Target string `json:"target,omitempty"`
	Error  string `json:"error"`
}

// Report summarises a completed deletion.
type Report struct {
	UserID                uuid.UUID                     `json:"userId"`
	PaymentMethod         entitlement.PaymentMethodKind `json:"paymentMethod"`
	CanceledSubscriptions []string                      `json:"canceledSubscriptions,omitempty"`
	DeletedCustomers      []string                      `json:"deletedCustomers,omitempty"`
	DeletedRows           map[string]int64              `json:"deletedRows,omitempty"`
	Warnings              []Warning                     `json:"warnings,omitempty"`
}

func (r *Report) warn(step Step, target string, err error) {
	r.Warnings = append(r.Warnings, Warning{Step: step, Target: target, Error: err.Error()})
}

// EntitlementService reads and removes the entitlement row.
type EntitlementService interface {
	Get(ctx context.Context, userID uuid.UUID) (*entitlement.Entitlement, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

// IdentityStore removes the authentication identity. Deleting a missing
// identity must not fail.
type IdentityStore interface {
	Delete(ctx context.Context, userID uuid.UUID) error
}

// RowDeleter removes the rows a user owns in one table.
type RowDeleter interface {
	DeleteUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// RowDeleterFunc adapts a function to RowDeleter.
type RowDeleterFunc func(ctx context.Context, userID uuid.UUID) (int64, error)

func (f RowDeleterFunc) DeleteUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return f(ctx, userID)
}

// ChildTable names a user-owned table and how to clear it.
type ChildTable struct {
	Name string
	Rows RowDeleter
}
