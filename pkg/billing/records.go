package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CustomerMapping links a user to a provider customer. At most one mapping
// per user has a nil DeletedAt.
type CustomerMapping struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	CustomerID  string
	Environment string
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// SubscriptionRecord is the local mirror of the provider subscription,
// keyed by customer.
type SubscriptionRecord struct {
	CustomerID        string
	SubscriptionID    string
	Status            SubscriptionStatus
	PriceID           string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	UpdatedAt         time.Time
}

// Order is a completed one-time payment.
type Order struct {
	ID              uuid.UUID
	CustomerID      string
	UserID          uuid.UUID
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Status          string
	CreatedAt       time.Time
}

// Repository persists card billing state.
type Repository interface {
	// ActiveMapping returns ErrMappingNotFound when the user has no active mapping.
	ActiveMapping(ctx context.Context, userID uuid.UUID) (*CustomerMapping, error)
	MappingByCustomer(ctx context.Context, customerID string) (*CustomerMapping, error)
	MappingsForUser(ctx context.Context, userID uuid.UUID) ([]CustomerMapping, error)
	// InsertMapping creates the active mapping. When another one already
	// exists it is returned with created=false and nothing is written.
	InsertMapping(ctx context.Context, userID uuid.UUID, customerID, environment string) (*CustomerMapping, bool, error)
	// ReplaceMapping soft-deletes the active mapping and inserts a new one atomically.
	ReplaceMapping(ctx context.Context, userID uuid.UUID, oldCustomerID, newCustomerID, environment string) (*CustomerMapping, error)
	DeleteMappings(ctx context.Context, userID uuid.UUID) error

	SubscriptionRecord(ctx context.Context, customerID string) (*SubscriptionRecord, error)
	UpsertSubscriptionRecord(ctx context.Context, rec SubscriptionRecord) error
	DeleteSubscriptionRecord(ctx context.Context, customerID string) error

	RecordOrder(ctx context.Context, order Order) error
	DeleteOrders(ctx context.Context, customerID string) error
}
