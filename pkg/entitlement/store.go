package entitlement

import (
	"context"

	"github.com/google/uuid"
)

// MutateFunc receives the stored record, or New(userID) with exists=false,
// and returns the record to persist. Returning an error persists nothing.
type MutateFunc func(current Entitlement, exists bool) (Entitlement, error)

// Store persists entitlements. Implementations must serialize Mutate calls
// for the same user and validate the record before writing it.
type Store interface {
	// Get returns ErrNotFound when the user has no record.
	Get(ctx context.Context, userID uuid.UUID) (*Entitlement, error)
	// Mutate performs an atomic read-modify-write.
	Mutate(ctx context.Context, userID uuid.UUID, fn MutateFunc) (*Entitlement, error)
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, userID uuid.UUID) error
}
