package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Identity is the authentication record that owns an entitlement.
type Identity struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists identities.
type Store interface {
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id uuid.UUID) (*Identity, error)
	// Ensure creates the identity unless it exists and returns the stored one.
	Ensure(ctx context.Context, id uuid.UUID, email string) (*Identity, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id uuid.UUID) error
}
