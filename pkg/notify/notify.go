package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Change describes a new entitlement state for a user.
type Change struct {
	UserID             uuid.UUID `json:"userId"`
	Status             string    `json:"status"`
	PaymentMethod      string    `json:"paymentMethod"`
	CancelsAtPeriodEnd bool      `json:"cancelsAtPeriodEnd"`
	Reason             string    `json:"reason"`
	At                 time.Time `json:"at"`
}

// Publisher announces changes.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Subscriber hands out per-user subscriptions.
// The subscription ends when ctx is cancelled or Close is called.
type Subscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error)
}

// Hub is both ends of the channel.
type Hub interface {
	Publisher
	Subscriber
}

// Subscription delivers changes for one user.
type Subscription interface {
	C() <-chan Change
	Close() error
}

// DefaultBufferSize is the per-subscription channel buffer.
const DefaultBufferSize = 16

// Discard is a Publisher that drops every change.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Change) error { return nil }
