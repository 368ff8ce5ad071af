package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// PurchaseState is the terminal state of a platform purchase sheet.
type PurchaseState string

const (
	PurchaseCompleted PurchaseState = "completed"
	PurchaseCanceled  PurchaseState = "canceled"
	PurchasePending   PurchaseState = "pending"
)

// PurchaseOutcome is what the platform SDK reports after the sheet closes.
type PurchaseOutcome struct {
	State         PurchaseState
	TransactionID string
}

// PurchaseFlow wraps the platform in-app purchase SDK. Implementations must
// tag the purchase with userID as the app user id so the platform webhook
// can be attributed; the entitlement itself is granted by that webhook, not
// by the device.
type PurchaseFlow interface {
	Purchase(ctx context.Context, userID uuid.UUID, productID string) (PurchaseOutcome, error)
}

// PurchaseFlowFunc adapts a function to PurchaseFlow.
type PurchaseFlowFunc func(ctx context.Context, userID uuid.UUID, productID string) (PurchaseOutcome, error)

func (f PurchaseFlowFunc) Purchase(ctx context.Context, userID uuid.UUID, productID string) (PurchaseOutcome, error) {
	return f(ctx, userID, productID)
}

// Purchase runs flow and, once the platform confirms the purchase, drops the
// cached view and re-reads it from the server. Canceled and pending
// purchases leave the cache untouched.
func (c *Client) Purchase(ctx context.Context, flow PurchaseFlow, userID uuid.UUID, productID string) (entitlement.View, error) {
	out, err := flow.Purchase(ctx, userID, productID)
	if err != nil {
		return entitlement.View{}, fmt.Errorf("platform purchase: %w", err)
	}

	switch out.State {
	case PurchaseCanceled:
		return entitlement.View{}, ErrPurchaseCanceled
	case PurchasePending:
		return entitlement.View{}, ErrPurchasePending
	case PurchaseCompleted:
	default:
		return entitlement.View{}, fmt.Errorf("platform purchase: unknown state %q", out.State)
	}

	c.logger.InfoContext(ctx, "platform purchase completed",
		logger.UserID(userID),
		logger.ProductID(productID),
	)
	c.Invalidate(userID)
	return c.Query(ctx, userID, true)
}
