package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

type contextKey struct{ name string }

func (c contextKey) String() string { return c.name }

var userIDContextKey = &contextKey{name: "identity_user_id"}

// WithUserID stores the authenticated caller in ctx and tags log records
// written with it.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	ctx = logger.WithScope(ctx, logger.UserID(userID))
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the authenticated caller. The second value is
// false outside Middleware.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
