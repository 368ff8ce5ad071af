package identity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/identity"
)

const testSecret = "test-signing-secret-at-least-32-bytes"

func newAuthenticator(t *testing.T, store identity.Store) *identity.Authenticator {
	t.Helper()
	a, err := identity.NewAuthenticator(testSecret, store, identity.WithIssuer("entitlements-test"))
	require.NoError(t, err)
	return a
}

func TestNewAuthenticator_MissingSecret(t *testing.T) {
	t.Parallel()

	_, err := identity.NewAuthenticator("", identity.NewMemoryStore())
	assert.ErrorIs(t, err, fault.ErrConfiguration)
	assert.ErrorIs(t, err, identity.ErrMissingSigningKey)
}

func TestAuthenticator_IssueAndVerify(t *testing.T) {
	t.Parallel()

	a := newAuthenticator(t, identity.NewMemoryStore())
	userID := uuid.New()

	token, err := a.Issue(userID, "user@example.com", time.Hour)
	require.NoError(t, err)

	got, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestAuthenticator_Verify_Rejects(t *testing.T) {
	t.Parallel()

	a := newAuthenticator(t, identity.NewMemoryStore())
	userID := uuid.New()

	sign := func(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func(sub string) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "entitlements-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	}

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "garbage",
			token:   func(*testing.T) string { return "not-a-jwt" },
			wantErr: identity.ErrInvalidToken,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				c := valid(userID.String())
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
			wantErr: identity.ErrInvalidToken,
		},
		{
			name: "without expiry",
			token: func(t *testing.T) string {
				c := valid(userID.String())
				c.ExpiresAt = nil
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
			wantErr: identity.ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte("another-secret"), valid(userID.String()))
			},
			wantErr: identity.ErrInvalidToken,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				c := valid(userID.String())
				c.Issuer = "someone-else"
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
			wantErr: identity.ErrInvalidToken,
		},
		{
			name: "subject is not a uuid",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), valid("alice"))
			},
			wantErr: identity.ErrInvalidSubject,
		},
		{
			name: "HS512 is not accepted",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS512, []byte(testSecret), valid(userID.String()))
			},
			wantErr: identity.ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := a.Verify(tt.token(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, fault.ErrAuthentication)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAuthenticator_Middleware(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	a := newAuthenticator(t, store)
	ctx := context.Background()

	userID := uuid.New()
	_, err := store.Ensure(ctx, userID, "user@example.com")
	require.NoError(t, err)
	token, err := a.Issue(userID, "user@example.com", time.Hour)
	require.NoError(t, err)

	var seen uuid.UUID
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity.UserIDFromContext(r.Context())
		require.True(t, ok)
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("Bearer "+token))
	assert.Equal(t, userID, seen)
	assert.Equal(t, http.StatusNoContent, call("bearer "+token))

	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("Basic "+token))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "))

	// A deleted account cannot authenticate with a still valid token.
	require.NoError(t, store.Delete(ctx, userID))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+token))
}

func TestUserIDFromContext_Missing(t *testing.T) {
	t.Parallel()

	_, ok := identity.UserIDFromContext(context.Background())
	assert.False(t, ok)
}
