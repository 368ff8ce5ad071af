package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// Claims carried by access tokens. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Authenticator issues and verifies HS256 access tokens and resolves the
// caller against the identity store.
type Authenticator struct {
	secret  []byte
	issuer  string
	store   Store
	onError ErrorHandler
	logger  *slog.Logger
}

type AuthenticatorOption func(*Authenticator)

func WithIssuer(issuer string) AuthenticatorOption {
	return func(a *Authenticator) { a.issuer = issuer }
}

func WithErrorHandler(h ErrorHandler) AuthenticatorOption {
	return func(a *Authenticator) {
		if h != nil {
			a.onError = h
		}
	}
}

func WithLogger(l *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAuthenticator(secret string, store Store, opts ...AuthenticatorOption) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.Join(fault.ErrConfiguration, ErrMissingSigningKey)
	}
	if store == nil {
		panic("identity: store cannot be nil")
	}
	a := &Authenticator{
		secret:  []byte(secret),
		store:   store,
		onError: defaultErrorHandler,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue signs a token for userID valid for ttl.
func (a *Authenticator) Issue(userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and issuer of token and returns the
// user id it was issued for. It does not consult the store.
func (a *Authenticator) Verify(token string) (uuid.UUID, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnexpectedSigningAlg
		}
		return a.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return uuid.Nil, errors.Join(fault.ErrAuthentication, ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, errors.Join(fault.ErrAuthentication, ErrInvalidSubject)
	}
	return userID, nil
}

// Authenticate verifies token and requires its subject to still exist, so
// tokens of deleted accounts stop working immediately.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	userID, err := a.Verify(token)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := a.store.Get(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return uuid.Nil, errors.Join(fault.ErrAuthentication, ErrUnknownIdentity)
		}
		return uuid.Nil, err
	}
	return userID, nil
}

// Middleware rejects requests without a valid bearer token for an existing
// identity and stores the caller id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil {
			a.onError(w, r, err)
			return
		}
		userID, err := a.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, fault.ErrAuthentication) {
				a.logger.ErrorContext(r.Context(), "failed to resolve identity", logger.Error(err))
			}
			a.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.Join(fault.ErrAuthentication, ErrInvalidToken)
	}
	return strings.TrimSpace(token), nil
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, fault.ErrAuthentication) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
