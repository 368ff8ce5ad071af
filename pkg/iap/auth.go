package iap

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/entitlements/pkg/fault"
)

const bearerPrefix = "Bearer "

// Authenticate checks the shared-secret bearer token of a platform webhook.
//
// An empty secret is a server misconfiguration and yields an error joined with
// fault.ErrConfiguration; a missing or wrong token yields ErrUnauthorized
// joined with fault.ErrAuthentication.
func Authenticate(secret string, r *http.Request) error {
	if secret == "" {
		return errors.Join(fault.ErrConfiguration, ErrSecretNotConfigured)
	}

	header := r.Header.Get("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return errors.Join(fault.ErrAuthentication, ErrUnauthorized)
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])

	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return errors.Join(fault.ErrAuthentication, ErrUnauthorized)
	}
	return nil
}

// Authenticator binds a secret to Authenticate.
func Authenticator(secret string) func(*http.Request) error {
	return func(r *http.Request) error {
		return Authenticate(secret, r)
	}
}
