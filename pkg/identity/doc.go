// Package identity resolves the caller of the entitlement API.
//
// Access tokens are HS256 JWTs whose subject is the user id. The
// Authenticator middleware verifies the token, then requires the identity to
// still exist in the Store, so an account removed by deletion can no longer
// authenticate even with an unexpired token. Handlers read the caller with
// UserIDFromContext.
package identity
