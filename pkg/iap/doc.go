// Package iap handles the platform in-app purchase rail.
//
// The platform posts purchase events with a shared-secret bearer token.
// Authenticate checks the token, Decode parses the body and
// EventPayload.ToEvent translates it into an entitlement.Event.
//
// There is no server-side cancel API for this rail; clients open
// ManageSubscriptionsURL and fall back to ManualInstructions.
package iap
