// Package api is the HTTP surface of the entitlement engine.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	POST   /webhooks/card
//	POST   /webhooks/platform
//	POST   /v1/checkout                {priceId, mode, successUrl, cancelUrl} -> {sessionId, url}
//	GET    /v1/entitlement             current view
//	GET    /v1/entitlement/events      SSE: "snapshot" then "entitlement" per change
//	GET    /v1/subscription/actions    what the subscription screen may offer
//	POST   /v1/subscription/cancel     {immediate?}
//	DELETE /v1/account
//
// Everything under /v1 requires a bearer token and is rate limited per user.
// Errors share one body, {error, code, step?, fields?}; data-integrity
// failures use code "contact_support" and deletion aborts carry the step.
package api
