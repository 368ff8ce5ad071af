// Package billing implements the card payment rail.
//
// A Provider abstracts the payment processor. StripeProvider and
// PaddleProvider talk to the real APIs; MemoryProvider backs tests and local
// development.
//
// CheckoutService starts a hosted checkout. It checks the price against the
// Catalog allow-list before any provider call, resolves the user's customer
// mapping (creating it, or replacing it when the stored customer no longer
// exists in the current environment) and then opens the session. A failed
// mapping write deletes the customer that was just created.
//
// WebhookProcessor turns verified provider events into subscription record
// updates and entitlement events:
//
//	checkout.session.completed     INITIAL_PURCHASE
//	invoice.paid                   RENEWAL
//	customer.subscription.updated  CANCELLATION / UNCANCELLATION
//	customer.subscription.deleted  EXPIRATION
//	invoice.payment_failed         BILLING_ISSUE
//
// Records live behind the Repository interface with in-memory and Postgres
// implementations.
package billing
