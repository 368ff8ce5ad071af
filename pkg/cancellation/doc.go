// Package cancellation routes a user's cancel request to the rail that bills
// them.
//
// Card subscriptions are confirmed with the provider and then either
// scheduled to end with the paid period or, when immediate cancellation is
// enabled outside production, canceled on the spot. The platform rail has no
// server-side API: the result carries the settings deep link and manual
// instructions instead. A premium record without a payment method is refused
// with fault.ErrDataIntegrity.
//
// Actions maps an entitlement view to the options a subscription screen shows.
package cancellation
