// Package entitlement owns the per-user access record and the state machine
// that provider events drive.
//
// The record carries a PaymentMethod, a closed sum of NoPayment, CardPayment
// and PlatformPayment. Code that needs to branch on it goes through
// MatchPaymentMethod, which takes one function per variant.
//
// Transition is pure: it takes the stored record and a normalized Event and
// returns the next record or an error. Duplicate, stale and foreign-rail
// events yield errors for which IsIgnorable reports true. Service.Apply
// runs Transition inside Store.Mutate so the read-modify-write is atomic per
// user, then audits and publishes the change.
//
// Every record is validated before it is written: a premium record without a
// payment method is rejected with fault.ErrDataIntegrity. The Postgres schema
// repeats the rule as a CHECK constraint.
package entitlement
