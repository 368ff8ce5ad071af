// Package accountdeletion removes a user and everything they own across both
// payment rails.
//
// The procedure is ordered and best effort:
//
//  1. Read the payment method. A missing entitlement counts as none.
//  2. Card cleanup, when the rail is card or a customer mapping exists:
//     cancel live subscriptions, delete the provider customer, then drop the
//     local subscription record, orders and mappings.
//  3. Platform purchases need no remote action.
//  4. Clear user-owned child tables.
//  5. Delete the entitlement row.
//  6. Delete the authentication identity.
//
// Steps 1 to 4 log and continue; their failures end up in Report.Warnings.
// Steps 5 and 6 abort with a *StepError, which unwraps to
// fault.ErrPartialFailure. Calling Delete again after an abort is safe since
// the earlier steps are no-ops on missing data.
package accountdeletion
