// Package audit records security-relevant actions on a user's billing state.
//
// A Logger stamps entries with the request id found in the context and hands
// them to a Storage. PgStorage writes to the audit_log table. That table is
// user-owned: account deletion removes its rows along with the other child
// tables. MemoryStorage backs tests.
//
//	log := audit.NewLogger(audit.NewPgStorage(pool),
//	    audit.WithRequestIDExtractor(api.RequestIDFromContext))
//	_ = log.Log(ctx, "subscription.cancel",
//	    audit.WithUser(userID),
//	    audit.WithResource("card_subscription", subID))
package audit
