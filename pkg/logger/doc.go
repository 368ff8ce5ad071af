// Package logger builds the *slog.Logger used across the entitlement engine.
//
// New applies functional options on top of production-safe defaults (JSON,
// INFO). In development the text format is rendered by tint, coloured only
// when writing to a terminal. Registered ContextExtractor callbacks inject
// request-scoped attributes such as the request id on every record.
//
// Attribute helpers in attr.go keep key names consistent between packages:
//
//	log.InfoContext(ctx, "webhook accepted",
//	    logger.Provider("card"),
//	    logger.EventType("invoice.paid"),
//	    logger.UserID(userID))
package logger
