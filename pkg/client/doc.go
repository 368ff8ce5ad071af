// Package client is the device-side SDK for the entitlement API.
//
// It keeps a short-lived cache of the caller's entitlement view. Entries
// expire after a TTL between one and five minutes and are dropped early
// after a checkout return, a completed platform purchase, a cancellation, or
// a change pushed over the event stream:
//
//	c, err := client.New("https://api.example.com", client.StaticToken(token))
//	if err != nil {
//		return err
//	}
//	view, err := c.Query(ctx, userID, false)
//
// Run Watch in its own goroutine to keep the cache in sync with webhook
// driven changes:
//
//	go func() {
//		_ = c.Watch(ctx, userID, func(ch notify.Change) {
//			refreshPaywall(ch.Status)
//		})
//	}()
//
// The cache is a latency optimisation for one device. Reads within the TTL
// may be stale; pass forceRefresh when the answer must come from the server.
package client
