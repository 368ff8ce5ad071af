// Package httpserver runs the API handler with production timeouts and a
// graceful shutdown bound to a context.
//
//	srv := httpserver.New(cfg, router, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx) })
//
// Run returns when ctx is canceled and in-flight requests have finished or
// ShutdownTimeout has passed. Request contexts are canceled when shutdown
// starts so server-sent event streams close instead of holding it open.
// Errors wrap ErrStart or ErrShutdown.
package httpserver
