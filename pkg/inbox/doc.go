// Package inbox is a durable task queue for work that must survive the HTTP
// request that produced it.
//
// Webhook ingestors acknowledge the provider as soon as the event is stored
// with Enqueuer.Enqueue; a Worker claims it later, runs the registered
// Handler and retries failures with exponential backoff. A task that keeps
// failing, or whose handler returns an error wrapped with Permanent, moves to
// the dead letter queue for manual inspection.
//
// Enqueue is idempotent on the dedupe key, so provider redeliveries collapse
// onto one task.
//
//	enq, _ := inbox.NewEnqueuer(storage)
//	_, err := enq.Enqueue(ctx, PlatformTask{...}, inbox.WithDedupeKey("platform:"+eventID))
//
//	w, _ := inbox.NewWorker(storage, inbox.WithMaxConcurrentTasks(4))
//	w.RegisterHandlers(inbox.NewTaskHandler(handlePlatformTask))
//	g.Go(w.Run(ctx))
package inbox
