// Package webhook receives payment provider callbacks.
//
// An Ingestor authenticates the request, reads at most MaxBodySize bytes,
// logs the event and stores it in the inbox under the dedupe key
// "<provider>:<event id>". The provider gets {"received": true} as soon as
// the task is stored. Failures before that point map to 401 (bad credentials),
// 400 (malformed payload) or 500 (misconfiguration, storage failure) so the
// provider retries what can succeed later.
//
// PlatformHandler and CardHandler are the inbox handlers that apply the
// stored events. Validation, conflict and data integrity failures are
// dead-lettered at once; other failures are retried by the worker.
package webhook
