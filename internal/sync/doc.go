// Package sync reconciles the local store with the remote
// gestion-ventes backend.
//
// A sync pass drains the pending-operation queues (sales, then
// expenses) against the remote API and refreshes the product and
// client catalogs from the server. Each queue is drained strictly in
// creation order so stock-affecting sales reach the server in the
// order they were recorded. Every pending entry carries its offline_id
// on every attempt, letting the server deduplicate retried
// submissions.
//
// # Failure semantics
//
// A pass never panics or returns an error past its boundary without
// first converting it into a progress event. Failure classes route
// differently:
//
//   - connectivity (network error, timeout, 5xx): the entry is marked
//     FAILED and the drain of that queue stops for this pass, to avoid
//     hammering a down network; everything retries next pass.
//   - validation (other 4xx): the entry is marked FAILED with the
//     server's diagnostic and its siblings continue; blind retry will
//     not fix it, so it waits for operator intervention.
//   - auth (credentials unavailable): fatal for the pass, no further
//     network calls are attempted.
//
// Partial success is normal: the progress events report the count of
// entries actually confirmed, never the count attempted.
//
// Only PENDING and FAILED are ever durable queue states. An entry
// being submitted is tracked in engine memory, so a crash
// mid-submission always resumes from a durable state and replays the
// identical request.
//
// # Known limitation
//
// Two devices selling the same product while offline each decrement
// their local stock copy independently; on reconnection both sales are
// accepted and the cached availability overcounts until the next
// catalog refresh. There is no merge strategy for concurrently
// mutated catalog rows.
package sync
