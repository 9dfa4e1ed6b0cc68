// Package syncjob implements the two bounded sync queues and the pending-job
// de-duplicator that mediates every enqueue.
//
// A sync job asks a target node to pull a user's content forward from a source
// node. Jobs are keyed by a fingerprint (kind, wallet, target); the
// de-duplicator guarantees at most one pending job per fingerprint at any
// moment. A job leaves the pending index the instant a worker picks it up, so
// a fresh job for the same fingerprint can queue behind the active one.
//
// The manual queue carries reconfiguration-driven urgent pushes, the recurring
// queue carries periodic convergence pushes. Each runs its own fixed-size
// worker pool; workers POST the sync request and then watch the target's clock
// until it catches up to the source-side clock captured before the push,
// re-enqueueing a successor job when the walk has further to go.
package syncjob
