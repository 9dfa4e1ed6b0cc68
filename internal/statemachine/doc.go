// Package statemachine runs the periodic reconciliation loop at the heart of
// the replica-set engine.
//
// Each iteration scans one shard of this node's users (user_id mod 24), probes
// the peers appearing in their replica sets, enqueues recurring convergence
// syncs for secondaries that have fallen behind, and hands users with
// unhealthy replicas to the reconfiguration planner. The loop is single-flight:
// a new iteration is scheduled only after the previous one completes, and the
// shard selector advances by exactly one slice per iteration whether the
// iteration succeeded or not.
//
// Failures at the user-listing or clock-batch layer abort the iteration, since
// planning against partial data could sync or reconfigure the wrong way.
// Per-user reconfiguration failures only skip that user; the next pass over
// the same slice re-observes the condition and retries.
package statemachine
