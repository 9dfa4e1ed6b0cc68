// Package cluster holds the wire-level types shared by every component of the
// replica-set engine: user records as reported by the discovery provider, the
// JSON payloads exchanged with peer content nodes, small HTTP helpers with
// request contexts, and the endpoint-to-service-provider ID map populated at
// startup.
//
// Everything in this package is either immutable after construction (IDMap) or
// a plain value type, so nothing here needs locking.
package cluster
