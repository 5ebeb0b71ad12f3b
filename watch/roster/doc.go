// Package roster provides the connection registry for a watch party.
//
// The roster package implements:
//   - Thread-safe binding of a connection to the participant it registered
//   - Idempotent re-registration per connection
//   - Ordered, immutable snapshots of the current roster
//
// Core Types:
//
// Registry owns the roster. Entries are keyed by connection identity, not by
// participant ID, so two connections claiming the same participant ID appear
// as two entries. Order is the order in which each connection first
// registered; re-registration replaces the entry in place.
//
// Concurrency:
//
// All operations are serialized by an internal lock. Snapshot returns a copy,
// so callers may read it while other goroutines keep mutating the registry.
//
// Usage:
//
//	reg := roster.NewRegistry()
//	reg.Register(connID, party.Participant{ID: "u1"})
//	for _, p := range reg.Snapshot() {
//		fmt.Println(p.ID)
//	}
//	reg.Unregister(connID)
package roster
