// Package schema defines the data contracts shared by every process in
// the cluster: entity and component types, the authoritative world
// aggregate, transactions, deltas, and the wire message set.
//
// The package is pure data. It deliberately contains no game rules and
// no I/O — the state authority owns mutation, the logic engine owns
// rules, and both compile against these types. Everything here is
// CBOR-tagged for the deterministic wire encoding in internal/codec.
//
// Protocol compatibility is versioned with explicit major/minor
// numbers exchanged in the Hello handshake. A major mismatch is fatal
// to the connection; minor revisions only ever add fields.
package schema
