// Package codec provides the shared CBOR encoding configuration for
// every process in the cluster.
//
// All inter-process messages and persisted journal entries use CBOR
// with Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items. Deterministic
// encoding is load-bearing here — scripted replay compares committed
// delta sequences byte for byte, and the journal chains hashes over
// encoded deltas, so the same logical value must always produce the
// same bytes regardless of which process encoded it.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
