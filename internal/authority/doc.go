// Package authority implements the single-writer state authority: the
// only process allowed to mutate the world. Transactions are proposed
// over the wire, validated against their preconditions, applied to a
// working copy, checked against world invariants, journaled, and only
// then broadcast as ordered deltas to every subscriber.
//
// Commits are strictly serialized. Each committed transaction advances
// the world version by exactly one and extends a tamper-evident hash
// chain, so any two replicas that disagree on a version's hash have
// provably diverged.
package authority
