// Package client maintains a read-only world mirror fed by the state
// authority's delta stream, and submits transaction proposals on the
// same connection. Every non-authority process uses it: the logic
// engine, the backend aggregator, the invariant checker, and the
// scripted test driver.
//
// The mirror verifies version continuity and the delta hash chain as
// it applies the stream. A gap, a divergent hash, or a lost connection
// triggers an automatic resubscribe; the authority answers with
// buffered deltas or a fresh snapshot as needed.
package client
