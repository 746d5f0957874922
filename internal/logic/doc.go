// Package logic is the rules engine: it turns raw intents (bump,
// examine, reset) into precondition-guarded transaction proposals, or
// discards them as illegal. It holds no authority over state; every
// mutation goes through the state authority as a proposal, and a
// rejected proposal is re-evaluated against the refreshed mirror
// before a bounded retry.
package logic
