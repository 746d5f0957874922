// Package backend multiplexes front-end sessions onto one state
// authority and logic engine pair. It forwards each session's intents
// to the logic engine, mirrors the world from the delta stream, and
// pushes freshly rendered terminal views to every session after each
// commit. Sessions are isolated: a failed or slow session never
// affects another session or authoritative state.
package backend
