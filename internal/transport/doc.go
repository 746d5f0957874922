// Package transport carries the inter-process protocol: typed,
// length-prefixed CBOR frames over local TCP streams.
//
// Every connection opens with a Hello exchange carrying explicit
// protocol major/minor numbers; a major mismatch terminates the
// connection before any other traffic. After the handshake a single
// connection multiplexes request/response pairs (propose, intent)
// with the server-pushed delta stream — frame types keep them apart.
//
// Protocol errors (bad framing, unknown types, version mismatch) are
// fatal to the connection they occur on and never to the process or
// other sessions.
package transport
