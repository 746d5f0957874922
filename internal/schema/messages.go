package schema

import "fmt"

// Protocol version. The major number changes on incompatible message
// or component changes; minor revisions only add optional fields.
const (
	ProtocolMajor int32 = 1
	ProtocolMinor int32 = 0
)

// Hello opens every connection in both directions. A major version
// mismatch is a protocol error fatal to the connection.
type Hello struct {
	Major int32 `cbor:"major"`
	Minor int32 `cbor:"minor"`
	// Service names the connecting process ("logic", "backend",
	// "invariant", "tester") for logs.
	Service string `cbor:"service,omitempty"`
}

// CheckCompatible validates a peer's Hello against this build.
func (h Hello) CheckCompatible() error {
	if h.Major != ProtocolMajor {
		return fmt.Errorf("protocol major version %d is not supported (want %d)", h.Major, ProtocolMajor)
	}
	return nil
}

// SubscribeRequest asks the state authority for a session delivering
// every committed delta after FromVersion. The authority answers with
// either buffered deltas from FromVersion+1 or a full Snapshot when
// FromVersion has aged out of the replay buffer. FromVersion zero
// always yields a Snapshot on an empty buffer boundary.
type SubscribeRequest struct {
	FromVersion uint64 `cbor:"from_version"`
}

// Snapshot is a full world copy tagged with its version, used for cold
// start and resync.
type Snapshot struct {
	World World `cbor:"world"`
}

// Delta is the broadcast record of one committed transaction: the
// applied effect list plus the resulting version. Deltas are delivered
// to every session in strict version order with no gaps or duplicates.
type Delta struct {
	Version uint64 `cbor:"version"`
	// TxID is the committed transaction's id.
	TxID string `cbor:"tx_id,omitempty"`
	// Hash is the integrity chain hash over (PrevHash, encoded
	// effects, version). Mirrors verify it to detect divergence.
	Hash     string   `cbor:"hash,omitempty"`
	PrevHash string   `cbor:"prev_hash,omitempty"`
	Effects  []Effect `cbor:"effects"`
}

// Heartbeat keeps idle connections verifiably alive in both
// directions.
type Heartbeat struct {
	SentAtMillis int64 `cbor:"sent_at_millis,omitempty"`
}

// IntentKind names a raw player or scripted action before rules are
// applied.
type IntentKind string

const (
	// IntentBump is the default action toward a nearby cell: a move,
	// an attack, opening a door. Most often the target is adjacent to
	// the actor.
	IntentBump IntentKind = "bump"
	// IntentExamine asks for descriptions of whatever occupies a cell.
	IntentExamine IntentKind = "examine"
	// IntentReset replaces the level with one parsed from Map.
	// Intended for scripted scenarios and tests.
	IntentReset IntentKind = "reset"
)

// Intent is a raw action request. The logic engine turns intents into
// transaction proposals (or discards them as illegal); intents never
// mutate state directly.
type Intent struct {
	Kind   IntentKind `cbor:"kind"`
	Actor  Oid        `cbor:"actor,omitempty"`
	Target Point      `cbor:"target,omitempty"`
	// Map is the level layout for IntentReset: '#' wall, ' ' dirt,
	// '~' shallow water, 'W' deep water, '@' player start on dirt.
	Map string `cbor:"map,omitempty"`
	// Reason tags reset intents for logs.
	Reason string `cbor:"reason,omitempty"`
}

// IntentResult is the logic engine's synchronous answer to an intent:
// the commit version when the intent produced a committed transaction,
// zero when it legally resulted in no state change.
type IntentResult struct {
	Version uint64 `cbor:"version,omitempty"`
	// Notes are the player-facing messages the intent produced.
	Notes []Note `cbor:"notes,omitempty"`
	// Discarded is set when the intent was dropped as no longer
	// applicable after re-evaluation.
	Discarded bool `cbor:"discarded,omitempty"`
}
