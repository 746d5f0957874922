package schema

import "fmt"

// Oid uniquely identifies an entity within a world. Oids are stable
// for the lifetime of the entity and are never reused within a run.
// Entities are always referenced by oid on the wire — the world is the
// only owner of entity records.
type Oid uint32

// Reserved oids. Everything else is allocated sequentially from
// World.NextOid by committed spawn effects.
const (
	// NullOid is the zero oid; it never refers to an entity.
	NullOid Oid = 0
	// PlayerOid is the player character.
	PlayerOid Oid = 1
	// NotesOid is the singleton entity carrying the player-facing
	// message log.
	NotesOid Oid = 2
	// FirstDynamicOid is the first oid handed out for map terrain and
	// spawned objects.
	FirstDynamicOid Oid = 3
)

func (o Oid) String() string {
	switch o {
	case NullOid:
		return "null#0"
	case PlayerOid:
		return "player#1"
	case NotesOid:
		return "notes#2"
	default:
		return fmt.Sprintf("#%d", uint32(o))
	}
}
