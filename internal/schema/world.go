package schema

// World is the single authoritative, versioned aggregate of all
// entities. It is mutated only by the state authority through
// committed transactions; every other process holds a mirror updated
// from the delta stream.
type World struct {
	// Version increases by exactly one per committed transaction. No
	// two commits share a version.
	Version uint64 `cbor:"version"`
	// NextOid is the lowest oid not yet allocated to any entity.
	NextOid Oid `cbor:"next_oid"`
	// Entities maps oid to the owned entity record.
	Entities map[Oid]Entity `cbor:"entities"`
}

// NewWorld returns an empty world at version zero.
func NewWorld() World {
	return World{
		NextOid:  FirstDynamicOid,
		Entities: map[Oid]Entity{},
	}
}

// Clone returns a deep copy. Snapshots and pre-commit working copies
// depend on clones being fully detached from the original.
func (w World) Clone() World {
	out := w
	out.Entities = make(map[Oid]Entity, len(w.Entities))
	for oid, e := range w.Entities {
		out.Entities[oid] = e.Clone()
	}
	return out
}

// Entity returns the entity record for oid.
func (w World) Entity(oid Oid) (Entity, bool) {
	e, ok := w.Entities[oid]
	return e, ok
}

// EntitiesAt returns the oids of all entities positioned at loc, in
// ascending oid order so callers see a deterministic ordering.
func (w World) EntitiesAt(loc Point) []Oid {
	var out []Oid
	for oid, e := range w.Entities {
		if e.Position != nil && *e.Position == loc {
			out = append(out, oid)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// TerrainAt returns the terrain at loc, or TerrainUnknown when no
// terrain entity occupies the location (off-map).
func (w World) TerrainAt(loc Point) Terrain {
	for _, oid := range w.EntitiesAt(loc) {
		if e := w.Entities[oid]; e.Terrain != nil {
			return *e.Terrain
		}
	}
	return TerrainUnknown
}

// BlockerAt returns the blocking non-terrain entity at loc, if any.
func (w World) BlockerAt(loc Point) (Entity, bool) {
	for _, oid := range w.EntitiesAt(loc) {
		e := w.Entities[oid]
		if e.Terrain == nil && e.Blocking() {
			return e, true
		}
	}
	return Entity{}, false
}

// Player returns the player entity.
func (w World) Player() (Entity, bool) {
	return w.Entity(PlayerOid)
}
