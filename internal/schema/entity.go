package schema

import "fmt"

// Terrain is the ground type of a map cell. The first entity at any
// occupied location is always a terrain entity.
type Terrain uint8

const (
	TerrainUnknown Terrain = iota
	TerrainDirt
	TerrainWall
	TerrainShallowWater
	TerrainDeepWater
)

func (t Terrain) String() string {
	switch t {
	case TerrainDirt:
		return "dirt"
	case TerrainWall:
		return "wall"
	case TerrainShallowWater:
		return "shallow water"
	case TerrainDeepWater:
		return "deep water"
	default:
		return "unknown"
	}
}

// Passable reports whether a character can enter a cell with this
// terrain. Deep water and walls block movement for every character
// type currently in the game.
func (t Terrain) Passable() bool {
	return t == TerrainDirt || t == TerrainShallowWater
}

// Health is a character's hit points. Current never exceeds Max and
// never drops below zero in a committed world.
type Health struct {
	Current int32 `cbor:"current"`
	Max     int32 `cbor:"max"`
}

// Renderable is how an entity appears on a terminal cell. Blocking
// entities exclude other blocking entities from the same cell.
type Renderable struct {
	Symbol   int32 `cbor:"symbol"`
	Blocking bool  `cbor:"blocking,omitempty"`
}

// NoteKind classifies a player-facing message.
type NoteKind string

const (
	// NoteEnvironmental reports something that happened in the world,
	// e.g. splashing through shallow water.
	NoteEnvironmental NoteKind = "environmental"
	// NoteError reports an action the player can't take, e.g. walking
	// into a wall.
	NoteError NoteKind = "error"
	// NoteInfo is used for things like the examine command.
	NoteInfo NoteKind = "info"
)

// Note is an in-game message for the player, e.g. combat results or
// status messages.
type Note struct {
	Kind NoteKind `cbor:"kind"`
	Text string   `cbor:"text"`
}

// Component names a typed component slot on an entity. Effects and
// preconditions address components by these names.
type Component string

const (
	ComponentName       Component = "name"
	ComponentPosition   Component = "position"
	ComponentTerrain    Component = "terrain"
	ComponentHealth     Component = "health"
	ComponentRenderable Component = "renderable"
	ComponentInventory  Component = "inventory"
	ComponentNotes      Component = "notes"
)

// KnownComponent reports whether c names a component slot this schema
// revision understands. Unknown components in a proposal are a
// validation error, not a silent no-op.
func KnownComponent(c Component) bool {
	switch c {
	case ComponentName, ComponentPosition, ComponentTerrain, ComponentHealth,
		ComponentRenderable, ComponentInventory, ComponentNotes:
		return true
	}
	return false
}

// Entity is a uniquely identified bundle of components. Component
// fields are pointers (or nil-able slices) so an absent component is
// distinguishable from a zero-valued one.
type Entity struct {
	ID         Oid         `cbor:"id"`
	Name       string      `cbor:"name,omitempty"`
	Position   *Point      `cbor:"position,omitempty"`
	Terrain    *Terrain    `cbor:"terrain,omitempty"`
	Health     *Health     `cbor:"health,omitempty"`
	Renderable *Renderable `cbor:"renderable,omitempty"`
	Inventory  []Oid       `cbor:"inventory,omitempty"`
	Notes      []Note      `cbor:"notes,omitempty"`
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	out := e
	if e.Position != nil {
		p := *e.Position
		out.Position = &p
	}
	if e.Terrain != nil {
		t := *e.Terrain
		out.Terrain = &t
	}
	if e.Health != nil {
		h := *e.Health
		out.Health = &h
	}
	if e.Renderable != nil {
		r := *e.Renderable
		out.Renderable = &r
	}
	if e.Inventory != nil {
		out.Inventory = append([]Oid(nil), e.Inventory...)
	}
	if e.Notes != nil {
		out.Notes = append([]Note(nil), e.Notes...)
	}
	return out
}

// Blocking reports whether the entity excludes other blocking entities
// from its cell.
func (e Entity) Blocking() bool {
	return e.Renderable != nil && e.Renderable.Blocking
}

// Component returns the named component value, or nil if the entity
// does not carry it. The returned value is a copy safe to encode.
func (e Entity) Component(c Component) any {
	switch c {
	case ComponentName:
		if e.Name == "" {
			return nil
		}
		return e.Name
	case ComponentPosition:
		if e.Position == nil {
			return nil
		}
		return *e.Position
	case ComponentTerrain:
		if e.Terrain == nil {
			return nil
		}
		return *e.Terrain
	case ComponentHealth:
		if e.Health == nil {
			return nil
		}
		return *e.Health
	case ComponentRenderable:
		if e.Renderable == nil {
			return nil
		}
		return *e.Renderable
	case ComponentInventory:
		if e.Inventory == nil {
			return nil
		}
		return append([]Oid(nil), e.Inventory...)
	case ComponentNotes:
		if e.Notes == nil {
			return nil
		}
		return append([]Note(nil), e.Notes...)
	}
	return nil
}

// Remove clears the named component slot.
func (e *Entity) Remove(c Component) error {
	switch c {
	case ComponentName:
		e.Name = ""
	case ComponentPosition:
		e.Position = nil
	case ComponentTerrain:
		e.Terrain = nil
	case ComponentHealth:
		e.Health = nil
	case ComponentRenderable:
		e.Renderable = nil
	case ComponentInventory:
		e.Inventory = nil
	case ComponentNotes:
		e.Notes = nil
	default:
		return fmt.Errorf("unknown component %q", c)
	}
	return nil
}
