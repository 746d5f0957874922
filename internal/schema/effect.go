package schema

import (
	"fmt"

	"github.com/onekgame/onek/internal/codec"
)

// EffectOp is the kind of mutation an effect performs.
type EffectOp string

const (
	// OpSpawn creates a new entity. Value is the full encoded Entity.
	OpSpawn EffectOp = "spawn"
	// OpDespawn destroys an entity and all its components.
	OpDespawn EffectOp = "despawn"
	// OpSet replaces one component value on an existing entity.
	OpSet EffectOp = "set"
	// OpRemove clears one component slot on an existing entity.
	OpRemove EffectOp = "remove"
)

// Effect is one component mutation. A transaction's effect list is
// applied atomically: either every effect applies or none do.
type Effect struct {
	Op        EffectOp         `cbor:"op"`
	Entity    Oid              `cbor:"entity"`
	Component Component        `cbor:"component,omitempty"`
	Value     codec.RawMessage `cbor:"value,omitempty"`
}

// SetEffect builds an OpSet effect, encoding value deterministically.
func SetEffect(entity Oid, component Component, value any) (Effect, error) {
	raw, err := codec.Marshal(value)
	if err != nil {
		return Effect{}, fmt.Errorf("encode %s value: %w", component, err)
	}
	return Effect{Op: OpSet, Entity: entity, Component: component, Value: raw}, nil
}

// SpawnEffect builds an OpSpawn effect carrying the full entity.
func SpawnEffect(e Entity) (Effect, error) {
	raw, err := codec.Marshal(e)
	if err != nil {
		return Effect{}, fmt.Errorf("encode entity %v: %w", e.ID, err)
	}
	return Effect{Op: OpSpawn, Entity: e.ID, Value: raw}, nil
}

// DespawnEffect builds an OpDespawn effect.
func DespawnEffect(entity Oid) Effect {
	return Effect{Op: OpDespawn, Entity: entity}
}

// RemoveEffect builds an OpRemove effect.
func RemoveEffect(entity Oid, component Component) Effect {
	return Effect{Op: OpRemove, Entity: entity, Component: component}
}

// Set decodes raw into the named component slot on the entity.
func (e *Entity) Set(c Component, raw codec.RawMessage) error {
	switch c {
	case ComponentName:
		return codec.Unmarshal(raw, &e.Name)
	case ComponentPosition:
		var p Point
		if err := codec.Unmarshal(raw, &p); err != nil {
			return err
		}
		e.Position = &p
		return nil
	case ComponentTerrain:
		var t Terrain
		if err := codec.Unmarshal(raw, &t); err != nil {
			return err
		}
		e.Terrain = &t
		return nil
	case ComponentHealth:
		var h Health
		if err := codec.Unmarshal(raw, &h); err != nil {
			return err
		}
		e.Health = &h
		return nil
	case ComponentRenderable:
		var r Renderable
		if err := codec.Unmarshal(raw, &r); err != nil {
			return err
		}
		e.Renderable = &r
		return nil
	case ComponentInventory:
		var inv []Oid
		if err := codec.Unmarshal(raw, &inv); err != nil {
			return err
		}
		e.Inventory = inv
		return nil
	case ComponentNotes:
		var notes []Note
		if err := codec.Unmarshal(raw, &notes); err != nil {
			return err
		}
		e.Notes = notes
		return nil
	}
	return fmt.Errorf("unknown component %q", c)
}

// Apply mutates the world in place with the given effects. Application
// is mechanical — no rule or precondition checking happens here; that
// is the state authority's job before a delta ever exists. Both the
// authority's commit path and every subscriber mirror use this same
// code so replicas cannot drift from the authoritative copy.
func (w *World) Apply(effects []Effect) error {
	for i, effect := range effects {
		if err := w.applyOne(effect); err != nil {
			return fmt.Errorf("effect %d (%s %v): %w", i, effect.Op, effect.Entity, err)
		}
	}
	return nil
}

func (w *World) applyOne(effect Effect) error {
	switch effect.Op {
	case OpSpawn:
		var e Entity
		if err := codec.Unmarshal(effect.Value, &e); err != nil {
			return fmt.Errorf("decode entity: %w", err)
		}
		if e.ID != effect.Entity {
			return fmt.Errorf("entity id %v does not match effect target %v", e.ID, effect.Entity)
		}
		if _, exists := w.Entities[e.ID]; exists {
			return fmt.Errorf("entity already exists")
		}
		w.Entities[e.ID] = e
		if e.ID >= w.NextOid {
			w.NextOid = e.ID + 1
		}
		return nil
	case OpDespawn:
		if _, exists := w.Entities[effect.Entity]; !exists {
			return fmt.Errorf("entity does not exist")
		}
		delete(w.Entities, effect.Entity)
		return nil
	case OpSet:
		e, exists := w.Entities[effect.Entity]
		if !exists {
			return fmt.Errorf("entity does not exist")
		}
		if err := e.Set(effect.Component, effect.Value); err != nil {
			return err
		}
		w.Entities[effect.Entity] = e
		return nil
	case OpRemove:
		e, exists := w.Entities[effect.Entity]
		if !exists {
			return fmt.Errorf("entity does not exist")
		}
		if err := e.Remove(effect.Component); err != nil {
			return err
		}
		w.Entities[effect.Entity] = e
		return nil
	}
	return fmt.Errorf("unknown effect op %q", effect.Op)
}
