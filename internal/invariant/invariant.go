package invariant

import (
	"errors"
	"fmt"

	"github.com/onekgame/onek/internal/schema"
)

// ErrViolation marks a world state that breaks a global invariant. A
// violation observed after a commit is a bug in validation upstream —
// it is never retried or suppressed.
var ErrViolation = errors.New("invariant violation")

// Func is a pure predicate over a world. It returns nil when the
// invariant holds and a descriptive error when it does not. Predicates
// must not mutate the world or retain references into it.
type Func func(schema.World) error

type named struct {
	name  string
	check Func
}

// Registry is an ordered set of invariants. The state authority
// evaluates the set against the candidate world before committing;
// the invariant checker evaluates it against its mirror after every
// received delta.
type Registry struct {
	invariants []named
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an invariant under a stable name. Registration order
// is evaluation order.
func (r *Registry) Register(name string, check Func) {
	r.invariants = append(r.invariants, named{name: name, check: check})
}

// Names returns the registered invariant names in evaluation order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.invariants))
	for i, inv := range r.invariants {
		out[i] = inv.name
	}
	return out
}

// Check evaluates every invariant and returns the first violation,
// wrapped in ErrViolation.
func (r *Registry) Check(w schema.World) error {
	for _, inv := range r.invariants {
		if err := inv.check(w); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrViolation, inv.name, err)
		}
	}
	return nil
}

// Default returns the registry with the full game invariant set.
func Default() *Registry {
	r := NewRegistry()
	r.Register("position-exclusivity", PositionExclusivity)
	r.Register("health-non-negative", HealthNonNegative)
	r.Register("terrain-under-occupants", TerrainUnderOccupants)
	r.Register("player-consistency", PlayerConsistency)
	r.Register("oid-consistency", OidConsistency)
	return r
}

// PositionExclusivity checks that no two blocking entities occupy the
// same cell.
func PositionExclusivity(w schema.World) error {
	seen := make(map[schema.Point]schema.Oid)
	for oid, e := range w.Entities {
		if e.Position == nil || !e.Blocking() || e.Terrain != nil {
			continue
		}
		loc := *e.Position
		if prev, taken := seen[loc]; taken {
			a, b := prev, oid
			if b < a {
				a, b = b, a
			}
			return fmt.Errorf("entities %v and %v both occupy %v", a, b, loc)
		}
		seen[loc] = oid
	}
	return nil
}

// HealthNonNegative checks that no entity's health dropped below zero
// or above its maximum.
func HealthNonNegative(w schema.World) error {
	for oid, e := range w.Entities {
		if e.Health == nil {
			continue
		}
		if e.Health.Current < 0 {
			return fmt.Errorf("entity %v has negative health %d", oid, e.Health.Current)
		}
		if e.Health.Max > 0 && e.Health.Current > e.Health.Max {
			return fmt.Errorf("entity %v has health %d above max %d", oid, e.Health.Current, e.Health.Max)
		}
	}
	return nil
}

// TerrainUnderOccupants checks that every positioned non-terrain
// entity stands on a cell that has terrain.
func TerrainUnderOccupants(w schema.World) error {
	for oid, e := range w.Entities {
		if e.Position == nil || e.Terrain != nil {
			continue
		}
		if w.TerrainAt(*e.Position) == schema.TerrainUnknown {
			return fmt.Errorf("entity %v stands at %v with no terrain", oid, *e.Position)
		}
	}
	return nil
}

// PlayerConsistency checks that when a player entity exists it has a
// position and a renderable, the bare minimum for a playable world.
func PlayerConsistency(w schema.World) error {
	player, ok := w.Player()
	if !ok {
		// A world with no player yet (before the first reset) is
		// legal.
		return nil
	}
	if player.Position == nil {
		return errors.New("player has no position")
	}
	if player.Renderable == nil || !player.Renderable.Blocking {
		return errors.New("player is not a blocking renderable")
	}
	return nil
}

// OidConsistency checks that entity records agree with their map keys
// and that every inventory reference resolves.
func OidConsistency(w schema.World) error {
	for oid, e := range w.Entities {
		if e.ID != oid {
			return fmt.Errorf("entity keyed %v carries id %v", oid, e.ID)
		}
		if oid >= w.NextOid {
			return fmt.Errorf("entity %v is at or above next oid %v", oid, w.NextOid)
		}
		for _, item := range e.Inventory {
			if _, exists := w.Entities[item]; !exists {
				return fmt.Errorf("entity %v inventory references missing %v", oid, item)
			}
		}
	}
	return nil
}
