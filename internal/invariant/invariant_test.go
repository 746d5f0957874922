package invariant_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/onekgame/onek/internal/invariant"
	"github.com/onekgame/onek/internal/schema"
)

func validWorld(t *testing.T) schema.World {
	t.Helper()
	w := schema.NewWorld()

	dirt := schema.TerrainDirt
	for i, loc := range []schema.Point{{X: 0, Y: 0}, {X: 1, Y: 0}} {
		oid := schema.FirstDynamicOid + schema.Oid(i)
		p := loc
		w.Entities[oid] = schema.Entity{ID: oid, Position: &p, Terrain: &dirt}
	}
	w.NextOid = schema.FirstDynamicOid + 2

	w.Entities[schema.PlayerOid] = schema.Entity{
		ID:         schema.PlayerOid,
		Position:   &schema.Point{X: 0, Y: 0},
		Health:     &schema.Health{Current: 10, Max: 10},
		Renderable: &schema.Renderable{Symbol: '@', Blocking: true},
	}
	return w
}

func TestDefaultRegistryPassesValidWorld(t *testing.T) {
	if err := invariant.Default().Check(validWorld(t)); err != nil {
		t.Fatalf("unexpected violation: %v", err)
	}
}

func TestPositionExclusivity(t *testing.T) {
	w := validWorld(t)
	rival := schema.Entity{
		ID:         w.NextOid,
		Position:   &schema.Point{X: 0, Y: 0},
		Renderable: &schema.Renderable{Symbol: 'g', Blocking: true},
	}
	w.Entities[rival.ID] = rival
	w.NextOid++

	err := invariant.Default().Check(w)
	if err == nil {
		t.Fatal("expected violation for shared cell")
	}
	if !errors.Is(err, invariant.ErrViolation) {
		t.Fatalf("expected ErrViolation, got %v", err)
	}
	if !strings.Contains(err.Error(), "position-exclusivity") {
		t.Fatalf("expected position-exclusivity in error, got %v", err)
	}
}

func TestHealthNonNegative(t *testing.T) {
	w := validWorld(t)
	player := w.Entities[schema.PlayerOid]
	player.Health = &schema.Health{Current: -1, Max: 10}
	w.Entities[schema.PlayerOid] = player

	err := invariant.Default().Check(w)
	if err == nil || !strings.Contains(err.Error(), "health-non-negative") {
		t.Fatalf("expected health violation, got %v", err)
	}
}

func TestTerrainUnderOccupants(t *testing.T) {
	w := validWorld(t)
	player := w.Entities[schema.PlayerOid]
	player.Position = &schema.Point{X: 50, Y: 50}
	w.Entities[schema.PlayerOid] = player

	err := invariant.Default().Check(w)
	if err == nil || !strings.Contains(err.Error(), "terrain-under-occupants") {
		t.Fatalf("expected terrain violation, got %v", err)
	}
}

func TestPlayerConsistencyAllowsMissingPlayer(t *testing.T) {
	w := validWorld(t)
	delete(w.Entities, schema.PlayerOid)
	if err := invariant.Default().Check(w); err != nil {
		t.Fatalf("world without player should be legal, got %v", err)
	}
}

func TestPlayerConsistencyRequiresPosition(t *testing.T) {
	w := validWorld(t)
	player := w.Entities[schema.PlayerOid]
	player.Position = nil
	w.Entities[schema.PlayerOid] = player

	err := invariant.Default().Check(w)
	if err == nil || !strings.Contains(err.Error(), "player-consistency") {
		t.Fatalf("expected player violation, got %v", err)
	}
}

func TestOidConsistencyChecksInventoryReferences(t *testing.T) {
	w := validWorld(t)
	player := w.Entities[schema.PlayerOid]
	player.Inventory = []schema.Oid{999}
	w.Entities[schema.PlayerOid] = player

	err := invariant.Default().Check(w)
	if err == nil || !strings.Contains(err.Error(), "oid-consistency") {
		t.Fatalf("expected oid violation, got %v", err)
	}
}

func TestRegistryNamesInOrder(t *testing.T) {
	names := invariant.Default().Names()
	want := []string{
		"position-exclusivity",
		"health-non-negative",
		"terrain-under-occupants",
		"player-consistency",
		"oid-consistency",
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d invariants, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %s at %d, got %s", want[i], i, names[i])
		}
	}
}
