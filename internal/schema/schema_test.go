package schema_test

import (
	"bytes"
	"testing"

	"github.com/onekgame/onek/internal/codec"
	"github.com/onekgame/onek/internal/schema"
)

func TestPointAdjacent(t *testing.T) {
	origin := schema.Point{X: 5, Y: 5}
	cases := []struct {
		other schema.Point
		want  bool
	}{
		{schema.Point{X: 5, Y: 5}, false},
		{schema.Point{X: 6, Y: 5}, true},
		{schema.Point{X: 4, Y: 4}, true},
		{schema.Point{X: 6, Y: 6}, true},
		{schema.Point{X: 7, Y: 5}, false},
		{schema.Point{X: 5, Y: 3}, false},
	}
	for _, tc := range cases {
		if got := origin.Adjacent(tc.other); got != tc.want {
			t.Errorf("Adjacent(%v) = %v, want %v", tc.other, got, tc.want)
		}
	}
}

func TestPointDistance2(t *testing.T) {
	a := schema.Point{X: 0, Y: 0}
	b := schema.Point{X: 3, Y: 4}
	if got := a.Distance2(b); got != 25 {
		t.Fatalf("expected squared distance 25, got %d", got)
	}
}

func TestEntityCloneIsDetached(t *testing.T) {
	pos := schema.Point{X: 1, Y: 2}
	e := schema.Entity{
		ID:        schema.PlayerOid,
		Position:  &pos,
		Inventory: []schema.Oid{7, 8},
	}

	clone := e.Clone()
	clone.Position.X = 99
	clone.Inventory[0] = 42

	if e.Position.X != 1 {
		t.Fatalf("clone mutation leaked into original position: %v", e.Position)
	}
	if e.Inventory[0] != 7 {
		t.Fatalf("clone mutation leaked into original inventory: %v", e.Inventory)
	}
}

func TestSetEffectRoundTrip(t *testing.T) {
	effect, err := schema.SetEffect(schema.PlayerOid, schema.ComponentPosition, schema.Point{X: 3, Y: 4})
	if err != nil {
		t.Fatalf("build effect: %v", err)
	}

	var e schema.Entity
	e.ID = schema.PlayerOid
	if err := e.Set(effect.Component, effect.Value); err != nil {
		t.Fatalf("set component: %v", err)
	}
	if e.Position == nil || *e.Position != (schema.Point{X: 3, Y: 4}) {
		t.Fatalf("expected position (3, 4), got %v", e.Position)
	}
}

func newTestWorld(t *testing.T) schema.World {
	t.Helper()
	w := schema.NewWorld()

	dirt := schema.TerrainDirt
	terrain := schema.Entity{
		ID:       schema.FirstDynamicOid,
		Position: &schema.Point{X: 0, Y: 0},
		Terrain:  &dirt,
	}
	player := schema.Entity{
		ID:         schema.PlayerOid,
		Position:   &schema.Point{X: 0, Y: 0},
		Health:     &schema.Health{Current: 10, Max: 10},
		Renderable: &schema.Renderable{Symbol: '@', Blocking: true},
	}
	w.Entities[terrain.ID] = terrain
	w.Entities[player.ID] = player
	w.NextOid = schema.FirstDynamicOid + 1
	return w
}

func TestWorldApplySpawnSetDespawn(t *testing.T) {
	w := newTestWorld(t)

	wall := schema.TerrainWall
	spawn, err := schema.SpawnEffect(schema.Entity{
		ID:       w.NextOid,
		Position: &schema.Point{X: 1, Y: 0},
		Terrain:  &wall,
	})
	if err != nil {
		t.Fatalf("build spawn: %v", err)
	}
	move, err := schema.SetEffect(schema.PlayerOid, schema.ComponentPosition, schema.Point{X: 0, Y: 1})
	if err != nil {
		t.Fatalf("build set: %v", err)
	}

	spawned := w.NextOid
	if err := w.Apply([]schema.Effect{spawn, move}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if w.TerrainAt(schema.Point{X: 1, Y: 0}) != schema.TerrainWall {
		t.Fatalf("expected wall at (1, 0)")
	}
	player, _ := w.Player()
	if *player.Position != (schema.Point{X: 0, Y: 1}) {
		t.Fatalf("expected player at (0, 1), got %v", player.Position)
	}
	if w.NextOid != spawned+1 {
		t.Fatalf("expected next oid %v, got %v", spawned+1, w.NextOid)
	}

	if err := w.Apply([]schema.Effect{schema.DespawnEffect(spawned)}); err != nil {
		t.Fatalf("despawn: %v", err)
	}
	if _, ok := w.Entity(spawned); ok {
		t.Fatalf("expected entity %v to be despawned", spawned)
	}
}

func TestWorldApplyRejectsUnknownEntity(t *testing.T) {
	w := newTestWorld(t)
	move, err := schema.SetEffect(99, schema.ComponentPosition, schema.Point{X: 1, Y: 1})
	if err != nil {
		t.Fatalf("build set: %v", err)
	}
	if err := w.Apply([]schema.Effect{move}); err == nil {
		t.Fatal("expected error applying set to missing entity")
	}
}

func TestWorldApplyRejectsDuplicateSpawn(t *testing.T) {
	w := newTestWorld(t)
	dup, err := schema.SpawnEffect(schema.Entity{ID: schema.PlayerOid})
	if err != nil {
		t.Fatalf("build spawn: %v", err)
	}
	if err := w.Apply([]schema.Effect{dup}); err == nil {
		t.Fatal("expected error spawning existing oid")
	}
}

func TestEntitiesAtDeterministicOrder(t *testing.T) {
	w := newTestWorld(t)
	oids := w.EntitiesAt(schema.Point{X: 0, Y: 0})
	if len(oids) != 2 {
		t.Fatalf("expected 2 entities at origin, got %d", len(oids))
	}
	if oids[0] != schema.PlayerOid || oids[1] != schema.FirstDynamicOid {
		t.Fatalf("expected ascending oid order, got %v", oids)
	}
}

func TestWorldEncodingIsDeterministic(t *testing.T) {
	a := newTestWorld(t)
	b := newTestWorld(t)

	encA, err := codec.Marshal(a)
	if err != nil {
		t.Fatalf("marshal a: %v", err)
	}
	encB, err := codec.Marshal(b)
	if err != nil {
		t.Fatalf("marshal b: %v", err)
	}
	if !bytes.Equal(encA, encB) {
		t.Fatal("expected identical world encodings")
	}
}

func TestHelloCompatibility(t *testing.T) {
	ok := schema.Hello{Major: schema.ProtocolMajor, Minor: schema.ProtocolMinor}
	if err := ok.CheckCompatible(); err != nil {
		t.Fatalf("unexpected incompatibility: %v", err)
	}
	bad := schema.Hello{Major: schema.ProtocolMajor + 1}
	if err := bad.CheckCompatible(); err == nil {
		t.Fatal("expected major version mismatch error")
	}
}

func TestRejectReasonRetryable(t *testing.T) {
	cases := map[schema.RejectReason]bool{
		schema.RejectInvalid:           false,
		schema.RejectStaleVersion:      true,
		schema.RejectMissingEntity:     true,
		schema.RejectComponentMismatch: true,
		schema.RejectInvariant:         false,
	}
	for reason, want := range cases {
		if got := reason.Retryable(); got != want {
			t.Errorf("Retryable(%s) = %v, want %v", reason, got, want)
		}
	}
}
