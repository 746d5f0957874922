package logic

import (
	"fmt"
	"sort"

	"github.com/onekgame/onek/internal/schema"
)

// maxNotes bounds the player-facing message log; older notes fall off
// the front.
const maxNotes = 100

func terrainForChar(ch rune) (schema.Terrain, bool) {
	switch ch {
	case '#':
		return schema.TerrainWall, true
	case ' ':
		return schema.TerrainDirt, true
	case '~':
		return schema.TerrainShallowWater, true
	case 'W':
		return schema.TerrainDeepWater, true
	}
	return schema.TerrainUnknown, false
}

// SymbolFor is the terminal glyph for a terrain kind.
func SymbolFor(t schema.Terrain) int32 {
	switch t {
	case schema.TerrainWall:
		return '#'
	case schema.TerrainDirt:
		return ' '
	case schema.TerrainShallowWater:
		return '~'
	case schema.TerrainDeepWater:
		return 'W'
	}
	return '?'
}

// LevelEffects parses a character map into the spawn effects of a
// fresh level: one terrain entity per cell, the player at '@' (which
// also lays dirt under them), and the notes singleton. Rows are
// newline-separated; an unknown character is an error.
func LevelEffects(level string) ([]schema.Effect, error) {
	var effects []schema.Effect
	spawn := func(e schema.Entity) error {
		eff, err := schema.SpawnEffect(e)
		if err != nil {
			return err
		}
		effects = append(effects, eff)
		return nil
	}

	if err := spawn(schema.Entity{ID: schema.NotesOid, Name: "notes"}); err != nil {
		return nil, err
	}

	loc := schema.Point{}
	oid := schema.FirstDynamicOid
	var playerLoc *schema.Point
	for _, ch := range level {
		if ch == '\n' {
			loc.X = 0
			loc.Y++
			continue
		}
		terrain := schema.TerrainDirt
		if ch == '@' {
			if playerLoc != nil {
				return nil, fmt.Errorf("map places the player twice")
			}
			at := loc
			playerLoc = &at
		} else {
			var ok bool
			terrain, ok = terrainForChar(ch)
			if !ok {
				return nil, fmt.Errorf("bad char in map: %q", ch)
			}
		}
		at := loc
		t := terrain
		if err := spawn(schema.Entity{
			ID:         oid,
			Position:   &at,
			Terrain:    &t,
			Renderable: &schema.Renderable{Symbol: SymbolFor(t)},
		}); err != nil {
			return nil, err
		}
		oid++
		loc.X++
	}

	if playerLoc != nil {
		if err := spawn(schema.Entity{
			ID:         schema.PlayerOid,
			Name:       "player",
			Position:   playerLoc,
			Health:     &schema.Health{Current: 10, Max: 10},
			Renderable: &schema.Renderable{Symbol: '@', Blocking: true},
		}); err != nil {
			return nil, err
		}
	}
	return effects, nil
}

// ResetEffects replaces the whole level: despawn every live entity in
// ascending oid order (map iteration order must not leak into the
// effect list), then spawn the parsed map.
func ResetEffects(world schema.World, level string) ([]schema.Effect, error) {
	oids := make([]schema.Oid, 0, len(world.Entities))
	for oid := range world.Entities {
		oids = append(oids, oid)
	}
	sort.Slice(oids, func(i, j int) bool { return oids[i] < oids[j] })

	effects := make([]schema.Effect, 0, len(oids))
	for _, oid := range oids {
		effects = append(effects, schema.DespawnEffect(oid))
	}
	spawned, err := LevelEffects(level)
	if err != nil {
		return nil, err
	}
	return append(effects, spawned...), nil
}

// appendNotes folds new notes into the log, keeping at most maxNotes
// of the newest.
func appendNotes(current []schema.Note, added ...schema.Note) []schema.Note {
	out := append(append([]schema.Note{}, current...), added...)
	if len(out) > maxNotes {
		out = out[len(out)-maxNotes:]
	}
	return out
}
