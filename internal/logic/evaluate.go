package logic

import (
	"fmt"

	"github.com/onekgame/onek/internal/schema"
)

// Evaluation is the outcome of applying the rules to one intent
// against one observed world.
type Evaluation struct {
	// Transaction is the proposal to submit, or nil when the intent
	// legally changes nothing. ID and BaseVersion are left for the
	// caller to fill.
	Transaction *schema.Transaction
	// Notes are the player-facing messages the intent produced,
	// whether or not a transaction was built.
	Notes []schema.Note
	// Discarded is set when the intent is not applicable to the
	// observed world at all.
	Discarded bool
}

// Evaluate turns an intent into at most one transaction. It is a pure
// function of the intent and the observed world, which is what makes
// scripted runs replayable.
func Evaluate(intent schema.Intent, world schema.World) (Evaluation, error) {
	switch intent.Kind {
	case schema.IntentBump:
		return evaluateBump(intent, world), nil
	case schema.IntentExamine:
		return evaluateExamine(intent, world), nil
	case schema.IntentReset:
		return evaluateReset(intent, world)
	}
	return Evaluation{}, fmt.Errorf("unknown intent kind %q", intent.Kind)
}

// evaluateBump handles the default action toward a cell. Dirt is a
// plain move; shallow water moves with a splash; walls and deep water
// refuse with an error note.
func evaluateBump(intent schema.Intent, world schema.World) Evaluation {
	if intent.Actor != schema.NullOid && intent.Actor != schema.PlayerOid {
		// Non-player movement has no rules yet.
		return Evaluation{Discarded: true}
	}
	player, ok := world.Player()
	if !ok || player.Position == nil {
		return Evaluation{Discarded: true}
	}

	var note *schema.Note
	move := false
	if _, blocked := world.BlockerAt(intent.Target); blocked {
		note = &schema.Note{Kind: schema.NoteError, Text: "Something is in the way."}
	} else {
		switch world.TerrainAt(intent.Target) {
		case schema.TerrainDirt:
			move = true
		case schema.TerrainShallowWater:
			note = &schema.Note{Kind: schema.NoteEnvironmental, Text: "You splash through the water."}
			move = true
		case schema.TerrainDeepWater:
			note = &schema.Note{Kind: schema.NoteError, Text: "The water is too deep."}
		case schema.TerrainWall:
			note = &schema.Note{Kind: schema.NoteError, Text: "You bounce off the wall."}
		default:
			// No terrain there at all; the move is meaningless.
			return Evaluation{Discarded: true}
		}
	}

	eval := Evaluation{}
	if note != nil {
		eval.Notes = []schema.Note{*note}
	}

	var effects []schema.Effect
	var guards []schema.Precondition
	if move {
		eff, err := schema.SetEffect(schema.PlayerOid, schema.ComponentPosition, intent.Target)
		if err != nil {
			return Evaluation{Discarded: true}
		}
		effects = append(effects, eff)
		// Guard the observation the move was decided on: where the
		// player stood, and what the target cell was made of.
		posGuard, err := schema.ComponentGuard(schema.PlayerOid, schema.ComponentPosition, *player.Position)
		if err != nil {
			return Evaluation{Discarded: true}
		}
		guards = append(guards, posGuard)
		if terrainEntity, ok := terrainEntityAt(world, intent.Target); ok {
			terrainGuard, err := schema.ComponentGuard(terrainEntity.ID, schema.ComponentTerrain, *terrainEntity.Terrain)
			if err != nil {
				return Evaluation{Discarded: true}
			}
			guards = append(guards, terrainGuard)
		}
	}
	if note != nil {
		if eff, ok := noteEffect(world, *note); ok {
			effects = append(effects, eff)
		}
	}
	if len(effects) > 0 {
		eval.Transaction = &schema.Transaction{Preconditions: guards, Effects: effects}
	}
	return eval
}

// evaluateExamine describes whatever occupies the target cell with an
// info note.
func evaluateExamine(intent schema.Intent, world schema.World) Evaluation {
	var text string
	if player, ok := world.Player(); ok && player.Position != nil && *player.Position == intent.Target {
		text = "You see yourself."
	} else {
		text = describeTerrain(world.TerrainAt(intent.Target))
	}
	note := schema.Note{Kind: schema.NoteInfo, Text: text}

	eval := Evaluation{Notes: []schema.Note{note}}
	if eff, ok := noteEffect(world, note); ok {
		eval.Transaction = &schema.Transaction{Effects: []schema.Effect{eff}}
	}
	return eval
}

// evaluateReset replaces the level wholesale. No preconditions: a
// reset applies to whatever the world looks like when it commits.
func evaluateReset(intent schema.Intent, world schema.World) (Evaluation, error) {
	effects, err := ResetEffects(world, intent.Map)
	if err != nil {
		return Evaluation{}, fmt.Errorf("reset: %w", err)
	}
	return Evaluation{Transaction: &schema.Transaction{Effects: effects}}, nil
}

func describeTerrain(t schema.Terrain) string {
	switch t {
	case schema.TerrainDirt:
		return "You see dirt."
	case schema.TerrainWall:
		return "You see a wall."
	case schema.TerrainShallowWater:
		return "You see shallow water."
	case schema.TerrainDeepWater:
		return "You see deep water."
	}
	return "You see nothing special."
}

// terrainEntityAt finds the terrain-bearing entity at loc.
func terrainEntityAt(world schema.World, loc schema.Point) (schema.Entity, bool) {
	for _, oid := range world.EntitiesAt(loc) {
		e := world.Entities[oid]
		if e.Terrain != nil {
			return e, true
		}
	}
	return schema.Entity{}, false
}

// noteEffect folds a note into the notes singleton, when it exists.
// Before the first reset there is nowhere to record notes; the note
// still travels back on the intent result.
func noteEffect(world schema.World, note schema.Note) (schema.Effect, bool) {
	entity, ok := world.Entity(schema.NotesOid)
	if !ok {
		return schema.Effect{}, false
	}
	eff, err := schema.SetEffect(schema.NotesOid, schema.ComponentNotes, appendNotes(entity.Notes, note))
	if err != nil {
		return schema.Effect{}, false
	}
	return eff, true
}
