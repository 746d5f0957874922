package backend

import (
	"strings"

	"github.com/onekgame/onek/internal/schema"
)

// viewNotes bounds how many recent notes ride along with each view.
const viewNotes = 10

// Cell is one rendered terminal cell.
type Cell struct {
	Symbol int32 `cbor:"symbol"`
}

// Run is a run-length encoded stretch of identical cells. Rows
// compress extremely well this way since most of a level is walls and
// floor.
type Run struct {
	Cell  Cell  `cbor:"cell"`
	Count int32 `cbor:"count"`
}

// Row is one rendered terminal row.
type Row struct {
	Runs []Run `cbor:"runs,omitempty"`
}

// View is a full rendered frame at a world version, pushed to
// front-end sessions after every commit.
type View struct {
	Version uint64       `cbor:"version"`
	Origin  schema.Point `cbor:"origin"`
	Rows    []Row        `cbor:"rows,omitempty"`
	// Notes are the newest player-facing messages.
	Notes []schema.Note `cbor:"notes,omitempty"`
}

// Render draws the world: per cell the topmost renderable wins, where
// occupants sit above terrain and later-spawned occupants above
// earlier ones. Cells nothing renders into come out as spaces.
func Render(world schema.World) View {
	view := View{Version: world.Version}

	minX, minY := int32(0), int32(0)
	maxX, maxY := int32(-1), int32(-1)
	first := true
	for _, e := range world.Entities {
		if e.Position == nil || e.Renderable == nil {
			continue
		}
		p := *e.Position
		if first {
			minX, maxX, minY, maxY = p.X, p.X, p.Y, p.Y
			first = false
			continue
		}
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if first {
		return view
	}
	view.Origin = schema.Point{X: minX, Y: minY}

	for y := minY; y <= maxY; y++ {
		var runs []Run
		for x := minX; x <= maxX; x++ {
			cell := Cell{Symbol: symbolAt(world, schema.Point{X: x, Y: y})}
			if n := len(runs); n > 0 && runs[n-1].Cell == cell {
				runs[n-1].Count++
			} else {
				runs = append(runs, Run{Cell: cell, Count: 1})
			}
		}
		view.Rows = append(view.Rows, Row{Runs: runs})
	}

	if notes, ok := world.Entity(schema.NotesOid); ok && len(notes.Notes) > 0 {
		tail := notes.Notes
		if len(tail) > viewNotes {
			tail = tail[len(tail)-viewNotes:]
		}
		view.Notes = append([]schema.Note(nil), tail...)
	}
	return view
}

func symbolAt(world schema.World, loc schema.Point) int32 {
	symbol := int32(' ')
	haveOccupant := false
	for _, oid := range world.EntitiesAt(loc) {
		e := world.Entities[oid]
		if e.Renderable == nil {
			continue
		}
		if e.Terrain != nil {
			if !haveOccupant {
				symbol = e.Renderable.Symbol
			}
			continue
		}
		// Occupants stack above terrain; ascending oid order makes the
		// newest spawn win.
		symbol = e.Renderable.Symbol
		haveOccupant = true
	}
	return symbol
}

// ASCII expands the view into newline-joined rows, the format scenario
// snapshots are stored in.
func (v View) ASCII() string {
	var b strings.Builder
	for i, row := range v.Rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, run := range row.Runs {
			for n := int32(0); n < run.Count; n++ {
				b.WriteRune(rune(run.Cell.Symbol))
			}
		}
	}
	return b.String()
}
