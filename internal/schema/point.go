package schema

import "fmt"

// Point is a location on a level. Top-left is the origin; y grows
// downward, matching the row-major level maps.
type Point struct {
	X int32 `cbor:"x"`
	Y int32 `cbor:"y"`
}

// Origin returns the zero point.
func Origin() Point {
	return Point{}
}

// Distance2 returns the squared euclidean distance to other. Squared
// distance avoids floating point while preserving ordering, which is
// all field-of-view and adjacency checks need.
func (p Point) Distance2(other Point) int32 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return dx*dx + dy*dy
}

// Adjacent reports whether other is within one cell of p, including
// diagonals. A point is not adjacent to itself.
func (p Point) Adjacent(other Point) bool {
	if p == other {
		return false
	}
	dx := p.X - other.X
	dy := p.Y - other.Y
	return dx >= -1 && dx <= 1 && dy >= -1 && dy <= 1
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}
