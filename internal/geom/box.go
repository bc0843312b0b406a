package geom

// Box is an axis-aligned bounding box
type Box struct {
	Min Vector3 `json:"min" msgpack:"min"`
	Max Vector3 `json:"max" msgpack:"max"`
}

// BoxAround builds a box centered on c with the given half extents
func BoxAround(c Vector3, halfW, halfH float64) Box {
	return Box{
		Min: Vector3{X: c.X - halfW, Y: c.Y - halfH, Z: c.Z},
		Max: Vector3{X: c.X + halfW, Y: c.Y + halfH, Z: c.Z},
	}
}

// Contains reports whether p lies inside the box (edges inclusive).
// Z is ignored.
func (b Box) Contains(p Vector3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Center returns the midpoint of the box
func (b Box) Center() Vector3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Translate returns the box moved by d
func (b Box) Translate(d Vector3) Box {
	return Box{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

// SegmentCrossesX reports whether the segment from a to b crosses the
// vertical line x, and if so the y coordinate of the crossing.
// A segment that starts exactly on the line does not count as crossing.
func SegmentCrossesX(a, b Vector3, x float64) (float64, bool) {
	if a.X == b.X {
		return 0, false
	}
	if (a.X < x && b.X < x) || (a.X > x && b.X > x) || a.X == x {
		return 0, false
	}
	t := (x - a.X) / (b.X - a.X)
	return a.Y + (b.Y-a.Y)*t, true
}
