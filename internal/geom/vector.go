package geom

import "math"

// Vector3 is a point or direction on the court. Z is carried for the
// renderer and always 0 in simulation.
type Vector3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// Vec returns a vector on the court plane.
func Vec(x, y float64) Vector3 {
	return Vector3{X: x, Y: y}
}

// Add returns v + o
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v * s
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Length returns the euclidean magnitude
func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns the unit vector in the direction of v.
// The zero vector is returned unchanged.
func (v Vector3) Normalize() Vector3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return Vector3{X: v.X / l, Y: v.Y / l, Z: v.Z / l}
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Sign returns -1 for negative values and 1 otherwise
func Sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
