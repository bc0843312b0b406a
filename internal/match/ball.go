package match

import (
	"math"

	"github.com/HoudaChairi/Ft-transcendence/internal/config"
	"github.com/HoudaChairi/Ft-transcendence/internal/geom"
)

// maxBounceAngle is the steepest deflection off a paddle edge
const maxBounceAngle = 0.42 * math.Pi

// Ball is the ball state. Velocity is direction times speed.
type Ball struct {
	Position geom.Vector3
	Velocity geom.Vector3
}

// Serve returns a velocity in a random direction whose horizontal
// component is at least minDir of the unit vector, scaled to speed.
func Serve(r Random, minDir, speed float64) geom.Vector3 {
	d := geom.Vec(r.Float64()*2-1, r.Float64()*2-1).Normalize()
	if d.Length() == 0 {
		d = geom.Vec(1, 0)
	}
	return clampHorizontal(d, minDir).Scale(speed)
}

// clampHorizontal forces |d.X| >= minDir on a unit vector, keeping the
// signs of both components and unit length.
func clampHorizontal(d geom.Vector3, minDir float64) geom.Vector3 {
	if math.Abs(d.X) >= minDir {
		return d
	}
	return geom.Vec(geom.Sign(d.X)*minDir, geom.Sign(d.Y)*math.Sqrt(1-minDir*minDir))
}

// hitPaddle reports whether the ball moving from prev to next strikes p,
// and the y at which it does. Only a ball travelling toward the paddle
// can hit it. A ball that jumps across the paddle's inner face in one
// tick counts as a hit when it crosses within the box.
func hitPaddle(p *Paddle, prev, next, vel geom.Vector3) (float64, bool) {
	side := geom.Sign(p.Position.X)
	if vel.X*side <= 0 {
		return 0, false
	}
	if p.Box.Contains(next) {
		return next.Y, true
	}
	face := p.Box.Max.X
	if side > 0 {
		face = p.Box.Min.X
	}
	y, ok := geom.SegmentCrossesX(prev, next, face)
	if !ok || y < p.Box.Min.Y || y > p.Box.Max.Y {
		return 0, false
	}
	return y, true
}

// bounce reflects the ball off p at hitY and places it just outside the
// box on the side it now travels toward.
func bounce(b *Ball, p *Paddle, hitY float64, g config.Game) {
	if g.PaddleDeflection {
		speed := b.Velocity.Length()
		rel := geom.Clamp((hitY-p.Position.Y)/g.PaddleHalfHeight, -1, 1)
		angle := rel * maxBounceAngle
		d := geom.Vec(-geom.Sign(b.Velocity.X)*math.Cos(angle), math.Sin(angle))
		b.Velocity = clampHorizontal(d, g.MinDir).Scale(speed)
	} else {
		b.Velocity.X = -b.Velocity.X
	}

	x := p.Box.Min.X - g.BallRadius
	if b.Velocity.X > 0 {
		x = p.Box.Max.X + g.BallRadius
	}
	b.Position = geom.Vec(x, hitY)
}
