package match

import (
	"math"

	"github.com/HoudaChairi/Ft-transcendence/internal/config"
	"github.com/HoudaChairi/Ft-transcendence/internal/geom"
	"github.com/HoudaChairi/Ft-transcendence/internal/protocol"
)

// Paddle is one participant's paddle. Only Y moves.
type Paddle struct {
	Player    string
	Role      string
	Position  geom.Vector3
	Direction protocol.Direction
	Box       geom.Box
}

func newPaddle(player, role string, x float64, g config.Game) *Paddle {
	p := &Paddle{Player: player, Role: role, Position: geom.Vec(x, 0)}
	p.Box = geom.BoxAround(p.Position, g.PaddleHalfWidth, g.PaddleHalfHeight)
	return p
}

// setY moves the paddle and keeps its box in sync
func (p *Paddle) setY(y float64) {
	p.Box = p.Box.Translate(geom.Vec(0, y-p.Position.Y))
	p.Position.Y = y
}

// integrate advances the paddle by dt seconds. It reports false when the
// move was rejected and the paddle left in place. Clients only send a
// direction, so the displacement is derived here and ValidMove guards the
// integrator itself: with a non-negative tolerance it always passes.
func (p *Paddle) integrate(dt float64, g config.Game) bool {
	if p.Direction == protocol.Stationary || dt <= 0 {
		return true
	}
	maxY := g.MaxPaddleY()
	newY := geom.Clamp(p.Position.Y+float64(p.Direction)*g.PaddleSpeed*dt, -maxY, maxY)
	if !ValidMove(p.Position.Y, newY, g.PaddleSpeed, dt, g.MoveTolerance) {
		return false
	}
	p.setY(newY)
	return true
}

// ValidMove reports whether moving from oldY to newY within dt is
// possible at speed, allowing tolerance as a fraction of the expected travel.
func ValidMove(oldY, newY, speed, dt, tolerance float64) bool {
	return math.Abs(newY-oldY) <= speed*dt*(1+tolerance)
}
