// Movement integration: forces to velocity, friction, speed cap, position,
// and inelastic bounce at the world edge.
package agents

import (
	"math"

	"github.com/talgya/cytophage/internal/config"
	"github.com/talgya/cytophage/internal/world"
)

// Forces accumulates the steering contributions for one organism this tick.
type Forces struct {
	AX, AY float64
}

// Add accumulates a force.
func (f *Forces) Add(x, y float64) {
	f.AX += x
	f.AY += y
}

// Integrate applies forces to velocity, then friction, speed cap, position
// update and world-edge bounce.
func Integrate(o *Organism, f Forces, b world.Bounds, cfg *config.Config) {
	oc := cfg.Organism

	o.VX += f.AX
	o.VY += f.AY

	o.VX *= oc.Friction
	o.VY *= oc.Friction

	speed := math.Hypot(o.VX, o.VY)
	if speed > oc.MaxSpeed {
		o.VX = o.VX / speed * oc.MaxSpeed
		o.VY = o.VY / speed * oc.MaxSpeed
	}

	o.X += o.VX
	o.Y += o.VY

	o.X, o.Y, o.VX, o.VY = b.Bounce(o.X, o.Y, o.VX, o.VY, oc.Bounce)
}

// Steer returns the acceleration that turns velocity toward (tx, ty) at
// full speed.
func Steer(o *Organism, tx, ty float64, cfg *config.Config) (float64, float64) {
	dx := tx - o.X
	dy := ty - o.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		dist = 1
	}
	desiredVX := dx / dist * cfg.Organism.MaxSpeed
	desiredVY := dy / dist * cfg.Organism.MaxSpeed
	return (desiredVX - o.VX) * cfg.Organism.Acceleration, (desiredVY - o.VY) * cfg.Organism.Acceleration
}
