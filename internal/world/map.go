// Package world provides the bounded 2D plane organisms live on: bounds,
// squared-distance helpers, a spatial grid, and the food fertility field.
package world

import (
	"fmt"
	"math"
)

// Bounds is the rectangle [0,Width] x [0,Height].
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether (x, y) lies inside the bounds, edges included.
func (b Bounds) Contains(x, y float64) bool {
	return x >= 0 && x <= b.Width && y >= 0 && y <= b.Height
}

// Clamp pulls a point back inside the bounds.
func (b Bounds) Clamp(x, y float64) (float64, float64) {
	return clamp(x, 0, b.Width), clamp(y, 0, b.Height)
}

// Bounce clamps a moving point to the bounds. A velocity component that
// pushed the point out is reflected inward and scaled by damping.
func (b Bounds) Bounce(x, y, vx, vy, damping float64) (float64, float64, float64, float64) {
	if x < 0 {
		x = 0
		vx = math.Abs(vx) * damping
	} else if x > b.Width {
		x = b.Width
		vx = -math.Abs(vx) * damping
	}
	if y < 0 {
		y = 0
		vy = math.Abs(vy) * damping
	} else if y > b.Height {
		y = b.Height
		vy = -math.Abs(vy) * damping
	}
	return x, y, vx, vy
}

// String returns a summary of the bounds.
func (b Bounds) String() string {
	return fmt.Sprintf("Bounds(%gx%g)", b.Width, b.Height)
}

// DistSq returns the squared distance between two points.
func DistSq(ax, ay, bx, by float64) float64 {
	dx := bx - ax
	dy := by - ay
	return dx*dx + dy*dy
}

// Dist returns the distance between two points.
func Dist(ax, ay, bx, by float64) float64 {
	return math.Sqrt(DistSq(ax, ay, bx, by))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
