package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// FoodField decides where food may appear. With zero patchiness every point
// is equally likely; otherwise an OpenSimplex fertility map biases spawns
// into patches.
type FoodField struct {
	Bounds     Bounds
	Patchiness float64 // 0..1
	Scale      float64 // Noise frequency per world unit

	noise opensimplex.Noise
}

// NewFoodField builds a food field for the bounds.
func NewFoodField(b Bounds, seed int64, patchiness, scale float64) *FoodField {
	if patchiness < 0 {
		patchiness = 0
	} else if patchiness > 1 {
		patchiness = 1
	}
	if scale <= 0 {
		scale = 0.0015
	}
	return &FoodField{
		Bounds:     b,
		Patchiness: patchiness,
		Scale:      scale,
		noise:      opensimplex.NewNormalized(seed + 1),
	}
}

// Fertility returns the acceptance probability of a spawn at (x, y).
func (f *FoodField) Fertility(x, y float64) float64 {
	if f.Patchiness == 0 {
		return 1
	}
	n := octaveNoise(f.noise, x, y, 3, f.Scale, 0.5)
	return (1 - f.Patchiness) + f.Patchiness*n
}

// maxSpawnAttempts bounds rejection sampling in barren fields.
const maxSpawnAttempts = 32

// Spawn picks a food position. Rejection sampling against Fertility; after
// maxSpawnAttempts the last candidate is used so Spawn always returns.
func (f *FoodField) Spawn(rng *rand.Rand) (float64, float64) {
	var x, y float64
	for i := 0; i < maxSpawnAttempts; i++ {
		x = rng.Float64() * f.Bounds.Width
		y = rng.Float64() * f.Bounds.Height
		if rng.Float64() < f.Fertility(x, y) {
			break
		}
	}
	return x, y
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
