// Per-organism rules: hunger drain and feeding, growth, hit points and
// reproduction eligibility. None of these look at other organisms.
package agents

import (
	"math"
	"math/rand"

	"github.com/talgya/cytophage/internal/config"
)

// HungerDrain returns how much hunger the organism loses this tick.
func HungerDrain(o *Organism, cfg *config.Config) float64 {
	h := cfg.Hunger
	drain := h.BaseDrain + h.DrainPerSize*o.SizePoints
	if o.IsLeader && h.LeaderScale > 0 {
		drain *= h.LeaderScale
	}
	if o.Orphan && h.OrphanScale > 0 {
		drain *= h.OrphanScale
	}
	if IsElder(o, cfg) && h.ElderScale > 0 {
		drain *= h.ElderScale
	}
	return drain
}

// IsElder reports whether the organism is past the elder share of its lifespan.
func IsElder(o *Organism, cfg *config.Config) bool {
	return o.AgeYears(cfg.Derived.TicksPerYear) >= cfg.Hunger.ElderFraction*o.LifespanYears
}

// IsAdult reports whether the organism has reached adult age.
func IsAdult(o *Organism, cfg *config.Config) bool {
	return o.AgeYears(cfg.Derived.TicksPerYear) >= cfg.Organism.AdultAgeYears
}

// Feed applies one eaten food particle.
func Feed(o *Organism, cfg *config.Config) {
	o.Hunger = clamp(o.Hunger+cfg.Hunger.FoodGain, 0, cfg.Hunger.Max)
	o.SizePoints = clamp(o.SizePoints+cfg.Size.PerFood, 0, cfg.Size.Max)
}

// AtMaxSize reports whether the organism has filled its size points.
func AtMaxSize(o *Organism, cfg *config.Config) bool {
	return o.SizePoints >= cfg.Size.Max
}

// Grow derives display radius and strength from age and size fill.
func Grow(o *Organism, cfg *config.Config) {
	oc := cfg.Organism
	youth := 1.0
	if oc.AdultAgeYears > 0 {
		youth = math.Min(1, o.AgeYears(cfg.Derived.TicksPerYear)/oc.AdultAgeYears)
	}
	fill := clamp(o.SizePoints/cfg.Size.Max, 0, 1)
	o.Radius = oc.BaseRadius + youth*oc.YouthRadius + fill*oc.SizeRadius
	o.Strength = fill
}

// MaxHP returns the hit point ceiling for the organism's age.
func MaxHP(o *Organism, cfg *config.Config) float64 {
	age := math.Min(o.AgeYears(cfg.Derived.TicksPerYear), cfg.Organism.AdultAgeYears)
	return cfg.Combat.HPBase + cfg.Combat.HPPerYear*age
}

// Regenerate refreshes MaxHP and heals a living organism by the regen rate.
func Regenerate(o *Organism, cfg *config.Config) {
	o.MaxHP = MaxHP(o, cfg)
	if o.HP <= 0 {
		return
	}
	o.HP = math.Min(o.MaxHP, o.HP+cfg.Combat.HPRegen)
}

// CanReproduce checks every birth gate. leaderOnly additionally requires the
// organism to be its clan's leader.
func CanReproduce(o *Organism, cfg *config.Config, leaderOnly bool) bool {
	r := cfg.Reproduction
	age := o.AgeYears(cfg.Derived.TicksPerYear)

	if leaderOnly && !o.IsLeader {
		return false
	}
	if age < r.MinAgeYears {
		return false
	}
	if !AtMaxSize(o, cfg) {
		return false
	}
	if o.Hunger < cfg.Hunger.Max*r.MinHungerFraction {
		return false
	}
	if o.ChildrenCount > 0 && age-o.LastBirthYears < r.CooldownYears {
		return false
	}
	return true
}

// PayBirth charges the parent for one child.
func PayBirth(o *Organism, cfg *config.Config) {
	o.ChildrenCount++
	o.LastBirthYears = o.AgeYears(cfg.Derived.TicksPerYear)
	o.Hunger = clamp(o.Hunger-cfg.Reproduction.HungerCost, 0, cfg.Hunger.Max)
}

// Sanitize clamps a loaded organism back into valid ranges. Out-of-range
// values are never reported, only corrected.
func Sanitize(o *Organism, cfg *config.Config, rng *rand.Rand) {
	o.Hunger = clampFinite(o.Hunger, 0, cfg.Hunger.Max, cfg.Hunger.Max*cfg.Hunger.InitialFraction)
	o.SizePoints = clampFinite(o.SizePoints, 0, cfg.Size.Max, cfg.Size.Initial)
	if !(o.LifespanYears > 0) || math.IsInf(o.LifespanYears, 0) {
		lo := cfg.Organism.MinLifespanYears
		o.LifespanYears = lo + rng.Float64()*(cfg.Organism.MaxLifespanYears-lo)
	}
	if !isFinite(o.X) || !isFinite(o.Y) {
		o.X, o.Y = cfg.World.Width/2, cfg.World.Height/2
	}
	if !isFinite(o.VX) || !isFinite(o.VY) {
		o.VX, o.VY = 0, 0
	}
	if o.Name == "" {
		o.Name = RandomName(rng)
	}
	o.MaxHP = MaxHP(o, cfg)
	// Zero hp survives the load: the next lifecycle pass records the combat death.
	o.HP = clampFinite(o.HP, 0, o.MaxHP, o.MaxHP)
	if o.AggressionTicks < 0 {
		o.AggressionTicks = 0
	}
	if o.AggressionCooldown < 0 {
		o.AggressionCooldown = 0
	}
	o.IsLeader = false
	o.DeathReason = DeathNone
	Grow(o, cfg)
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

func clampFinite(v, lo, hi, fallback float64) float64 {
	if !isFinite(v) {
		return fallback
	}
	return clamp(v, lo, hi)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
