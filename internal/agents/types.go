// Package agents provides the organism and food records and the rules that
// apply to a single organism in isolation: aging, hunger, growth, hit points
// and reproduction eligibility.
package agents

// OrganismID is a unique, monotonically issued organism identifier.
type OrganismID uint64

// GroupID identifies a clan. Ids of extinct clans are never reissued.
type GroupID uint64

// DeathReason records why an organism left the live set.
type DeathReason string

const (
	DeathNone       DeathReason = ""
	DeathStarvation DeathReason = "starvation"
	DeathCombat     DeathReason = "combat"
	DeathOldAge     DeathReason = "old_age"
)

// Organism is one living agent.
type Organism struct {
	ID   OrganismID `json:"id"`
	Name string     `json:"name"`

	// Spatial
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Radius float64 `json:"radius"` // Derived each tick from age and size points

	// Lifecycle
	AgeTicks       uint64      `json:"age_ticks"`
	LifespanYears  float64     `json:"lifespan_years"`
	Generation     int         `json:"generation"`
	ParentID       *OrganismID `json:"parent_id,omitempty"`
	ChildrenCount  int         `json:"children_count"`
	LastBirthYears float64     `json:"last_birth_years"` // 0 = never gave birth

	// Needs
	Hunger     float64 `json:"hunger"`      // 0..max, 0 = starved
	SizePoints float64 `json:"size_points"` // 0..max

	// Social. IsLeader is recomputed from the clan registry every tick.
	GroupID     GroupID `json:"group_id"`
	IsLeader    bool    `json:"is_leader"`
	IsSuccessor bool    `json:"is_successor"`
	Orphan      bool    `json:"orphan"`

	// Combat
	HP                   float64 `json:"hp"`
	MaxHP                float64 `json:"max_hp"`
	Strength             float64 `json:"strength"` // 0..1, from size fill
	Aggressive           bool    `json:"aggressive"`
	AggressionTicks      int     `json:"aggression_ticks"`    // Remaining aggressive ticks (tick clock)
	AggressionCooldown   int     `json:"aggression_cooldown"` // Remaining calm ticks before a new trigger
	AggressiveSinceYears float64 `json:"aggressive_since_years"`
	CalmSinceYears       float64 `json:"calm_since_years"`

	DeathReason DeathReason `json:"death_reason,omitempty"`
}

// AgeYears converts the tick age into simulated years.
func (o *Organism) AgeYears(ticksPerYear float64) float64 {
	return float64(o.AgeTicks) / ticksPerYear
}

// Dead reports whether the organism has been marked for removal.
func (o *Organism) Dead() bool {
	return o.DeathReason != DeathNone
}

// FoodParticle is a passive resource. Created by replenishment,
// destroyed on consumption.
type FoodParticle struct {
	ID uint64  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}
