// Organism spawning: founders, children, and food particles. The spawner owns
// the organism and food id counters.
package agents

import (
	"math/rand"

	"github.com/talgya/cytophage/internal/config"
)

// Spawner creates organisms and food particles.
type Spawner struct {
	cfg        *config.Config
	rng        *rand.Rand
	nextID     OrganismID
	nextFoodID uint64
}

// NewSpawner creates a spawner drawing from rng.
func NewSpawner(cfg *config.Config, rng *rand.Rand) *Spawner {
	return &Spawner{
		cfg:        cfg,
		rng:        rng,
		nextID:     1,
		nextFoodID: 1,
	}
}

// NextID returns the next organism id to be issued.
func (s *Spawner) NextID() OrganismID { return s.nextID }

// NextFoodID returns the next food id to be issued.
func (s *Spawner) NextFoodID() uint64 { return s.nextFoodID }

// SetNextID sets the next organism id (used when restoring a saved world).
func (s *Spawner) SetNextID(id OrganismID) {
	if id < 1 {
		id = 1
	}
	s.nextID = id
}

// SetNextFoodID sets the next food id (used when restoring a saved world).
func (s *Spawner) SetNextFoodID(id uint64) {
	if id < 1 {
		id = 1
	}
	s.nextFoodID = id
}

// RandomLifespan draws a lifespan in years from the configured range.
func (s *Spawner) RandomLifespan() float64 {
	lo := s.cfg.Organism.MinLifespanYears
	hi := s.cfg.Organism.MaxLifespanYears
	return lo + s.rng.Float64()*(hi-lo)
}

// SpawnFounder creates a generation-0 organism with no parent.
func (s *Spawner) SpawnFounder(x, y float64, group GroupID) *Organism {
	return s.spawnOne(x, y, group, s.cfg.Hunger.Max*s.cfg.Hunger.InitialFraction, s.cfg.Size.Initial)
}

// SpawnChild creates a child of parent near the parent's position.
// The caller decides the child's group.
func (s *Spawner) SpawnChild(parent *Organism, group GroupID) *Organism {
	off := s.cfg.Reproduction.SpawnOffset
	x := parent.X + (s.rng.Float64()*2-1)*off
	y := parent.Y + (s.rng.Float64()*2-1)*off

	o := s.spawnOne(x, y, group,
		s.cfg.Hunger.Max*s.cfg.Reproduction.ChildHungerFraction,
		s.cfg.Reproduction.ChildSize)
	pid := parent.ID
	o.ParentID = &pid
	o.Generation = parent.Generation + 1
	return o
}

func (s *Spawner) spawnOne(x, y float64, group GroupID, hunger, size float64) *Organism {
	id := s.nextID
	s.nextID++

	speed := s.cfg.Organism.InitialSpeed
	o := &Organism{
		ID:            id,
		Name:          RandomName(s.rng),
		X:             x,
		Y:             y,
		VX:            (s.rng.Float64()*2 - 1) * speed,
		VY:            (s.rng.Float64()*2 - 1) * speed,
		LifespanYears: s.RandomLifespan(),
		Hunger:        hunger,
		SizePoints:    size,
		GroupID:       group,
	}
	o.MaxHP = MaxHP(o, s.cfg)
	o.HP = o.MaxHP
	Grow(o, s.cfg)
	return o
}

// SpawnFood creates a food particle at (x, y).
func (s *Spawner) SpawnFood(x, y float64) FoodParticle {
	id := s.nextFoodID
	s.nextFoodID++
	return FoodParticle{ID: id, X: x, Y: y}
}
