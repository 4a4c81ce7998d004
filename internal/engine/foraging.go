package engine

import (
	"math"

	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/world"
)

// indexOrganisms rebuilds the organism grid from current positions.
func (s *Simulation) indexOrganisms() {
	s.orgGrid.Clear()
	for i, o := range s.Organisms {
		if !o.Dead() {
			s.orgGrid.Insert(i, o.X, o.Y)
		}
	}
}

// indexFood rebuilds the food grid. Food does not move, so the grid stays
// exact until food is eaten or spawned.
func (s *Simulation) indexFood() {
	s.foodGrid.Clear()
	for i, f := range s.Food {
		s.foodGrid.Insert(i, f.X, f.Y)
	}
}

// socialForces sums separation, clan cohesion and follow-the-leader.
// Neighbours are found through the grid built at the start of the pass;
// the query is widened by the distance two organisms can close in one tick
// and distances are recomputed from live positions.
func (s *Simulation) socialForces(o *agents.Organism) agents.Forces {
	sc := s.Config.Social
	var repel agents.Forces

	slack := 2 * s.Config.Organism.MaxSpeed
	s.hits = s.orgGrid.QueryInto(s.hits[:0], o.X, o.Y, sc.CohesionRadius+slack)
	for _, h := range s.hits {
		other := s.Organisms[h.Index]
		if other == o || other.Dead() {
			continue
		}
		dx := o.X - other.X
		dy := o.Y - other.Y
		distSq := dx*dx + dy*dy
		if distSq < 0.0001 {
			continue
		}
		dist := math.Sqrt(distSq)
		minDist := (o.Radius + other.Radius) * sc.SeparationFactor

		if dist < minDist {
			nx, ny := dx/dist, dy/dist
			force := sc.SeparationForce * (1 - dist/(minDist*2))
			slide := force * sc.SlideFraction
			repel.Add(nx*force, ny*force)
			repel.Add(-ny*slide, nx*slide)
		}

		if other.GroupID == o.GroupID && dist > minDist && dist < sc.CohesionRadius {
			pull := sc.CohesionForce * (1 - dist/sc.CohesionRadius)
			repel.Add(-dx/dist*pull, -dy/dist*pull)
		}
	}

	f := agents.Forces{
		AX: repel.AX * sc.SeparationWeight,
		AY: repel.AY * sc.SeparationWeight,
	}

	if !o.IsLeader {
		if c := s.registry.Clan(o.GroupID); c != nil && c.Leader != nil && c.Leader != o &&
			!c.Leader.Dead() && c.Leader.GroupID == o.GroupID {
			dx := c.Leader.X - o.X
			dy := c.Leader.Y - o.Y
			dist := math.Hypot(dx, dy)
			if dist == 0 {
				dist = 1
			}
			f.Add(dx/dist*sc.FollowStrength, dy/dist*sc.FollowStrength)
		}
	}
	return f
}

// forage steers toward the best visible food or adds a random wander.
func (s *Simulation) forage(o *agents.Organism, f *agents.Forces) {
	if i := s.bestFood(o); i >= 0 {
		food := s.Food[i]
		f.Add(agents.Steer(o, food.X, food.Y, s.Config))
		return
	}
	w := s.Config.Organism.Wander
	f.Add((s.rng.Float64()-0.5)*w, (s.rng.Float64()-0.5)*w)
}

// bestFood scores visible food by distance minus the kin bonus and returns
// the index of the lowest score, or -1. Ties go to the lower index.
func (s *Simulation) bestFood(o *agents.Organism) int {
	var kin []*agents.Organism
	if c := s.registry.Clan(o.GroupID); c != nil {
		kin = c.Members
	}

	best := -1
	bestScore := math.Inf(1)
	s.hits = s.foodGrid.QueryInto(s.hits[:0], o.X, o.Y, s.Config.Organism.VisionRadius)
	for _, h := range s.hits {
		food := s.Food[h.Index]
		score := math.Sqrt(h.DistSq) - s.kinBonus(o, kin, food)
		if score < bestScore || (score == bestScore && h.Index < best) {
			best = h.Index
			bestScore = score
		}
	}
	return best
}

// kinBonus sums C / d over living clan mates, d being each mate's distance
// to the food (1 when zero).
func (s *Simulation) kinBonus(o *agents.Organism, kin []*agents.Organism, food agents.FoodParticle) float64 {
	c := s.Config.Social.KinBonus
	bonus := 0.0
	for _, m := range kin {
		if m == o || m.Dead() || m.GroupID != o.GroupID {
			continue
		}
		d := world.Dist(m.X, m.Y, food.X, food.Y)
		if d == 0 {
			d = 1
		}
		bonus += c / d
	}
	return bonus
}
