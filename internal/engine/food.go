package engine

import (
	"github.com/talgya/cytophage/internal/agents"
)

// eat lets each organism, in slice order, consume every uneaten food
// particle within its eating radius.
func (s *Simulation) eat() {
	if len(s.Food) == 0 {
		return
	}
	s.indexFood()
	factor := s.Config.Hunger.EatRadiusFactor
	eaten := make([]bool, len(s.Food))
	ate := false

	for _, o := range s.Organisms {
		if o.Dead() || s.skip[o.ID] {
			continue
		}
		if o.Orphan && !s.Rules.OrphansCanEat {
			continue
		}
		r := o.Radius * factor
		rSq := r * r
		s.hits = s.foodGrid.QueryInto(s.hits[:0], o.X, o.Y, r)
		for _, h := range s.hits {
			if h.Index >= len(eaten) || eaten[h.Index] || h.DistSq >= rSq {
				continue
			}
			eaten[h.Index] = true
			ate = true
			agents.Feed(o, s.Config)
		}
	}
	if !ate {
		return
	}

	kept := s.Food[:0]
	for i, f := range s.Food {
		if !eaten[i] {
			kept = append(kept, f)
		}
	}
	s.Food = kept
}

// maintainFood spawns food until the target count is reached.
func (s *Simulation) maintainFood() {
	for len(s.Food) < s.Config.World.TargetFood {
		x, y := s.field.Spawn(s.rng)
		s.Food = append(s.Food, s.Spawner.SpawnFood(x, y))
	}
}
