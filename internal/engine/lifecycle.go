package engine

import (
	"fmt"

	"github.com/talgya/cytophage/internal/agents"
)

// Outcome reports an organism whose update failed this tick.
type Outcome struct {
	ID  agents.OrganismID
	Err error
}

// safely runs fn for one organism and turns a panic into an error.
func safely(id agents.OrganismID, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("organism %d: %v", id, r)
		}
	}()
	fn()
	return nil
}

// integrate runs the per-organism lifecycle and behavior pass: aging, hunger,
// deaths, births, forces and movement. Deaths are removed and births
// appended once every organism has been visited.
func (s *Simulation) integrate() []Outcome {
	s.indexOrganisms()
	s.indexFood()

	var (
		failures []Outcome
		children []*agents.Organism
	)
	for _, o := range s.Organisms {
		if o.Dead() {
			continue
		}
		err := safely(o.ID, func() {
			children = s.stepOrganism(o, children)
		})
		if err != nil {
			failures = append(failures, Outcome{ID: o.ID, Err: err})
			s.skip[o.ID] = true
		}
	}

	s.removeDead()
	s.Organisms = append(s.Organisms, children...)
	return failures
}

// stepOrganism advances one organism by a tick. Births are appended to
// children and returned.
func (s *Simulation) stepOrganism(o *agents.Organism, children []*agents.Organism) []*agents.Organism {
	cfg := s.Config

	o.AgeTicks++
	o.Hunger -= agents.HungerDrain(o, cfg)
	if o.Hunger < 0 {
		o.Hunger = 0
	}

	switch {
	case o.Hunger <= 0:
		s.kill(o, agents.DeathStarvation)
		return children
	case s.Rules.Combat && o.HP <= 0:
		s.kill(o, agents.DeathCombat)
		return children
	case o.AgeYears(cfg.Derived.TicksPerYear) >= o.LifespanYears:
		s.kill(o, agents.DeathOldAge)
		return children
	}

	if agents.CanReproduce(o, cfg, s.Rules.LeaderOnlyReproduction) {
		children = append(children, s.reproduce(o))
	}

	f := s.socialForces(o)
	s.forage(o, &f)
	agents.Integrate(o, f, s.Bounds, cfg)

	agents.Grow(o, cfg)
	agents.Regenerate(o, cfg)
	if o.Orphan && agents.IsAdult(o, cfg) {
		o.Orphan = false
	}
	return children
}

// kill marks the organism dead. It stays in the slice until removeDead.
func (s *Simulation) kill(o *agents.Organism, reason agents.DeathReason) {
	o.DeathReason = reason
	o.IsLeader = false
	s.Stats.TotalDied++
	s.Stats.DeathsByReason[reason]++

	switch reason {
	case agents.DeathStarvation:
		s.emit(CategoryDeath, o, "%s starved", o.Name)
	case agents.DeathCombat:
		s.emit(CategoryDeath, o, "%s fell in battle", o.Name)
	default:
		s.emit(CategoryDeath, o, "%s died of old age at %.1f years",
			o.Name, o.AgeYears(s.Config.Derived.TicksPerYear))
	}
}

// reproduce spawns one child of o and charges the parent. A leader under
// LeaderSplitsOnBirth first moves into a new clan that the child joins.
func (s *Simulation) reproduce(o *agents.Organism) *agents.Organism {
	group := o.GroupID
	if o.IsLeader && s.Rules.LeaderSplitsOnBirth && s.canFoundClan() {
		group = s.newGroupID()
		o.GroupID = group
		s.clanCount++
		s.Stats.ClansFounded++
		s.emit(CategoryClan, o, "%s split off to found clan %d", o.Name, group)
	}

	child := s.Spawner.SpawnChild(o, group)
	agents.PayBirth(o, s.Config)
	s.Stats.TotalBorn++
	s.emit(CategoryBirth, child, "%s was born to %s", child.Name, o.Name)
	return child
}

// removeDead drops dead organisms and marks their living juvenile children
// as orphans.
func (s *Simulation) removeDead() {
	var dead map[agents.OrganismID]bool
	live := s.Organisms[:0]
	for _, o := range s.Organisms {
		if o.Dead() {
			if dead == nil {
				dead = make(map[agents.OrganismID]bool)
			}
			dead[o.ID] = true
			continue
		}
		live = append(live, o)
	}
	for i := len(live); i < len(s.Organisms); i++ {
		s.Organisms[i] = nil
	}
	s.Organisms = live

	if dead == nil {
		return
	}
	for _, o := range s.Organisms {
		if o.ParentID != nil && dead[*o.ParentID] && !agents.IsAdult(o, s.Config) {
			o.Orphan = true
		}
	}
}
