package engine

import (
	"sort"

	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/social"
)

type clanPair struct {
	a, b agents.GroupID // a < b
}

func pairOf(x, y agents.GroupID) clanPair {
	if x > y {
		x, y = y, x
	}
	return clanPair{a: x, b: y}
}

// resolveCombat updates leader aggression, finds hostile clan pairs and
// lets every opposing pair within attack range exchange one roll each.
// Pairs are visited in organism order; the earlier organism strikes first
// and a side at HP <= 0 takes no further part this tick.
func (s *Simulation) resolveCombat() {
	s.updateAggression()

	hostile := s.hostilePairs()
	if len(hostile) == 0 {
		return
	}

	s.indexOrganisms()
	for i, o := range s.Organisms {
		if !s.canFight(o) {
			continue
		}
		s.hits = s.orgGrid.QueryInto(s.hits[:0], o.X, o.Y, s.Config.Combat.AttackRange)
		sort.Slice(s.hits, func(a, b int) bool { return s.hits[a].Index < s.hits[b].Index })
		for _, h := range s.hits {
			if h.Index <= i {
				continue
			}
			t := s.Organisms[h.Index]
			if t.GroupID == o.GroupID || !s.canFight(t) || !hostile[pairOf(o.GroupID, t.GroupID)] {
				continue
			}
			s.strike(o, t)
			if t.HP > 0 {
				s.strike(t, o)
			}
			if o.HP <= 0 {
				break
			}
		}
	}
}

// canFight reports whether o is alive with HP left and was not skipped after
// a failure earlier this tick.
func (s *Simulation) canFight(o *agents.Organism) bool {
	return !o.Dead() && o.HP > 0 && !s.skip[o.ID]
}

// strike rolls one hit from attacker on target. Leaders do not initiate
// melee when the rules repel them.
func (s *Simulation) strike(attacker, target *agents.Organism) {
	if attacker.IsLeader && s.Rules.LeadersRepelled {
		return
	}
	cc := s.Config.Combat
	target.HP -= cc.DamageMin + s.rng.Float64()*(cc.DamageMax-cc.DamageMin) + attacker.Strength*cc.StrengthBonus
	s.Stats.CombatHits++
	if target.HP <= 0 {
		s.emit(CategoryDeath, target, "%s was struck down by %s", target.Name, attacker.Name)
	}
}

// hostilePairs returns clan pairs whose circles overlap and where at least
// one leader is aggressive.
func (s *Simulation) hostilePairs() map[clanPair]bool {
	clans := s.registry.Clans()
	var out map[clanPair]bool
	for i, a := range clans {
		if a.Leader == nil {
			continue
		}
		for _, b := range clans[i+1:] {
			if b.Leader == nil || !(a.Aggressive || b.Aggressive) {
				continue
			}
			if !overlapping(a, b) {
				continue
			}
			if out == nil {
				out = make(map[clanPair]bool)
			}
			out[pairOf(a.GroupID, b.GroupID)] = true
		}
	}
	return out
}

// overlapping reports whether two clan circles intersect.
func overlapping(a, b *social.Clan) bool {
	dx := a.Leader.X - b.Leader.X
	dy := a.Leader.Y - b.Leader.Y
	r := a.Radius + b.Radius
	return dx*dx+dy*dy < r*r
}

// updateAggression advances each leader's calm/aggressive state machine and
// clears the flag on everyone else.
func (s *Simulation) updateAggression() {
	for _, o := range s.Organisms {
		if !o.IsLeader && o.Aggressive {
			o.Aggressive = false
		}
	}
	for _, c := range s.registry.Clans() {
		l := c.Leader
		if l == nil || l.Dead() || s.skip[l.ID] {
			continue
		}
		was := l.Aggressive
		switch s.Rules.AggressionClock {
		case ClockYears:
			s.aggressionByYears(l)
		default:
			s.aggressionByTicks(l)
		}
		c.Aggressive = l.Aggressive
		if l.Aggressive && !was {
			s.emit(CategoryAggression, l, "%s turned %s aggressive", l.Name, c.Name)
		} else if !l.Aggressive && was {
			s.emit(CategoryAggression, l, "%s calmed down", c.Name)
		}
	}
}

// triggerChance is the per-tick chance a calm leader turns aggressive.
// Hungrier leaders are more likely to pick a fight.
func (s *Simulation) triggerChance(l *agents.Organism) float64 {
	cc := s.Config.Combat
	starving := 1 - l.Hunger/s.Config.Hunger.Max
	return cc.AggressionChance * (1 + cc.AggressionHungerFactor*starving)
}

func (s *Simulation) aggressionByTicks(l *agents.Organism) {
	cc := s.Config.Combat
	if l.Aggressive {
		l.AggressionTicks--
		if l.AggressionTicks <= 0 {
			l.Aggressive = false
			l.AggressionTicks = 0
			l.AggressionCooldown = cc.AggressionCooldownTicks
		}
		return
	}
	if l.AggressionCooldown > 0 {
		l.AggressionCooldown--
		return
	}
	if s.rng.Float64() < s.triggerChance(l) {
		l.Aggressive = true
		l.AggressionTicks = cc.AggressionTicks
	}
}

func (s *Simulation) aggressionByYears(l *agents.Organism) {
	cc := s.Config.Combat
	tpy := s.Config.Derived.TicksPerYear
	age := l.AgeYears(tpy)
	if l.Aggressive {
		if age-l.AggressiveSinceYears >= float64(cc.AggressionTicks)/tpy {
			l.Aggressive = false
			l.CalmSinceYears = age
		}
		return
	}
	if age-l.CalmSinceYears < float64(cc.AggressionCooldownTicks)/tpy {
		return
	}
	if s.rng.Float64() < s.triggerChance(l) {
		l.Aggressive = true
		l.AggressiveSinceYears = age
	}
}
