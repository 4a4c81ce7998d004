package engine

import (
	"math"

	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/social"
)

// enforceTerritory keeps rank-and-file members inside their clan circle.
// Leaders are exempt; full-size members are exempt and may found a clan of
// their own. Leaders are repelled from enemy circles first so that members
// are measured against the leader's final position.
func (s *Simulation) enforceTerritory() {
	if s.Rules.LeadersRepelled {
		s.repelLeaders()
	}

	for _, o := range s.Organisms {
		if o.Dead() || s.skip[o.ID] || o.IsLeader {
			continue
		}
		c := s.registry.Clan(o.GroupID)
		if c == nil || c.Leader == nil || c.Leader == o {
			continue
		}
		if agents.AtMaxSize(o, s.Config) {
			if s.Rules.Founding && s.canFoundClan() {
				s.foundClan(o, c)
			}
			continue
		}
		s.applyWall(o, c.Leader.X, c.Leader.Y, c.Radius)
	}
}

// applyWall pulls o toward (cx, cy) once past the soft zone and clamps it
// to the circle past the hard wall, cancelling outward velocity.
func (s *Simulation) applyWall(o *agents.Organism, cx, cy, radius float64) {
	tc := s.Config.Territory
	dx := o.X - cx
	dy := o.Y - cy
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return
	}
	nx, ny := dx/dist, dy/dist

	soft := tc.SoftZoneFraction * radius
	if dist > soft {
		pull := (dist - soft) * tc.Spring
		o.VX -= nx * pull
		o.VY -= ny * pull
	}

	if dist > radius {
		o.X = cx + nx*radius
		o.Y = cy + ny*radius
		if vr := o.VX*nx + o.VY*ny; vr > 0 {
			o.VX -= vr * nx
			o.VY -= vr * ny
		}
		o.VX *= tc.WallDamping
		o.VY *= tc.WallDamping
		// The leader is inside the bounds, so clamping only moves o closer.
		o.X, o.Y = s.Bounds.Clamp(o.X, o.Y)
	}
}

// foundClan moves a full-size member into a new clan it leads, placed just
// outside its old clan's wall.
func (s *Simulation) foundClan(o *agents.Organism, old *social.Clan) {
	leader := old.Leader
	dx := o.X - leader.X
	dy := o.Y - leader.Y
	dist := math.Hypot(dx, dy)
	var nx, ny float64
	if dist > 0 {
		nx, ny = dx/dist, dy/dist
	} else {
		a := s.rng.Float64() * 2 * math.Pi
		nx, ny = math.Cos(a), math.Sin(a)
	}
	reach := old.Radius + s.Config.Territory.FoundingMargin
	o.X, o.Y = s.Bounds.Clamp(leader.X+nx*reach, leader.Y+ny*reach)

	oldName := old.Name
	c := s.registry.Found(o, s.newGroupID(), s.Config)
	s.clanCount++
	s.Stats.ClansFounded++
	s.emit(CategoryClan, o, "%s left %s to found %s", o.Name, oldName, c.Name)
}

// repelLeaders pushes each leader out of every enemy clan's circle.
func (s *Simulation) repelLeaders() {
	clans := s.registry.Clans()
	for _, own := range clans {
		l := own.Leader
		if l == nil || l.Dead() || s.skip[l.ID] {
			continue
		}
		for _, enemy := range clans {
			if enemy == own || enemy.Leader == nil {
				continue
			}
			e := enemy.Leader
			dx := l.X - e.X
			dy := l.Y - e.Y
			dist := math.Hypot(dx, dy)
			if dist >= enemy.Radius {
				continue
			}
			var nx, ny float64
			if dist > 0 {
				nx, ny = dx/dist, dy/dist
			} else {
				nx, ny = 1, 0
			}
			l.X, l.Y = s.Bounds.Clamp(e.X+nx*enemy.Radius, e.Y+ny*enemy.Radius)
			if vr := l.VX*nx + l.VY*ny; vr < 0 {
				l.VX -= vr * nx
				l.VY -= vr * ny
			}
		}
		own.LeaderX, own.LeaderY = l.X, l.Y
	}
}
