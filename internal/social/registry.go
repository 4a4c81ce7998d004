// Clan registry: rebuilt from scratch every tick from organism group ids.
// Leader-ness lives here; the organism's IsLeader flag is written back from
// the registry and never trusted as input.
package social

import (
	"sort"

	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/config"
)

// Promotion records a non-leader becoming its clan's leader.
type Promotion struct {
	GroupID  agents.GroupID
	LeaderID agents.OrganismID
	Previous *agents.OrganismID // Leader at the previous build, if any
}

// Registry indexes living organisms by clan.
type Registry struct {
	clans map[agents.GroupID]*Clan
	order []agents.GroupID // ascending group id
}

// Build groups living organisms by group id, elects each clan's oldest
// member as leader (first encountered on ties), writes IsLeader back onto
// every organism, computes territory radii and flags successors.
// prevLeaders maps group id to the leader of the previous build; it may be nil.
func Build(orgs []*agents.Organism, prevLeaders map[agents.GroupID]agents.OrganismID, cfg *config.Config) (*Registry, []Promotion) {
	r := &Registry{clans: make(map[agents.GroupID]*Clan)}

	for _, o := range orgs {
		if o.Dead() {
			continue
		}
		c, ok := r.clans[o.GroupID]
		if !ok {
			name, color := Identity(o.GroupID)
			c = &Clan{GroupID: o.GroupID, Name: name, Color: color}
			r.clans[o.GroupID] = c
			r.order = append(r.order, o.GroupID)
		}
		c.Members = append(c.Members, o)
		if c.Leader == nil || o.AgeTicks > c.Leader.AgeTicks {
			c.Leader = o
		}
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })

	var promotions []Promotion
	for _, o := range orgs {
		if o.Dead() {
			o.IsLeader = false
			continue
		}
		c := r.clans[o.GroupID]
		wasLeader := o.IsLeader
		o.IsLeader = c.Leader == o
		if o.IsLeader && !wasLeader {
			o.IsSuccessor = false
			p := Promotion{GroupID: c.GroupID, LeaderID: o.ID}
			if prev, ok := prevLeaders[c.GroupID]; ok && prev != o.ID {
				prevID := prev
				p.Previous = &prevID
			}
			promotions = append(promotions, p)
		}
	}

	for _, gid := range r.order {
		c := r.clans[gid]
		c.refresh(cfg)
		if prev, ok := prevLeaders[gid]; ok && prev != c.LeaderID {
			c.clearSuccessors()
		}
		c.flagSuccessor(cfg)
	}
	return r, promotions
}

// refresh recomputes the leader-derived fields and the territory radius.
func (c *Clan) refresh(cfg *config.Config) {
	c.MemberCount = len(c.Members)
	if c.Leader == nil {
		return
	}
	c.LeaderID = c.Leader.ID
	c.LeaderX = c.Leader.X
	c.LeaderY = c.Leader.Y
	c.LeaderSize = c.Leader.SizePoints
	c.Aggressive = c.Leader.Aggressive
	c.Radius = TerritoryRadius(c.LeaderSize, c.MemberCount, cfg)
}

// flagSuccessor marks the oldest full-size non-leader as successor once the
// leader passes the succession share of its lifespan. Purely advisory:
// leadership still moves by age comparison.
func (c *Clan) flagSuccessor(cfg *config.Config) {
	c.SuccessorID = nil
	for _, m := range c.Members {
		if m.IsSuccessor && m != c.Leader {
			id := m.ID
			c.SuccessorID = &id
			return
		}
	}
	if c.Leader == nil {
		return
	}
	tpy := cfg.Derived.TicksPerYear
	if c.Leader.AgeYears(tpy) < cfg.Clan.SuccessionFraction*c.Leader.LifespanYears {
		return
	}
	var best *agents.Organism
	for _, m := range c.Members {
		if m == c.Leader || !agents.AtMaxSize(m, cfg) {
			continue
		}
		if best == nil || m.AgeTicks > best.AgeTicks {
			best = m
		}
	}
	if best != nil {
		best.IsSuccessor = true
		id := best.ID
		c.SuccessorID = &id
	}
}

// clearSuccessors drops successor flags chosen under a previous leader.
func (c *Clan) clearSuccessors() {
	for _, m := range c.Members {
		if m != c.Leader {
			m.IsSuccessor = false
		}
	}
}

// Clan returns the clan for a group id, or nil when it has no living member.
func (r *Registry) Clan(id agents.GroupID) *Clan {
	return r.clans[id]
}

// Len returns the number of living clans.
func (r *Registry) Len() int {
	return len(r.order)
}

// Clans returns the clans in ascending group id order.
func (r *Registry) Clans() []*Clan {
	out := make([]*Clan, 0, len(r.order))
	for _, gid := range r.order {
		out = append(out, r.clans[gid])
	}
	return out
}

// Leaders returns group id → leader id for the next build's promotion check.
func (r *Registry) Leaders() map[agents.GroupID]agents.OrganismID {
	out := make(map[agents.GroupID]agents.OrganismID, len(r.clans))
	for gid, c := range r.clans {
		if c.Leader != nil {
			out[gid] = c.Leader.ID
		}
	}
	return out
}

// Found moves o out of its clan into a new clan it leads alone.
func (r *Registry) Found(o *agents.Organism, newID agents.GroupID, cfg *config.Config) *Clan {
	if old := r.clans[o.GroupID]; old != nil {
		for i, m := range old.Members {
			if m == o {
				old.Members = append(old.Members[:i], old.Members[i+1:]...)
				break
			}
		}
		old.refresh(cfg)
	}

	o.GroupID = newID
	o.IsLeader = true
	o.IsSuccessor = false

	name, color := Identity(newID)
	c := &Clan{GroupID: newID, Name: name, Color: color, Members: []*agents.Organism{o}, Leader: o}
	c.refresh(cfg)
	r.clans[newID] = c
	r.order = append(r.order, newID)
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	return c
}
