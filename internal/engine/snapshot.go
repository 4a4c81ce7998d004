package engine

import (
	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/world"
)

// Snapshot is an immutable read model of the world at one tick boundary.
// It is rebuilt at the end of every tick and shared by all readers.
type Snapshot struct {
	WorldID    string         `json:"world_id"`
	Tick       uint64         `json:"tick"`
	Rules      string         `json:"rules"`
	Bounds     world.Bounds   `json:"bounds"`
	Stats      Stats          `json:"stats"`
	Aggregates Aggregates     `json:"aggregates"`
	Organisms  []OrganismView `json:"organisms"`
	Food       []FoodView     `json:"food"`
	Clans      []ClanView     `json:"clans"`

	byID map[agents.OrganismID]int
}

// OrganismView is the read-only projection of one organism.
type OrganismView struct {
	ID              agents.OrganismID  `json:"id"`
	Name            string             `json:"name"`
	X               float64            `json:"x"`
	Y               float64            `json:"y"`
	Radius          float64            `json:"radius"`
	SizePoints      float64            `json:"size_points"`
	Hunger          float64            `json:"hunger"`
	AgeYears        float64            `json:"age_years"`
	LifespanYears   float64            `json:"lifespan_years"`
	Generation      int                `json:"generation"`
	ParentID        *agents.OrganismID `json:"parent_id,omitempty"`
	ChildrenCount   int                `json:"children_count"`
	GroupID         agents.GroupID     `json:"group_id"`
	ClanName        string             `json:"clan_name"`
	ClanColor       string             `json:"clan_color"`
	TerritoryRadius float64            `json:"territory_radius"`
	IsLeader        bool               `json:"is_leader"`
	IsSuccessor     bool               `json:"is_successor"`
	Orphan          bool               `json:"orphan"`
	HP              float64            `json:"hp"`
	MaxHP           float64            `json:"max_hp"`
	Aggressive      bool               `json:"aggressive"`
}

// FoodView is a food particle position.
type FoodView struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ClanView is the read-only projection of one clan.
type ClanView struct {
	GroupID     agents.GroupID      `json:"group_id"`
	Name        string              `json:"name"`
	Color       string              `json:"color"`
	MemberCount int                 `json:"member_count"`
	MemberIDs   []agents.OrganismID `json:"member_ids"`
	LeaderID    agents.OrganismID   `json:"leader_id"`
	LeaderX     float64             `json:"leader_x"`
	LeaderY     float64             `json:"leader_y"`
	LeaderSize  float64             `json:"leader_size"`
	SuccessorID *agents.OrganismID  `json:"successor_id,omitempty"`
	Radius      float64             `json:"radius"`
	Aggressive  bool                `json:"aggressive"`
}

// Organism looks up one organism view by id.
func (sn *Snapshot) Organism(id agents.OrganismID) (OrganismView, bool) {
	i, ok := sn.byID[id]
	if !ok {
		return OrganismView{}, false
	}
	return sn.Organisms[i], true
}

// buildSnapshot projects the live state. Callers hold the write lock.
func (s *Simulation) buildSnapshot() *Snapshot {
	tpy := s.Config.Derived.TicksPerYear
	sn := &Snapshot{
		WorldID:   s.WorldID,
		Tick:      s.Stats.TickCount,
		Rules:     s.Rules.Name,
		Bounds:    s.Bounds,
		Stats:     s.Stats.clone(),
		Organisms: make([]OrganismView, 0, len(s.Organisms)),
		Food:      make([]FoodView, len(s.Food)),
		byID:      make(map[agents.OrganismID]int, len(s.Organisms)),
	}

	for _, c := range s.registry.Clans() {
		cv := ClanView{
			GroupID:     c.GroupID,
			Name:        c.Name,
			Color:       c.Color,
			MemberCount: c.MemberCount,
			MemberIDs:   make([]agents.OrganismID, 0, len(c.Members)),
			LeaderID:    c.LeaderID,
			LeaderX:     c.LeaderX,
			LeaderY:     c.LeaderY,
			LeaderSize:  c.LeaderSize,
			SuccessorID: c.SuccessorID,
			Radius:      c.Radius,
			Aggressive:  c.Aggressive,
		}
		for _, m := range c.Members {
			cv.MemberIDs = append(cv.MemberIDs, m.ID)
		}
		sn.Clans = append(sn.Clans, cv)
	}

	for _, o := range s.Organisms {
		if o.Dead() {
			continue
		}
		v := OrganismView{
			ID:            o.ID,
			Name:          o.Name,
			X:             o.X,
			Y:             o.Y,
			Radius:        o.Radius,
			SizePoints:    o.SizePoints,
			Hunger:        o.Hunger,
			AgeYears:      o.AgeYears(tpy),
			LifespanYears: o.LifespanYears,
			Generation:    o.Generation,
			ParentID:      o.ParentID,
			ChildrenCount: o.ChildrenCount,
			GroupID:       o.GroupID,
			IsLeader:      o.IsLeader,
			IsSuccessor:   o.IsSuccessor,
			Orphan:        o.Orphan,
			HP:            o.HP,
			MaxHP:         o.MaxHP,
			Aggressive:    o.Aggressive,
		}
		if c := s.registry.Clan(o.GroupID); c != nil {
			v.ClanName = c.Name
			v.ClanColor = c.Color
			v.TerritoryRadius = c.Radius
		}
		sn.byID[o.ID] = len(sn.Organisms)
		sn.Organisms = append(sn.Organisms, v)
	}

	for i, f := range s.Food {
		sn.Food[i] = FoodView{X: f.X, Y: f.Y}
	}
	sn.Aggregates = computeAggregates(sn.Organisms, sn.Clans, len(sn.Food))
	return sn
}

// Snapshot returns the most recently published snapshot. Never nil once the
// simulation has been constructed.
func (s *Simulation) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

func (s *Simulation) publish() {
	s.snapshot.Store(s.buildSnapshot())
}
