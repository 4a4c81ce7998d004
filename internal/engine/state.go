package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/config"
	"github.com/talgya/cytophage/internal/social"
	"github.com/talgya/cytophage/internal/world"
)

// StateVersion is the current persisted document version.
const StateVersion = 1

// State is the persisted world document: everything needed to rebuild the
// simulation after a restart.
type State struct {
	Version   int                   `json:"version"`
	WorldID   string                `json:"world_id"`
	SavedAt   time.Time             `json:"saved_at"`
	Rules     string                `json:"rules"`
	Bounds    world.Bounds          `json:"bounds"`
	Counters  Counters              `json:"counters"`
	Organisms []agents.Organism     `json:"organisms"`
	Food      []agents.FoodParticle `json:"food"`
	Stats     Stats                 `json:"stats"`
}

// Counters are the monotonic id counters.
type Counters struct {
	NextOrganismID agents.OrganismID `json:"next_organism_id"`
	NextFoodID     uint64            `json:"next_food_id"`
	NextGroupID    agents.GroupID    `json:"next_group_id"`
}

// Export copies the live state under the read lock. The copy shares nothing
// with the simulation and may be written out from another goroutine.
func (s *Simulation) Export() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &State{
		Version: StateVersion,
		WorldID: s.WorldID,
		SavedAt: time.Now().UTC(),
		Rules:   s.Rules.Name,
		Bounds:  s.Bounds,
		Counters: Counters{
			NextOrganismID: s.Spawner.NextID(),
			NextFoodID:     s.Spawner.NextFoodID(),
			NextGroupID:    s.NextGroupID,
		},
		Organisms: make([]agents.Organism, 0, len(s.Organisms)),
		Food:      make([]agents.FoodParticle, len(s.Food)),
		Stats:     s.Stats.clone(),
	}
	for _, o := range s.Organisms {
		if o.Dead() {
			continue
		}
		c := *o
		if o.ParentID != nil {
			pid := *o.ParentID
			c.ParentID = &pid
		}
		st.Organisms = append(st.Organisms, c)
	}
	copy(st.Food, s.Food)
	return st
}

// MarkSaved records a completed save.
func (s *Simulation) MarkSaved(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stats.LastSavedAt = at
}

// ErrEmptyState is returned when a document holds no organisms to restore.
var ErrEmptyState = errors.New("world document has no organisms")

// Restore rebuilds a simulation from a persisted document. Out-of-range
// organism values are clamped, counters are raised above every id in use,
// and no births are recorded.
func Restore(cfg *config.Config, rules Rules, st *State, seed int64) (*Simulation, error) {
	if st == nil {
		return nil, errors.New("nil world document")
	}
	if st.Version > StateVersion {
		return nil, fmt.Errorf("world document version %d is newer than supported %d", st.Version, StateVersion)
	}
	if len(st.Organisms) == 0 {
		return nil, ErrEmptyState
	}

	s := newSimulation(cfg, rules, seed)
	s.WorldID = st.WorldID
	if s.WorldID == "" {
		s.WorldID = uuid.NewString()
	}
	if st.Bounds != s.Bounds {
		slog.Warn("saved bounds differ from config, using config",
			"saved", st.Bounds.String(), "config", s.Bounds.String())
	}

	s.Stats = st.Stats.clone()
	if s.Stats.DeathsByReason == nil {
		s.Stats.DeathsByReason = make(map[agents.DeathReason]int)
	}
	if s.Stats.StartedAt.IsZero() {
		s.Stats.StartedAt = time.Now().UTC()
	}

	maxID := agents.OrganismID(0)
	maxGroup := agents.GroupID(0)
	seen := make(map[agents.OrganismID]bool, len(st.Organisms))
	for i := range st.Organisms {
		o := st.Organisms[i]
		if seen[o.ID] {
			slog.Warn("dropping duplicate organism id on load", "id", o.ID)
			continue
		}
		seen[o.ID] = true
		if o.ParentID != nil {
			pid := *o.ParentID
			o.ParentID = &pid
		}
		agents.Sanitize(&o, cfg, s.rng)
		o.X, o.Y = s.Bounds.Clamp(o.X, o.Y)
		s.Organisms = append(s.Organisms, &o)
		if o.ID > maxID {
			maxID = o.ID
		}
		if o.GroupID > maxGroup {
			maxGroup = o.GroupID
		}
	}

	maxFood := uint64(0)
	for _, f := range st.Food {
		if !s.Bounds.Contains(f.X, f.Y) {
			continue
		}
		s.Food = append(s.Food, f)
		if f.ID > maxFood {
			maxFood = f.ID
		}
	}

	s.Spawner.SetNextID(max(st.Counters.NextOrganismID, maxID+1))
	s.Spawner.SetNextFoodID(max(st.Counters.NextFoodID, maxFood+1))
	s.NextGroupID = max(st.Counters.NextGroupID, maxGroup+1)

	s.registry, _ = social.Build(s.Organisms, nil, cfg)
	s.clanCount = s.registry.Len()
	s.updatePeak()
	s.publish()

	slog.Info("world restored",
		"world_id", s.WorldID,
		"tick", s.Stats.TickCount,
		"organisms", len(s.Organisms),
		"food", len(s.Food),
		"clans", s.clanCount,
	)
	return s, nil
}
