// Simulation ties together all world systems and runs them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/config"
	"github.com/talgya/cytophage/internal/social"
	"github.com/talgya/cytophage/internal/world"
)

// Simulation holds the complete world state. The tick driver is its only
// writer; readers use Snapshot.
type Simulation struct {
	mu sync.RWMutex

	Config  *config.Config
	Rules   Rules
	Bounds  world.Bounds
	WorldID string

	Organisms []*agents.Organism
	Food      []agents.FoodParticle
	Events    []Event // Recent events, trimmed to maxEvents

	Spawner     *agents.Spawner
	NextGroupID agents.GroupID

	Stats Stats

	registry  *social.Registry
	clanCount int // Live clans, including ones founded since the last registry build
	skip      map[agents.OrganismID]bool
	pending   []Event

	rng      *rand.Rand
	field    *world.FoodField
	orgGrid  *world.Grid
	foodGrid *world.Grid
	hits     []world.Neighbor // Reused query buffer

	snapshot atomic.Pointer[Snapshot]
}

// newSimulation builds an empty world; callers populate it.
func newSimulation(cfg *config.Config, rules Rules, seed int64) *Simulation {
	b := world.Bounds{Width: cfg.World.Width, Height: cfg.World.Height}
	rng := rand.New(rand.NewSource(seed))
	s := &Simulation{
		Config:      cfg,
		Rules:       rules,
		Bounds:      b,
		Spawner:     agents.NewSpawner(cfg, rng),
		NextGroupID: 1,
		Stats: Stats{
			StartedAt:      time.Now().UTC(),
			DeathsByReason: make(map[agents.DeathReason]int),
		},
		skip:     make(map[agents.OrganismID]bool),
		rng:      rng,
		field:    world.NewFoodField(b, seed, cfg.World.FoodPatchiness, cfg.World.FoodPatchScale),
		orgGrid:  world.NewGrid(b, gridCellSize(cfg)),
		foodGrid: world.NewGrid(b, cfg.Organism.VisionRadius),
	}
	s.registry, _ = social.Build(nil, nil, cfg)
	return s
}

// gridCellSize sizes organism cells to the social radius, the widest
// neighbour query the integrator makes.
func gridCellSize(cfg *config.Config) float64 {
	if cfg.Social.CohesionRadius > 0 {
		return cfg.Social.CohesionRadius
	}
	return cfg.Organism.VisionRadius
}

// NewSimulation creates a fresh world: founders plus a full food supply.
func NewSimulation(cfg *config.Config, rules Rules, seed int64) *Simulation {
	s := newSimulation(cfg, rules, seed)
	s.WorldID = uuid.NewString()
	s.seedFounders()
	s.maintainFood()
	s.registry, _ = social.Build(s.Organisms, nil, cfg)
	s.clanCount = s.registry.Len()
	s.updatePeak()
	s.publish()

	slog.Info("fresh world created",
		"world_id", s.WorldID,
		"rules", rules.Name,
		"founders", len(s.Organisms),
		"food", len(s.Food),
		"bounds", s.Bounds.String(),
	)
	return s
}

// seedFounders places the configured number of founders, each leading its
// own clan. A single founder starts at the world center.
func (s *Simulation) seedFounders() {
	n := s.Config.World.Founders
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		x, y := s.Bounds.Width/2, s.Bounds.Height/2
		if n > 1 {
			x = s.rng.Float64() * s.Bounds.Width
			y = s.rng.Float64() * s.Bounds.Height
		}
		o := s.Spawner.SpawnFounder(x, y, s.newGroupID())
		s.Organisms = append(s.Organisms, o)
		s.Stats.TotalBorn++
		s.emit(CategoryBirth, o, "%s founded the world's clan %d", o.Name, o.GroupID)
	}
}

func (s *Simulation) newGroupID() agents.GroupID {
	id := s.NextGroupID
	s.NextGroupID++
	return id
}

// canFoundClan reports whether the clan ceiling leaves room for another clan.
func (s *Simulation) canFoundClan() bool {
	limit := s.Config.Clan.MaxClans
	return limit <= 0 || s.clanCount < limit
}

// Step runs one full tick: every stage in fixed order, then the snapshot.
// A failing stage is logged and the remaining stages still run.
func (s *Simulation) Step() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Stats.TickCount++
	clear(s.skip)

	var failures []Outcome
	s.stage("extinction", s.checkExtinction)
	s.stage("election", func() { s.elect() })
	s.stage("lifecycle", func() { failures = s.integrate() })
	s.stage("eating", s.eat)
	s.stage("registry", func() { s.elect() })
	if s.Rules.Territory {
		s.stage("territory", s.enforceTerritory)
	}
	if s.Rules.Combat {
		s.stage("combat", s.resolveCombat)
	}
	s.stage("food", s.maintainFood)
	s.stage("snapshot", func() {
		s.updatePeak()
		s.publish()
	})

	for _, f := range failures {
		slog.Warn("organism update failed", "tick", s.Stats.TickCount, "organism", f.ID, "error", f.Err)
	}
	return failures
}

// stage runs fn, containing any panic so later stages still run.
func (s *Simulation) stage(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick stage failed", "stage", name, "tick", s.Stats.TickCount, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// checkExtinction reseeds an empty world. Counters keep running.
func (s *Simulation) checkExtinction() {
	if len(s.Organisms) > 0 {
		return
	}
	s.Stats.Extinctions++
	s.emit(CategoryWorld, nil, "extinction #%d, reseeding founders", s.Stats.Extinctions)
	slog.Warn("population extinct, reseeding", "tick", s.Stats.TickCount, "extinctions", s.Stats.Extinctions)
	s.seedFounders()
}

// elect rebuilds the clan registry from scratch and reports promotions.
func (s *Simulation) elect() {
	prev := s.registry.Leaders()
	r, promotions := social.Build(s.Organisms, prev, s.Config)
	s.registry = r
	s.clanCount = r.Len()

	for _, p := range promotions {
		c := r.Clan(p.GroupID)
		if c == nil || c.Leader == nil || p.Previous == nil {
			continue
		}
		s.emit(CategoryLeader, c.Leader, "%s now leads %s", c.Leader.Name, c.Name)
	}
}

func (s *Simulation) updatePeak() {
	if n := len(s.Organisms); n > s.Stats.PeakPopulation {
		s.Stats.PeakPopulation = n
	}
}

// Registry returns the clan registry of the current tick. Tick-goroutine only.
func (s *Simulation) Registry() *social.Registry {
	return s.registry
}

// Population returns the live organism count.
func (s *Simulation) Population() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Organisms)
}
