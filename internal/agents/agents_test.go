package agents

import (
	"math"
	"math/rand"
	"testing"

	"github.com/talgya/cytophage/internal/config"
	"github.com/talgya/cytophage/internal/world"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Derived.TicksPerYear = 10 // 10 ticks = 1 year keeps ages readable
	return cfg
}

func adultAtMaxSize(cfg *config.Config) *Organism {
	return &Organism{
		ID:            1,
		AgeTicks:      uint64(30 * cfg.Derived.TicksPerYear),
		LifespanYears: 80,
		Hunger:        cfg.Hunger.Max,
		SizePoints:    cfg.Size.Max,
	}
}

func TestSpawnerIssuesMonotonicIDs(t *testing.T) {
	cfg := testConfig()
	s := NewSpawner(cfg, rand.New(rand.NewSource(1)))
	s.SetNextID(40)

	a := s.SpawnFounder(10, 10, 1)
	b := s.SpawnChild(a, 1)
	if a.ID != 40 || b.ID != 41 {
		t.Fatalf("ids = %d,%d, want 40,41", a.ID, b.ID)
	}
	if b.ParentID == nil || *b.ParentID != a.ID || b.Generation != 1 {
		t.Errorf("child lineage = parent %v gen %d", b.ParentID, b.Generation)
	}
	if b.SizePoints != cfg.Reproduction.ChildSize {
		t.Errorf("child size = %v, want %v", b.SizePoints, cfg.Reproduction.ChildSize)
	}
	if want := cfg.Hunger.Max * cfg.Reproduction.ChildHungerFraction; b.Hunger != want {
		t.Errorf("child hunger = %v, want %v", b.Hunger, want)
	}
	if a.LifespanYears < cfg.Organism.MinLifespanYears || a.LifespanYears > cfg.Organism.MaxLifespanYears {
		t.Errorf("lifespan %v outside configured range", a.LifespanYears)
	}
	if a.HP != a.MaxHP || a.HP <= 0 {
		t.Errorf("founder hp = %v/%v", a.HP, a.MaxHP)
	}
	f1, f2 := s.SpawnFood(0, 0), s.SpawnFood(1, 1)
	if f2.ID != f1.ID+1 {
		t.Errorf("food ids %d,%d not consecutive", f1.ID, f2.ID)
	}
}

func TestHungerDrainScales(t *testing.T) {
	cfg := testConfig()
	base := &Organism{SizePoints: 50, LifespanYears: 100}
	want := cfg.Hunger.BaseDrain + cfg.Hunger.DrainPerSize*50
	if got := HungerDrain(base, cfg); math.Abs(got-want) > 1e-12 {
		t.Fatalf("drain = %v, want %v", got, want)
	}

	leader := *base
	leader.IsLeader = true
	if got := HungerDrain(&leader, cfg); math.Abs(got-want*cfg.Hunger.LeaderScale) > 1e-12 {
		t.Errorf("leader drain = %v, want %v", got, want*cfg.Hunger.LeaderScale)
	}

	elder := *base
	elder.AgeTicks = uint64(90 * cfg.Derived.TicksPerYear)
	if got := HungerDrain(&elder, cfg); math.Abs(got-want*cfg.Hunger.ElderScale) > 1e-12 {
		t.Errorf("elder drain = %v, want %v", got, want*cfg.Hunger.ElderScale)
	}
}

func TestFeedClamps(t *testing.T) {
	cfg := testConfig()
	o := &Organism{Hunger: cfg.Hunger.Max - 1, SizePoints: cfg.Size.Max}
	Feed(o, cfg)
	if o.Hunger != cfg.Hunger.Max || o.SizePoints != cfg.Size.Max {
		t.Errorf("after feed hunger=%v size=%v, want clamped to max", o.Hunger, o.SizePoints)
	}
}

func TestCanReproduce(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name       string
		mutate     func(o *Organism)
		leaderOnly bool
		want       bool
	}{
		{"all gates met", func(o *Organism) {}, false, true},
		{"too young", func(o *Organism) { o.AgeTicks = 5 }, false, false},
		{"not max size", func(o *Organism) { o.SizePoints = cfg.Size.Max - 1 }, false, false},
		{"hungry", func(o *Organism) { o.Hunger = cfg.Hunger.Max * 0.5 }, false, false},
		{"cooldown running", func(o *Organism) { o.ChildrenCount = 1; o.LastBirthYears = 28 }, false, false},
		{"cooldown elapsed", func(o *Organism) { o.ChildrenCount = 1; o.LastBirthYears = 20 }, false, true},
		{"leader only, not leader", func(o *Organism) {}, true, false},
		{"leader only, leader", func(o *Organism) { o.IsLeader = true }, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := adultAtMaxSize(cfg)
			tt.mutate(o)
			if got := CanReproduce(o, cfg, tt.leaderOnly); got != tt.want {
				t.Errorf("CanReproduce = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPayBirth(t *testing.T) {
	cfg := testConfig()
	o := adultAtMaxSize(cfg)
	o.Hunger = cfg.Reproduction.HungerCost / 2
	PayBirth(o, cfg)
	if o.Hunger != 0 {
		t.Errorf("hunger = %v, want clamped 0", o.Hunger)
	}
	if o.ChildrenCount != 1 || o.LastBirthYears != 30 {
		t.Errorf("children=%d lastBirth=%v", o.ChildrenCount, o.LastBirthYears)
	}
}

func TestGrowBlendsYouthAndSize(t *testing.T) {
	cfg := testConfig()
	oc := cfg.Organism

	baby := &Organism{}
	Grow(baby, cfg)
	if baby.Radius != oc.BaseRadius {
		t.Errorf("newborn radius = %v, want %v", baby.Radius, oc.BaseRadius)
	}

	grown := adultAtMaxSize(cfg)
	Grow(grown, cfg)
	if want := oc.BaseRadius + oc.YouthRadius + oc.SizeRadius; math.Abs(grown.Radius-want) > 1e-9 {
		t.Errorf("adult radius = %v, want %v", grown.Radius, want)
	}
	if grown.Strength != 1 {
		t.Errorf("strength = %v, want 1", grown.Strength)
	}
}

func TestSanitize(t *testing.T) {
	cfg := testConfig()
	o := &Organism{
		Hunger:     cfg.Hunger.Max * 3,
		SizePoints: -4,
		HP:         math.NaN(),
		X:          math.Inf(1),
		IsLeader:   true,
	}
	Sanitize(o, cfg, rand.New(rand.NewSource(3)))
	if o.Hunger != cfg.Hunger.Max || o.SizePoints != 0 {
		t.Errorf("hunger=%v size=%v not clamped", o.Hunger, o.SizePoints)
	}
	if o.LifespanYears < cfg.Organism.MinLifespanYears {
		t.Errorf("missing lifespan not defaulted: %v", o.LifespanYears)
	}
	if o.HP != o.MaxHP {
		t.Errorf("NaN hp not defaulted: %v", o.HP)
	}
	if o.IsLeader {
		t.Error("leader flag must not survive a load")
	}
	if o.X != cfg.World.Width/2 {
		t.Errorf("non-finite position not reset: %v", o.X)
	}
}

func TestIntegrateCapsSpeedAndBounces(t *testing.T) {
	cfg := testConfig()
	b := world.Bounds{Width: 100, Height: 100}
	o := &Organism{X: 99, Y: 50}
	Integrate(o, Forces{AX: 50}, b, cfg)

	if o.X != 100 {
		t.Errorf("x = %v, want clamped to 100", o.X)
	}
	if o.VX >= 0 {
		t.Errorf("vx = %v, want reflected inward", o.VX)
	}
	if speed := math.Hypot(o.VX, o.VY); speed > cfg.Organism.MaxSpeed+1e-9 {
		t.Errorf("speed %v above cap", speed)
	}
}
