package engine

import (
	"fmt"
	"sort"

	"github.com/talgya/cytophage/internal/config"
)

// AggressionClock selects how a leader's aggressive and calm spells are timed.
type AggressionClock string

const (
	ClockTicks AggressionClock = "ticks" // Countdown counters decremented per tick
	ClockYears AggressionClock = "years" // Age deltas compared in simulated years
)

// Rules is the policy surface that distinguishes world variants.
type Rules struct {
	Name                   string          `json:"name"`
	LeaderOnlyReproduction bool            `json:"leader_only_reproduction"`
	LeaderSplitsOnBirth    bool            `json:"leader_splits_on_birth"` // A reproducing leader moves into a new clan with its child
	OrphansCanEat          bool            `json:"orphans_can_eat"`
	Territory              bool            `json:"territory"`
	Founding               bool            `json:"founding"` // Full-size members found their own clans
	Combat                 bool            `json:"combat"`
	LeadersRepelled        bool            `json:"leaders_repelled"`
	AggressionClock        AggressionClock `json:"aggression_clock"`
}

// Variants are the named rule sets a config may select.
var Variants = map[string]Rules{
	"classic": {
		Name:                "classic",
		LeaderSplitsOnBirth: true,
		OrphansCanEat:       true,
		AggressionClock:     ClockTicks,
	},
	"territorial": {
		Name:                   "territorial",
		LeaderOnlyReproduction: true,
		OrphansCanEat:          true,
		Territory:              true,
		Founding:               true,
		AggressionClock:        ClockTicks,
	},
	"warring": {
		Name:                   "warring",
		LeaderOnlyReproduction: true,
		Territory:              true,
		Founding:               true,
		Combat:                 true,
		LeadersRepelled:        true,
		AggressionClock:        ClockYears,
	},
}

// VariantNames returns the variant names in sorted order.
func VariantNames() []string {
	names := make([]string, 0, len(Variants))
	for n := range Variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolveRules picks the configured variant and applies per-field overrides.
func ResolveRules(rc config.RulesConfig) (Rules, error) {
	name := rc.Variant
	if name == "" {
		name = "territorial"
	}
	r, ok := Variants[name]
	if !ok {
		return Rules{}, fmt.Errorf("unknown rule variant %q (have %v)", name, VariantNames())
	}

	override := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	override(&r.LeaderOnlyReproduction, rc.LeaderOnlyReproduction)
	override(&r.LeaderSplitsOnBirth, rc.LeaderSplitsOnBirth)
	override(&r.OrphansCanEat, rc.OrphansCanEat)
	override(&r.Territory, rc.Territory)
	override(&r.Founding, rc.Founding)
	override(&r.Combat, rc.Combat)
	override(&r.LeadersRepelled, rc.LeadersRepelled)

	if rc.AggressionClock != nil {
		switch c := AggressionClock(*rc.AggressionClock); c {
		case ClockTicks, ClockYears:
			r.AggressionClock = c
		default:
			return Rules{}, fmt.Errorf("unknown aggression clock %q", c)
		}
	}
	return r, nil
}
