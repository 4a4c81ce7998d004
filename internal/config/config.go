// Package config loads world configuration from embedded YAML defaults,
// an optional user file, and WORLDSIM_* environment variables.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds every tunable of the world server.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Time         TimeConfig         `yaml:"time"`
	World        WorldConfig        `yaml:"world"`
	Organism     OrganismConfig     `yaml:"organism"`
	Hunger       HungerConfig       `yaml:"hunger"`
	Size         SizeConfig         `yaml:"size"`
	Reproduction ReproductionConfig `yaml:"reproduction"`
	Social       SocialConfig       `yaml:"social"`
	Clan         ClanConfig         `yaml:"clan"`
	Territory    TerritoryConfig    `yaml:"territory"`
	Combat       CombatConfig       `yaml:"combat"`
	Persistence  PersistenceConfig  `yaml:"persistence"`
	Rules        RulesConfig        `yaml:"rules"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port                   int      `yaml:"port"`
	AdminKey               string   `yaml:"admin_key"` // Empty = POST endpoints disabled
	CORSOrigins            []string `yaml:"cors_origins"`
	StateRequestsPerMinute int      `yaml:"state_requests_per_minute"`
	StreamEveryTicks       int      `yaml:"stream_every_ticks"`
}

// TimeConfig fixes the wall-clock cadence and the length of a simulated year.
type TimeConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
	MsPerYear      int `yaml:"ms_per_year"`
}

// WorldConfig holds world bounds and food population.
type WorldConfig struct {
	Width          float64 `yaml:"width"`
	Height         float64 `yaml:"height"`
	TargetFood     int     `yaml:"target_food"`
	Founders       int     `yaml:"founders"`
	Seed           int64   `yaml:"seed"`            // 0 = seed from crypto/rand
	FoodPatchiness float64 `yaml:"food_patchiness"` // 0 = uniform spawning
	FoodPatchScale float64 `yaml:"food_patch_scale"`
}

// OrganismConfig holds movement and lifecycle constants.
type OrganismConfig struct {
	MaxSpeed         float64 `yaml:"max_speed"`
	Acceleration     float64 `yaml:"acceleration"`
	Friction         float64 `yaml:"friction"`
	Bounce           float64 `yaml:"bounce"`
	InitialSpeed     float64 `yaml:"initial_speed"`
	VisionRadius     float64 `yaml:"vision_radius"`
	AdultAgeYears    float64 `yaml:"adult_age_years"`
	MinLifespanYears float64 `yaml:"min_lifespan_years"`
	MaxLifespanYears float64 `yaml:"max_lifespan_years"`
	BaseRadius       float64 `yaml:"base_radius"`
	YouthRadius      float64 `yaml:"youth_radius"` // Added at full youth factor
	SizeRadius       float64 `yaml:"size_radius"`  // Added at full size fill
	Wander           float64 `yaml:"wander"`
}

// HungerConfig holds hunger drain and feeding constants.
type HungerConfig struct {
	Max             float64 `yaml:"max"`
	InitialFraction float64 `yaml:"initial_fraction"`
	BaseDrain       float64 `yaml:"base_drain"`
	DrainPerSize    float64 `yaml:"drain_per_size"`
	FoodGain        float64 `yaml:"food_gain"`
	EatRadiusFactor float64 `yaml:"eat_radius_factor"`
	LeaderScale     float64 `yaml:"leader_scale"`
	OrphanScale     float64 `yaml:"orphan_scale"`
	ElderScale      float64 `yaml:"elder_scale"`
	ElderFraction   float64 `yaml:"elder_fraction"` // Of lifespan
}

// SizeConfig holds size point bounds.
type SizeConfig struct {
	Max     float64 `yaml:"max"`
	Initial float64 `yaml:"initial"`
	PerFood float64 `yaml:"per_food"`
}

// ReproductionConfig holds birth gates and costs.
type ReproductionConfig struct {
	MinAgeYears         float64 `yaml:"min_age_years"`
	MinHungerFraction   float64 `yaml:"min_hunger_fraction"`
	CooldownYears       float64 `yaml:"cooldown_years"`
	HungerCost          float64 `yaml:"hunger_cost"`
	ChildSize           float64 `yaml:"child_size"`
	ChildHungerFraction float64 `yaml:"child_hunger_fraction"`
	SpawnOffset         float64 `yaml:"spawn_offset"`
}

// SocialConfig holds separation, cohesion and foraging weights.
type SocialConfig struct {
	SeparationFactor float64 `yaml:"separation_factor"` // Threshold = (r1+r2) * this
	SeparationForce  float64 `yaml:"separation_force"`
	SeparationWeight float64 `yaml:"separation_weight"`
	SlideFraction    float64 `yaml:"slide_fraction"`
	CohesionRadius   float64 `yaml:"cohesion_radius"`
	CohesionForce    float64 `yaml:"cohesion_force"`
	FollowStrength   float64 `yaml:"follow_strength"`
	KinBonus         float64 `yaml:"kin_bonus"`
}

// ClanConfig holds territory radius and succession constants.
type ClanConfig struct {
	MaxClans           int     `yaml:"max_clans"` // 0 = unlimited
	RadiusMin          float64 `yaml:"radius_min"`
	RadiusMax          float64 `yaml:"radius_max"`
	RadiusPerSize      float64 `yaml:"radius_per_size"`
	RadiusPerMember    float64 `yaml:"radius_per_member"`
	SuccessionFraction float64 `yaml:"succession_fraction"`
}

// TerritoryConfig holds the clan wall spring.
type TerritoryConfig struct {
	SoftZoneFraction float64 `yaml:"soft_zone_fraction"`
	Spring           float64 `yaml:"spring"`
	WallDamping      float64 `yaml:"wall_damping"`
	FoundingMargin   float64 `yaml:"founding_margin"`
}

// CombatConfig holds hit points, damage and aggression timing.
type CombatConfig struct {
	AttackRange             float64 `yaml:"attack_range"`
	DamageMin               float64 `yaml:"damage_min"`
	DamageMax               float64 `yaml:"damage_max"`
	StrengthBonus           float64 `yaml:"strength_bonus"`
	HPBase                  float64 `yaml:"hp_base"`
	HPPerYear               float64 `yaml:"hp_per_year"`
	HPRegen                 float64 `yaml:"hp_regen"`
	AggressionChance        float64 `yaml:"aggression_chance"`
	AggressionHungerFactor  float64 `yaml:"aggression_hunger_factor"`
	AggressionTicks         int     `yaml:"aggression_ticks"`
	AggressionCooldownTicks int     `yaml:"aggression_cooldown_ticks"`
}

// PersistenceConfig selects the store and save cadence.
type PersistenceConfig struct {
	Backend           string `yaml:"backend"` // "sqlite" or "file"
	Path              string `yaml:"path"`
	SaveEveryTicks    int    `yaml:"save_every_ticks"`
	HistoryEveryTicks int    `yaml:"history_every_ticks"`
	EventLogDir       string `yaml:"event_log_dir"` // Empty = no JSONL event log
}

// RulesConfig names a rule variant and optional per-rule overrides.
type RulesConfig struct {
	Variant                string  `yaml:"variant"`
	LeaderOnlyReproduction *bool   `yaml:"leader_only_reproduction,omitempty"`
	LeaderSplitsOnBirth    *bool   `yaml:"leader_splits_on_birth,omitempty"`
	OrphansCanEat          *bool   `yaml:"orphans_can_eat,omitempty"`
	Territory              *bool   `yaml:"territory,omitempty"`
	Founding               *bool   `yaml:"founding,omitempty"`
	Combat                 *bool   `yaml:"combat,omitempty"`
	LeadersRepelled        *bool   `yaml:"leaders_repelled,omitempty"`
	AggressionClock        *string `yaml:"aggression_clock,omitempty"`
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	TickInterval time.Duration
	TicksPerYear float64
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Default returns the embedded defaults. Panics if they do not parse.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// ApplyEnv overrides server and store settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("WORLDSIM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("WORLDSIM_ADMIN_KEY"); v != "" {
		c.Server.AdminKey = v
	}
	if v := os.Getenv("WORLDSIM_STORE_BACKEND"); v != "" {
		c.Persistence.Backend = v
	}
	if v := os.Getenv("WORLDSIM_STORE_PATH"); v != "" {
		c.Persistence.Path = v
	}
	if v := os.Getenv("WORLDSIM_EVENT_LOG_DIR"); v != "" {
		c.Persistence.EventLogDir = v
	}
}

func (c *Config) validate() error {
	if c.Time.TickIntervalMs <= 0 {
		return fmt.Errorf("time.tick_interval_ms must be positive, got %d", c.Time.TickIntervalMs)
	}
	if c.Time.MsPerYear < c.Time.TickIntervalMs {
		return fmt.Errorf("time.ms_per_year (%d) shorter than one tick", c.Time.MsPerYear)
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("world bounds must be positive, got %gx%g", c.World.Width, c.World.Height)
	}
	if c.Hunger.Max <= 0 || c.Size.Max <= 0 {
		return fmt.Errorf("hunger.max and size.max must be positive")
	}
	if c.Organism.MaxLifespanYears < c.Organism.MinLifespanYears {
		return fmt.Errorf("organism lifespan range inverted: %g > %g",
			c.Organism.MinLifespanYears, c.Organism.MaxLifespanYears)
	}
	if c.Combat.DamageMax < c.Combat.DamageMin {
		return fmt.Errorf("combat damage range inverted: %g > %g", c.Combat.DamageMin, c.Combat.DamageMax)
	}
	switch c.Persistence.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("persistence.backend %q: want sqlite or file", c.Persistence.Backend)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.TickInterval = time.Duration(c.Time.TickIntervalMs) * time.Millisecond
	c.Derived.TicksPerYear = float64(c.Time.MsPerYear) / float64(c.Time.TickIntervalMs)
}

// WriteYAML saves the effective configuration.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
