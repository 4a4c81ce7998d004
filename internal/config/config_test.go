package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.Width != 8000 || cfg.World.Height != 8000 {
		t.Errorf("world = %gx%g, want 8000x8000", cfg.World.Width, cfg.World.Height)
	}
	if cfg.Derived.TickInterval != 80*time.Millisecond {
		t.Errorf("tick interval = %v, want 80ms", cfg.Derived.TickInterval)
	}
	if math.Abs(cfg.Derived.TicksPerYear-45000) > 1e-9 {
		t.Errorf("ticks per year = %v, want 45000", cfg.Derived.TicksPerYear)
	}
	if cfg.Rules.Variant != "territorial" {
		t.Errorf("variant = %q, want territorial", cfg.Rules.Variant)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	overlay := []byte(`
world:
  target_food: 12
rules:
  variant: warring
  orphans_can_eat: false
`)
	if err := os.WriteFile(path, overlay, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.TargetFood != 12 {
		t.Errorf("target_food = %d, want 12", cfg.World.TargetFood)
	}
	// Untouched keys keep their defaults.
	if cfg.World.Width != 8000 {
		t.Errorf("width = %g, want default 8000", cfg.World.Width)
	}
	if cfg.Rules.Variant != "warring" {
		t.Errorf("variant = %q, want warring", cfg.Rules.Variant)
	}
	if cfg.Rules.OrphansCanEat == nil || *cfg.Rules.OrphansCanEat {
		t.Errorf("orphans_can_eat override not applied: %v", cfg.Rules.OrphansCanEat)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero tick", "time:\n  tick_interval_ms: 0\n"},
		{"negative width", "world:\n  width: -1\n"},
		{"inverted lifespan", "organism:\n  min_lifespan_years: 90\n  max_lifespan_years: 10\n"},
		{"unknown backend", "persistence:\n  backend: redis\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Errorf("Load(%s) succeeded, want error", tt.name)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WORLDSIM_PORT", "8081")
	t.Setenv("WORLDSIM_ADMIN_KEY", "secret")
	t.Setenv("WORLDSIM_STORE_BACKEND", "file")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Server.Port != 8081 {
		t.Errorf("port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Server.AdminKey != "secret" {
		t.Errorf("admin key = %q", cfg.Server.AdminKey)
	}
	if cfg.Persistence.Backend != "file" {
		t.Errorf("backend = %q, want file", cfg.Persistence.Backend)
	}
}
