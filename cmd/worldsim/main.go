// Command worldsim runs the Cytophage world server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/talgya/cytophage/internal/api"
	"github.com/talgya/cytophage/internal/config"
	"github.com/talgya/cytophage/internal/engine"
	"github.com/talgya/cytophage/internal/entropy"
	"github.com/talgya/cytophage/internal/persistence"
)

func main() {
	configPath := flag.String("config", os.Getenv("WORLDSIM_CONFIG"), "YAML file overlaid on the embedded defaults")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("Cytophage: clan world simulation")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Configuration ─────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	rules, err := engine.ResolveRules(cfg.Rules)
	if err != nil {
		slog.Error("invalid rules", "error", err)
		os.Exit(1)
	}

	seed := cfg.World.Seed
	if seed == 0 {
		seed = entropy.NewClient(os.Getenv("RANDOM_ORG_API_KEY")).Seed(ctx)
	}
	slog.Info("configuration loaded",
		"rules", rules.Name,
		"bounds", fmt.Sprintf("%gx%g", cfg.World.Width, cfg.World.Height),
		"tick_interval", cfg.Derived.TickInterval,
		"ticks_per_year", cfg.Derived.TicksPerYear,
		"seed", seed,
	)

	// ── Store ─────────────────────────────────────────────────────────
	store, err := persistence.Open(cfg.Persistence)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Persistence.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("store opened", "backend", cfg.Persistence.Backend, "path", cfg.Persistence.Path)

	// ── Load or Create World ──────────────────────────────────────────
	sim := loadOrCreate(cfg, rules, store, seed)

	var eventLog *persistence.EventLog
	if dir := cfg.Persistence.EventLogDir; dir != "" {
		eventLog = persistence.NewEventLog(dir)
		slog.Info("event log enabled", "dir", dir)
	}
	saver := persistence.NewSaver(store, eventLog)
	saver.OnSaved = sim.MarkSaved
	saver.Start(ctx)

	// ── Engine ────────────────────────────────────────────────────────
	startTick := sim.Snapshot().Tick
	eng := engine.NewEngine(cfg.Derived.TickInterval, startTick)
	eng.SaveEvery = uint64(max(cfg.Persistence.SaveEveryTicks, 0))
	eng.HistoryEvery = uint64(max(cfg.Persistence.HistoryEveryTicks, 0))
	eng.TicksPerYear = uint64(math.Round(cfg.Derived.TicksPerYear))

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn("WORLDSIM_ADMIN_KEY not set, admin POST endpoints disabled")
	}
	apiServer := api.NewServer(sim, eng)
	apiServer.Store = store
	apiServer.Saver = saver
	apiServer.Port = cfg.Server.Port
	apiServer.AdminKey = cfg.Server.AdminKey
	apiServer.CORSOrigins = cfg.Server.CORSOrigins
	if n := cfg.Server.StateRequestsPerMinute; n > 0 {
		apiServer.StateLimiter = api.NewRateLimiter(n, time.Minute)
	}

	// Wire tick callbacks.
	streamEvery := uint64(max(cfg.Server.StreamEveryTicks, 0))
	eng.OnTick = func(tick uint64) {
		sim.Step()
		if streamEvery > 0 && tick%streamEvery == 0 {
			apiServer.Publish(sim.Snapshot())
		}
	}
	eng.OnSave = func(tick uint64) {
		if saver.Busy() {
			slog.Debug("save still in flight, skipping", "tick", tick)
			return
		}
		saver.Request(sim.Export(), sim.DrainEvents())
	}
	eng.OnHistory = func(tick uint64) {
		saver.RecordStats(persistence.RowFromSnapshot(sim.Snapshot(), time.Now()))
	}
	eng.OnYear = func(tick uint64) {
		sn := sim.Snapshot()
		slog.Info("year passed",
			"sim_time", engine.SimTime(sn.Tick, cfg.Derived.TicksPerYear),
			"population", sn.Aggregates.Population,
			"clans", sn.Aggregates.Clans,
			"food", sn.Aggregates.Food,
			"born", sn.Stats.TotalBorn,
			"died", sn.Stats.TotalDied,
			"largest_clan", sn.Aggregates.LargestClan,
		)
	}

	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	fmt.Printf("\nCytophage is alive: %d organisms in %d clans.\n",
		sim.Population(), sim.Registry().Len())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", startTick, engine.SimTime(startTick, cfg.Derived.TicksPerYear))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)

	// ── Shutdown ──────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	slog.Info("final save...")
	if err := saver.Close(sim.Export(), sim.DrainEvents()); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. World state saved.")
}

// loadOrCreate restores the saved world, or creates a fresh one when nothing
// usable was saved. Any load failure falls back to a fresh world.
func loadOrCreate(cfg *config.Config, rules engine.Rules, store persistence.Store, seed int64) *engine.Simulation {
	st, err := store.LoadWorld()
	switch {
	case errors.Is(err, persistence.ErrNoState):
		slog.Info("no saved world found, creating a new one")
	case err != nil:
		slog.Warn("saved world unreadable, creating a new one", "error", err)
	default:
		if st.Rules != "" && st.Rules != rules.Name {
			slog.Warn("saved world ran under different rules", "saved", st.Rules, "now", rules.Name)
		}
		sim, err := engine.Restore(cfg, rules, st, seed)
		if err == nil {
			return sim
		}
		slog.Warn("saved world could not be restored, creating a new one", "error", err)
	}

	sim := engine.NewSimulation(cfg, rules, seed)
	// Save on fresh creation so a crash before the first periodic save
	// still resumes this world.
	if err := store.SaveWorld(sim.Export()); err != nil {
		slog.Error("initial save failed", "error", err)
	}
	return sim
}
