package persistence

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/cytophage/internal/config"
	"github.com/talgya/cytophage/internal/engine"
)

func testWorld(t *testing.T) (*config.Config, engine.Rules, *engine.State) {
	t.Helper()
	cfg := config.Default()
	cfg.World.Width = 800
	cfg.World.Height = 800
	cfg.World.TargetFood = 40
	rules, err := engine.ResolveRules(config.RulesConfig{Variant: "territorial"})
	if err != nil {
		t.Fatal(err)
	}
	sim := engine.NewSimulation(cfg, rules, 7)
	for range 20 {
		sim.Step()
	}
	return cfg, rules, sim.Export()
}

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	db, err := OpenDB(filepath.Join(dir, "db", "world.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	fs, err := OpenFileStore(filepath.Join(dir, "file", "world.json.zst"))
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		fs.Close()
	})
	return map[string]Store{"sqlite": db, "file": fs}
}

func TestWorldRoundTrip(t *testing.T) {
	cfg, rules, st := testWorld(t)
	if len(st.Organisms) == 0 {
		t.Fatal("test world has no organisms")
	}

	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.LoadWorld(); !errors.Is(err, ErrNoState) {
				t.Fatalf("empty store: got %v, want ErrNoState", err)
			}
			if err := store.SaveWorld(st); err != nil {
				t.Fatalf("save: %v", err)
			}
			// Saving twice replaces rather than duplicates.
			if err := store.SaveWorld(st); err != nil {
				t.Fatalf("second save: %v", err)
			}
			got, err := store.LoadWorld()
			if err != nil {
				t.Fatalf("load: %v", err)
			}

			if got.WorldID != st.WorldID || got.Rules != st.Rules || got.Version != st.Version {
				t.Errorf("header = %q/%q/%d, want %q/%q/%d",
					got.WorldID, got.Rules, got.Version, st.WorldID, st.Rules, st.Version)
			}
			if got.Counters != st.Counters {
				t.Errorf("counters = %+v, want %+v", got.Counters, st.Counters)
			}
			if got.Bounds != st.Bounds {
				t.Errorf("bounds = %v, want %v", got.Bounds, st.Bounds)
			}
			if got.Stats.TickCount != st.Stats.TickCount || got.Stats.TotalBorn != st.Stats.TotalBorn {
				t.Errorf("stats = %+v, want %+v", got.Stats, st.Stats)
			}
			if len(got.Organisms) != len(st.Organisms) {
				t.Fatalf("organisms = %d, want %d", len(got.Organisms), len(st.Organisms))
			}
			for i, want := range st.Organisms {
				o := got.Organisms[i]
				if o.ID != want.ID || o.GroupID != want.GroupID || o.AgeTicks != want.AgeTicks ||
					o.Hunger != want.Hunger || o.HP != want.HP || o.X != want.X {
					t.Errorf("organism %d = %+v, want %+v", i, o, want)
				}
				if (o.ParentID == nil) != (want.ParentID == nil) ||
					(o.ParentID != nil && *o.ParentID != *want.ParentID) {
					t.Errorf("organism %d parent = %v, want %v", want.ID, o.ParentID, want.ParentID)
				}
			}
			if len(got.Food) != len(st.Food) {
				t.Errorf("food = %d, want %d", len(got.Food), len(st.Food))
			}

			sim, err := engine.Restore(cfg, rules, got, 1)
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			if sim.Population() != len(st.Organisms) {
				t.Errorf("restored population = %d, want %d", sim.Population(), len(st.Organisms))
			}
		})
	}
}

func TestFileStoreRejectsBadDocuments(t *testing.T) {
	writeZstd := func(t *testing.T, path string, data []byte) {
		t.Helper()
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		enc, err := zstd.NewWriter(f)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := enc.Write(data); err != nil {
			t.Fatal(err)
		}
		if err := enc.Close(); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		write func(t *testing.T, path string)
	}{
		{"not zstd", func(t *testing.T, path string) {
			if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
				t.Fatal(err)
			}
		}},
		{"not json", func(t *testing.T, path string) {
			writeZstd(t, path, []byte("{oops"))
		}},
		{"missing fields", func(t *testing.T, path string) {
			writeZstd(t, path, []byte(`{"version": 1, "world_id": "w"}`))
		}},
		{"negative age", func(t *testing.T, path string) {
			writeZstd(t, path, []byte(`{"version":1,"world_id":"w",
				"bounds":{"width":10,"height":10},
				"counters":{"next_organism_id":2,"next_food_id":0,"next_group_id":2},
				"organisms":[{"id":1,"x":1,"y":1,"age_ticks":-5,"lifespan_years":50,
					"hunger":10,"size_points":1,"group_id":1}],
				"food":[],"stats":{}}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "world.json.zst")
			fs, err := OpenFileStore(path)
			if err != nil {
				t.Fatal(err)
			}
			tt.write(t, path)
			_, err = fs.LoadWorld()
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, ErrNoState) {
				t.Fatalf("got ErrNoState for a corrupt document")
			}
		})
	}
}

func TestValidateDocumentAcceptsExport(t *testing.T) {
	_, _, st := testWorld(t)
	data, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateDocument(data); err != nil {
		t.Fatalf("exported document fails validation: %v", err)
	}
}

func TestEventsNewestLast(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			var events []engine.Event
			for i := 1; i <= 5; i++ {
				events = append(events, engine.Event{
					Tick:        uint64(i),
					Category:    engine.CategoryBirth,
					Description: "born",
					OrganismID:  1,
					GroupID:     1,
				})
			}
			if err := store.SaveEvents(events[:2]); err != nil {
				t.Fatal(err)
			}
			if err := store.SaveEvents(events[2:]); err != nil {
				t.Fatal(err)
			}
			got, err := store.RecentEvents(3)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d events, want 3", len(got))
			}
			for i, e := range got {
				if want := uint64(i + 3); e.Tick != want {
					t.Errorf("event %d tick = %d, want %d", i, e.Tick, want)
				}
			}
		})
	}
}

func TestStatsHistory(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			for tick := uint64(10); tick <= 30; tick += 10 {
				row := StatsRow{Tick: tick, Population: int(tick), Clans: 2, MeanHunger: 55.5}
				if err := store.AppendStats(row); err != nil {
					t.Fatalf("append %d: %v", tick, err)
				}
			}
			rows, err := store.StatsHistory(2)
			if err != nil {
				t.Fatal(err)
			}
			if len(rows) != 2 {
				t.Fatalf("got %d rows, want 2", len(rows))
			}
			if rows[0].Tick != 20 || rows[1].Tick != 30 {
				t.Errorf("ticks = %d,%d, want 20,30", rows[0].Tick, rows[1].Tick)
			}
			if rows[1].Population != 30 || rows[1].MeanHunger != 55.5 {
				t.Errorf("row = %+v", rows[1])
			}
		})
	}
}

func readEventLog(t *testing.T, path string) []engine.Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	var out []engine.Event
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e engine.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestEventLogRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLog(dir)
	now := time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ev := func(tick uint64) []engine.Event {
		return []engine.Event{{Tick: tick, Category: engine.CategoryDeath, Description: "died"}}
	}
	if err := l.Write(ev(1)); err != nil {
		t.Fatal(err)
	}
	if err := l.Write(ev(2)); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if err := l.Write(ev(3)); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	first := readEventLog(t, filepath.Join(dir, "events-2026-03-01-09.jsonl.zst"))
	if len(first) != 2 || first[0].Tick != 1 || first[1].Tick != 2 {
		t.Errorf("first hour = %+v", first)
	}
	second := readEventLog(t, filepath.Join(dir, "events-2026-03-01-10.jsonl.zst"))
	if len(second) != 1 || second[0].Tick != 3 {
		t.Errorf("second hour = %+v", second)
	}
}

func TestSaverWritesEverythingOnClose(t *testing.T) {
	_, _, st := testWorld(t)
	dir := t.TempDir()
	fs, err := OpenFileStore(filepath.Join(dir, "world.json.zst"))
	if err != nil {
		t.Fatal(err)
	}
	saver := NewSaver(fs, NewEventLog(filepath.Join(dir, "events")))
	var savedAt time.Time
	saver.OnSaved = func(at time.Time) { savedAt = at }

	// Not started: everything stays queued until Close.
	saver.Request(nil, []engine.Event{{Tick: 1, Category: engine.CategoryWorld, Description: "a"}})
	saver.RecordStats(StatsRow{Tick: 5, Population: 3})
	if err := saver.Close(st, []engine.Event{{Tick: 2, Category: engine.CategoryWorld, Description: "b"}}); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !savedAt.Equal(st.SavedAt) {
		t.Errorf("OnSaved at %v, want %v", savedAt, st.SavedAt)
	}
	got, err := fs.LoadWorld()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Organisms) != len(st.Organisms) {
		t.Errorf("organisms = %d, want %d", len(got.Organisms), len(st.Organisms))
	}
	events, _ := fs.RecentEvents(10)
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}
	rows, err := fs.StatsHistory(0)
	if err != nil || len(rows) != 1 {
		t.Errorf("stats rows = %v, %v", rows, err)
	}
}

func TestSaverBackgroundFlush(t *testing.T) {
	_, _, st := testWorld(t)
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "world.json.zst"))
	if err != nil {
		t.Fatal(err)
	}
	saver := NewSaver(fs, nil)
	saved := make(chan struct{}, 1)
	saver.OnSaved = func(time.Time) { saved <- struct{}{} }
	saver.Start(t.Context())

	if !saver.Request(st, nil) {
		t.Fatal("idle saver rejected a world copy")
	}
	select {
	case <-saved:
	case <-time.After(5 * time.Second):
		t.Fatal("background save did not complete")
	}
	if err := saver.Close(nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.LoadWorld(); err != nil {
		t.Fatalf("load: %v", err)
	}
}
