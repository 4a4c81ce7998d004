package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/engine"
	"github.com/talgya/cytophage/internal/world"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; the saver goroutine and API readers share it.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organisms (
		seq INTEGER NOT NULL,
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		vx REAL NOT NULL,
		vy REAL NOT NULL,
		age_ticks INTEGER NOT NULL,
		lifespan_years REAL NOT NULL,
		generation INTEGER NOT NULL,
		parent_id INTEGER,
		children_count INTEGER NOT NULL,
		last_birth_years REAL NOT NULL,
		hunger REAL NOT NULL,
		size_points REAL NOT NULL,
		group_id INTEGER NOT NULL,
		is_successor INTEGER NOT NULL,
		orphan INTEGER NOT NULL,
		combat_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS food (
		seq INTEGER NOT NULL,
		id INTEGER PRIMARY KEY,
		x REAL NOT NULL,
		y REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		organism_id INTEGER NOT NULL DEFAULT 0,
		group_id INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS stats_history (
		tick INTEGER PRIMARY KEY,
		recorded_unix_ms INTEGER NOT NULL,
		population INTEGER NOT NULL,
		clans INTEGER NOT NULL,
		food INTEGER NOT NULL,
		total_born INTEGER NOT NULL,
		total_died INTEGER NOT NULL,
		mean_age_years REAL NOT NULL,
		mean_hunger REAL NOT NULL,
		median_clan_size REAL NOT NULL,
		largest_clan INTEGER NOT NULL,
		aggressive_clans INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_organisms_group ON organisms(group_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// organismRow is the column layout of the organisms table.
type organismRow struct {
	Seq            int     `db:"seq"`
	ID             uint64  `db:"id"`
	Name           string  `db:"name"`
	X              float64 `db:"x"`
	Y              float64 `db:"y"`
	VX             float64 `db:"vx"`
	VY             float64 `db:"vy"`
	AgeTicks       uint64  `db:"age_ticks"`
	LifespanYears  float64 `db:"lifespan_years"`
	Generation     int     `db:"generation"`
	ParentID       *uint64 `db:"parent_id"`
	ChildrenCount  int     `db:"children_count"`
	LastBirthYears float64 `db:"last_birth_years"`
	Hunger         float64 `db:"hunger"`
	SizePoints     float64 `db:"size_points"`
	GroupID        uint64  `db:"group_id"`
	IsSuccessor    bool    `db:"is_successor"`
	Orphan         bool    `db:"orphan"`
	CombatJSON     string  `db:"combat_json"`
}

// combatState is the combat block stored as JSON alongside each organism.
type combatState struct {
	HP                   float64 `json:"hp"`
	MaxHP                float64 `json:"max_hp"`
	Aggressive           bool    `json:"aggressive"`
	AggressionTicks      int     `json:"aggression_ticks"`
	AggressionCooldown   int     `json:"aggression_cooldown"`
	AggressiveSinceYears float64 `json:"aggressive_since_years"`
	CalmSinceYears       float64 `json:"calm_since_years"`
}

func toRow(seq int, o *agents.Organism) (organismRow, error) {
	combat, err := json.Marshal(combatState{
		HP:                   o.HP,
		MaxHP:                o.MaxHP,
		Aggressive:           o.Aggressive,
		AggressionTicks:      o.AggressionTicks,
		AggressionCooldown:   o.AggressionCooldown,
		AggressiveSinceYears: o.AggressiveSinceYears,
		CalmSinceYears:       o.CalmSinceYears,
	})
	if err != nil {
		return organismRow{}, err
	}
	r := organismRow{
		Seq:            seq,
		ID:             uint64(o.ID),
		Name:           o.Name,
		X:              o.X,
		Y:              o.Y,
		VX:             o.VX,
		VY:             o.VY,
		AgeTicks:       o.AgeTicks,
		LifespanYears:  o.LifespanYears,
		Generation:     o.Generation,
		ChildrenCount:  o.ChildrenCount,
		LastBirthYears: o.LastBirthYears,
		Hunger:         o.Hunger,
		SizePoints:     o.SizePoints,
		GroupID:        uint64(o.GroupID),
		IsSuccessor:    o.IsSuccessor,
		Orphan:         o.Orphan,
		CombatJSON:     string(combat),
	}
	if o.ParentID != nil {
		pid := uint64(*o.ParentID)
		r.ParentID = &pid
	}
	return r, nil
}

func (r organismRow) organism() (agents.Organism, error) {
	o := agents.Organism{
		ID:             agents.OrganismID(r.ID),
		Name:           r.Name,
		X:              r.X,
		Y:              r.Y,
		VX:             r.VX,
		VY:             r.VY,
		AgeTicks:       r.AgeTicks,
		LifespanYears:  r.LifespanYears,
		Generation:     r.Generation,
		ChildrenCount:  r.ChildrenCount,
		LastBirthYears: r.LastBirthYears,
		Hunger:         r.Hunger,
		SizePoints:     r.SizePoints,
		GroupID:        agents.GroupID(r.GroupID),
		IsSuccessor:    r.IsSuccessor,
		Orphan:         r.Orphan,
	}
	if r.ParentID != nil {
		pid := agents.OrganismID(*r.ParentID)
		o.ParentID = &pid
	}
	var c combatState
	if err := json.Unmarshal([]byte(r.CombatJSON), &c); err != nil {
		return o, fmt.Errorf("organism %d combat state: %w", r.ID, err)
	}
	o.HP = c.HP
	o.MaxHP = c.MaxHP
	o.Aggressive = c.Aggressive
	o.AggressionTicks = c.AggressionTicks
	o.AggressionCooldown = c.AggressionCooldown
	o.AggressiveSinceYears = c.AggressiveSinceYears
	o.CalmSinceYears = c.CalmSinceYears
	return o, nil
}

type foodRow struct {
	Seq int     `db:"seq"`
	ID  uint64  `db:"id"`
	X   float64 `db:"x"`
	Y   float64 `db:"y"`
}

// Meta keys in world_meta.
const (
	metaVersion  = "version"
	metaWorldID  = "world_id"
	metaSavedAt  = "saved_at"
	metaRules    = "rules"
	metaBounds   = "bounds"
	metaCounters = "counters"
	metaStats    = "stats"
)

// SaveWorld replaces the stored world with st in one transaction.
func (db *DB) SaveWorld(st *engine.State) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM organisms"); err != nil {
		return err
	}
	orgStmt, err := tx.PrepareNamed(`INSERT INTO organisms
		(seq, id, name, x, y, vx, vy, age_ticks, lifespan_years, generation, parent_id,
		 children_count, last_birth_years, hunger, size_points, group_id, is_successor,
		 orphan, combat_json)
		VALUES (:seq, :id, :name, :x, :y, :vx, :vy, :age_ticks, :lifespan_years, :generation,
		 :parent_id, :children_count, :last_birth_years, :hunger, :size_points, :group_id,
		 :is_successor, :orphan, :combat_json)`)
	if err != nil {
		return err
	}
	defer orgStmt.Close()
	for i := range st.Organisms {
		row, err := toRow(i, &st.Organisms[i])
		if err != nil {
			return fmt.Errorf("encode organism %d: %w", st.Organisms[i].ID, err)
		}
		if _, err := orgStmt.Exec(row); err != nil {
			return fmt.Errorf("insert organism %d: %w", row.ID, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM food"); err != nil {
		return err
	}
	foodStmt, err := tx.Preparex("INSERT INTO food (seq, id, x, y) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer foodStmt.Close()
	for i, f := range st.Food {
		if _, err := foodStmt.Exec(i, f.ID, f.X, f.Y); err != nil {
			return fmt.Errorf("insert food %d: %w", f.ID, err)
		}
	}

	meta := map[string]any{
		metaBounds:   st.Bounds,
		metaCounters: st.Counters,
		metaStats:    st.Stats,
	}
	for key, v := range meta {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if err := saveMeta(tx, key, string(b)); err != nil {
			return err
		}
	}
	for key, v := range map[string]string{
		metaVersion: strconv.Itoa(st.Version),
		metaWorldID: st.WorldID,
		metaSavedAt: st.SavedAt.Format(time.RFC3339Nano),
		metaRules:   st.Rules,
	} {
		if err := saveMeta(tx, key, v); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func saveMeta(tx *sqlx.Tx, key, value string) error {
	_, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("save meta %s: %w", key, err)
	}
	return nil
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// LoadWorld reads the stored world. Returns ErrNoState on an empty database.
func (db *DB) LoadWorld() (*engine.State, error) {
	worldID, err := db.GetMeta(metaWorldID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read world id: %w", err)
	}

	st := &engine.State{WorldID: worldID}
	if v, err := db.GetMeta(metaVersion); err == nil {
		st.Version, _ = strconv.Atoi(v)
	}
	if v, err := db.GetMeta(metaSavedAt); err == nil {
		st.SavedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, err := db.GetMeta(metaRules); err == nil {
		st.Rules = v
	}

	var bounds world.Bounds
	for key, dst := range map[string]any{
		metaBounds:   &bounds,
		metaCounters: &st.Counters,
		metaStats:    &st.Stats,
	} {
		v, err := db.GetMeta(key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		if err := json.Unmarshal([]byte(v), dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	st.Bounds = bounds

	var rows []organismRow
	if err := db.conn.Select(&rows, "SELECT * FROM organisms ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("read organisms: %w", err)
	}
	st.Organisms = make([]agents.Organism, 0, len(rows))
	for _, r := range rows {
		o, err := r.organism()
		if err != nil {
			return nil, err
		}
		st.Organisms = append(st.Organisms, o)
	}

	var food []foodRow
	if err := db.conn.Select(&food, "SELECT * FROM food ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("read food: %w", err)
	}
	st.Food = make([]agents.FoodParticle, len(food))
	for i, f := range food {
		st.Food[i] = agents.FoodParticle{ID: f.ID, X: f.X, Y: f.Y}
	}

	slog.Info("world loaded from sqlite", "organisms", len(st.Organisms), "food", len(st.Food), "saved_at", st.SavedAt)
	return st, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.NamedExec(`INSERT INTO events (tick, category, description, organism_id, group_id)
			VALUES (:tick, :category, :description, :organism_id, :group_id)`, e)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, oldest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, category, description, organism_id, group_id FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	reverse(events)
	return events, nil
}

// AppendStats records one stats sample. A repeated tick replaces the sample.
func (db *DB) AppendStats(row StatsRow) error {
	_, err := db.conn.NamedExec(`INSERT OR REPLACE INTO stats_history
		(tick, recorded_unix_ms, population, clans, food, total_born, total_died,
		 mean_age_years, mean_hunger, median_clan_size, largest_clan, aggressive_clans)
		VALUES (:tick, :recorded_unix_ms, :population, :clans, :food, :total_born, :total_died,
		 :mean_age_years, :mean_hunger, :median_clan_size, :largest_clan, :aggressive_clans)`, row)
	return err
}

// StatsHistory returns the newest N samples, oldest first.
func (db *DB) StatsHistory(limit int) ([]StatsRow, error) {
	var rows []StatsRow
	if err := db.conn.Select(&rows, "SELECT * FROM stats_history ORDER BY tick DESC LIMIT ?", limit); err != nil {
		return nil, err
	}
	reverse(rows)
	return rows, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
