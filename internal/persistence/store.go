// Package persistence stores the world document, the event history and
// sampled stats. Two backends: SQLite (DB) and a zstd-compressed JSON
// document on disk (FileStore).
package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/talgya/cytophage/internal/config"
	"github.com/talgya/cytophage/internal/engine"
)

// ErrNoState is returned by LoadWorld when nothing has been saved yet.
var ErrNoState = errors.New("no saved world")

// Store is a world persistence backend.
type Store interface {
	SaveWorld(st *engine.State) error
	LoadWorld() (*engine.State, error)
	SaveEvents(events []engine.Event) error
	RecentEvents(limit int) ([]engine.Event, error)
	AppendStats(row StatsRow) error
	StatsHistory(limit int) ([]StatsRow, error)
	Close() error
}

// StatsRow is one sampled line of world statistics.
type StatsRow struct {
	Tick            uint64  `json:"tick" db:"tick" csv:"tick"`
	RecordedUnixMs  int64   `json:"recorded_unix_ms" db:"recorded_unix_ms" csv:"recorded_unix_ms"`
	Population      int     `json:"population" db:"population" csv:"population"`
	Clans           int     `json:"clans" db:"clans" csv:"clans"`
	Food            int     `json:"food" db:"food" csv:"food"`
	TotalBorn       int     `json:"total_born" db:"total_born" csv:"total_born"`
	TotalDied       int     `json:"total_died" db:"total_died" csv:"total_died"`
	MeanAgeYears    float64 `json:"mean_age_years" db:"mean_age_years" csv:"mean_age_years"`
	MeanHunger      float64 `json:"mean_hunger" db:"mean_hunger" csv:"mean_hunger"`
	MedianClanSize  float64 `json:"median_clan_size" db:"median_clan_size" csv:"median_clan_size"`
	LargestClan     int     `json:"largest_clan" db:"largest_clan" csv:"largest_clan"`
	AggressiveClans int     `json:"aggressive_clans" db:"aggressive_clans" csv:"aggressive_clans"`
}

// RowFromSnapshot samples a published snapshot.
func RowFromSnapshot(sn *engine.Snapshot, at time.Time) StatsRow {
	a := sn.Aggregates
	return StatsRow{
		Tick:            sn.Tick,
		RecordedUnixMs:  at.UnixMilli(),
		Population:      a.Population,
		Clans:           a.Clans,
		Food:            a.Food,
		TotalBorn:       sn.Stats.TotalBorn,
		TotalDied:       sn.Stats.TotalDied,
		MeanAgeYears:    a.MeanAgeYears,
		MeanHunger:      a.MeanHunger,
		MedianClanSize:  a.MedianClanSize,
		LargestClan:     a.LargestClan,
		AggressiveClans: a.Aggressive,
	}
}

// Open opens the backend selected by the persistence config.
func Open(pc config.PersistenceConfig) (Store, error) {
	switch pc.Backend {
	case "sqlite":
		return OpenDB(pc.Path)
	case "file":
		return OpenFileStore(pc.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", pc.Backend)
	}
}
