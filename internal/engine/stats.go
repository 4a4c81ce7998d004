package engine

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/cytophage/internal/agents"
)

// Stats holds the aggregate counters of a world. It is persisted with the
// world document.
type Stats struct {
	StartedAt      time.Time                  `json:"started_at"`
	LastSavedAt    time.Time                  `json:"last_saved_at,omitempty"`
	TickCount      uint64                     `json:"tick_count"`
	TotalBorn      int                        `json:"total_born"`
	TotalDied      int                        `json:"total_died"`
	DeathsByReason map[agents.DeathReason]int `json:"deaths_by_reason"`
	ClansFounded   int                        `json:"clans_founded"`
	Extinctions    int                        `json:"extinctions"`
	PeakPopulation int                        `json:"peak_population"`
	CombatHits     int                        `json:"combat_hits"`
}

func (st Stats) clone() Stats {
	out := st
	out.DeathsByReason = make(map[agents.DeathReason]int, len(st.DeathsByReason))
	for k, v := range st.DeathsByReason {
		out.DeathsByReason[k] = v
	}
	return out
}

// Aggregates are population figures computed from one snapshot.
type Aggregates struct {
	Population     int     `json:"population"`
	Clans          int     `json:"clans"`
	Food           int     `json:"food"`
	Leaders        int     `json:"leaders"`
	Orphans        int     `json:"orphans"`
	Aggressive     int     `json:"aggressive_clans"`
	MeanAgeYears   float64 `json:"mean_age_years"`
	MaxAgeYears    float64 `json:"max_age_years"`
	MeanHunger     float64 `json:"mean_hunger"`
	MeanSize       float64 `json:"mean_size"`
	MaxGeneration  int     `json:"max_generation"`
	MedianClanSize float64 `json:"median_clan_size"`
	LargestClan    int     `json:"largest_clan"`
}

func computeAggregates(orgs []OrganismView, clans []ClanView, food int) Aggregates {
	a := Aggregates{Population: len(orgs), Clans: len(clans), Food: food}
	if len(orgs) > 0 {
		ages := make([]float64, len(orgs))
		hunger := make([]float64, len(orgs))
		size := make([]float64, len(orgs))
		for i, o := range orgs {
			ages[i] = o.AgeYears
			hunger[i] = o.Hunger
			size[i] = o.SizePoints
			if o.AgeYears > a.MaxAgeYears {
				a.MaxAgeYears = o.AgeYears
			}
			if o.Generation > a.MaxGeneration {
				a.MaxGeneration = o.Generation
			}
			if o.IsLeader {
				a.Leaders++
			}
			if o.Orphan {
				a.Orphans++
			}
		}
		a.MeanAgeYears = stat.Mean(ages, nil)
		a.MeanHunger = stat.Mean(hunger, nil)
		a.MeanSize = stat.Mean(size, nil)
	}
	if len(clans) > 0 {
		sizes := make([]float64, len(clans))
		for i, c := range clans {
			sizes[i] = float64(c.MemberCount)
			if c.MemberCount > a.LargestClan {
				a.LargestClan = c.MemberCount
			}
			if c.Aggressive {
				a.Aggressive++
			}
		}
		sort.Float64s(sizes)
		a.MedianClanSize = median(sizes)
	}
	return a
}

// median of sorted values. Even lengths average the two middle values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
