// Package social derives clans from organism group membership: the clan
// registry, leader election, succession and territory radius.
package social

import (
	"fmt"
	"math"

	"github.com/talgya/cytophage/internal/agents"
	"github.com/talgya/cytophage/internal/config"
)

// Clan is a read model rebuilt every tick. It exists only while at least one
// member is alive.
type Clan struct {
	GroupID     agents.GroupID     `json:"group_id"`
	Name        string             `json:"name"`
	Color       string             `json:"color"`
	Members     []*agents.Organism `json:"-"`
	MemberCount int                `json:"member_count"`
	Leader      *agents.Organism   `json:"-"`
	LeaderID    agents.OrganismID  `json:"leader_id"`
	LeaderX     float64            `json:"leader_x"`
	LeaderY     float64            `json:"leader_y"`
	LeaderSize  float64            `json:"leader_size"`
	SuccessorID *agents.OrganismID `json:"successor_id,omitempty"`
	Radius      float64            `json:"radius"`
	Aggressive  bool               `json:"aggressive"`
}

// TerritoryRadius grows with the leader's size points and the square root of
// the member count, capped at the configured maximum.
func TerritoryRadius(leaderSize float64, members int, cfg *config.Config) float64 {
	c := cfg.Clan
	r := c.RadiusMin + leaderSize*c.RadiusPerSize + math.Sqrt(float64(members))*c.RadiusPerMember
	return math.Min(c.RadiusMax, r)
}

// clanNames is the fixed palette of clan names, indexed by group id - 1.
var clanNames = []string{
	"Alpha", "Beta", "Gamma", "Delta", "Echo",
	"Omega", "Titans", "Wardens", "Pack", "Legion",
	"Sparks", "Flame", "Moon", "Sun", "Shades",
	"Wolves", "Hawks", "Cosmos", "Storm", "Mirage",
	"Crystal", "Hive", "Ark", "Phoenix", "Phantom",
	"Shield", "Claw", "Tempest", "Citadel", "Portal",
	"Vortex", "Comet", "Nebula", "Spiral", "Magma",
	"Chimeras", "Hydra", "Wasp", "Swarm", "Labyrinth",
	"Oasis", "Peak", "Thunder", "Mist", "Radiance",
	"Shards", "Deepwatch", "Constellation", "Obsidian", "Nightfall",
	"Sandglass", "Frostbite", "Seabreeze", "Nightwolves", "Starpath",
	"Icewing", "Black Dawn", "Greenleaf", "Stonering", "Ember",
}

// PaletteSize is the number of named clans before names fall back to Drifters-N.
var PaletteSize = len(clanNames)

// Identity returns the clan's display name and color. It is a pure function
// of the group id.
func Identity(id agents.GroupID) (name, color string) {
	if id >= 1 && int(id) <= len(clanNames) {
		name = clanNames[id-1]
	} else {
		name = fmt.Sprintf("Drifters-%d", id)
	}
	// Golden-angle hue stepping keeps neighbouring ids visually apart.
	hue := (uint64(id) * 137) % 360
	color = fmt.Sprintf("hsl(%d, 80%%, 60%%)", hue)
	return name, color
}
