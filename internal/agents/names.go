package agents

import "math/rand"

// organismNames is the cosmetic name table. Names repeat freely.
var organismNames = []string{
	"Amoeba", "Bacillus", "Coccus", "Diatom", "Euglena",
	"Flagella", "Gemmule", "Hypha", "Isolate", "Jelly",
	"Kinete", "Lamella", "Mycel", "Nucleon", "Oocyst",
	"Plasmid", "Quorum", "Ribosome", "Spirilla", "Tubule",
	"Urchin", "Vacuole", "Whorl", "Xylem", "Yeast",
	"Zygote", "Axon", "Bloom", "Cilium", "Dynein",
	"Ester", "Fission", "Glia", "Helix", "Intron",
	"Kelp", "Lysin", "Mitos", "Nodule", "Ovule",
	"Pilus", "Rhizo", "Stroma", "Theca", "Villus",
}

// RandomName draws a display name.
func RandomName(rng *rand.Rand) string {
	return organismNames[rng.Intn(len(organismNames))]
}
