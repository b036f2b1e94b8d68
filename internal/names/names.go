// Package names generates display-name suggestions. The suggestion
// dictionary and HTTP glue are out of scope; the seeded-generator
// algorithm is kept because the join endpoint uses it to offer a sensible
// default display name before a participant has chosen one.
package names

import (
	"fmt"
	"math/rand"
)

var adjectives = []string{
	"Quiet", "Amber", "Cobalt", "Silent", "Gentle", "Hidden", "Swift", "Violet",
	"Dusty", "Pale", "Bright", "Lone", "Calm", "Vivid", "Muted", "Sly",
}

var nouns = []string{
	"Falcon", "Harbor", "Lantern", "Ember", "Willow", "Cipher", "Meadow", "Otter",
	"Comet", "Reef", "Sparrow", "Thistle", "Glacier", "Marsh", "Raven", "Birch",
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Suggest returns a deterministic two-word name seeded from roomID and
// participantID: the same participant in the same room always gets the
// same suggestion, so a repeat join from a device whose participant row
// still exists gets the same name back. A join after a disconnect creates a
// new participant id and so may get a different suggestion.
func (g *Generator) Suggest(roomID string, participantID int64) string {
	seed := hashSeed(roomID, participantID)
	r := rand.New(rand.NewSource(seed))
	adj := adjectives[r.Intn(len(adjectives))]
	noun := nouns[r.Intn(len(nouns))]
	return fmt.Sprintf("%s %s", adj, noun)
}

// Random returns a non-deterministic suggestion, for the standalone
// /api/v1/names/suggest endpoint called before a participant id exists.
func (g *Generator) Random() string {
	adj := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	return fmt.Sprintf("%s %s", adj, noun)
}

func hashSeed(roomID string, participantID int64) int64 {
	var h int64 = 1469598103934665603
	for _, c := range roomID {
		h ^= int64(c)
		h *= 1099511628211
	}
	h ^= participantID
	h *= 1099511628211
	if h < 0 {
		h = -h
	}
	return h
}
