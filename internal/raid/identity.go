package raid

import (
	"fmt"

	"github.com/Azelphur/Monord/internal/models"
)

// Identity is what we know about a raid's boss: either just the egg tier,
// or the resolved creature.
type Identity struct {
	pokemon *models.Pokemon
	level   int
}

// Unresolved is an identity known only by tier.
func Unresolved(level int) Identity {
	return Identity{level: level}
}

// Resolved is an identity pinned to a concrete creature.
func Resolved(p *models.Pokemon) Identity {
	return Identity{pokemon: p}
}

func (id Identity) IsResolved() bool { return id.pokemon != nil }

// Pokemon returns the resolved creature, or nil.
func (id Identity) Pokemon() *models.Pokemon { return id.pokemon }

// Level returns the tier: the creature's declared tier when resolved,
// the reported tier otherwise. A resolved creature without a tier
// returns 0.
func (id Identity) Level() int {
	if id.pokemon != nil {
		if id.pokemon.RaidLevel == nil {
			return 0
		}
		return *id.pokemon.RaidLevel
	}
	return id.level
}

func (id Identity) String() string {
	if id.pokemon != nil {
		return id.pokemon.Name
	}
	return fmt.Sprintf("level %d egg", id.level)
}
