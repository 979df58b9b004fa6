package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	logx "github.com/Azelphur/Monord/pkg/logx"

	"github.com/Azelphur/Monord/internal/geo"
	"github.com/Azelphur/Monord/internal/models"
	"github.com/Azelphur/Monord/internal/repository"
)

// Query names a raid slot: its tier, EX class, gym location, and the
// time the boss would be active, expressed in the destination's zone.
type Query struct {
	Level int
	EX    bool
	At    time.Time
	Loc   geo.Point
}

// Resolver lists candidate bosses for a raid slot.
type Resolver struct {
	pokemon repository.PokemonRepository
	regions map[string]geo.Polygon
	log     logx.Logger
}

func NewResolver(pokemon repository.PokemonRepository, regions map[string]geo.Polygon, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	if regions == nil {
		regions = map[string]geo.Polygon{}
	}
	return &Resolver{pokemon: pokemon, regions: regions, log: log}
}

// Resolve returns the creatures that can occupy the slot, ordered by
// name. A creature whose rulesets fail to parse is skipped, not fatal:
// one bad row must not hide the rest of the tier.
func (r *Resolver) Resolve(ctx context.Context, q Query) ([]models.Pokemon, error) {
	pool, err := r.pokemon.ListByLevel(ctx, q.Level, q.EX)
	if err != nil {
		return nil, fmt.Errorf("availability: list tier %d: %w", q.Level, err)
	}

	out := make([]models.Pokemon, 0, len(pool))
	for _, p := range pool {
		if p.AvailabilityRules == nil {
			out = append(out, p)
			continue
		}
		rs, err := ParseRulesets(*p.AvailabilityRules)
		if err != nil {
			r.log.Warn("skipping creature with bad rulesets",
				logx.Int64("pokemon_id", p.ID), logx.String("name", p.Name), logx.Any("err", err))
			continue
		}
		if rs.Match(q.At, q.Loc, r.regions) {
			out = append(out, p)
		}
	}
	return out, nil
}

// LoadRegions reads the named-region table from a JSON file mapping
// region name to polygon coordinates.
func LoadRegions(path string) (map[string]geo.Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("availability: read regions: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("availability: decode regions: %w", err)
	}
	out := make(map[string]geo.Polygon, len(raw))
	for name, coords := range raw {
		poly, err := geo.ParsePolygon(coords)
		if err != nil {
			return nil, fmt.Errorf("availability: region %q: %w", name, err)
		}
		out[name] = poly
	}
	return out, nil
}
