package availability

import (
	"context"
	"testing"
	"time"

	logx "github.com/Azelphur/Monord/pkg/logx"

	"github.com/Azelphur/Monord/internal/geo"
	"github.com/Azelphur/Monord/internal/models"
	"github.com/Azelphur/Monord/internal/repository"
	"github.com/Azelphur/Monord/internal/storage"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
}

// northRegions maps "north" to the lat 10..20, lon 0..10 rectangle.
func northRegions(t *testing.T) map[string]geo.Polygon {
	t.Helper()
	poly, err := geo.FromCoordinates([][][2]float64{{{0, 10}, {10, 10}, {10, 20}, {0, 20}}})
	if err != nil {
		t.Fatalf("build region: %v", err)
	}
	return map[string]geo.Polygon{"north": poly}
}

func TestParseRulesetsRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []string{
		`not json`,
		`[[{"type":"warp"}]]`,
		`[[{"type":"time","start":"25:00","end":"10:00"}]]`,
		`[[{"type":"time","start":"09:00","end":"nope"}]]`,
		`[[{"type":"time","start":"2024-06-01T00:00:00Z","end":"10:00"}]]`,
		`[[{"type":"time","start":"2024-06-01T00:00:00Z","end":"2024-05-01T00:00:00Z"}]]`,
		`[[{"type":"region"}]]`,
	}
	for _, raw := range cases {
		if _, err := ParseRulesets(raw); err == nil {
			t.Fatalf("ParseRulesets(%q) should have failed", raw)
		}
	}
}

func TestTimeWindows(t *testing.T) {
	t.Parallel()

	rs, err := ParseRulesets(`[[{"type":"time","start":"09:00","end":"17:00"}]]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cases := []struct {
		at   time.Time
		want bool
	}{
		{at(9, 0), true}, // inclusive start
		{at(12, 30), true},
		{at(17, 0), true}, // inclusive end
		{at(17, 1), false},
		{at(8, 59), false},
		{at(23, 0), false},
	}
	for _, tc := range cases {
		if got := rs.Match(tc.at, geo.Point{}, nil); got != tc.want {
			t.Fatalf("Match at %02d:%02d = %v, want %v", tc.at.Hour(), tc.at.Minute(), got, tc.want)
		}
	}
}

func TestTimeWindowWrapsMidnight(t *testing.T) {
	t.Parallel()

	rs, err := ParseRulesets(`[[{"type":"time","start":"22:00","end":"02:00"}]]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !rs.Match(at(23, 0), geo.Point{}, nil) {
		t.Fatalf("23:00 should be inside a 22:00-02:00 window")
	}
	if !rs.Match(at(1, 30), geo.Point{}, nil) {
		t.Fatalf("01:30 should be inside a 22:00-02:00 window")
	}
	if !rs.Match(at(2, 0), geo.Point{}, nil) {
		t.Fatalf("the 02:00 end itself is inside the window")
	}
	if rs.Match(at(12, 0), geo.Point{}, nil) {
		t.Fatalf("12:00 should be outside a 22:00-02:00 window")
	}
}

func TestAbsoluteWindow(t *testing.T) {
	t.Parallel()

	rs, err := ParseRulesets(`[[{"type":"time","start":"2024-06-01T00:00:00Z","end":"2024-08-31T23:59:59Z"}]]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cases := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true}, // inclusive start
		{time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 8, 31, 23, 59, 59, 0, time.UTC), true}, // inclusive end
		{time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), false},
	}
	for _, tc := range cases {
		if got := rs.Match(tc.at, geo.Point{}, nil); got != tc.want {
			t.Fatalf("Match at %v = %v, want %v", tc.at, got, tc.want)
		}
	}

	// The query time's zone must not move the window.
	local := time.Date(2024, 9, 1, 0, 30, 0, 0, time.FixedZone("east", 3*3600))
	if !rs.Match(local, geo.Point{}, nil) {
		t.Fatalf("2024-08-31T21:30Z expressed in a +03:00 zone should still match")
	}
}

func TestRegionRule(t *testing.T) {
	t.Parallel()

	regions := northRegions(t)
	rs, err := ParseRulesets(`[[{"type":"region","region":"north"}]]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !rs.Match(at(12, 0), geo.Point{Lat: 15, Lon: 5}, regions) {
		t.Fatalf("point inside north should match")
	}
	if rs.Match(at(12, 0), geo.Point{Lat: 5, Lon: 5}, regions) {
		t.Fatalf("point outside north should not match")
	}
	// Unknown region name never matches.
	rs, err = ParseRulesets(`[[{"type":"region","region":"atlantis"}]]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rs.Match(at(12, 0), geo.Point{Lat: 15, Lon: 5}, regions) {
		t.Fatalf("unknown region should never match")
	}
}

func TestGroupsOrTogether(t *testing.T) {
	t.Parallel()

	// Morning window OR inside north region.
	regions := northRegions(t)
	rs, err := ParseRulesets(`[
		[{"type":"time","start":"06:00","end":"12:00"}],
		[{"type":"region","region":"north"}]
	]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	south := geo.Point{Lat: 5, Lon: 5}
	north := geo.Point{Lat: 15, Lon: 5}

	if !rs.Match(at(8, 0), south, regions) {
		t.Fatalf("morning in the south should match via the time group")
	}
	if !rs.Match(at(20, 0), north, regions) {
		t.Fatalf("evening in the north should match via the region group")
	}
	if rs.Match(at(20, 0), south, regions) {
		t.Fatalf("evening in the south should not match")
	}
}

func TestRulesInGroupAndTogether(t *testing.T) {
	t.Parallel()

	regions := northRegions(t)
	rs, err := ParseRulesets(`[[
		{"type":"time","start":"06:00","end":"12:00"},
		{"type":"region","region":"north"}
	]]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	north := geo.Point{Lat: 15, Lon: 5}
	if !rs.Match(at(8, 0), north, regions) {
		t.Fatalf("morning in the north should match")
	}
	if rs.Match(at(20, 0), north, regions) {
		t.Fatalf("evening in the north should fail the time rule")
	}
	if rs.Match(at(8, 0), geo.Point{Lat: 5, Lon: 5}, regions) {
		t.Fatalf("morning in the south should fail the region rule")
	}
}

func seedResolver(t *testing.T) *Resolver {
	t.Helper()
	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.NewPokemonRepository(db)
	ctx := context.Background()

	five := 5
	morning := `[[{"type":"time","start":"06:00","end":"12:00"}]]`
	broken := `[[{"type":"hex"}]]`
	seed := []models.Pokemon{
		{ID: 1, Name: "Zapdos", RaidLevel: &five},
		{ID: 2, Name: "Articuno", RaidLevel: &five, AvailabilityRules: &morning},
		{ID: 3, Name: "Moltres", RaidLevel: &five, AvailabilityRules: &broken},
		{ID: 4, Name: "Mewtwo", RaidLevel: &five, EX: true},
	}
	for i := range seed {
		if err := repo.Save(ctx, &seed[i]); err != nil {
			t.Fatalf("seed %s: %v", seed[i].Name, err)
		}
	}
	return NewResolver(repo, nil, logx.Nop())
}

func TestResolveOrdersByNameAndFiltersTier(t *testing.T) {
	t.Parallel()
	r := seedResolver(t)

	got, err := r.Resolve(context.Background(), Query{Level: 5, At: at(8, 0)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Moltres skipped (bad rulesets), Mewtwo excluded (EX), order by name.
	want := []string{"Articuno", "Zapdos"}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("candidate[%d] = %s, want %s", i, got[i].Name, name)
		}
	}
}

func TestResolveEXClass(t *testing.T) {
	t.Parallel()
	r := seedResolver(t)

	got, err := r.Resolve(context.Background(), Query{Level: 5, EX: true, At: at(8, 0)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Mewtwo" {
		t.Fatalf("EX tier 5 should resolve to Mewtwo only, got %v", got)
	}
}

func TestResolveWindowExcludes(t *testing.T) {
	t.Parallel()
	r := seedResolver(t)

	got, err := r.Resolve(context.Background(), Query{Level: 5, At: at(20, 0)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Zapdos" {
		t.Fatalf("evening tier 5 should resolve to Zapdos only, got %v", got)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	t.Parallel()
	r := seedResolver(t)

	q := Query{Level: 5, At: at(8, 0)}
	first, err := r.Resolve(context.Background(), q)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), q)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d returned %d candidates, want %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].ID != first[j].ID {
				t.Fatalf("run %d candidate[%d] = %d, want %d", i, j, again[j].ID, first[j].ID)
			}
		}
	}
}
