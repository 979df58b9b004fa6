package routing

import (
	"context"
	"testing"

	logx "github.com/Azelphur/Monord/pkg/logx"

	"github.com/Azelphur/Monord/internal/geo"
	"github.com/Azelphur/Monord/internal/models"
	"github.com/Azelphur/Monord/internal/repository"
	"github.com/Azelphur/Monord/internal/storage"
	"github.com/Azelphur/Monord/internal/transport"
)

// town covers lat 50..51, lon -1..0; suburb covers lat 50..50.5, lon -1..0.
const (
	townRegion   = `[[[-1.0, 50.0], [0.0, 50.0], [0.0, 51.0], [-1.0, 51.0]]]`
	suburbRegion = `[[[-1.0, 50.0], [0.0, 50.0], [0.0, 50.5], [-1.0, 50.5]]]`
)

var (
	inSuburb  = geo.Point{Lat: 50.25, Lon: -0.5}
	inTown    = geo.Point{Lat: 50.75, Lon: -0.5} // town but not suburb
	elsewhere = geo.Point{Lat: 55.0, Lon: -0.5}
)

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func newRouter(t *testing.T, records []models.ChatConfig) *Router {
	t.Helper()
	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.NewChatConfigRepository(db)
	ctx := context.Background()
	for i := range records {
		if err := repo.Upsert(ctx, &records[i]); err != nil {
			t.Fatalf("seed record %d: %v", i, err)
		}
	}
	return New(repo, logx.Nop())
}

func targets(ts ...transport.ChatTarget) []transport.ChatTarget { return ts }

func assertDestinations(t *testing.T, got, want []transport.ChatTarget) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d destinations %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("destination[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestChatWideRegionAdmitsFlaggedRecords(t *testing.T) {
	t.Parallel()

	r := newRouter(t, []models.ChatConfig{
		// Chat 1: chat-wide record carries the region and mirrors.
		{ChatID: 1, ThreadID: 0, Region: strPtr(townRegion), Mirror: boolPtr(true)},
		// Thread 5 mirrors without a region: inherits the chat catchment.
		{ChatID: 1, ThreadID: 5, Mirror: boolPtr(true)},
		// Thread 6 has the flag off: never included.
		{ChatID: 1, ThreadID: 6, Mirror: boolPtr(false)},
	})

	got, err := r.Destinations(context.Background(), inTown, CategoryMirror, transport.ChatTarget{ChatID: 99})
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	assertDestinations(t, got, targets(
		transport.ChatTarget{ChatID: 1, ThreadID: 0},
		transport.ChatTarget{ChatID: 1, ThreadID: 5},
	))
}

func TestThreadOwnRegionOverrides(t *testing.T) {
	t.Parallel()

	r := newRouter(t, []models.ChatConfig{
		{ChatID: 2, ThreadID: 0, Region: strPtr(townRegion), Mirror: boolPtr(true)},
		// Thread 3 narrows its catchment to the suburb.
		{ChatID: 2, ThreadID: 3, Region: strPtr(suburbRegion), Mirror: boolPtr(true)},
	})

	// Point in town but outside the suburb: thread 3 stays quiet.
	got, err := r.Destinations(context.Background(), inTown, CategoryMirror, transport.ChatTarget{ChatID: 99})
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	assertDestinations(t, got, targets(transport.ChatTarget{ChatID: 2, ThreadID: 0}))

	// Point in the suburb: both match.
	got, err = r.Destinations(context.Background(), inSuburb, CategoryMirror, transport.ChatTarget{ChatID: 99})
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	assertDestinations(t, got, targets(
		transport.ChatTarget{ChatID: 2, ThreadID: 0},
		transport.ChatTarget{ChatID: 2, ThreadID: 3},
	))
}

func TestOriginExcluded(t *testing.T) {
	t.Parallel()

	r := newRouter(t, []models.ChatConfig{
		{ChatID: 3, ThreadID: 0, Region: strPtr(townRegion), Mirror: boolPtr(true)},
		{ChatID: 4, ThreadID: 0, Region: strPtr(townRegion), Mirror: boolPtr(true)},
	})

	got, err := r.Destinations(context.Background(), inTown, CategoryMirror, transport.ChatTarget{ChatID: 3})
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	assertDestinations(t, got, targets(transport.ChatTarget{ChatID: 4, ThreadID: 0}))
}

func TestCategoriesAreIndependent(t *testing.T) {
	t.Parallel()

	r := newRouter(t, []models.ChatConfig{
		{ChatID: 5, ThreadID: 0, Region: strPtr(townRegion), Mirror: boolPtr(true), Subscriptions: boolPtr(false)},
		{ChatID: 6, ThreadID: 0, Region: strPtr(townRegion), Subscriptions: boolPtr(true)},
	})

	got, err := r.Destinations(context.Background(), inTown, CategorySubscriptions, transport.ChatTarget{ChatID: 99})
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	assertDestinations(t, got, targets(transport.ChatTarget{ChatID: 6, ThreadID: 0}))
}

func TestNoMatchOutsideAllRegions(t *testing.T) {
	t.Parallel()

	r := newRouter(t, []models.ChatConfig{
		{ChatID: 7, ThreadID: 0, Region: strPtr(townRegion), Mirror: boolPtr(true)},
		{ChatID: 7, ThreadID: 2, Mirror: boolPtr(true)},
	})

	got, err := r.Destinations(context.Background(), elsewhere, CategoryMirror, transport.ChatTarget{ChatID: 99})
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no destinations, got %v", got)
	}
}

func TestBadRegionSkippedNotFatal(t *testing.T) {
	t.Parallel()

	r := newRouter(t, []models.ChatConfig{
		{ChatID: 8, ThreadID: 0, Region: strPtr(`{broken`), Mirror: boolPtr(true)},
		{ChatID: 9, ThreadID: 0, Region: strPtr(townRegion), Mirror: boolPtr(true)},
	})

	got, err := r.Destinations(context.Background(), inTown, CategoryMirror, transport.ChatTarget{ChatID: 99})
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	assertDestinations(t, got, targets(transport.ChatTarget{ChatID: 9, ThreadID: 0}))
}

func TestDestinationsIdempotent(t *testing.T) {
	t.Parallel()

	r := newRouter(t, []models.ChatConfig{
		{ChatID: 10, ThreadID: 0, Region: strPtr(townRegion), Mirror: boolPtr(true)},
		{ChatID: 10, ThreadID: 4, Mirror: boolPtr(true)},
	})

	first, err := r.Destinations(context.Background(), inTown, CategoryMirror, transport.ChatTarget{ChatID: 99})
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := r.Destinations(context.Background(), inTown, CategoryMirror, transport.ChatTarget{ChatID: 99})
		if err != nil {
			t.Fatalf("destinations: %v", err)
		}
		assertDestinations(t, again, first)
	}
}
