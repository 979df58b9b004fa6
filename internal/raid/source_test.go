package raid

import (
	"context"
	"testing"
	"time"

	"github.com/Azelphur/Monord/internal/models"
)

func report(t *testing.T, e *env, identity Identity, despawn time.Time, ex bool) *models.Raid {
	t.Helper()
	r, _, err := e.svc.Report(context.Background(), ReportInput{
		Gym: e.gym, Identity: identity, DespawnTime: despawn, EX: ex,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	return r
}

func TestSourceNextEarliestDeadlineWins(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	src := NewSource(e.svc)

	// Hatched EX raid despawning in 30m against an egg despawning in 2h,
	// whose hatch is not due until +75m. The despawn is first.
	ex := report(t, e, Unresolved(5), e.now.Add(30*time.Minute), true)
	egg := report(t, e, Unresolved(5), e.now.Add(2*time.Hour), false)

	item, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if item == nil || item.ID != ex.ID {
		t.Fatalf("next = %+v, want despawn of raid %d at +30m before hatch of raid %d at +75m", item, ex.ID, egg.ID)
	}
	if !item.At.Equal(ex.DespawnTime) {
		t.Fatalf("deadline = %v, want despawn %v", item.At, ex.DespawnTime)
	}

	// Pull the egg in so its hatch (despawn-45m) comes due first.
	if _, err := e.svc.SetDespawnTime(ctx, egg.ID, e.now.Add(50*time.Minute)); err != nil {
		t.Fatalf("set despawn: %v", err)
	}
	item, err = src.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if item == nil || item.ID != egg.ID {
		t.Fatalf("next = %+v, want hatch of raid %d at +5m", item, egg.ID)
	}
	if want := e.now.Add(5 * time.Minute); !item.At.Equal(want) {
		t.Fatalf("hatch deadline = %v, want %v", item.At, want)
	}
}

func TestSourceNextHatchWinsTies(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	src := NewSource(e.svc)

	// The egg's hatch deadline (despawn-45m) lands exactly on the EX
	// raid's despawn. The hatch goes first.
	ex := report(t, e, Unresolved(5), e.now.Add(15*time.Minute), true)
	egg, _, err := e.svc.Report(ctx, ReportInput{
		Gym: e.gym2, Identity: Unresolved(5), DespawnTime: e.now.Add(60 * time.Minute),
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	item, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if item == nil || item.ID != egg.ID {
		t.Fatalf("next = %+v, want hatch of raid %d over despawn of raid %d", item, egg.ID, ex.ID)
	}
}

func TestSourceNextEmptyWhenNothingPending(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	src := NewSource(e.svc)

	item, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if item != nil {
		t.Fatalf("empty store returned item %+v", item)
	}
}

func TestSourceFireHatchesThenDespawns(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	src := NewSource(e.svc)

	r := report(t, e, Unresolved(5), e.now.Add(time.Hour), false)

	// Hatch deadline is despawn-45m = now+15m. Not due yet: a stale fire
	// is a no-op.
	item, err := src.Next(ctx)
	if err != nil || item == nil {
		t.Fatalf("next: item=%v err=%v", item, err)
	}
	if err := src.Fire(ctx, *item); err != nil {
		t.Fatalf("early fire: %v", err)
	}
	got, err := e.raids.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Hatched {
		t.Fatalf("raid hatched before its deadline")
	}

	// Move the clock past the hatch deadline.
	e.svc.now = func() time.Time { return e.now.Add(16 * time.Minute) }
	if err := src.Fire(ctx, *item); err != nil {
		t.Fatalf("hatch fire: %v", err)
	}
	got, err = e.raids.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.Hatched || got.Despawned {
		t.Fatalf("after hatch: hatched=%v despawned=%v", got.Hatched, got.Despawned)
	}
	if len(e.notifier.candidates[r.ID]) != 2 {
		t.Fatalf("hatch of ambiguous tier should carry the candidate menu, got %v", e.notifier.candidates[r.ID])
	}

	// Next now surfaces the despawn.
	item, err = src.Next(ctx)
	if err != nil || item == nil {
		t.Fatalf("next after hatch: item=%v err=%v", item, err)
	}
	if !item.At.Equal(r.DespawnTime) {
		t.Fatalf("next deadline = %v, want despawn %v", item.At, r.DespawnTime)
	}

	e.svc.now = func() time.Time { return e.now.Add(61 * time.Minute) }
	if err := src.Fire(ctx, *item); err != nil {
		t.Fatalf("despawn fire: %v", err)
	}
	got, err = e.raids.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.Despawned || !got.Hatched {
		t.Fatalf("despawned raid must stay hatched: hatched=%v despawned=%v", got.Hatched, got.Despawned)
	}

	// Terminal: the pending set is empty again.
	item, err = src.Next(ctx)
	if err != nil {
		t.Fatalf("next after despawn: %v", err)
	}
	if item != nil {
		t.Fatalf("despawned raid still scheduled: %+v", item)
	}
}

func TestSourceFireSkipsCancelled(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	src := NewSource(e.svc)

	r := report(t, e, Unresolved(5), e.now.Add(time.Hour), false)
	item, err := src.Next(ctx)
	if err != nil || item == nil {
		t.Fatalf("next: item=%v err=%v", item, err)
	}
	if _, err := e.svc.Cancel(ctx, r.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	e.svc.now = func() time.Time { return e.now.Add(2 * time.Hour) }
	if err := src.Fire(ctx, *item); err != nil {
		t.Fatalf("fire on cancelled raid: %v", err)
	}
	got, err := e.raids.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Hatched || got.Despawned {
		t.Fatalf("cancelled raid must not transition: %+v", got)
	}
}

func TestTransitionsInDeadlineOrder(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	src := NewSource(e.svc)

	// Three EX raids (hatched at creation) with distinct despawns.
	a := report(t, e, Unresolved(5), e.now.Add(30*time.Minute), true)
	b := report(t, e, Unresolved(5), e.now.Add(10*time.Minute), true)
	c := report(t, e, Unresolved(5), e.now.Add(20*time.Minute), true)

	e.svc.now = func() time.Time { return e.now.Add(time.Hour) }
	var order []int64
	for {
		item, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if item == nil {
			break
		}
		if err := src.Fire(ctx, *item); err != nil {
			t.Fatalf("fire: %v", err)
		}
		order = append(order, item.ID)
	}
	want := []int64{b.ID, c.ID, a.ID}
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("fired %v, want deadline order %v", order, want)
		}
	}
}
