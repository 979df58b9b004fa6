package raid

import (
	"context"
	"time"

	"github.com/Azelphur/Monord/internal/scheduler"
)

// Source feeds the transition scheduler. Next surfaces the earliest
// outstanding transition across hatches and despawns; a hatch wins
// ties, so a raid is never despawned with its hatch still outstanding.
type Source struct {
	svc *Service
}

func NewSource(svc *Service) *Source {
	return &Source{svc: svc}
}

// HatchDeadline is when the egg opens: the despawn-relative offset, not
// a stored field.
func (s *Source) hatchDeadline(despawn time.Time) time.Time {
	return despawn.Add(-s.svc.config().DespawnDuration)
}

func (s *Source) Next(ctx context.Context) (*scheduler.Item, error) {
	unhatched, err := s.svc.raids.FirstUnhatched(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.svc.raids.FirstPending(ctx)
	if err != nil {
		return nil, err
	}
	var hatch *scheduler.Item
	if unhatched != nil {
		hatch = &scheduler.Item{ID: unhatched.ID, At: s.hatchDeadline(unhatched.DespawnTime)}
	}
	if pending == nil {
		return hatch, nil
	}
	if hatch != nil && !hatch.At.After(pending.DespawnTime) {
		return hatch, nil
	}
	return &scheduler.Item{ID: pending.ID, At: pending.DespawnTime}, nil
}

// Fire re-reads the raid and applies the one transition that is due.
// A raid that was cancelled, finished, or rescheduled since Next is
// skipped; the loop will recompute.
func (s *Source) Fire(ctx context.Context, item scheduler.Item) error {
	raid, err := s.svc.raids.GetByID(ctx, item.ID)
	if err != nil {
		// Covers deletion between Next and Fire: the retry pause ends in
		// a recompute that no longer sees the raid.
		return err
	}
	if raid.Cancelled || raid.Despawned {
		return nil
	}
	now := s.svc.now()
	if !raid.Hatched {
		if s.hatchDeadline(raid.DespawnTime).After(now) {
			return nil
		}
		return s.svc.hatch(ctx, raid)
	}
	if raid.DespawnTime.After(now) {
		return nil
	}
	return s.svc.despawn(ctx, raid)
}
