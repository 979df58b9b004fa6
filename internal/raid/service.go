// Package raid holds the raid lifecycle: PendingHatch -> Hatched ->
// Despawned, with Cancelled reachable from any live state. All
// transitions go through the Service so the flag invariants hold
// everywhere else.
package raid

import (
	"context"
	"fmt"
	"sync"
	"time"

	logx "github.com/Azelphur/Monord/pkg/logx"

	"github.com/Azelphur/Monord/internal/availability"
	"github.com/Azelphur/Monord/internal/models"
	"github.com/Azelphur/Monord/internal/repository"
	"github.com/Azelphur/Monord/internal/transport"
)

// Notifier receives lifecycle events and owns all message fan-out. The
// service never talks to the chat platform directly.
type Notifier interface {
	RaidReported(ctx context.Context, raid *models.Raid, origin transport.ChatTarget) error
	RaidUpdated(ctx context.Context, raid *models.Raid) error
	RaidHatched(ctx context.Context, raid *models.Raid, candidates []models.Pokemon) error
	RaidDespawned(ctx context.Context, raid *models.Raid) error
	RaidCancelled(ctx context.Context, raid *models.Raid) error
}

// Armer wakes the transition scheduler after a topology change. Callers
// must persist first so the recomputation observes the new state.
type Armer interface {
	Arm()
}

type Config struct {
	// HatchDuration is how long an egg is visible before it hatches.
	HatchDuration time.Duration
	// DespawnDuration is how long a hatched boss stays up.
	DespawnDuration time.Duration
	// Location is the zone availability windows are evaluated in.
	Location *time.Location
}

func (c *Config) setDefaults() {
	if c.HatchDuration <= 0 {
		c.HatchDuration = 60 * time.Minute
	}
	if c.DespawnDuration <= 0 {
		c.DespawnDuration = 45 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// spawnTime is when the egg appeared. Availability windows are judged
// at this instant so report and hatch agree on the candidate pool.
func (c Config) spawnTime(despawn time.Time) time.Time {
	return despawn.Add(-c.HatchDuration - c.DespawnDuration).In(c.Location)
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	raids    repository.RaidRepository
	resolver *availability.Resolver
	notifier Notifier
	sched    Armer
	log      logx.Logger

	now func() time.Time
}

func New(cfg Config, raids repository.RaidRepository, resolver *availability.Resolver, notifier Notifier, sched Armer, log logx.Logger) *Service {
	cfg.setDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		raids:    raids,
		resolver: resolver,
		notifier: notifier,
		sched:    sched,
		log:      log.With(logx.String("comp", "raid")),
		now:      time.Now,
	}
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Apply(cfg Config) {
	cfg.setDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Now exposes the service clock so callers parse user times against the
// same reference the transitions use.
func (s *Service) Now() time.Time {
	return s.now()
}

// ReportInput describes one user report.
type ReportInput struct {
	Gym         *models.Gym
	Identity    Identity
	DespawnTime time.Time
	EX          bool
	Origin      transport.ChatTarget
}

// Report records a new raid, or folds the report into an existing live
// raid at the same gym with an overlapping window. The bool result is
// false for such duplicates.
func (s *Service) Report(ctx context.Context, in ReportInput) (*models.Raid, bool, error) {
	cfg := s.config()

	if in.Gym == nil {
		return nil, false, validationf("unknown gym")
	}
	level := in.Identity.Level()
	if level <= 0 {
		return nil, false, validationf("creature %s has no raid tier", in.Identity)
	}
	now := s.now()
	if !in.DespawnTime.After(now) {
		return nil, false, validationf("despawn time is already in the past")
	}

	// A second report for the same gym and window corrects the first
	// instead of spawning a twin.
	existing, err := s.raids.FindAtGym(ctx, in.Gym.ID, in.DespawnTime, cfg.DespawnDuration)
	if err != nil {
		return nil, false, fmt.Errorf("raid: duplicate lookup: %w", err)
	}
	if existing != nil {
		if err := s.mergeReport(ctx, existing, in); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	identity := in.Identity
	if !identity.IsResolved() && s.resolver != nil {
		// A tier with exactly one possible boss needs no menu.
		candidates, err := s.resolver.Resolve(ctx, availability.Query{
			Level: level,
			EX:    in.EX,
			At:    cfg.spawnTime(in.DespawnTime),
			Loc:   in.Gym.Location(),
		})
		if err != nil {
			return nil, false, fmt.Errorf("raid: resolve identity: %w", err)
		}
		if len(candidates) == 1 {
			identity = Resolved(&candidates[0])
		}
	}

	raid := &models.Raid{
		GymID:       in.Gym.ID,
		Gym:         in.Gym,
		Level:       level,
		DespawnTime: in.DespawnTime,
		StartTime:   defaultStartTime(now, in.DespawnTime, cfg.DespawnDuration),
		EX:          in.EX,
		// EX raids have no egg phase; only despawn matters.
		Hatched: in.EX,
	}
	if p := identity.Pokemon(); p != nil {
		raid.PokemonID = &p.ID
		raid.Pokemon = p
	}

	if err := s.raids.Create(ctx, raid); err != nil {
		return nil, false, fmt.Errorf("raid: create: %w", err)
	}
	s.log.Info("raid reported",
		logx.Int64("raid_id", raid.ID), logx.Int64("gym_id", raid.GymID),
		logx.Int("level", raid.Level), logx.Bool("ex", raid.EX),
		logx.Time("despawn", raid.DespawnTime))

	if s.notifier != nil {
		if err := s.notifier.RaidReported(ctx, raid, in.Origin); err != nil {
			s.log.Warn("report fan-out failed", logx.Int64("raid_id", raid.ID), logx.Any("err", err))
		}
	}
	s.arm()
	return raid, true, nil
}

// mergeReport folds a duplicate report into the existing raid. Only an
// unknown identity is filled in; times stay as first reported.
func (s *Service) mergeReport(ctx context.Context, existing *models.Raid, in ReportInput) error {
	if existing.PokemonID != nil || !in.Identity.IsResolved() {
		return nil
	}
	p := in.Identity.Pokemon()
	if p.RaidLevel == nil || *p.RaidLevel != existing.Level {
		return validationf("%s is tier %d, this raid is tier %d", p.Name, in.Identity.Level(), existing.Level)
	}
	existing.PokemonID = &p.ID
	existing.Pokemon = p
	if err := s.raids.Save(ctx, existing); err != nil {
		return fmt.Errorf("raid: merge report: %w", err)
	}
	s.notifyUpdated(ctx, existing)
	return nil
}

// defaultStartTime computes the suggested meet-up time. The forward and
// backward clamps are applied in this exact order on purpose.
func defaultStartTime(now, despawn time.Time, despawnDuration time.Duration) time.Time {
	start := despawn.Add(-despawnDuration)
	if start.Before(now) {
		start = now.Add(10 * time.Minute)
		if start.After(despawn) {
			start = start.Add(-2 * time.Minute)
		}
	}
	return start
}

// SetStartTime corrects the meet-up time.
func (s *Service) SetStartTime(ctx context.Context, raidID int64, t time.Time) (*models.Raid, error) {
	cfg := s.config()
	raid, err := s.getLive(ctx, raidID)
	if err != nil {
		return nil, err
	}
	if t.After(raid.DespawnTime) {
		return nil, validationf("start time is after the raid despawns")
	}
	earliest := raid.DespawnTime.Add(-cfg.HatchDuration - cfg.DespawnDuration)
	if t.Before(earliest) {
		return nil, validationf("start time is before the raid exists")
	}
	raid.StartTime = t
	if err := s.raids.Save(ctx, raid); err != nil {
		return nil, fmt.Errorf("raid: save start time: %w", err)
	}
	s.notifyUpdated(ctx, raid)
	return raid, nil
}

// SetDespawnTime corrects the despawn time and re-arms the scheduler.
func (s *Service) SetDespawnTime(ctx context.Context, raidID int64, t time.Time) (*models.Raid, error) {
	cfg := s.config()
	raid, err := s.getLive(ctx, raidID)
	if err != nil {
		return nil, err
	}
	if !t.After(s.now()) {
		return nil, validationf("despawn time is already in the past")
	}
	raid.DespawnTime = t
	if raid.StartTime.After(raid.DespawnTime) {
		raid.StartTime = defaultStartTime(s.now(), t, cfg.DespawnDuration)
	}
	if err := s.raids.Save(ctx, raid); err != nil {
		return nil, fmt.Errorf("raid: save despawn time: %w", err)
	}
	s.arm()
	s.notifyUpdated(ctx, raid)
	return raid, nil
}

// SetIdentity pins the boss. Legal until despawn; the creature's tier
// and EX class must match the raid's.
func (s *Service) SetIdentity(ctx context.Context, raidID int64, p *models.Pokemon) (*models.Raid, error) {
	raid, err := s.getLive(ctx, raidID)
	if err != nil {
		return nil, err
	}
	if p.RaidLevel == nil || *p.RaidLevel != raid.Level {
		return nil, validationf("%s does not appear in tier %d raids", p.Name, raid.Level)
	}
	if p.EX != raid.EX {
		return nil, validationf("%s does not match this raid's EX class", p.Name)
	}
	raid.PokemonID = &p.ID
	raid.Pokemon = p
	if err := s.raids.Save(ctx, raid); err != nil {
		return nil, fmt.Errorf("raid: save identity: %w", err)
	}
	s.notifyUpdated(ctx, raid)
	return raid, nil
}

// SetGym moves a misreported raid to the right gym.
func (s *Service) SetGym(ctx context.Context, raidID int64, gym *models.Gym) (*models.Raid, error) {
	if gym == nil {
		return nil, validationf("unknown gym")
	}
	raid, err := s.getLive(ctx, raidID)
	if err != nil {
		return nil, err
	}
	raid.GymID = gym.ID
	raid.Gym = gym
	if err := s.raids.Save(ctx, raid); err != nil {
		return nil, fmt.Errorf("raid: save gym: %w", err)
	}
	s.notifyUpdated(ctx, raid)
	return raid, nil
}

// Cancel is idempotent and sticky.
func (s *Service) Cancel(ctx context.Context, raidID int64) (*models.Raid, error) {
	raid, err := s.raids.GetByID(ctx, raidID)
	if err != nil {
		return nil, ErrNotFound
	}
	if raid.Cancelled {
		return raid, nil
	}
	raid.Cancelled = true
	if err := s.raids.Save(ctx, raid); err != nil {
		return nil, fmt.Errorf("raid: cancel: %w", err)
	}
	s.log.Info("raid cancelled", logx.Int64("raid_id", raid.ID))
	if s.notifier != nil {
		if err := s.notifier.RaidCancelled(ctx, raid); err != nil {
			s.log.Warn("cancel fan-out failed", logx.Int64("raid_id", raid.ID), logx.Any("err", err))
		}
	}
	s.arm()
	return raid, nil
}

// Get loads a raid for display.
func (s *Service) Get(ctx context.Context, raidID int64) (*models.Raid, error) {
	raid, err := s.raids.GetByID(ctx, raidID)
	if err != nil {
		return nil, ErrNotFound
	}
	return raid, nil
}

func (s *Service) getLive(ctx context.Context, raidID int64) (*models.Raid, error) {
	raid, err := s.raids.GetByID(ctx, raidID)
	if err != nil {
		return nil, ErrNotFound
	}
	if raid.Cancelled {
		return nil, ErrCancelled
	}
	if raid.Despawned {
		return nil, ErrDespawned
	}
	return raid, nil
}

func (s *Service) hatch(ctx context.Context, raid *models.Raid) error {
	cfg := s.config()
	raid.Hatched = true
	if err := s.raids.Save(ctx, raid); err != nil {
		return fmt.Errorf("raid: save hatch: %w", err)
	}
	s.log.Info("raid hatched", logx.Int64("raid_id", raid.ID), logx.Int("level", raid.Level))

	var candidates []models.Pokemon
	if raid.PokemonID == nil && s.resolver != nil {
		// Identity still unknown: offer the menu, never force a pick.
		var err error
		candidates, err = s.resolver.Resolve(ctx, availability.Query{
			Level: raid.Level,
			EX:    raid.EX,
			At:    cfg.spawnTime(raid.DespawnTime),
			Loc:   raid.Gym.Location(),
		})
		if err != nil {
			s.log.Warn("hatch candidate resolve failed", logx.Int64("raid_id", raid.ID), logx.Any("err", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.RaidHatched(ctx, raid, candidates); err != nil {
			s.log.Warn("hatch fan-out failed", logx.Int64("raid_id", raid.ID), logx.Any("err", err))
		}
	}
	return nil
}

func (s *Service) despawn(ctx context.Context, raid *models.Raid) error {
	if !raid.Hatched {
		// Transitions only come through hatch first; reaching here means
		// the scheduler skipped a state.
		return fmt.Errorf("raid: despawn of unhatched raid %d", raid.ID)
	}
	raid.Despawned = true
	if err := s.raids.Save(ctx, raid); err != nil {
		return fmt.Errorf("raid: save despawn: %w", err)
	}
	s.log.Info("raid despawned", logx.Int64("raid_id", raid.ID))
	if s.notifier != nil {
		if err := s.notifier.RaidDespawned(ctx, raid); err != nil {
			s.log.Warn("despawn fan-out failed", logx.Int64("raid_id", raid.ID), logx.Any("err", err))
		}
	}
	return nil
}

func (s *Service) notifyUpdated(ctx context.Context, raid *models.Raid) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.RaidUpdated(ctx, raid); err != nil {
		s.log.Warn("update fan-out failed", logx.Int64("raid_id", raid.ID), logx.Any("err", err))
	}
}

func (s *Service) arm() {
	if s.sched != nil {
		s.sched.Arm()
	}
}
