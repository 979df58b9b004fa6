// Package app assembles the bot: storage, domain services, schedulers,
// the Telegram adapter, and config hot-reload.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	logx "github.com/Azelphur/Monord/pkg/logx"

	"github.com/Azelphur/Monord/internal/availability"
	"github.com/Azelphur/Monord/internal/bot"
	"github.com/Azelphur/Monord/internal/config"
	"github.com/Azelphur/Monord/internal/geo"
	"github.com/Azelphur/Monord/internal/notify"
	"github.com/Azelphur/Monord/internal/raid"
	"github.com/Azelphur/Monord/internal/repository"
	"github.com/Azelphur/Monord/internal/routing"
	"github.com/Azelphur/Monord/internal/runtime/supervisor"
	"github.com/Azelphur/Monord/internal/scheduler"
	"github.com/Azelphur/Monord/internal/settings"
	"github.com/Azelphur/Monord/internal/storage"
	"github.com/Azelphur/Monord/internal/transport"
	"github.com/Azelphur/Monord/internal/transport/telegram"
)

// lazyArmer breaks the construction cycle between a service and the
// scheduler that watches it: the service gets the armer first, the
// scheduler is attached once it exists. Arm before attachment is a
// no-op; the startup arm covers anything missed.
type lazyArmer struct {
	mu    sync.Mutex
	sched *scheduler.Scheduler
}

func (a *lazyArmer) attach(s *scheduler.Scheduler) {
	a.mu.Lock()
	a.sched = s
	a.mu.Unlock()
}

func (a *lazyArmer) Arm() {
	a.mu.Lock()
	s := a.sched
	a.mu.Unlock()
	if s != nil {
		s.Arm()
	}
}

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	db      *gorm.DB
	adapter *telegram.Adapter
	updates chan transport.Update

	raids     *raid.Service
	notify    *notify.Service
	bot       *bot.Service
	raidSched *scheduler.Scheduler
	delSched  *scheduler.Scheduler
	cron      *cron.Cron

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(cfg.Logging.Logx())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(config.Validate)

	busy, err := config.Duration("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}, log)
	if err != nil {
		return nil, err
	}

	gyms := repository.NewGymRepository(db)
	pokemon := repository.NewPokemonRepository(db)
	raids := repository.NewRaidRepository(db)
	embeds := repository.NewEmbedRepository(db)
	chatCfgs := repository.NewChatConfigRepository(db)
	going := repository.NewGoingRepository(db)

	settingsSvc := settings.New(chatCfgs)
	router := routing.New(chatCfgs, log)

	regions := map[string]geo.Polygon{}
	if path := strings.TrimSpace(cfg.Data.RegionsPath); path != "" {
		regions, err = availability.LoadRegions(path)
		if err != nil {
			return nil, err
		}
		log.Info("regions loaded", logx.Int("count", len(regions)), logx.String("path", path))
	}
	resolver := availability.NewResolver(pokemon, regions, log)

	pollTimeout, err := config.Duration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, log)
	if err != nil {
		return nil, err
	}

	raidCfg, notifyCfg, schedCfg, err := resolveRuntime(cfg)
	if err != nil {
		return nil, err
	}

	delArm := &lazyArmer{}
	notifySvc := notify.New(notifyCfg, adapter, embeds, going, settingsSvc, router, delArm, log)

	raidArm := &lazyArmer{}
	raidSvc := raid.New(raidCfg, raids, resolver, notifySvc, raidArm, log)

	raidSched := scheduler.New("raid", raid.NewSource(raidSvc), schedCfg, log)
	raidArm.attach(raidSched)
	delSched := scheduler.New("embed-delete", notify.NewDeletionSource(notifySvc), schedCfg, log)
	delArm.attach(delSched)

	botSvc := bot.New(adapter, raidSvc, notifySvc, gyms, pokemon, going, settingsSvc, log)

	app := &App{
		cfgm:      cfgm,
		logs:      logs,
		log:       log,
		db:        db,
		adapter:   adapter,
		updates:   make(chan transport.Update, 128),
		raids:     raidSvc,
		notify:    notifySvc,
		bot:       botSvc,
		raidSched: raidSched,
		delSched:  delSched,
	}

	if m := cfg.Maintenance; m == nil || m.Enabled {
		if err := app.setupMaintenance(cfg, raids, embeds); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// resolveRuntime turns duration strings into the typed configs the
// services take. Validation already happened, so parse errors here mean
// a config bypassed the manager.
func resolveRuntime(cfg *config.Config) (raid.Config, notify.Config, scheduler.Config, error) {
	hatch, err := config.Duration("raids.hatch_duration", cfg.Raids.HatchDuration, 60*time.Minute)
	if err != nil {
		return raid.Config{}, notify.Config{}, scheduler.Config{}, err
	}
	despawn, err := config.Duration("raids.despawn_duration", cfg.Raids.DespawnDuration, 45*time.Minute)
	if err != nil {
		return raid.Config{}, notify.Config{}, scheduler.Config{}, err
	}
	poll, err := config.Duration("raids.scheduler_poll", cfg.Raids.SchedulerPoll, time.Second)
	if err != nil {
		return raid.Config{}, notify.Config{}, scheduler.Config{}, err
	}
	retry, err := config.Duration("raids.scheduler_retry", cfg.Raids.SchedulerRetry, 5*time.Second)
	if err != nil {
		return raid.Config{}, notify.Config{}, scheduler.Config{}, err
	}
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Raids.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return raid.Config{}, notify.Config{}, scheduler.Config{}, err
		}
	}
	return raid.Config{HatchDuration: hatch, DespawnDuration: despawn, Location: loc},
		notify.Config{RatePerSec: cfg.Notify.RatePerSec, DespawnDuration: despawn},
		scheduler.Config{Poll: poll, Retry: retry},
		nil
}

func (a *App) setupMaintenance(cfg *config.Config, raids repository.RaidRepository, embeds repository.EmbedRepository) error {
	spec := "@hourly"
	retention := 14 * 24 * time.Hour
	if m := cfg.Maintenance; m != nil {
		if s := strings.TrimSpace(m.Cron); s != "" {
			spec = s
		}
		d, err := config.Duration("maintenance.retention", m.Retention, retention)
		if err != nil {
			return err
		}
		retention = d
	}

	log := a.log.With(logx.String("comp", "maintenance"))
	a.cron = cron.New()
	_, err := a.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		cutoff := time.Now().Add(-retention)
		pruned, err := raids.PruneFinished(ctx, cutoff)
		if err != nil {
			log.Warn("raid prune failed", logx.Any("err", err))
		}
		orphans, err := embeds.DeleteOrphans(ctx)
		if err != nil {
			log.Warn("orphan cleanup failed", logx.Any("err", err))
		}
		if pruned > 0 || orphans > 0 {
			log.Info("maintenance pass",
				logx.Int64("raids_pruned", pruned), logx.Int64("embeds_orphaned", orphans))
		}
	})
	if err != nil {
		return fmt.Errorf("maintenance.cron: %w", err)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.raidSched.Start(a.sup.Context())
	a.delSched.Start(a.sup.Context())
	// Recompute deadlines persisted before the restart.
	a.raidSched.Arm()
	a.delSched.Arm()

	a.sup.Go("bot.run", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	if a.cron != nil {
		a.cron.Start()
	}

	// Best-effort: the bot works fine without the menu entry.
	if err := a.adapter.UpdateMenuCommands(a.sup.Context(), bot.Commands()); err != nil {
		a.log.Debug("command menu update failed", logx.Any("err", err))
	}

	a.log.Info("app started")
	return nil
}

// reloadLoop applies validated config updates to the running services.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, no effective changes")
				continue
			}

			a.logs.Apply(newCfg.Logging.Logx())

			raidCfg, notifyCfg, _, err := resolveRuntime(newCfg)
			if err != nil {
				a.log.Warn("config apply failed", logx.Any("err", err))
				continue
			}
			a.raids.Apply(raidCfg)
			a.notify.Apply(notifyCfg)
			// A timing change can move pending deadlines.
			a.raidSched.Arm()

			a.log.Info("config reloaded",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
		}
	}
}

// Done is closed when the supervisor context is cancelled, either by a
// fatal error or by Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	if a.cron != nil {
		a.cron.Stop()
	}
	a.raidSched.Stop(ctx)
	a.delSched.Stop(ctx)
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Any("err", err))
	}
	err := a.sup.Stop(ctx)

	if sqlDB, dbErr := a.db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	_ = a.logs.Close()
	return err
}
