// Package notify owns all raid message fan-out: rendering the raid and
// hatch views, delivering them to routed destinations, keeping the
// delivered-message records, and scheduling their deletion.
//
// Failure policy mirrors the transport reality: a send failure skips the
// destination, an edit or delete failure on an existing message means
// the destination is gone and its record is dropped.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"golang.org/x/time/rate"

	logx "github.com/Azelphur/Monord/pkg/logx"
	"github.com/Azelphur/Monord/pkg/tgui"

	"github.com/Azelphur/Monord/internal/models"
	"github.com/Azelphur/Monord/internal/repository"
	"github.com/Azelphur/Monord/internal/routing"
	"github.com/Azelphur/Monord/internal/settings"
	"github.com/Azelphur/Monord/internal/transport"
)

// Armer wakes the embed-deletion scheduler after a delete_at write.
type Armer interface {
	Arm()
}

type Config struct {
	// RatePerSec caps outgoing sends and edits.
	RatePerSec int
	// DespawnDuration derives the displayed hatch time for eggs.
	DespawnDuration time.Duration
}

func (c *Config) setDefaults() {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.DespawnDuration <= 0 {
		c.DespawnDuration = 45 * time.Minute
	}
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter  transport.Adapter
	embeds   repository.EmbedRepository
	going    repository.GoingRepository
	settings *settings.Service
	router   *routing.Router
	sched    Armer
	log      logx.Logger

	now func() time.Time
}

func New(cfg Config, adapter transport.Adapter, embeds repository.EmbedRepository, going repository.GoingRepository, st *settings.Service, router *routing.Router, sched Armer, log logx.Logger) *Service {
	cfg.setDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		adapter:  adapter,
		embeds:   embeds,
		going:    going,
		settings: st,
		router:   router,
		sched:    sched,
		log:      log.With(logx.String("comp", "notify")),
		now:      time.Now,
	}
}

func (s *Service) Apply(cfg Config) {
	cfg.setDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) wait(ctx context.Context) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	return lim.Wait(ctx)
}

// RaidReported sends the raid view to the reporting destination and to
// every mirror destination covering the gym.
func (s *Service) RaidReported(ctx context.Context, raid *models.Raid, origin transport.ChatTarget) error {
	dests := []transport.ChatTarget{origin}
	if raid.Gym != nil {
		routed, err := s.router.Destinations(ctx, raid.Gym.Location(), routing.CategoryMirror, origin)
		if err != nil {
			return fmt.Errorf("notify: route report: %w", err)
		}
		dests = append(dests, routed...)
	}
	for _, dest := range dests {
		if err := s.sendRaidView(ctx, raid, dest); err != nil {
			s.log.Warn("raid view send failed",
				logx.Int64("raid_id", raid.ID), logx.Int64("chat_id", dest.ChatID),
				logx.Int("thread_id", dest.ThreadID), logx.Any("err", err))
		}
	}
	return nil
}

// RaidUpdated re-renders every live raid view.
func (s *Service) RaidUpdated(ctx context.Context, raid *models.Raid) error {
	return s.editRaidViews(ctx, raid)
}

// RaidHatched refreshes the raid views and, when the boss is still
// unknown, sends the candidate menu to every subscription destination
// and every destination already showing the raid.
func (s *Service) RaidHatched(ctx context.Context, raid *models.Raid, candidates []models.Pokemon) error {
	if err := s.editRaidViews(ctx, raid); err != nil {
		return err
	}
	if raid.PokemonID != nil || len(candidates) == 0 {
		return nil
	}

	seen := map[transport.ChatTarget]bool{}
	var dests []transport.ChatTarget
	existing, err := s.embeds.ListByRaidKind(ctx, raid.ID, models.EmbedRaid)
	if err != nil {
		return fmt.Errorf("notify: list raid views: %w", err)
	}
	for _, e := range existing {
		t := transport.ChatTarget{ChatID: e.ChatID, ThreadID: e.ThreadID}
		if !seen[t] {
			seen[t] = true
			dests = append(dests, t)
		}
	}
	if raid.Gym != nil {
		routed, err := s.router.Destinations(ctx, raid.Gym.Location(), routing.CategorySubscriptions, transport.ChatTarget{})
		if err != nil {
			return fmt.Errorf("notify: route hatch: %w", err)
		}
		for _, t := range routed {
			if !seen[t] {
				seen[t] = true
				dests = append(dests, t)
			}
		}
	}

	markup := candidateMenu(raid.ID, candidates)
	for _, dest := range dests {
		if err := s.sendHatchMenu(ctx, raid, dest, markup); err != nil {
			s.log.Warn("hatch menu send failed",
				logx.Int64("raid_id", raid.ID), logx.Int64("chat_id", dest.ChatID),
				logx.Int("thread_id", dest.ThreadID), logx.Any("err", err))
		}
	}
	return nil
}

// RaidDespawned clears hatch menus and repaints the final card. The
// per-view deletion times refresh as part of the repaint.
func (s *Service) RaidDespawned(ctx context.Context, raid *models.Raid) error {
	s.dropHatchMenus(ctx, raid.ID)
	return s.editRaidViews(ctx, raid)
}

// RaidCancelled clears hatch menus and repaints the views as cancelled.
// The views themselves leave through their scheduled deletion.
func (s *Service) RaidCancelled(ctx context.Context, raid *models.Raid) error {
	s.dropHatchMenus(ctx, raid.ID)

	embeds, err := s.embeds.ListByRaidKind(ctx, raid.ID, models.EmbedRaid)
	if err != nil {
		return fmt.Errorf("notify: list raid views: %w", err)
	}
	for i := range embeds {
		s.editOne(ctx, raid, &embeds[i])
	}
	return nil
}

// ShowRaid (re)sends the raid view to one destination, superseding any
// previous view there. Backs the /raid show command.
func (s *Service) ShowRaid(ctx context.Context, raid *models.Raid, dest transport.ChatTarget) error {
	return s.sendRaidView(ctx, raid, dest)
}

// HideRaid removes the raid's views from one destination. Backs the
// /raid hide command.
func (s *Service) HideRaid(ctx context.Context, raidID int64, dest transport.ChatTarget) error {
	embeds, err := s.embeds.ListByTarget(ctx, raidID, dest.ChatID, dest.ThreadID)
	if err != nil {
		return fmt.Errorf("notify: list views: %w", err)
	}
	for _, e := range embeds {
		if err := s.wait(ctx); err != nil {
			return err
		}
		err := s.adapter.DeleteMessage(ctx, transport.MessageRef{ChatID: e.ChatID, ThreadID: e.ThreadID, MessageID: e.MessageID})
		if err != nil {
			s.log.Debug("hide delete failed", logx.Int64("embed_id", e.ID), logx.Any("err", err))
		}
		if err := s.embeds.Delete(ctx, e.ID); err != nil {
			s.log.Warn("embed record delete failed", logx.Int64("embed_id", e.ID), logx.Any("err", err))
		}
	}
	return nil
}

func (s *Service) sendRaidView(ctx context.Context, raid *models.Raid, dest transport.ChatTarget) error {
	cfg := s.config()
	vals, err := s.settings.Resolve(ctx, dest.ChatID, dest.ThreadID)
	if err != nil {
		return err
	}
	going, err := s.goingList(ctx, raid.ID)
	if err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	text := raidView(raid, going, vals.Timezone, cfg.DespawnDuration)
	ref, err := s.adapter.SendText(ctx, dest, text, &transport.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: goingButton(raid.ID),
	})
	if err != nil {
		return err
	}
	e := &models.Embed{
		ChatID:    dest.ChatID,
		ThreadID:  dest.ThreadID,
		MessageID: ref.MessageID,
		RaidID:    raid.ID,
		Kind:      models.EmbedRaid,
		DeleteAt:  deleteAt(raid, vals),
	}
	if err := s.embeds.Create(ctx, e); err != nil {
		return err
	}
	s.armDeletion(e.DeleteAt)
	return nil
}

func (s *Service) sendHatchMenu(ctx context.Context, raid *models.Raid, dest transport.ChatTarget, markup *tele.ReplyMarkup) error {
	vals, err := s.settings.Resolve(ctx, dest.ChatID, dest.ThreadID)
	if err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	ref, err := s.adapter.SendText(ctx, dest, hatchView(raid, vals.Timezone), &transport.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: markup,
	})
	if err != nil {
		return err
	}
	e := &models.Embed{
		ChatID:    dest.ChatID,
		ThreadID:  dest.ThreadID,
		MessageID: ref.MessageID,
		RaidID:    raid.ID,
		Kind:      models.EmbedHatch,
		DeleteAt:  deleteAt(raid, vals),
	}
	if err := s.embeds.Create(ctx, e); err != nil {
		return err
	}
	s.armDeletion(e.DeleteAt)
	return nil
}

func (s *Service) editRaidViews(ctx context.Context, raid *models.Raid) error {
	embeds, err := s.embeds.ListByRaidKind(ctx, raid.ID, models.EmbedRaid)
	if err != nil {
		return fmt.Errorf("notify: list raid views: %w", err)
	}
	for i := range embeds {
		s.editOne(ctx, raid, &embeds[i])
	}
	return nil
}

// editOne refreshes one delivered view. False means the record was
// dropped because the destination no longer has the message.
func (s *Service) editOne(ctx context.Context, raid *models.Raid, e *models.Embed) bool {
	cfg := s.config()
	vals, err := s.settings.Resolve(ctx, e.ChatID, e.ThreadID)
	if err != nil {
		s.log.Warn("settings resolve failed", logx.Int64("chat_id", e.ChatID), logx.Any("err", err))
		return false
	}
	going, err := s.goingList(ctx, raid.ID)
	if err != nil {
		s.log.Warn("attendance lookup failed", logx.Int64("raid_id", raid.ID), logx.Any("err", err))
		return false
	}
	if err := s.wait(ctx); err != nil {
		return false
	}
	var markup *tele.ReplyMarkup
	if !raid.Despawned && !raid.Cancelled {
		markup = goingButton(raid.ID)
	}
	err = s.adapter.EditText(ctx,
		transport.MessageRef{ChatID: e.ChatID, ThreadID: e.ThreadID, MessageID: e.MessageID},
		raidView(raid, going, vals.Timezone, cfg.DespawnDuration),
		&transport.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup})
	if err != nil {
		// Destination gone: drop the record, keep going.
		s.log.Debug("raid view edit failed, dropping record",
			logx.Int64("embed_id", e.ID), logx.Int64("chat_id", e.ChatID), logx.Any("err", err))
		if derr := s.embeds.Delete(ctx, e.ID); derr != nil {
			s.log.Warn("embed record delete failed", logx.Int64("embed_id", e.ID), logx.Any("err", derr))
		}
		return false
	}
	// Deletion tracks the despawn time, so a corrected despawn moves it.
	if at := deleteAt(raid, vals); !sameTime(at, e.DeleteAt) {
		e.DeleteAt = at
		if err := s.embeds.Save(ctx, e); err != nil {
			s.log.Warn("schedule deletion failed", logx.Int64("embed_id", e.ID), logx.Any("err", err))
		} else {
			s.armDeletion(at)
		}
	}
	return true
}

// deleteAt is when a delivered view should be cleaned up, fixed at send
// time so even cancelled raids leave through the deletion queue.
func deleteAt(raid *models.Raid, vals settings.Values) *time.Time {
	if vals.DeleteAfterDespawn == nil {
		return nil
	}
	at := raid.DespawnTime.Add(*vals.DeleteAfterDespawn)
	return &at
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (s *Service) armDeletion(at *time.Time) {
	if at != nil && s.sched != nil {
		s.sched.Arm()
	}
}

// ClearHatchMenus removes a raid's hatch menus everywhere. Called once
// somebody picks the boss.
func (s *Service) ClearHatchMenus(ctx context.Context, raidID int64) {
	s.dropHatchMenus(ctx, raidID)
}

// dropHatchMenus deletes hatch menu messages and their records.
func (s *Service) dropHatchMenus(ctx context.Context, raidID int64) {
	menus, err := s.embeds.ListByRaidKind(ctx, raidID, models.EmbedHatch)
	if err != nil {
		s.log.Warn("list hatch menus failed", logx.Int64("raid_id", raidID), logx.Any("err", err))
		return
	}
	for _, e := range menus {
		if err := s.wait(ctx); err != nil {
			return
		}
		err := s.adapter.DeleteMessage(ctx, transport.MessageRef{ChatID: e.ChatID, ThreadID: e.ThreadID, MessageID: e.MessageID})
		if err != nil {
			s.log.Debug("hatch menu delete failed", logx.Int64("embed_id", e.ID), logx.Any("err", err))
		}
		if err := s.embeds.Delete(ctx, e.ID); err != nil {
			s.log.Warn("embed record delete failed", logx.Int64("embed_id", e.ID), logx.Any("err", err))
		}
	}
}

func (s *Service) goingList(ctx context.Context, raidID int64) ([]models.Going, error) {
	if s.going == nil {
		return nil, nil
	}
	return s.going.ListByRaid(ctx, raidID)
}

// candidateMenu builds the hatch disambiguation keyboard. Buttons carry
// the candidate's creature id, so a stale menu can never pick the wrong
// boss through index drift.
func candidateMenu(raidID int64, candidates []models.Pokemon) *tele.ReplyMarkup {
	btns := make([]tele.Btn, 0, len(candidates))
	for _, c := range candidates {
		payload := strconv.FormatInt(raidID, 10) + ":" + strconv.FormatInt(c.ID, 10)
		btns = append(btns, tgui.Btn(c.Name, tgui.Data("raid", "pick", payload)))
	}
	return tgui.Grid2(btns)
}

func goingButton(raidID int64) *tele.ReplyMarkup {
	id := strconv.FormatInt(raidID, 10)
	return tgui.NewInline().
		Row(
			tgui.Btn("I'm going", tgui.Data("raid", "going", id)),
			tgui.Btn("+1", tgui.Data("raid", "plus", id)),
			tgui.Btn("Not going", tgui.Data("raid", "leave", id)),
		).
		Markup()
}
