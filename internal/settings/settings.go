// Package settings resolves per-destination configuration with a
// thread -> chat -> default cascade. Each key cascades independently: a
// thread record that leaves a key unset defers to the chat-wide record,
// which defers to the built-in default.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Azelphur/Monord/internal/geo"
	"github.com/Azelphur/Monord/internal/models"
	"github.com/Azelphur/Monord/internal/repository"
)

const (
	KeyMirror             = "mirror"
	KeySubscriptions      = "subscriptions"
	KeyTimezone           = "timezone"
	KeyRegion             = "region"
	KeyDeleteAfterDespawn = "delete_after_despawn"
)

// Keys lists every settable key, in display order.
var Keys = []string{KeyMirror, KeySubscriptions, KeyTimezone, KeyRegion, KeyDeleteAfterDespawn}

// Values is a fully resolved view for one destination.
type Values struct {
	Mirror        bool
	Subscriptions bool
	Timezone      *time.Location
	// Region is nil when the destination has no catchment polygon.
	Region *geo.Polygon
	// DeleteAfterDespawn is nil when messages are kept forever.
	DeleteAfterDespawn *time.Duration
}

type Service struct {
	repo repository.ChatConfigRepository
}

func New(repo repository.ChatConfigRepository) *Service {
	return &Service{repo: repo}
}

// Resolve returns the effective values for (chatID, threadID). threadID 0
// addresses the chat-wide record itself.
func (s *Service) Resolve(ctx context.Context, chatID int64, threadID int) (Values, error) {
	thread, chat, err := s.repo.GetPair(ctx, chatID, threadID)
	if err != nil {
		return Values{}, err
	}
	return merge(thread, chat)
}

func merge(thread, chat *models.ChatConfig) (Values, error) {
	v := Values{Timezone: time.UTC}

	if b := firstBool(thread, chat, func(c *models.ChatConfig) *bool { return c.Mirror }); b != nil {
		v.Mirror = *b
	}
	if b := firstBool(thread, chat, func(c *models.ChatConfig) *bool { return c.Subscriptions }); b != nil {
		v.Subscriptions = *b
	}
	if tz := firstString(thread, chat, func(c *models.ChatConfig) *string { return c.Timezone }); tz != nil {
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			return Values{}, fmt.Errorf("settings: bad timezone %q: %w", *tz, err)
		}
		v.Timezone = loc
	}
	if raw := firstString(thread, chat, func(c *models.ChatConfig) *string { return c.Region }); raw != nil {
		poly, err := geo.ParsePolygon([]byte(*raw))
		if err != nil {
			return Values{}, fmt.Errorf("settings: bad region: %w", err)
		}
		v.Region = &poly
	}
	if m := firstInt(thread, chat, func(c *models.ChatConfig) *int { return c.DeleteAfterDespawn }); m != nil {
		d := time.Duration(*m) * time.Minute
		v.DeleteAfterDespawn = &d
	}
	return v, nil
}

func firstBool(thread, chat *models.ChatConfig, get func(*models.ChatConfig) *bool) *bool {
	if thread != nil {
		if p := get(thread); p != nil {
			return p
		}
	}
	if chat != nil {
		return get(chat)
	}
	return nil
}

func firstString(thread, chat *models.ChatConfig, get func(*models.ChatConfig) *string) *string {
	if thread != nil {
		if p := get(thread); p != nil {
			return p
		}
	}
	if chat != nil {
		return get(chat)
	}
	return nil
}

func firstInt(thread, chat *models.ChatConfig, get func(*models.ChatConfig) *int) *int {
	if thread != nil {
		if p := get(thread); p != nil {
			return p
		}
	}
	if chat != nil {
		return get(chat)
	}
	return nil
}

// Stored returns the raw record for (chatID, threadID) without cascade
// resolution, or nil. Used to show which keys a record actually sets.
func (s *Service) Stored(ctx context.Context, chatID int64, threadID int) (*models.ChatConfig, error) {
	return s.repo.Get(ctx, chatID, threadID)
}

// Set validates and stores one key on the record for (chatID, threadID),
// creating the record if needed. raw "unset" clears the key so it defers
// to the next cascade level.
func (s *Service) Set(ctx context.Context, chatID int64, threadID int, key, raw string) error {
	cfg, err := s.repo.Get(ctx, chatID, threadID)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &models.ChatConfig{ChatID: chatID, ThreadID: threadID}
	}

	unset := strings.EqualFold(raw, "unset")

	switch key {
	case KeyMirror, KeySubscriptions:
		var p *bool
		if !unset {
			b, err := parseBool(raw)
			if err != nil {
				return err
			}
			p = &b
		}
		if key == KeyMirror {
			cfg.Mirror = p
		} else {
			cfg.Subscriptions = p
		}
	case KeyTimezone:
		if unset {
			cfg.Timezone = nil
			break
		}
		if _, err := time.LoadLocation(raw); err != nil {
			return fmt.Errorf("settings: unknown timezone %q", raw)
		}
		cfg.Timezone = &raw
	case KeyRegion:
		if unset {
			cfg.Region = nil
			break
		}
		if _, err := geo.ParsePolygon([]byte(raw)); err != nil {
			return fmt.Errorf("settings: invalid region: %w", err)
		}
		cfg.Region = &raw
	case KeyDeleteAfterDespawn:
		if unset {
			cfg.DeleteAfterDespawn = nil
			break
		}
		m, err := strconv.Atoi(raw)
		if err != nil || m < 0 {
			return fmt.Errorf("settings: %s wants a non-negative number of minutes", key)
		}
		cfg.DeleteAfterDespawn = &m
	default:
		return fmt.Errorf("settings: unknown key %q", key)
	}

	return s.repo.Upsert(ctx, cfg)
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("settings: want on or off, got %q", raw)
}

// Describe renders the stored (not resolved) state of one record for
// display, marking unset keys.
func Describe(cfg *models.ChatConfig) map[string]string {
	out := map[string]string{
		KeyMirror:             "unset",
		KeySubscriptions:      "unset",
		KeyTimezone:           "unset",
		KeyRegion:             "unset",
		KeyDeleteAfterDespawn: "unset",
	}
	if cfg == nil {
		return out
	}
	if cfg.Mirror != nil {
		out[KeyMirror] = strconv.FormatBool(*cfg.Mirror)
	}
	if cfg.Subscriptions != nil {
		out[KeySubscriptions] = strconv.FormatBool(*cfg.Subscriptions)
	}
	if cfg.Timezone != nil {
		out[KeyTimezone] = *cfg.Timezone
	}
	if cfg.Region != nil {
		out[KeyRegion] = "set"
	}
	if cfg.DeleteAfterDespawn != nil {
		out[KeyDeleteAfterDespawn] = strconv.Itoa(*cfg.DeleteAfterDespawn) + "m"
	}
	return out
}
