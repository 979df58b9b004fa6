package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "github.com/Azelphur/Monord/pkg/logx"
)

// Validate rejects configs that would break startup or a hot reload.
// It is installed as the Manager's validator.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	fields := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"raids.hatch_duration", cfg.Raids.HatchDuration},
		{"raids.despawn_duration", cfg.Raids.DespawnDuration},
		{"raids.scheduler_poll", cfg.Raids.SchedulerPoll},
		{"raids.scheduler_retry", cfg.Raids.SchedulerRetry},
	}
	if m := cfg.Maintenance; m != nil {
		fields = append(fields, struct{ path, raw string }{"maintenance.retention", m.Retention})
	}
	for _, f := range fields {
		if _, err := Duration(f.path, f.raw, 0); err != nil {
			return err
		}
	}
	if tz := strings.TrimSpace(cfg.Raids.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("raids.timezone: unknown location %q", tz)
		}
	}
	if cfg.Notify.RatePerSec < 0 {
		return fmt.Errorf("notify.rate_per_sec must be >= 0")
	}
	if m := cfg.Maintenance; m != nil && m.Enabled {
		if spec := strings.TrimSpace(m.Cron); spec != "" {
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("maintenance.cron: %w", err)
			}
		}
	}
	return nil
}

// Logx maps the logging section onto the log service's config.
func (l LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}
