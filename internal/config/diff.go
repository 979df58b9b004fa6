package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/Azelphur/Monord/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and
// safe structured attrs for logging (never includes the bot token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log the token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Raids, newCfg.Raids) {
		changed = append(changed, "raids")
		attrs = append(attrs,
			logx.String("raids.hatch_duration", strings.TrimSpace(newCfg.Raids.HatchDuration)),
			logx.String("raids.despawn_duration", strings.TrimSpace(newCfg.Raids.DespawnDuration)),
			logx.String("raids.timezone", strings.TrimSpace(newCfg.Raids.Timezone)),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs, logx.Int("notify.rate_per_sec", newCfg.Notify.RatePerSec))
	}

	if !reflect.DeepEqual(oldCfg.Data, newCfg.Data) {
		changed = append(changed, "data")
	}

	oM, nM := oldCfg.Maintenance, newCfg.Maintenance
	if (oM == nil) != (nM == nil) || (oM != nil && nM != nil && *oM != *nM) {
		changed = append(changed, "maintenance")
		if nM != nil {
			attrs = append(attrs,
				logx.Bool("maintenance.enabled", nM.Enabled),
				logx.String("maintenance.cron", strings.TrimSpace(nM.Cron)),
				logx.String("maintenance.retention", strings.TrimSpace(nM.Retention)),
			)
		}
	}

	sort.Strings(changed)
	return changed, attrs
}
