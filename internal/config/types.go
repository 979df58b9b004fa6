package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Raids controls raid lifecycle timing and the transition scheduler.
	Raids RaidsConfig `json:"raids"`

	// Notify controls outbound message pacing and cleanup.
	Notify NotifyConfig `json:"notify,omitempty"`

	Data        DataConfig         `json:"data"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// RaidsConfig controls raid timing.
//
// All durations are Go duration strings (e.g. "500ms", "45m", "1h").
//
// Defaults (when fields are omitted/zero):
//   - hatch_duration: "60m"
//   - despawn_duration: "45m"
//   - scheduler_poll: "1s"
//   - scheduler_retry: "5s"
type RaidsConfig struct {
	HatchDuration   string `json:"hatch_duration,omitempty"`
	DespawnDuration string `json:"despawn_duration,omitempty"`
	SchedulerPoll   string `json:"scheduler_poll,omitempty"`
	SchedulerRetry  string `json:"scheduler_retry,omitempty"`
	// Timezone anchors availability windows (e.g. "Europe/London").
	Timezone string `json:"timezone,omitempty"`
}

// NotifyConfig controls outbound pacing. RatePerSec caps messages per
// second across all destinations; 0 means the default (5).
type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type DataConfig struct {
	// DatasetPath points at the creature dataset JSON for -import.
	DatasetPath string `json:"dataset_path,omitempty"`
	// RegionsPath points at the named region polygons JSON.
	RegionsPath string `json:"regions_path,omitempty"`
}

// MaintenanceConfig controls the periodic cleanup job. If the whole
// section is omitted the job runs hourly with 14 days of retention.
type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`
	// Cron is a robfig/cron spec (e.g. "@hourly", "0 3 * * *").
	Cron string `json:"cron,omitempty"`
	// Retention is a Go duration string; finished raids older than this
	// are pruned.
	Retention string `json:"retention,omitempty"`
}
