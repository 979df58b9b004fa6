package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: "INFO"
  console: true
storage:
  path: "./bot.db"
raids:
  hatch_duration: "60m"
  despawn_duration: "45m"
  timezone: "Europe/London"
data:
  regions_path: "./regions.json"
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Raids.Timezone != "Europe/London" {
		t.Fatalf("timezone = %q", cfg.Raids.Timezone)
	}
	if err := Validate(context.Background(), cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  nonsense: true
storage:
  path: "./bot.db"
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "123:abc"},
			Storage:  StorageConfig{Path: "./bot.db"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = " " }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
		{"bad poll timeout", func(c *Config) { c.Telegram.PollTimeout = "soon" }},
		{"negative hatch duration", func(c *Config) { c.Raids.HatchDuration = "-5m" }},
		{"unknown timezone", func(c *Config) { c.Raids.Timezone = "Mars/Olympus" }},
		{"negative rate", func(c *Config) { c.Notify.RatePerSec = -1 }},
		{"bad cron", func(c *Config) {
			c.Maintenance = &MaintenanceConfig{Enabled: true, Cron: "every tuesday"}
		}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			if err := Validate(context.Background(), cfg); err == nil {
				t.Fatal("want validation error")
			}
		})
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	if d, err := Duration("x", "", 45*time.Minute); err != nil || d != 45*time.Minute {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if d, err := Duration("x", "90m", 45*time.Minute); err != nil || d != 90*time.Minute {
		t.Fatalf("set = %v, %v", d, err)
	}
	if _, err := Duration("x", "soon", 0); err == nil {
		t.Fatal("bad duration accepted")
	}
	if _, err := Duration("x", "-5m", 0); err == nil {
		t.Fatal("negative duration accepted")
	}
}
