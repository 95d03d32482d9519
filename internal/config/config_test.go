package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "bot.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: "info"
  console: true
storage:
  driver: "sqlite"
  path: "./slonyara.db"
  busy_timeout: "5s"
reminders:
  default_timezone: "Europe/Moscow"
  default_lead_offset_minutes: 30
  catchup_window: "5m"
  dedup_capacity: 30
admin:
  owner_ids: [42]
  owner_usernames: ["root"]
`)
	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Reminders.DefaultLeadOffsetMinutes != 30 {
		t.Fatalf("lead offset = %d", cfg.Reminders.DefaultLeadOffsetMinutes)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config")
	}
	d, err := ParseDurationField("reminders.catchup_window", cfg.Reminders.CatchupWindow)
	if err != nil || d != 5*time.Minute {
		t.Fatalf("catchup_window = %v, %v", d, err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "bot.yaml", `
telegram:
  token: "123:abc"
  tokne_typo: "oops"
logging:
  level: "info"
storage:
  driver: "memory"
`)
	if _, err := NewManager(p).Load(); err == nil {
		t.Fatalf("unknown key accepted")
	} else if !strings.Contains(err.Error(), "tokne_typo") {
		t.Fatalf("error does not name the unknown key: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mut  func(*Config)
		ok   bool
	}{
		{"valid", func(c *Config) {}, true},
		{"missing token", func(c *Config) { c.Telegram.Token = " " }, false},
		{"bad poll timeout", func(c *Config) { c.Telegram.PollTimeout = "soon" }, false},
		{"negative offset", func(c *Config) { c.Reminders.DefaultLeadOffsetMinutes = -5 }, false},
		{"bad timezone", func(c *Config) { c.Reminders.DefaultTimezone = "Mars/Olympus" }, false},
		{"bad catchup", func(c *Config) { c.Reminders.CatchupWindow = "-1m" }, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{Telegram: TelegramConfig{Token: "123:abc"}}
			tt.mut(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatalf("Validate accepted a bad config")
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("x", "", 5*time.Minute)
	if err != nil || d != 5*time.Minute {
		t.Fatalf("empty = %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "90s", 5*time.Minute)
	if err != nil || d != 90*time.Second {
		t.Fatalf("90s = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "nope", time.Second); err == nil {
		t.Fatalf("bad duration accepted")
	}
}

func TestJSONEquivalent(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "bot.json", `{
  "telegram": {"token": "123:abc"},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}, "telegram": {"enabled": false, "thread_id": 0, "min_level": "", "rate_per_sec": 0}},
  "storage": {"driver": "memory"}
}`)
	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}
