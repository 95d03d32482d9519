package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the bot's configuration file (YAML or JSON). Unknown keys
// are rejected so typos surface at load time instead of silently doing
// nothing.
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Reminders   RemindersConfig   `json:"reminders,omitempty"`
	Delivery    DeliveryConfig    `json:"delivery,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Admin       AdminConfig       `json:"admin,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// LogChatID is the chat the telegram log sink posts to.
	LogChatID int64 `json:"log_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence driver. Driver is "sqlite" or
// "memory"; an empty driver picks sqlite when a path is set.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string, sqlite only
}

// RemindersConfig tunes the scheduling engine. All durations are Go
// duration strings; zero values fall back to built-in defaults
// (Europe/Moscow, 30 min lead offset, 5m catch-up window, 30-entry
// dedup history).
type RemindersConfig struct {
	DefaultTimezone          string `json:"default_timezone,omitempty"`
	DefaultLeadOffsetMinutes int    `json:"default_lead_offset_minutes,omitempty"`
	CatchupWindow            string `json:"catchup_window,omitempty"`
	DedupCapacity            int    `json:"dedup_capacity,omitempty"`
}

// DeliveryConfig tunes the outbound send pipeline.
type DeliveryConfig struct {
	Workers    int     `json:"workers,omitempty"`
	QueueSize  int     `json:"queue_size,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

// MaintenanceConfig controls periodic pruning of the archive and the
// audit trail. Schedule is a five-field cron expression.
type MaintenanceConfig struct {
	Schedule             string `json:"schedule,omitempty"`
	ArchiveRetentionDays int    `json:"archive_retention_days,omitempty"`
	AuditRetentionDays   int    `json:"audit_retention_days,omitempty"`
}

type AdminConfig struct {
	OwnerIDs       []int64  `json:"owner_ids,omitempty"`
	OwnerUsernames []string `json:"owner_usernames,omitempty"`
}

// Validate checks the parts that would otherwise fail deep inside the
// app long after startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("reminders.catchup_window", c.Reminders.CatchupWindow); err != nil {
		return err
	}
	if c.Reminders.DefaultLeadOffsetMinutes < 0 {
		return errors.New("reminders.default_lead_offset_minutes must be >= 0")
	}
	if tz := strings.TrimSpace(c.Reminders.DefaultTimezone); tz != "" {
		if err := checkTimezone(tz); err != nil {
			return fmt.Errorf("reminders.default_timezone: %w", err)
		}
	}
	return nil
}

func checkTimezone(name string) error {
	_, err := time.LoadLocation(name)
	return err
}

// ParseDurationField parses an optional Go duration string; empty
// means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for
// omitted values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
