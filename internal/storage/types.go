package storage

import (
	"context"
	"errors"
	"time"

	"slonyara/internal/job"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default for production)
//   - "memory": in-process store, state lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ChatSettings holds the per-chat reminder knobs. Zero Timezone or a
// negative offset fall back to defaults at the directory layer.
type ChatSettings struct {
	ChatID            int64
	Timezone          string
	LeadOffsetMinutes int
}

// RegisteredChat is a delivery destination the bot may post reminders
// to. TopicID 0 means the chat's general thread.
type RegisteredChat struct {
	ChatID     int64
	Title      string
	TopicID    int
	TopicTitle string
}

// ArchivedReminder is a terminal job kept for inspection. Reason is
// one of "fired", "cancelled", "stale", "chat_unregistered".
type ArchivedReminder struct {
	ID         int64
	Job        job.Reminder
	Reason     string
	ArchivedAt time.Time
}

// AuditEntry records one lifecycle event. Keep it compact and
// schema-stable.
type AuditEntry struct {
	At            time.Time
	Event         string
	JobID         string
	ChatID        int64
	TopicID       int
	ActorID       int64
	ActorUsername string
	Text          string
	When          time.Time
	Reason        string
}

// Store is the persistence API used by the controller, the directory
// and the audit sink. Get-style methods return (nil, nil) on a miss;
// deletes are idempotent.
type Store interface {
	// Active reminder jobs.
	PutJob(ctx context.Context, j job.Reminder) error
	GetJob(ctx context.Context, id string) (*job.Reminder, error)
	DeleteJob(ctx context.Context, id string) error
	ListJobs(ctx context.Context) ([]job.Reminder, error)
	ListChatJobs(ctx context.Context, chatID int64, topicID int) ([]job.Reminder, error)
	FindJobByText(ctx context.Context, chatID int64, text string) (*job.Reminder, error)

	// Archive of terminal jobs.
	ArchiveJob(ctx context.Context, j job.Reminder, reason string) error
	ListArchive(ctx context.Context, limit, offset int) ([]ArchivedReminder, error)
	PruneArchive(ctx context.Context, before time.Time) (int64, error)

	// Audit log.
	AppendAudit(ctx context.Context, e AuditEntry) error
	PruneAudit(ctx context.Context, before time.Time) (int64, error)

	// Per-chat configuration and registered delivery targets.
	GetChatSettings(ctx context.Context, chatID int64) (*ChatSettings, error)
	PutChatSettings(ctx context.Context, cs ChatSettings) error
	PutChat(ctx context.Context, rc RegisteredChat) error
	DeleteChat(ctx context.Context, chatID int64, topicID int) error
	ListChats(ctx context.Context) ([]RegisteredChat, error)

	// Admin usernames managed at runtime (config owners are separate).
	ListAdmins(ctx context.Context) ([]string, error)
	AddAdmin(ctx context.Context, username string) error
	RemoveAdmin(ctx context.Context, username string) error

	Close() error
}
