package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"slonyara/internal/job"
	logx "slonyara/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- jobs ----

const jobColumns = `job_id, target_chat_id, topic_id, source_chat_id, text,
	fire_at, recurrence, author_id, author_username, signature, created_at`

func (s *sqliteStore) PutJob(ctx context.Context, j job.Reminder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(`+jobColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(job_id) DO UPDATE SET
		   fire_at=excluded.fire_at,
		   recurrence=excluded.recurrence,
		   text=excluded.text,
		   signature=excluded.signature`,
		j.ID, j.TargetChatID, j.TopicID, j.SourceChatID, j.Text,
		fmtTime(j.FireAt), string(j.Recurrence), j.AuthorID,
		nullStr(j.AuthorUsername), nullStr(j.Signature), fmtTime(j.CreatedAt),
	)
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanJob(r rowScanner) (job.Reminder, error) {
	var (
		j          job.Reminder
		fireAt     string
		recurrence string
		username   sql.NullString
		signature  sql.NullString
		createdAt  string
	)
	err := r.Scan(&j.ID, &j.TargetChatID, &j.TopicID, &j.SourceChatID, &j.Text,
		&fireAt, &recurrence, &j.AuthorID, &username, &signature, &createdAt)
	if err != nil {
		return job.Reminder{}, err
	}
	j.FireAt = parseTime(fireAt)
	j.CreatedAt = parseTime(createdAt)
	j.Recurrence = job.Recurrence(recurrence)
	j.AuthorUsername = username.String
	j.Signature = signature.String
	return j, nil
}

func (s *sqliteStore) GetJob(ctx context.Context, id string) (*job.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM reminders WHERE job_id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *sqliteStore) DeleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE job_id = ?`, id)
	return err
}

func (s *sqliteStore) ListJobs(ctx context.Context) ([]job.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM reminders ORDER BY fire_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *sqliteStore) ListChatJobs(ctx context.Context, chatID int64, topicID int) ([]job.Reminder, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if topicID < 0 {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM reminders WHERE target_chat_id = ? ORDER BY fire_at`, chatID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM reminders WHERE target_chat_id = ? AND topic_id = ? ORDER BY fire_at`,
			chatID, topicID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]job.Reminder, error) {
	var out []job.Reminder
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqliteStore) FindJobByText(ctx context.Context, chatID int64, text string) (*job.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM reminders WHERE target_chat_id = ? AND text = ? LIMIT 1`,
		chatID, text)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *sqliteStore) ArchiveJob(ctx context.Context, j job.Reminder, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO archived_reminders(job_id, reason, archived_at,
		   target_chat_id, topic_id, source_chat_id, text, fire_at,
		   recurrence, author_id, author_username, signature, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, reason, fmtTime(time.Now()),
		j.TargetChatID, j.TopicID, j.SourceChatID, j.Text, fmtTime(j.FireAt),
		string(j.Recurrence), j.AuthorID, nullStr(j.AuthorUsername),
		nullStr(j.Signature), fmtTime(j.CreatedAt),
	)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE job_id = ?`, j.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) ListArchive(ctx context.Context, limit, offset int) ([]ArchivedReminder, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, reason, archived_at, target_chat_id, topic_id,
		        source_chat_id, text, fire_at, recurrence, author_id,
		        author_username, signature, created_at
		 FROM archived_reminders ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedReminder
	for rows.Next() {
		var (
			a          ArchivedReminder
			archivedAt string
			fireAt     string
			recurrence string
			username   sql.NullString
			signature  sql.NullString
			createdAt  string
		)
		err := rows.Scan(&a.ID, &a.Job.ID, &a.Reason, &archivedAt,
			&a.Job.TargetChatID, &a.Job.TopicID, &a.Job.SourceChatID,
			&a.Job.Text, &fireAt, &recurrence, &a.Job.AuthorID,
			&username, &signature, &createdAt)
		if err != nil {
			return nil, err
		}
		a.ArchivedAt = parseTime(archivedAt)
		a.Job.FireAt = parseTime(fireAt)
		a.Job.CreatedAt = parseTime(createdAt)
		a.Job.Recurrence = job.Recurrence(recurrence)
		a.Job.AuthorUsername = username.String
		a.Job.Signature = signature.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneArchive(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM archived_reminders WHERE archived_at < ?`, fmtTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- audit ----

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var when any
	if !e.When.IsZero() {
		when = fmtTime(e.When)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, event, job_id, chat_id, topic_id, actor_id,
		   actor_username, text, when_at, reason)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		fmtTime(e.At), e.Event, nullStr(e.JobID), e.ChatID, e.TopicID,
		e.ActorID, nullStr(e.ActorUsername), nullStr(e.Text), when,
		nullStr(e.Reason),
	)
	return err
}

func (s *sqliteStore) PruneAudit(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit WHERE at < ?`, fmtTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- chat settings / registry / admins ----

func (s *sqliteStore) GetChatSettings(ctx context.Context, chatID int64) (*ChatSettings, error) {
	var cs ChatSettings
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, timezone, lead_offset_minutes FROM chat_settings WHERE chat_id = ?`,
		chatID).Scan(&cs.ChatID, &cs.Timezone, &cs.LeadOffsetMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *sqliteStore) PutChatSettings(ctx context.Context, cs ChatSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_settings(chat_id, timezone, lead_offset_minutes) VALUES(?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   timezone=excluded.timezone,
		   lead_offset_minutes=excluded.lead_offset_minutes`,
		cs.ChatID, cs.Timezone, cs.LeadOffsetMinutes)
	return err
}

func (s *sqliteStore) PutChat(ctx context.Context, rc RegisteredChat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats(chat_id, topic_id, title, topic_title) VALUES(?,?,?,?)
		 ON CONFLICT(chat_id, topic_id) DO UPDATE SET
		   title=excluded.title,
		   topic_title=excluded.topic_title`,
		rc.ChatID, rc.TopicID, nullStr(rc.Title), nullStr(rc.TopicTitle))
	return err
}

func (s *sqliteStore) DeleteChat(ctx context.Context, chatID int64, topicID int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chats WHERE chat_id = ? AND topic_id = ?`, chatID, topicID)
	return err
}

func (s *sqliteStore) ListChats(ctx context.Context) ([]RegisteredChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, topic_id, title, topic_title FROM chats ORDER BY chat_id, topic_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegisteredChat
	for rows.Next() {
		var (
			rc         RegisteredChat
			title      sql.NullString
			topicTitle sql.NullString
		)
		if err := rows.Scan(&rc.ChatID, &rc.TopicID, &title, &topicTitle); err != nil {
			return nil, err
		}
		rc.Title = title.String
		rc.TopicTitle = topicTitle.String
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListAdmins(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM admins ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddAdmin(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admins(username) VALUES(?) ON CONFLICT(username) DO NOTHING`, username)
	return err
}

func (s *sqliteStore) RemoveAdmin(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE username = ?`, username)
	return err
}

// ---- helpers ----

func fmtTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
