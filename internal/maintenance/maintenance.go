// Package maintenance prunes the reminder archive and the audit trail
// on a cron schedule so the database does not grow without bound.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"slonyara/internal/storage"
	logx "slonyara/pkg/logx"
)

type Config struct {
	// Schedule is a five-field cron expression. Default "0 4 * * *"
	// (daily at 04:00 server time).
	Schedule string
	// ArchiveRetentionDays keeps archived reminders this long. Default 90.
	ArchiveRetentionDays int
	// AuditRetentionDays keeps audit entries this long. Default 365.
	AuditRetentionDays int
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = "0 4 * * *"
	}
	if c.ArchiveRetentionDays <= 0 {
		c.ArchiveRetentionDays = 90
	}
	if c.AuditRetentionDays <= 0 {
		c.AuditRetentionDays = 365
	}
	return c
}

type Service struct {
	log  logx.Logger
	cfg  Config
	st   storage.Store
	cron *cron.Cron
	now  func() time.Time
}

func New(cfg Config, st storage.Store, log logx.Logger) *Service {
	return &Service{
		log:  log.With(logx.String("svc", "maintenance")),
		cfg:  cfg.withDefaults(),
		st:   st,
		cron: cron.New(),
		now:  time.Now,
	}
}

func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("pruning scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.Int("archive_retention_days", s.cfg.ArchiveRetentionDays),
		logx.Int("audit_retention_days", s.cfg.AuditRetentionDays))
	return nil
}

// Stop halts the cron loop and waits for a running prune, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single prune pass.
func (s *Service) RunOnce(ctx context.Context) {
	now := s.now().UTC()

	archiveCutoff := now.AddDate(0, 0, -s.cfg.ArchiveRetentionDays)
	nArchive, err := s.st.PruneArchive(ctx, archiveCutoff)
	if err != nil {
		s.log.Error("archive prune failed", logx.Err(err))
	}

	auditCutoff := now.AddDate(0, 0, -s.cfg.AuditRetentionDays)
	nAudit, err := s.st.PruneAudit(ctx, auditCutoff)
	if err != nil {
		s.log.Error("audit prune failed", logx.Err(err))
	}

	if nArchive > 0 || nAudit > 0 {
		s.log.Info("pruned",
			logx.Int64("archive_rows", nArchive),
			logx.Int64("audit_rows", nAudit))
	}
}
