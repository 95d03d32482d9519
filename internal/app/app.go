// Package app wires the bot together: config, logging, storage, the
// scheduling engine, delivery, the Telegram adapter and the router.
package app

import (
	"context"
	"fmt"
	"time"

	"slonyara/internal/audit"
	"slonyara/internal/config"
	"slonyara/internal/dedup"
	"slonyara/internal/delivery"
	"slonyara/internal/directory"
	"slonyara/internal/maintenance"
	"slonyara/internal/reminder"
	rtsup "slonyara/internal/runtime/supervisor"
	"slonyara/internal/schedule"
	"slonyara/internal/storage"
	kit "slonyara/internal/transport"
	telegram "slonyara/internal/transport/telegram/adapter"
	"slonyara/internal/transport/telegram/router"
	logx "slonyara/pkg/logx"
)

// StopReason names why the app is shutting down; it only feeds logs.
type StopReason string

const (
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter kit.Adapter
	dir     *directory.Service
	deliv   *delivery.Service
	ctrl    *reminder.Controller
	rtr     *router.Router
	maint   *maintenance.Service

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies the config immediately. Telegram logging is
	// bootstrapped disabled so Apply does not warn before the target
	// chat is set.
	baseLogCfg := mapLogConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if cfg.Telegram.LogChatID != 0 {
		logSvc.SetTelegramTarget(cfg.Telegram.LogChatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(mapLogConfig(cfg))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", cfg.Storage.Driver), logx.String("path", cfg.Storage.Path))

	dir := directory.New(mapDirectoryConfig(cfg), store, log.With(logx.String("comp", "directory")))

	core := schedule.New(log.With(logx.String("comp", "schedule")))
	guard := dedup.New(cfg.Reminders.DedupCapacity)
	deliv := delivery.New(delivery.Config{
		Workers:    cfg.Delivery.Workers,
		QueueSize:  cfg.Delivery.QueueSize,
		RatePerSec: cfg.Delivery.RatePerSec,
	}, ad, log)

	sink := audit.Fanout(
		audit.NewLogSink(log.With(logx.String("comp", "audit"))),
		audit.NewStoreSink(store, log.With(logx.String("comp", "audit"))),
	)

	catchup, err := config.ParseDurationOrDefault("reminders.catchup_window", cfg.Reminders.CatchupWindow, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	ctrl := reminder.New(reminder.Config{CatchupWindow: catchup},
		store, core, guard, dir, deliv, sink, log)

	rtr := router.New(log, ad, ctrl, dir)

	maint := maintenance.New(maintenance.Config{
		Schedule:             cfg.Maintenance.Schedule,
		ArchiveRetentionDays: cfg.Maintenance.ArchiveRetentionDays,
		AuditRetentionDays:   cfg.Maintenance.AuditRetentionDays,
	}, store, log)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		dir:     dir,
		deliv:   deliv,
		ctrl:    ctrl,
		rtr:     rtr,
		maint:   maint,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.dir.Load(a.sup.Context()); err != nil {
		return fmt.Errorf("directory load: %w", err)
	}

	a.deliv.Start(0)

	// Recovery must complete before any update is consumed: during
	// this phase the engine is the sole writer.
	if _, err := a.ctrl.RecoverAll(a.sup.Context()); err != nil {
		return fmt.Errorf("recovery: %w", err)
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.rtr.DispatchLoop(c, a.updates)
	})

	if err := a.maint.Start(); err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}

	// Config hot reload: logging and engine defaults apply live,
	// everything else needs a restart.
	sub := a.cfgm.Subscribe()
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(last, newCfg)
				last = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		err := a.cfgm.Watch(c)
		if err != nil && c.Err() == nil {
			return err
		}
		return nil
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(prev, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.Telegram.LogChatID != 0 {
		a.logs.SetTelegramTarget(cfg.Telegram.LogChatID, cfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLogConfig(cfg))
	a.dir.ApplyConfig(mapDirectoryConfig(cfg))

	if prev != nil && prev.Storage != cfg.Storage {
		a.log.Warn("storage config changed; restart required")
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step bounds each shutdown stage so one component cannot stall the
	// whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Order: stop taking input, then stop timers, then flush output,
	// then close storage.
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("scheduler", time.Second, func(c context.Context) error { a.ctrl.Stop(); return nil })
	step("maintenance", time.Second, func(c context.Context) error { return a.maint.Stop(c) })
	step("delivery", 3*time.Second, func(c context.Context) error { return a.deliv.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapDirectoryConfig(cfg *config.Config) directory.Config {
	return directory.Config{
		DefaultTimezone:          cfg.Reminders.DefaultTimezone,
		DefaultLeadOffsetMinutes: cfg.Reminders.DefaultLeadOffsetMinutes,
		OwnerIDs:                 cfg.Admin.OwnerIDs,
		OwnerUsernames:           cfg.Admin.OwnerUsernames,
	}
}
