// Package delivery decouples reminder sends from the scheduler's timer
// goroutines: a bounded queue with a few workers behind a shared rate
// limiter, so one slow chat never delays other due reminders and the
// bot stays under platform send limits.
package delivery

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	kit "slonyara/internal/transport"
	logx "slonyara/pkg/logx"
)

type Config struct {
	Workers    int     // default 2
	QueueSize  int     // default 128
	RatePerSec float64 // default 3 (shared across workers)
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	return c
}

type item struct {
	to   kit.ChatTarget
	text string
}

type Service struct {
	log     logx.Logger
	adapter kit.Adapter
	cfg     Config
	limiter *rate.Limiter
	queue   chan item

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		log:     log.With(logx.String("svc", "delivery")),
		adapter: adapter,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		queue:   make(chan item, cfg.QueueSize),
	}
}

// Start launches the worker pool. workers <= 0 uses the configured
// count.
func (s *Service) Start(workers int) {
	if workers <= 0 {
		workers = s.cfg.Workers
	}
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		for i := 0; i < workers; i++ {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.worker(ctx)
			}()
		}
	})
}

// Stop drains nothing: queued items not yet sent are dropped. ctx
// bounds how long we wait for in-flight sends.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			s.send(ctx, it.to, it.text)
		}
	}
}

func (s *Service) send(ctx context.Context, to kit.ChatTarget, text string) {
	if s.adapter == nil {
		return
	}
	if _, err := s.adapter.SendText(ctx, to, text, nil); err != nil {
		// Delivery is best-effort: log and move on, the caller's
		// bookkeeping already treats the attempt as made.
		s.log.Warn("send failed",
			logx.Int64("chat_id", to.ChatID),
			logx.Int("topic_id", to.ThreadID),
			logx.Err(err))
	}
}

// Enqueue hands a reminder to the worker pool without blocking the
// caller. On overflow the send happens on its own goroutine rather
// than being dropped.
func (s *Service) Enqueue(to kit.ChatTarget, text string) {
	select {
	case s.queue <- item{to: to, text: text}:
	default:
		s.log.Warn("queue full, sending out of band", logx.Int64("chat_id", to.ChatID))
		go func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			s.send(ctx, to, text)
		}()
	}
}

// Send delivers synchronously, still honoring the shared rate limit.
// Used for the immediate-fire path where the submitter waits for the
// result.
func (s *Service) Send(ctx context.Context, to kit.ChatTarget, text string) error {
	if s.adapter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.adapter.SendText(ctx, to, text, nil)
	return err
}
