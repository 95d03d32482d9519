package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "slonyara/internal/transport"
	logx "slonyara/pkg/logx"
)

type recordingAdapter struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	notif chan struct{}
}

func (a *recordingAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *recordingAdapter) Stop(context.Context) error                     { return nil }
func (a *recordingAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (a *recordingAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (a *recordingAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	a.sent = append(a.sent, text)
	a.mu.Unlock()
	if a.notif != nil {
		a.notif <- struct{}{}
	}
	if a.fail {
		return kit.MessageRef{}, errors.New("boom")
	}
	return kit.MessageRef{MessageID: len(a.sent)}, nil
}

func (a *recordingAdapter) texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

func TestEnqueueDelivers(t *testing.T) {
	t.Parallel()

	ad := &recordingAdapter{notif: make(chan struct{}, 8)}
	svc := New(Config{Workers: 2, QueueSize: 8, RatePerSec: 1000}, ad, logx.Nop())
	svc.Start(2)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	}()

	svc.Enqueue(kit.ChatTarget{ChatID: 1}, "hello")
	svc.Enqueue(kit.ChatTarget{ChatID: 2, ThreadID: 7}, "world")

	for i := 0; i < 2; i++ {
		select {
		case <-ad.notif:
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d did not happen", i)
		}
	}
	if got := len(ad.texts()); got != 2 {
		t.Fatalf("sent %d messages, want 2", got)
	}
}

func TestSendSynchronous(t *testing.T) {
	t.Parallel()

	ad := &recordingAdapter{}
	svc := New(Config{RatePerSec: 1000}, ad, logx.Nop())

	if err := svc.Send(context.Background(), kit.ChatTarget{ChatID: 1}, "now"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := ad.texts(); len(got) != 1 || got[0] != "now" {
		t.Fatalf("sent = %v", got)
	}

	ad.fail = true
	if err := svc.Send(context.Background(), kit.ChatTarget{ChatID: 1}, "again"); err == nil {
		t.Fatalf("transport failure must surface on the synchronous path")
	}
}

func TestStopUnblocksWorkers(t *testing.T) {
	t.Parallel()

	ad := &recordingAdapter{}
	svc := New(Config{Workers: 1, RatePerSec: 1000}, ad, logx.Nop())
	svc.Start(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
