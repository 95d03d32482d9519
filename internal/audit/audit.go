// Package audit emits structured reminder lifecycle events. Emission
// is one-way and best-effort: the core never depends on a sink
// succeeding.
package audit

import (
	"context"
	"time"

	"slonyara/internal/storage"
	logx "slonyara/pkg/logx"
)

type Event string

const (
	EventScheduled       Event = "scheduled"
	EventFired           Event = "fired"
	EventRescheduled     Event = "rescheduled"
	EventCancelled       Event = "cancelled"
	EventDedupSkipped    Event = "dedup_skipped"
	EventSentImmediately Event = "sent_immediately"
	EventDropped         Event = "dropped"
)

// Record is one lifecycle event. When is the job's fire instant (UTC);
// Reason qualifies terminal events ("stale", "chat_unregistered", ...).
type Record struct {
	Event         Event
	JobID         string
	ChatID        int64
	TopicID       int
	ActorID       int64
	ActorUsername string
	Text          string
	When          time.Time
	Reason        string
}

type Sink interface {
	Emit(ctx context.Context, r Record)
}

// Nop returns a sink that discards everything.
func Nop() Sink { return nopSink{} }

type nopSink struct{}

func (nopSink) Emit(context.Context, Record) {}

// NewLogSink writes events to the structured log at info level.
func NewLogSink(log logx.Logger) Sink {
	return &logSink{log: log.With(logx.String("svc", "audit"))}
}

type logSink struct{ log logx.Logger }

func (s *logSink) Emit(_ context.Context, r Record) {
	fields := []logx.Field{
		logx.String("event", string(r.Event)),
		logx.String("job_id", r.JobID),
		logx.Int64("chat_id", r.ChatID),
	}
	if r.TopicID != 0 {
		fields = append(fields, logx.Int("topic_id", r.TopicID))
	}
	if r.ActorID != 0 {
		fields = append(fields, logx.Int64("actor_id", r.ActorID))
	}
	if !r.When.IsZero() {
		fields = append(fields, logx.Time("when", r.When))
	}
	if r.Reason != "" {
		fields = append(fields, logx.String("reason", r.Reason))
	}
	s.log.Info("reminder event", fields...)
}

// NewStoreSink persists events into the storage audit table. Failures
// are logged and swallowed.
func NewStoreSink(st storage.Store, log logx.Logger) Sink {
	return &storeSink{st: st, log: log.With(logx.String("svc", "audit"))}
}

type storeSink struct {
	st  storage.Store
	log logx.Logger
}

func (s *storeSink) Emit(ctx context.Context, r Record) {
	if s.st == nil {
		return
	}
	err := s.st.AppendAudit(ctx, storage.AuditEntry{
		At:            time.Now(),
		Event:         string(r.Event),
		JobID:         r.JobID,
		ChatID:        r.ChatID,
		TopicID:       r.TopicID,
		ActorID:       r.ActorID,
		ActorUsername: r.ActorUsername,
		Text:          r.Text,
		When:          r.When,
		Reason:        r.Reason,
	})
	if err != nil {
		s.log.Warn("audit append failed", logx.Err(err), logx.String("event", string(r.Event)))
	}
}

// Fanout duplicates events to every sink.
func Fanout(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return fanout(out)
}

type fanout []Sink

func (f fanout) Emit(ctx context.Context, r Record) {
	for _, s := range f {
		s.Emit(ctx, r)
	}
}
