// Package router dispatches inbound chat updates: slash commands go to
// their handlers, free-form text is treated as a meeting line, inline
// button callbacks mutate live reminders.
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"slonyara/internal/directory"
	"slonyara/internal/job"
	"slonyara/internal/reminder"
	rtsup "slonyara/internal/runtime/supervisor"
	"slonyara/internal/storage"
	kit "slonyara/internal/transport"
	logx "slonyara/pkg/logx"
)

// Engine is the reminder lifecycle surface the router drives.
type Engine interface {
	Create(ctx context.Context, req reminder.CreateRequest) (reminder.Outcome, error)
	Cancel(ctx context.Context, jobID string, by reminder.Actor) (bool, error)
	Shift(ctx context.Context, jobID string, delta time.Duration, by reminder.Actor) (*job.Reminder, error)
	SetRecurrence(ctx context.Context, jobID string, r job.Recurrence, by reminder.Actor) (*job.Reminder, error)
	SendNow(ctx context.Context, jobID string, by reminder.Actor) (bool, error)
	CancelChat(ctx context.Context, chatID int64, topicID int) (int, error)
	Get(ctx context.Context, jobID string) (*job.Reminder, error)
	List(ctx context.Context, chatID int64, topicID int) ([]job.Reminder, error)
}

// Directory is the chat/admin directory surface the router needs.
type Directory interface {
	IsOwner(userID int64, username string) bool
	IsAdmin(userID int64, username string) bool
	AddAdmin(ctx context.Context, username string) error
	RemoveAdmin(ctx context.Context, username string) error
	Admins() []string

	TimeZone(ctx context.Context, chatID int64) *time.Location
	LeadOffset(ctx context.Context, chatID int64) int
	SetTimeZone(ctx context.Context, chatID int64, name string) error
	SetLeadOffset(ctx context.Context, chatID int64, minutes int) error

	RegisterChat(ctx context.Context, rc storage.RegisteredChat) error
	UnregisterChat(ctx context.Context, chatID int64, topicID int) error
	Chats(ctx context.Context) ([]storage.RegisteredChat, error)
	IsRegistered(ctx context.Context, chatID int64, topicID int) bool
}

var _ Directory = (*directory.Service)(nil)
var _ Engine = (*reminder.Controller)(nil)

// Request carries one routed update through the middleware chain.
type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string
	Args         []string
	Payload      string
	ReqID        string

	Adapter kit.Adapter
	Logger  logx.Logger
}

func (r *Request) actor() reminder.Actor {
	return reminder.Actor{ID: r.FromID, Username: r.FromUsername}
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	eng     Engine
	dir     Directory

	commands  map[string]command
	callbacks map[string]callbackHandler

	runMu sync.Mutex
	sup   *rtsup.Supervisor
	jobs  chan func()
}

func New(log logx.Logger, adapter kit.Adapter, eng Engine, dir Directory) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:     log.With(logx.String("comp", "telegram.router")),
		adapter: adapter,
		eng:     eng,
		dir:     dir,
		jobs:    make(chan func(), 256),
	}
	r.commands = r.commandTable()
	r.callbacks = r.callbackTable()
	return r
}

// DispatchLoop consumes updates until ctx is cancelled or the channel
// closes. Handlers run on a bounded worker pool so one slow handler
// does not stall the rest.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.runMu.Unlock()

	r.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("queue_cap", cap(r.jobs)))

	var closeOnce sync.Once
	closeJobs := func() { closeOnce.Do(func() { close(r.jobs) }) }

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case fn, ok := <-r.jobs:
					if !ok {
						return nil
					}
					if fn == nil {
						continue
					}
					// Middleware already recovers; this keeps the worker
					// alive if a job slips past it.
					func() {
						defer func() {
							if p := recover(); p != nil {
								r.log.Error("panic in router job",
									logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
							}
						}()
						fn()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	r.publishMenu(sup)

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		r.enqueue(ctx, up, "text", nil, text, r.handleMeetingLine)
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	args := parts[1:]

	cmd, ok := r.commands[word]
	if !ok {
		r.reply(ctx, chatOf(msg), textUnknownCommand)
		return
	}
	if cmd.adminOnly && !r.dir.IsAdmin(msg.FromID, msg.FromUsername) {
		r.reply(ctx, chatOf(msg), textUnauthorized)
		return
	}
	r.enqueue(ctx, up, word, args, "", cmd.handle)
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	ns, action, payload := parseCallbackData(cb.Data)
	if ns != callbackNS {
		return
	}
	h, ok := r.callbacks[action]
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	r.enqueue(ctx, up, "cb:"+action, nil, payload, func(c context.Context, req *Request) error {
		err := h(c, req)
		// Always settle the "loading" spinner.
		_ = r.adapter.AnswerCallback(c, cb.ID, "")
		return err
	})
}

func (r *Router) enqueue(ctx context.Context, up kit.Update, command string, args []string, payload string, h HandlerFunc) {
	var chat kit.ChatTarget
	var fromID int64
	var fromUser string
	switch {
	case up.Message != nil:
		chat = chatOf(up.Message)
		fromID, fromUser = up.Message.FromID, up.Message.FromUsername
	case up.Callback != nil:
		chat = kit.ChatTarget{ChatID: up.Callback.ChatID, ThreadID: up.Callback.ThreadID}
		fromID, fromUser = up.Callback.FromID, up.Callback.FromUsername
	default:
		return
	}

	rid := newReqID()
	req := &Request{
		Update:       up,
		Chat:         chat,
		FromID:       fromID,
		FromUsername: fromUser,
		Command:      command,
		Args:         args,
		Payload:      payload,
		ReqID:        rid,
		Adapter:      r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int("thread_id", chat.ThreadID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", command),
		),
	}

	final := Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(30*time.Second),
	)

	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		r.reply(ctx, chat, textBusy)
	}
}

// tryEnqueue is panic-safe against the jobs channel being closed
// during shutdown.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func (r *Router) reply(ctx context.Context, to kit.ChatTarget, text string) {
	_, err := r.adapter.SendText(ctx, to, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (r *Router) publishMenu(sup *rtsup.Supervisor) {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := menuCommands()
	sup.Go0("menu.update", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(mctx, menu); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
	})
}

func chatOf(m *kit.Message) kit.ChatTarget {
	return kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
}

func newReqID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b[:])
}
