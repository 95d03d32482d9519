package router

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"slonyara/internal/job"
	"slonyara/internal/reminder"
	"slonyara/internal/storage"
	kit "slonyara/internal/transport"
	"slonyara/pkg/tgui"
)

type command struct {
	description string
	usage       string
	adminOnly   bool
	handle      HandlerFunc
}

func (r *Router) commandTable() map[string]command {
	return map[string]command{
		"start": {
			description: "что умеет бот",
			handle:      r.cmdHelp,
		},
		"help": {
			description: "справка",
			handle:      r.cmdHelp,
		},
		"list": {
			description: "активные напоминания",
			handle:      r.cmdList,
		},
		"register": {
			description: "зарегистрировать чат",
			adminOnly:   true,
			handle:      r.cmdRegister,
		},
		"unregister": {
			description: "снять чат с учёта",
			adminOnly:   true,
			handle:      r.cmdUnregister,
		},
		"tz": {
			description: "часовой пояс чата",
			usage:       "/tz [Europe/Moscow]",
			adminOnly:   true,
			handle:      r.cmdTimezone,
		},
		"offset": {
			description: "за сколько минут напоминать",
			usage:       "/offset [минуты]",
			adminOnly:   true,
			handle:      r.cmdOffset,
		},
		"admins": {
			description: "управление админами",
			usage:       "/admins [add|remove <user>]",
			adminOnly:   true,
			handle:      r.cmdAdmins,
		},
	}
}

func menuCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "list", Description: "активные напоминания"},
		{Command: "help", Description: "справка"},
		{Command: "tz", Description: "часовой пояс чата"},
		{Command: "offset", Description: "за сколько минут напоминать"},
		{Command: "register", Description: "зарегистрировать чат"},
	}
}

// handleMeetingLine feeds free-form text into the creation pipeline.
// Group chats must be registered first; unregistered group chatter is
// ignored so the bot never heckles a conversation it was not invited
// into. Format errors are only reported in private chats for the same
// reason.
func (r *Router) handleMeetingLine(ctx context.Context, req *Request) error {
	msg := req.Update.Message
	private := msg != nil && !msg.IsGroup

	if !private && !r.dir.IsRegistered(ctx, req.Chat.ChatID, req.Chat.ThreadID) {
		return nil
	}

	out, err := r.eng.Create(ctx, reminder.CreateRequest{
		Text:           msg.Text,
		SourceChatID:   req.Chat.ChatID,
		TargetChatID:   req.Chat.ChatID,
		TopicID:        req.Chat.ThreadID,
		AuthorID:       req.FromID,
		AuthorUsername: req.FromUsername,
	})
	if err != nil {
		return err
	}

	switch out.Kind {
	case reminder.OutcomeScheduled:
		loc := r.dir.TimeZone(ctx, req.Chat.ChatID)
		offset := r.dir.LeadOffset(ctx, req.Chat.ChatID)
		m := tgui.New().
			Title("✅", "Напоминание создано").
			Code(out.Job.Text).
			Line(fmt.Sprintf("Сработает %s (за %d мин)", fmtLocal(out.FireAt, loc), offset)).
			Build()
		_, sendErr := m.Send(ctx, req.Adapter, req.Chat)
		return sendErr

	case reminder.OutcomeSentImmediately:
		r.reply(ctx, req.Chat, textSentImmediately)
		return out.SendErr

	case reminder.OutcomeDuplicate:
		loc := r.dir.TimeZone(ctx, req.Chat.ChatID)
		m := tgui.New().
			Line(textDuplicate).
			Code(out.Existing.Text).
			Line("Сработает " + fmtLocal(out.Existing.FireAt, loc)).
			Build()
		_, sendErr := m.Send(ctx, req.Adapter, req.Chat)
		return sendErr

	case reminder.OutcomeDedupSkipped:
		// Double-tap: stay silent.
		return nil

	case reminder.OutcomeFormatError:
		if private {
			r.reply(ctx, req.Chat, textFormatHint)
		}
		return nil
	}
	return nil
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	b := tgui.New().
		Title("🐘", "Слоняра — бот-напоминалка о встречах").
		Blank().
		Line("Пришлите строку встречи, и бот напомнит заранее:").
		Code("25.08 МТС 14:30 2в JIRA-123").
		Line("ДД.ММ ТИП ЧЧ:ММ ПЕРЕГОВОРКА [ТИКЕТ]").
		Blank().
		RawLine(tgui.B("Команды").String())

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		if name == "start" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := r.commands[name]
		u := c.usage
		if u == "" {
			u = "/" + name
		}
		b.RawLine(tgui.Code(u).String() + " — " + tgui.Esc(c.description).String())
	}

	m := b.Build()
	_, err := m.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cmdList(ctx context.Context, req *Request) error {
	jobs, err := r.eng.List(ctx, req.Chat.ChatID, req.Chat.ThreadID)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		r.reply(ctx, req.Chat, textNoJobs)
		return nil
	}

	loc := r.dir.TimeZone(ctx, req.Chat.ChatID)
	b := tgui.New().Title("📋", "Активные напоминания")
	kb := tgui.NewInline()

	const maxButtons = 10
	for i := range jobs {
		j := &jobs[i]
		line := fmt.Sprintf("%d. %s — %s", i+1, j.Text, fmtLocal(j.FireAt, loc))
		if j.Recurrence != job.Once {
			line += " (" + recurrenceLabel(j.Recurrence) + ")"
		}
		b.Line(line)

		if i < maxButtons {
			n := strconv.Itoa(i + 1)
			kb.Row(
				tgui.Btn("✖ "+n, callbackData(actionCancel, j.ID)),
				tgui.Btn("▶ "+n, callbackData(actionSendNow, j.ID)),
				tgui.Btn("🔁 "+n, callbackData(actionRecur, j.ID)),
				tgui.Btn("+30м "+n, callbackData(actionShift, j.ID+":30")),
			)
		}
	}
	if len(jobs) > maxButtons {
		b.Blank().Line(fmt.Sprintf("Кнопки показаны для первых %d.", maxButtons))
	}

	m := b.Inline(kb).Build()
	_, err = m.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cmdRegister(ctx context.Context, req *Request) error {
	if r.dir.IsRegistered(ctx, req.Chat.ChatID, req.Chat.ThreadID) {
		r.reply(ctx, req.Chat, textAlreadyRegistered)
		return nil
	}
	title := ""
	if req.Update.Message != nil {
		title = req.Update.Message.ChatTitle
	}
	err := r.dir.RegisterChat(ctx, storage.RegisteredChat{
		ChatID:  req.Chat.ChatID,
		TopicID: req.Chat.ThreadID,
		Title:   title,
	})
	if err != nil {
		return err
	}
	r.reply(ctx, req.Chat, textRegistered)
	return nil
}

// cmdUnregister drops the registration and archives every reminder
// that targeted the chat, so nothing keeps firing into a chat that
// opted out.
func (r *Router) cmdUnregister(ctx context.Context, req *Request) error {
	if !r.dir.IsRegistered(ctx, req.Chat.ChatID, req.Chat.ThreadID) {
		r.reply(ctx, req.Chat, textNotRegistered)
		return nil
	}
	if err := r.dir.UnregisterChat(ctx, req.Chat.ChatID, req.Chat.ThreadID); err != nil {
		return err
	}
	n, err := r.eng.CancelChat(ctx, req.Chat.ChatID, req.Chat.ThreadID)
	if err != nil {
		return err
	}
	text := textUnregistered
	if n > 0 {
		text += fmt.Sprintf(" Отменено напоминаний: %d.", n)
	}
	r.reply(ctx, req.Chat, text)
	return nil
}

func (r *Router) cmdTimezone(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		loc := r.dir.TimeZone(ctx, req.Chat.ChatID)
		r.reply(ctx, req.Chat, "Часовой пояс чата: "+loc.String())
		return nil
	}
	name := req.Args[0]
	if err := r.dir.SetTimeZone(ctx, req.Chat.ChatID, name); err != nil {
		r.reply(ctx, req.Chat, "Не знаю такой часовой пояс: "+name)
		return nil
	}
	r.reply(ctx, req.Chat, "Часовой пояс чата: "+name)
	return nil
}

func (r *Router) cmdOffset(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		r.reply(ctx, req.Chat, fmt.Sprintf("Напоминаю за %d мин до встречи.", r.dir.LeadOffset(ctx, req.Chat.ChatID)))
		return nil
	}
	minutes, err := strconv.Atoi(req.Args[0])
	if err != nil || minutes < 0 {
		r.reply(ctx, req.Chat, "Нужно неотрицательное число минут, например /offset 30")
		return nil
	}
	if err := r.dir.SetLeadOffset(ctx, req.Chat.ChatID, minutes); err != nil {
		return err
	}
	r.reply(ctx, req.Chat, fmt.Sprintf("Теперь напоминаю за %d мин до встречи.", minutes))
	return nil
}

func (r *Router) cmdAdmins(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		admins := r.dir.Admins()
		sort.Strings(admins)
		if len(admins) == 0 {
			r.reply(ctx, req.Chat, "Дополнительных админов нет.")
			return nil
		}
		r.reply(ctx, req.Chat, "Админы: @"+strings.Join(admins, ", @"))
		return nil
	}

	// Mutations are for owners only.
	if !r.dir.IsOwner(req.FromID, req.FromUsername) {
		r.reply(ctx, req.Chat, textUnauthorized)
		return nil
	}
	if len(req.Args) < 2 {
		r.reply(ctx, req.Chat, "Использование: /admins add|remove <user>")
		return nil
	}
	user := req.Args[1]
	switch strings.ToLower(req.Args[0]) {
	case "add":
		if err := r.dir.AddAdmin(ctx, user); err != nil {
			return err
		}
		r.reply(ctx, req.Chat, "Добавил админа: "+user)
	case "remove":
		if err := r.dir.RemoveAdmin(ctx, user); err != nil {
			return err
		}
		r.reply(ctx, req.Chat, "Убрал админа: "+user)
	default:
		r.reply(ctx, req.Chat, "Использование: /admins add|remove <user>")
	}
	return nil
}

func fmtLocal(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01 15:04")
}

func recurrenceLabel(rec job.Recurrence) string {
	switch rec {
	case job.Daily:
		return "ежедневно"
	case job.Weekly:
		return "еженедельно"
	default:
		return string(rec)
	}
}
