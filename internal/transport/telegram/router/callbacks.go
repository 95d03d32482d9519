package router

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"slonyara/internal/reminder"
	"slonyara/pkg/tgui"
)

// Inline button actions under the "rem" callback namespace. The
// payload is the job id (for shift: "jobID:minutes"). Author-or-admin
// rules live in the engine; the router just reports the refusal.
const (
	callbackNS = "rem"

	actionCancel  = "cancel"
	actionSendNow = "send"
	actionRecur   = "recur"
	actionShift   = "shift"
)

type callbackHandler func(ctx context.Context, req *Request) error

func (r *Router) callbackTable() map[string]callbackHandler {
	return map[string]callbackHandler{
		actionCancel:  r.cbCancel,
		actionSendNow: r.cbSendNow,
		actionRecur:   r.cbRecur,
		actionShift:   r.cbShift,
	}
}

func callbackData(action, jobID string) string {
	return tgui.Data(callbackNS, action, jobID)
}

func parseCallbackData(data string) (ns, action, payload string) {
	return tgui.ParseData(data)
}

func (r *Router) cbCancel(ctx context.Context, req *Request) error {
	ok, err := r.eng.Cancel(ctx, req.Payload, req.actor())
	switch {
	case errors.Is(err, reminder.ErrUnauthorized):
		r.reply(ctx, req.Chat, textUnauthorized)
		return nil
	case err != nil:
		return err
	case !ok:
		r.reply(ctx, req.Chat, textGoneAlready)
		return nil
	}
	r.reply(ctx, req.Chat, textCancelled)
	return nil
}

func (r *Router) cbSendNow(ctx context.Context, req *Request) error {
	ok, err := r.eng.SendNow(ctx, req.Payload, req.actor())
	switch {
	case errors.Is(err, reminder.ErrUnauthorized):
		r.reply(ctx, req.Chat, textUnauthorized)
		return nil
	case err != nil:
		return err
	case !ok:
		r.reply(ctx, req.Chat, textGoneAlready)
		return nil
	}
	r.reply(ctx, req.Chat, textSentNow)
	return nil
}

// cbShift moves the job by the number of minutes encoded in the
// payload ("jobID:minutes"). Admin only, enforced by the engine.
func (r *Router) cbShift(ctx context.Context, req *Request) error {
	jobID, minutes, ok := parseShiftPayload(req.Payload)
	if !ok {
		r.reply(ctx, req.Chat, textGoneAlready)
		return nil
	}

	updated, err := r.eng.Shift(ctx, jobID, time.Duration(minutes)*time.Minute, req.actor())
	switch {
	case errors.Is(err, reminder.ErrUnauthorized):
		r.reply(ctx, req.Chat, textUnauthorized)
		return nil
	case err != nil:
		return err
	case updated == nil:
		r.reply(ctx, req.Chat, textGoneAlready)
		return nil
	}

	loc := r.dir.TimeZone(ctx, req.Chat.ChatID)
	m := tgui.New().
		Line("Перенесено на " + fmtLocal(updated.FireAt, loc)).
		Code(updated.Text).
		Build()
	_, sendErr := m.Send(ctx, req.Adapter, req.Chat)
	return sendErr
}

func parseShiftPayload(payload string) (jobID string, minutes int, ok bool) {
	i := strings.LastIndexByte(payload, ':')
	if i <= 0 || i == len(payload)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(payload[i+1:])
	if err != nil || n == 0 {
		return "", 0, false
	}
	return payload[:i], n, true
}

// cbRecur cycles once -> daily -> weekly -> once.
func (r *Router) cbRecur(ctx context.Context, req *Request) error {
	j, err := r.eng.Get(ctx, req.Payload)
	if err != nil {
		return err
	}
	if j == nil {
		r.reply(ctx, req.Chat, textGoneAlready)
		return nil
	}

	next := j.Recurrence.Next()
	updated, err := r.eng.SetRecurrence(ctx, req.Payload, next, req.actor())
	switch {
	case errors.Is(err, reminder.ErrUnauthorized):
		r.reply(ctx, req.Chat, textUnauthorized)
		return nil
	case err != nil:
		return err
	case updated == nil:
		r.reply(ctx, req.Chat, textGoneAlready)
		return nil
	}

	label := recurrenceLabel(updated.Recurrence)
	if label == "once" {
		label = "однократно"
	}
	m := tgui.New().
		Line("Повтор изменён: " + label).
		Code(updated.Text).
		Build()
	_, sendErr := m.Send(ctx, req.Adapter, req.Chat)
	return sendErr
}
