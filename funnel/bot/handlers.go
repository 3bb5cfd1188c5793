package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/funnelbot/core/logger"
	coretelegram "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/callbacks"
	"github.com/m3rciful/funnelbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
	"github.com/m3rciful/funnelbot/core/telegram/middleware"
	"github.com/m3rciful/funnelbot/core/telegram/router"
	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/access"
	"github.com/m3rciful/funnelbot/funnel/chat"
	"github.com/m3rciful/funnelbot/funnel/flow"

	tele "gopkg.in/telebot.v4"
)

// TelegramRunOptions registers commands, callbacks and text handlers and
// hooks the HTTP server and reminder scheduler into the bot lifecycle.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg, err := a.registry()
	if err != nil {
		return coretelegram.RunOptions{}, err
	}
	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, a.onRateLimited),
		Routes: func(rt coretelegram.Runtime) []coretelegram.Route {
			a.messenger.Attach(rt.Bot)
			routes := router.CommandRoutes(reg, router.CommandRouteOptions{
				IsAdmin:       a.cfg.IsAdmin,
				OnAdminReject: a.onAdminReject,
			})
			routes = append(routes, router.CallbackRoute(reg))
			routes = append(routes, router.TextRoutes(reg,
				router.NamedText{Name: "access_dialogue", Handler: router.TextHandlerFunc(a.onDialogueText)},
				router.NamedText{Name: "funnel", Handler: router.TextHandlerFunc(a.onFunnelText)},
			)...)
			return append(routes, coretelegram.Route{
				Endpoint: tele.OnContact,
				Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(a.onContact)),
			})
		},
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

func (a *App) registry() (*coretelegram.Registry, error) {
	reg := coretelegram.NewRegistry()
	cmds := map[string]commands.Command{
		"/start":     {Handler: a.onStart, Description: "Start over"},
		"/myid":      {Handler: a.onMyID, Description: "Show your Telegram id"},
		"/paid":      {Handler: a.onPaid, Description: "Grant paid access manually", AdminOnly: true},
		"/broadcast": {Handler: a.onBroadcast, Description: "Message every lead", AdminOnly: true},
	}
	var errs []error
	for name, cmd := range cmds {
		errs = append(errs, reg.RegisterCommand(name, cmd))
	}
	for _, action := range a.script.ActionNames() {
		errs = append(errs, reg.RegisterCallback(action, a.onAction(action)))
	}
	errs = append(errs, reg.RegisterCallback(access.GrantAction, a.onGrantAccess))
	reg.SetCallbackNotFound(func(c tele.Context) error {
		return tghelpers.SendText(c, a.script.Texts.UnknownAction)
	})
	return reg, errors.Join(errs...)
}

func userFrom(c tele.Context) flow.User {
	s := c.Sender()
	if s == nil {
		return flow.User{}
	}
	return flow.User{ID: s.ID, FirstName: s.FirstName, LastName: s.LastName, Username: s.Username}
}

func isPrivate(c tele.Context) bool {
	ch := c.Chat()
	return ch != nil && ch.Type == tele.ChatPrivate
}

func (a *App) onStart(c tele.Context) error {
	if !isPrivate(c) {
		return nil
	}
	return a.engine.Start(tghelpers.WithHandler(c, "start"), userFrom(c))
}

func (a *App) onMyID(c tele.Context) error {
	u := userFrom(c)
	return tghelpers.SendText(c, fmt.Sprintf(a.script.Texts.MyID, u.ID, chat.FormatIdentity(u.Username, u.ID)))
}

// onPaid handles "/paid <user id>".
func (a *App) onPaid(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "paid")
	args := c.Args()
	if len(args) != 1 {
		return tghelpers.SendText(c, a.script.Texts.PaidUsage)
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil {
		return tghelpers.SendText(c, a.script.Texts.PaidUsage)
	}

	err = a.override.Grant(ctx, c.Sender().ID, userID)
	var denied *funnel.UnauthorizedActionError
	var invalid *funnel.ValidationError
	switch {
	case errors.As(err, &denied):
		return tghelpers.SendText(c, a.script.Texts.OverrideDenied)
	case errors.As(err, &invalid):
		return tghelpers.SendText(c, a.script.Texts.PaidUsage)
	case err != nil:
		logger.Warn(ctx, logger.CompGrant, "override.partial", slog.String("status", "fail"), logger.Err(err))
	}
	return tghelpers.SendText(c, fmt.Sprintf(a.script.Texts.OverrideDone, userID))
}

// onBroadcast handles "/broadcast <text>" by queueing one message per lead.
func (a *App) onBroadcast(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "broadcast")
	text := strings.TrimSpace(c.Data())
	if text == "" {
		return tghelpers.SendText(c, a.script.Texts.BroadcastUsage)
	}
	queued := a.broadcast(ctx, a.leads.All(), text)
	return tghelpers.SendText(c, fmt.Sprintf(a.script.Texts.BroadcastDone, queued))
}

func (a *App) broadcast(ctx context.Context, recipients []int64, text string) int {
	queued := 0
	for _, id := range recipients {
		id := id
		send := func() error { return a.messenger.SendText(ctx, id, text, nil) }
		if a.dispatcher == nil {
			if err := send(); err != nil {
				logger.Warn(logger.WithUser(ctx, id), logger.CompLeads, "broadcast.send", slog.String("status", "fail"), logger.Err(err))
				continue
			}
			queued++
			continue
		}
		if err := a.dispatcher.Enqueue(ctx, "broadcast", "sendMessage", send); err != nil {
			logger.Warn(logger.WithUser(ctx, id), logger.CompLeads, "broadcast.enqueue", slog.String("status", "fail"), logger.Err(err))
			continue
		}
		queued++
	}
	logger.Info(ctx, logger.CompLeads, "broadcast.queued", slog.Int("count", queued), slog.Int("total", len(recipients)))
	return queued
}

func (a *App) onAction(action string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithHandler(c, "action."+action)
		var ref chat.MessageRef
		if m := c.Message(); m != nil && m.Chat != nil {
			ref = chat.MessageRef{ChatID: m.Chat.ID, MessageID: strconv.Itoa(m.ID)}
		}
		return a.engine.Press(ctx, userFrom(c), action, ref)
	}
}

func (a *App) onGrantAccess(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "grant_access")
	err := a.dialogue.Begin(ctx, c.Sender().ID, callbacks.Payload(c))
	var denied *funnel.UnauthorizedActionError
	if errors.As(err, &denied) {
		logger.Warn(ctx, logger.CompAccess, "access.denied", slog.String("outcome", "denied"))
		return nil
	}
	return err
}

func (a *App) onDialogueText(c tele.Context) (bool, error) {
	if c.Sender() == nil || !isPrivate(c) {
		return false, nil
	}
	return a.dialogue.Input(tghelpers.WithHandler(c, "access_dialogue"), c.Sender().ID, c.Text())
}

func (a *App) onFunnelText(c tele.Context) (bool, error) {
	if c.Sender() == nil || !isPrivate(c) {
		return false, nil
	}
	return a.engine.Text(tghelpers.WithHandler(c, "funnel_text"), userFrom(c), c.Text())
}

func (a *App) onContact(c tele.Context) error {
	var phone string
	if m := c.Message(); m != nil && m.Contact != nil {
		phone = m.Contact.PhoneNumber
	}
	a.engine.Contact(tghelpers.WithHandler(c, "contact"), userFrom(c), phone)
	return nil
}

func (a *App) onRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: a.script.Texts.RateLimited})
	}
	return tghelpers.SendText(c, a.script.Texts.RateLimited)
}

func (a *App) onAdminReject(c tele.Context) error {
	logger.Info(tghelpers.BuildContext(c), logger.CompAccess, "command.denied", slog.String("outcome", "denied"))
	return tghelpers.SendText(c, a.script.Texts.OverrideDenied)
}
