package router

import (
	"log/slog"

	tg "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/callbacks"
	"github.com/m3rciful/funnelbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute returns the single OnCallback route dispatching through the registry.
// The callback is acknowledged before the handler runs.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key, _ := callbacks.Parse(c.Callback())
		_ = c.Respond()

		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("action", key)}
		h, ok := reg.GetCallback(key)
		if !ok {
			h = reg.CallbackNotFound()
			extras = append(extras, slog.String("cause", "not_found"))
		}
		if h == nil {
			return nil
		}
		return handleWithSummary(c, name, func() error { return h(c) }, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
