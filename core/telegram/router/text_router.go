package router

import (
	"time"

	tg "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextHandler consumes free text. handled=false passes the message to the next handler.
type TextHandler interface {
	HandleText(c tele.Context) (handled bool, err error)
}

// TextHandlerFunc adapts a function to TextHandler.
type TextHandlerFunc func(c tele.Context) (bool, error)

// HandleText calls f.
func (f TextHandlerFunc) HandleText(c tele.Context) (bool, error) { return f(c) }

// NamedText pairs a TextHandler with the name used in handler summaries.
type NamedText struct {
	Name    string
	Handler TextHandler
}

// TextRoutes routes OnText through handlers in order, then through registry
// command aliases, then the registry text fallback. Unclaimed text is logged as skipped.
func TextRoutes(reg *tg.Registry, handlers ...NamedText) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		for _, nh := range handlers {
			if nh.Handler == nil {
				continue
			}
			handled, err := nh.Handler.HandleText(c)
			if handled || err != nil {
				logHandlerSummary(c, "text."+normalizeHandlerName(nh.Name), start, "", err)
				return err
			}
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return handleWithSummary(c, "command."+normalizeHandlerName(key), func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "text.fallback", func() error { return fb(c) })
			}
		}

		logHandlerSummary(c, "text.unclaimed", start, "skip", nil)
		return nil
	}

	return []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}}
}
