package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions defines how operator-only checks behave.
type AdminOptions struct {
	// IsAdmin decides membership in the operator allow-list.
	IsAdmin  func(userID int64) bool
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware lets only allow-listed operators reach downstream handlers.
// A nil IsAdmin rejects everyone.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil || opts.IsAdmin == nil || !opts.IsAdmin(sender.ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
