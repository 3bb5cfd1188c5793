// Package grant performs the side effects of a confirmed payment.
package grant

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/access"
	"github.com/m3rciful/funnelbot/funnel/analytics"
	"github.com/m3rciful/funnelbot/funnel/chat"
	"github.com/m3rciful/funnelbot/funnel/state"
)

// OperatorNotifier opens a paid access request for operators.
type OperatorNotifier interface {
	Notify(ctx context.Context, t access.Ticket) (string, error)
}

// Content is what the user receives after paying.
type Content struct {
	Media      string
	Text       string
	Link       string
	LinkButton string
}

// Price feeds the purchase analytics event.
type Price struct {
	Amount   string
	Currency string
	Item     analytics.Item
}

// Options configures the Dispatcher.
type Options struct {
	Store     state.Store
	Chat      chat.Messenger
	Notifier  OperatorNotifier
	Analytics analytics.Tracker
	Content   Content
	Price     Price
	// NoEmail replaces the email in operator tickets when none was captured.
	NoEmail     string
	TicketTitle string
	Pause       time.Duration
	Sleep       func(ctx context.Context, d time.Duration)
}

// Dispatcher marks the user paid and delivers access. It trusts its caller
// to invoke it once per payment.
type Dispatcher struct {
	opts Options
}

// New builds a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Analytics == nil {
		opts.Analytics = analytics.Nop{}
	}
	if opts.Sleep == nil {
		opts.Sleep = funnel.Sleep
	}
	if opts.NoEmail == "" {
		opts.NoEmail = "email not provided"
	}
	if opts.Content.LinkButton == "" {
		opts.Content.LinkButton = "Open course"
	}
	if opts.TicketTitle == "" {
		opts.TicketTitle = "New request: paid course (payment succeeded)"
	}
	return &Dispatcher{opts: opts}
}

// Grant marks userID paid and runs every delivery. Operator and user
// failures are isolated and returned joined as NotificationDeliveryError.
func (d *Dispatcher) Grant(ctx context.Context, userID int64, paymentID string) error {
	ctx = logger.WithPayment(logger.WithUser(ctx, userID), paymentID)
	start := time.Now()

	st, first := d.opts.Store.MarkPaid(userID, paymentID)
	d.track(ctx, userID, st.PaymentID)

	var errs []error
	if d.opts.Notifier != nil {
		identity, err := d.opts.Chat.Identity(ctx, userID)
		if err != nil {
			identity = chat.FormatIdentity("", userID)
		}
		email := st.Email
		if email == "" {
			email = d.opts.NoEmail
		}
		if _, err := d.opts.Notifier.Notify(ctx, access.Ticket{
			Title:     d.opts.TicketTitle,
			UserID:    userID,
			Identity:  identity,
			Email:     email,
			Flow:      access.FlowPaid,
			PaymentID: st.PaymentID,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if err := d.deliver(ctx, userID); err != nil {
		errs = append(errs, &funnel.NotificationDeliveryError{RecipientID: userID, Role: funnel.RoleUser, Err: err})
	}

	err := errors.Join(errs...)
	logger.Info(ctx, logger.CompGrant, "grant.dispatched",
		slog.String("status", logger.Status(err)),
		slog.String("outcome", "granted"),
		slog.Bool("first_paid", first),
		slog.Duration("duration", logger.Took(start)),
		logger.Err(err),
	)
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, userID int64) error {
	c := d.opts.Content
	var errs []error
	if c.Media != "" {
		if err := d.opts.Chat.SendMedia(ctx, userID, chat.VideoNote(c.Media)); err != nil {
			errs = append(errs, err)
		} else if d.opts.Pause > 0 {
			d.opts.Sleep(ctx, d.opts.Pause)
		}
	}
	if c.Text != "" {
		var kb chat.Keyboard
		if c.Link != "" {
			kb = chat.Row(chat.Button{Text: c.LinkButton, URL: c.Link})
		}
		if err := d.opts.Chat.SendText(ctx, userID, c.Text, kb); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) track(ctx context.Context, userID int64, paymentID string) {
	p := d.opts.Price
	value, _ := strconv.ParseFloat(p.Amount, 64)
	if paymentID == "" {
		paymentID = "unknown"
	}
	d.opts.Analytics.Track(ctx, userID, analytics.Purchase(p.Currency, value, paymentID, p.Item))
	d.opts.Analytics.Track(ctx, userID, analytics.CourseAccessGranted(p.Item.ID))
	d.opts.Analytics.Track(ctx, userID, analytics.FunnelStep("course_access_granted"))
}
