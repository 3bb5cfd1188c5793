// Package flow drives users through the scripted funnel.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/access"
	"github.com/m3rciful/funnelbot/funnel/analytics"
	"github.com/m3rciful/funnelbot/funnel/chat"
	"github.com/m3rciful/funnelbot/funnel/payment"
	"github.com/m3rciful/funnelbot/funnel/state"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lowercases raw and validates it.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !emailRe.MatchString(email) {
		return "", &funnel.ValidationError{Field: "email", Reason: "not an email address"}
	}
	return email, nil
}

// User is the chat identity behind an event.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// PaymentCreator mints payment requests.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, userID int64) (payment.Payment, error)
	Amount() (value, currency string)
}

// OperatorNotifier opens access requests for operators.
type OperatorNotifier interface {
	Notify(ctx context.Context, t access.Ticket) (string, error)
}

// Reminder schedules the payment reminder for a user.
type Reminder interface {
	Schedule(userID int64) error
}

// Leads remembers users for broadcasts.
type Leads interface {
	Remember(ctx context.Context, userID int64)
}

// Deps are the collaborators of the Engine. Payments, Reminder and Leads are optional.
type Deps struct {
	Store     state.Store
	Chat      chat.Messenger
	Notifier  OperatorNotifier
	Payments  PaymentCreator
	Analytics analytics.Tracker
	Reminder  Reminder
	Leads     Leads

	MediaDir string
	// Channel is the username checked by membership scenes.
	Channel string
	Pause   time.Duration
	Sleep   func(ctx context.Context, d time.Duration)
}

// Engine applies the script to user events.
type Engine struct {
	script *Script
	deps   Deps
}

// NewEngine validates the script and wires the engine.
func NewEngine(script *Script, deps Deps) (*Engine, error) {
	if script == nil {
		script = DefaultScript()
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Chat == nil {
		return nil, errors.New("flow: store and chat are required")
	}
	if deps.Analytics == nil {
		deps.Analytics = analytics.Nop{}
	}
	if deps.Sleep == nil {
		deps.Sleep = funnel.Sleep
	}
	return &Engine{script: script, deps: deps}, nil
}

// Script returns the script in use.
func (e *Engine) Script() *Script { return e.script }

// Start greets the user. An existing record keeps its step.
func (e *Engine) Start(ctx context.Context, u User) error {
	ctx = logger.WithUser(ctx, u.ID)
	e.remember(ctx, u.ID)
	e.deps.Analytics.Track(ctx, u.ID, analytics.BotStart(u.FirstName, u.LastName))
	st := e.deps.Store.Ensure(u.ID)
	logger.Debug(ctx, logger.CompFlow, "flow.start", slog.String("step", string(st.Step)))
	return e.render(ctx, u.ID, e.script.Start, chat.MessageRef{})
}

// HasAction reports whether the script defines action.
func (e *Engine) HasAction(action string) bool {
	_, ok := e.script.Actions[action]
	return ok
}

// Press handles an inline button. ref is the message that carried the button.
func (e *Engine) Press(ctx context.Context, u User, action string, ref chat.MessageRef) error {
	ctx = logger.WithUser(ctx, u.ID)
	e.remember(ctx, u.ID)
	e.deps.Analytics.Track(ctx, u.ID, analytics.ButtonClick(action))

	sc, ok := e.script.Actions[action]
	if !ok {
		return e.send(ctx, u.ID, e.script.Texts.UnknownAction, nil)
	}
	if sc.Step != "" {
		st := e.deps.Store.Ensure(u.ID)
		if !st.Step.CanAdvanceTo(sc.Step) {
			logger.Info(ctx, logger.CompFlow, "flow.transition_rejected",
				slog.String("action", action),
				slog.String("from_step", string(st.Step)),
				slog.String("to_step", string(sc.Step)),
			)
			return e.send(ctx, u.ID, e.script.Texts.AlreadyDone, nil)
		}
	}
	if sc.CheckMembership {
		member, err := e.deps.Chat.IsMember(ctx, e.deps.Channel, u.ID)
		if err != nil {
			logger.Warn(ctx, logger.CompFlow, "flow.membership_lookup", logger.Err(err))
		}
		if member {
			e.deps.Analytics.Track(ctx, u.ID, analytics.ChannelSubscribed(e.deps.Channel))
		} else if sc.NotMember != nil {
			return e.render(ctx, u.ID, *sc.NotMember, ref)
		}
	}
	return e.render(ctx, u.ID, sc, ref)
}

// render plays a scene: clear controls, media and pause, step change, text.
func (e *Engine) render(ctx context.Context, userID int64, sc Scene, ref chat.MessageRef) error {
	if sc.ClearControls && !ref.IsZero() {
		if err := e.deps.Chat.ClearControls(ctx, ref); err != nil {
			logger.Debug(ctx, logger.CompFlow, "flow.clear_controls", logger.Err(err))
		}
	}
	if sc.Media != "" {
		if err := e.deps.Chat.SendMedia(ctx, userID, chat.VideoNote(e.mediaPath(sc.Media))); err != nil {
			logger.Warn(ctx, logger.CompFlow, "flow.media_failed", slog.String("cause", sc.Media), logger.Err(err))
		} else if e.deps.Pause > 0 {
			e.deps.Sleep(ctx, e.deps.Pause)
		}
	}
	if sc.Step != "" {
		st, ok := e.deps.Store.CompareAndAdvance(userID, "", sc.Step, nil)
		if ok {
			e.deps.Analytics.Track(ctx, userID, analytics.FunnelStep(string(sc.Step)))
			logger.Info(ctx, logger.CompFlow, "flow.step", slog.String("step", string(st.Step)))
		}
	}
	if sc.Text == "" {
		return nil
	}
	return e.send(ctx, userID, sc.Text, keyboard(sc.Buttons))
}

// Text handles a free text message. handled is false when the current step
// does not expect text; nothing is sent then.
func (e *Engine) Text(ctx context.Context, u User, text string) (bool, error) {
	ctx = logger.WithUser(ctx, u.ID)
	st, ok := e.deps.Store.Get(u.ID)
	if !ok || !st.Step.ExpectsText() {
		return false, nil
	}
	e.remember(ctx, u.ID)

	email, err := NormalizeEmail(text)
	if err != nil {
		logger.Info(ctx, logger.CompFlow, "flow.invalid_email", slog.String("step", string(st.Step)), logger.Err(err))
		return true, e.send(ctx, u.ID, e.script.Texts.InvalidEmail, nil)
	}

	switch st.Step {
	case state.StepAwaitingFreeEmail:
		return true, e.freeEmail(ctx, u, email)
	case state.StepAwaitingPaidEmail:
		return true, e.paidEmail(ctx, u, email)
	}
	return false, nil
}

func (e *Engine) freeEmail(ctx context.Context, u User, email string) error {
	_, ok := e.deps.Store.CompareAndAdvance(u.ID, state.StepAwaitingFreeEmail, state.StepFreeAccessRequested, func(st *state.FunnelState) {
		st.Email = email
	})
	if !ok {
		return nil
	}
	e.deps.Analytics.Track(ctx, u.ID, analytics.FunnelStep(string(state.StepFreeAccessRequested)))
	logger.Info(ctx, logger.CompFlow, "flow.step",
		slog.String("step", string(state.StepFreeAccessRequested)),
		slog.String("flow", string(access.FlowFree)),
	)

	if e.deps.Notifier != nil {
		if _, err := e.deps.Notifier.Notify(ctx, access.Ticket{
			Title:    e.script.Texts.FreeTicketTitle,
			UserID:   u.ID,
			Identity: chat.FormatIdentity(u.Username, u.ID),
			Email:    email,
			Flow:     access.FlowFree,
		}); err != nil {
			logger.Warn(ctx, logger.CompFlow, "flow.notify_failed", logger.Err(err))
		}
	}
	return e.send(ctx, u.ID, e.script.Texts.FreeThanks, nil)
}

func (e *Engine) paidEmail(ctx context.Context, u User, email string) error {
	if e.deps.Payments == nil {
		return e.send(ctx, u.ID, e.script.Texts.PaymentsOff, nil)
	}
	value, currency := e.deps.Payments.Amount()
	amount, _ := strconv.ParseFloat(value, 64)
	e.deps.Analytics.Track(ctx, u.ID, analytics.PaymentInitiated(currency, amount))
	e.deps.Analytics.Track(ctx, u.ID, analytics.FunnelStep("payment_initiated"))

	p, err := e.deps.Payments.CreatePayment(ctx, u.ID)
	if err != nil {
		logger.Warn(ctx, logger.CompFlow, "flow.payment_failed", slog.String("status", "fail"), logger.Err(err))
		return e.send(ctx, u.ID, e.script.Texts.GatewayError, nil)
	}
	ctx = logger.WithOrder(logger.WithPayment(ctx, p.PaymentID), p.OrderID)

	_, ok := e.deps.Store.CompareAndAdvance(u.ID, state.StepAwaitingPaidEmail, state.StepAwaitingPayment, func(st *state.FunnelState) {
		st.Email = email
		st.PaymentID = p.PaymentID
		st.PaymentURL = p.PaymentURL
	})
	if !ok {
		logger.Warn(ctx, logger.CompFlow, "flow.payment_orphaned", slog.String("cause", "step_changed"))
		return nil
	}
	logger.Info(ctx, logger.CompFlow, "flow.step", slog.String("step", string(state.StepAwaitingPayment)))

	if e.deps.Reminder != nil {
		if err := e.deps.Reminder.Schedule(u.ID); err != nil {
			logger.Warn(ctx, logger.CompFlow, "flow.reminder_failed", logger.Err(err))
		}
	}
	return e.send(ctx, u.ID, e.script.Texts.PayPrompt, chat.Row(chat.Button{Text: e.script.Texts.PayButton, URL: p.PaymentURL}))
}

// Remind re-sends the payment link if the user is still awaiting payment.
func (e *Engine) Remind(ctx context.Context, userID int64) error {
	ctx = logger.WithUser(ctx, userID)
	st, ok := e.deps.Store.Get(userID)
	if !ok || st.Step != state.StepAwaitingPayment || st.Paid || st.PaymentURL == "" {
		logger.Info(ctx, logger.CompReminder, "reminder.skip", slog.String("status", "skip"), slog.String("step", string(st.Step)))
		return nil
	}
	logger.Info(logger.WithPayment(ctx, st.PaymentID), logger.CompReminder, "reminder.send", slog.String("status", "ok"))
	return e.send(ctx, userID, e.script.Texts.Reminder, chat.Row(chat.Button{Text: e.script.Texts.PayButton, URL: st.PaymentURL}))
}

// Contact records a shared contact card.
func (e *Engine) Contact(ctx context.Context, u User, phone string) {
	ctx = logger.WithUser(ctx, u.ID)
	e.remember(ctx, u.ID)
	e.deps.Analytics.Track(ctx, u.ID, analytics.ContactShared(phone != ""))
}

func (e *Engine) send(ctx context.Context, userID int64, text string, kb chat.Keyboard) error {
	if text == "" {
		return nil
	}
	return e.deps.Chat.SendText(ctx, userID, text, kb)
}

func (e *Engine) remember(ctx context.Context, userID int64) {
	if e.deps.Leads != nil {
		e.deps.Leads.Remember(ctx, userID)
	}
}

func (e *Engine) mediaPath(name string) string {
	if filepath.IsAbs(name) || e.deps.MediaDir == "" {
		return name
	}
	return filepath.Join(e.deps.MediaDir, name)
}

func keyboard(rows [][]Button) chat.Keyboard {
	if len(rows) == 0 {
		return nil
	}
	kb := make(chat.Keyboard, 0, len(rows))
	for _, row := range rows {
		r := make([]chat.Button, 0, len(row))
		for _, b := range row {
			r = append(r, chat.Button{Text: b.Text, Action: b.Action, URL: b.URL})
		}
		kb = append(kb, r)
	}
	return kb
}
