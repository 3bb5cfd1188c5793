package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/chat"
)

// GrantAction is the callback key of the operator approval button.
const GrantAction = "grant_access"

// Ticket describes an event operators must act on.
type Ticket struct {
	Title     string
	UserID    int64
	Identity  string
	Email     string
	Flow      Flow
	PaymentID string
}

// Notifier opens access requests and pushes them to every operator.
type Notifier struct {
	store     *Store
	chat      chat.Messenger
	operators []int64
	texts     Texts
}

// NewNotifier wires a notifier. Without operators no request is opened.
func NewNotifier(store *Store, messenger chat.Messenger, operators []int64, texts Texts) *Notifier {
	return &Notifier{store: store, chat: messenger, operators: operators, texts: texts.withDefaults()}
}

// Notify opens a request and delivers it to each operator. Per-operator
// failures are joined as NotificationDeliveryError; the request stays open.
func (n *Notifier) Notify(ctx context.Context, t Ticket) (string, error) {
	if len(n.operators) == 0 {
		logger.Warn(ctx, logger.CompAccess, "access.notify_skip", slog.String("cause", "no_operators"))
		return "", nil
	}
	req := n.store.Open(t.UserID, t.Email, t.Flow, t.PaymentID)
	ctx = logger.WithAccessRequest(ctx, req.ID)

	text := formatTicket(t)
	kb := chat.Row(chat.Button{Text: n.texts.GrantButton, Action: GrantAction, Payload: req.ID})

	var errs []error
	for _, op := range n.operators {
		if err := n.chat.SendText(ctx, op, text, kb); err != nil {
			errs = append(errs, &funnel.NotificationDeliveryError{RecipientID: op, Role: funnel.RoleOperator, Err: err})
		}
	}
	err := errors.Join(errs...)
	logger.Info(ctx, logger.CompAccess, "access.opened",
		slog.String("status", logger.Status(err)),
		slog.String("flow", string(t.Flow)),
		slog.Int("recipients", len(n.operators)),
		slog.Int("failed", len(errs)),
		logger.Err(err),
	)
	return req.ID, err
}

func formatTicket(t Ticket) string {
	identity := t.Identity
	if identity == "" {
		identity = chat.FormatIdentity("", t.UserID)
	}
	lines := []string{
		t.Title,
		"Telegram: " + identity,
		"Email: " + t.Email,
		"Chat ID: " + strconv.FormatInt(t.UserID, 10),
	}
	if t.PaymentID != "" {
		lines = append(lines, fmt.Sprintf("Payment ID: %s", t.PaymentID))
	}
	return strings.Join(lines, "\n")
}
